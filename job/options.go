package job

import "time"

// Options holds per-definition defaults applied when a job is started from
// its spec.
type Options struct {
	// Title is a human readable label stored on the record.
	Title string

	// Timeout bounds one execution. Zero means unlimited.
	Timeout time.Duration
}

// DefaultOptions returns Options with no title and no timeout.
func DefaultOptions() Options {
	return Options{}
}

// Option is a functional option for configuring a job definition.
type Option func(*Options)

// WithTitle sets the default title.
func WithTitle(title string) Option {
	return func(o *Options) {
		o.Title = title
	}
}

// WithTimeout sets the maximum execution duration for the job.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}
