package job

import "context"

// Code is job code. It receives the accessor of its own job record.
type Code func(ctx context.Context, j *Accessor) error

// Definition is a typed, resumable job definition.
// T is the argument type; it must round-trip through JSON.
type Definition[T any] struct {
	// Name is the callable name stored in the job's spec.
	Name string

	// Handler runs the job with its decoded arguments.
	Handler func(ctx context.Context, j *Accessor, args T) error

	// Opts holds defaults applied when the job is started.
	Opts Options
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, j *Accessor, args T) error, opts ...Option) *Definition[T] {
	def := &Definition[T]{
		Name:    name,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}
