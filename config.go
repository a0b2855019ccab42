package docket

import "time"

// Config holds configuration for the job manager.
type Config struct {
	// JobsCollection is the store collection job records live in.
	JobsCollection string

	// HeartbeatInterval is how often Maintenance is expected to run.
	// Heartbeats are only stamped when Maintenance runs.
	HeartbeatInterval time.Duration

	// AssumeAbandoned is how long a running job may go without a heartbeat
	// before it is considered abandoned.
	AssumeAbandoned time.Duration

	// MaxRestarts is the number of automatic resumes a job with a spec gets
	// before it is finalized with a server-restart error.
	MaxRestarts int

	// PollInterval is the granularity of SleepWithCancelCheck and WaitForJob.
	PollInterval time.Duration

	// Retention is how long ended jobs are kept before Maintenance prunes
	// them. Zero keeps them forever.
	Retention time.Duration

	// MaintenanceInterval is the period used by the maintenance ticker.
	MaintenanceInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		JobsCollection:      "jobs",
		HeartbeatInterval:   10 * time.Second,
		AssumeAbandoned:     60 * time.Second,
		MaxRestarts:         3,
		PollInterval:        1 * time.Second,
		Retention:           7 * 24 * time.Hour,
		MaintenanceInterval: 30 * time.Second,
	}
}
