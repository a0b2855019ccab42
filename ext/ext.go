// Package ext defines the extension system for docket.
// Extensions are notified of job lifecycle events (created, completed,
// failed, abandoned, etc.) and can react to them: logging, metrics,
// audit trails.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/docket/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobCreated is called after a job record is written, before its code runs.
type JobCreated interface {
	OnJobCreated(ctx context.Context, j *job.Job) error
}

// JobStarted is called when job code begins executing.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after job code returns without error.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job ends with an error, including jobs
// finalized after they could not be resumed.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobCancelled is called when cancellation is requested for a live job.
type JobCancelled interface {
	OnJobCancelled(ctx context.Context, j *job.Job) error
}

// JobAbandoned is called when maintenance finds a job whose heartbeat went
// stale.
type JobAbandoned interface {
	OnJobAbandoned(ctx context.Context, j *job.Job) error
}

// JobResumed is called when an abandoned job is started again from its
// spec. attempt counts restarts starting at 1.
type JobResumed interface {
	OnJobResumed(ctx context.Context, j *job.Job, attempt int, delay time.Duration) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
