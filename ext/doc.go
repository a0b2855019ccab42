// Package ext defines the extension system for docket.
//
// Extensions are notified of lifecycle events and can react to them:
// recording metrics, writing audit logs, paging on abandoned jobs.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    log.Printf("job %s completed in %s", j.ID, elapsed)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobCreated]: the job record was written
//   - [JobStarted]: job code began executing
//   - [JobCompleted]: job code returned without error
//   - [JobFailed]: the job ended with an error
//   - [JobCancelled]: cancellation was requested
//   - [JobAbandoned]: maintenance found a stale heartbeat
//   - [JobResumed]: an abandoned job was restarted from its spec
//
// # Other Hooks
//
//   - [Shutdown]: the manager is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
