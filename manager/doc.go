// Package manager orchestrates background jobs on top of a store.Store.
//
// A Manager persists one record per job in the configured jobs
// collection, runs job code on goroutines it tracks by job id, stamps
// heartbeats for the jobs it owns, and during Maintenance detects jobs
// whose owner went away. Abandoned jobs that carry a job.Spec are resumed
// under their original id, at most Config.MaxRestarts times; the rest are
// finalized with a server-restart error.
//
// Everything is poll based. Callers observe completion through Status or
// WaitForJob, cancellation is advisory (job code checks
// job.Accessor.IsCancelled or its context), and Maintenance must be called
// periodically, either directly or through a Ticker.
//
//	m := manager.New(memory.New(), manager.WithRegistry(reg))
//	jobID, err := m.StartCode(ctx, func(ctx context.Context, j *job.Accessor) error {
//	    return j.Progress(ctx, "hello")
//	}, manager.Name("greet"))
package manager
