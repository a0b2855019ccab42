// Package job defines the persisted job record, the serializable job spec
// used to resume work after a restart, the callable registry, the
// structured job error and the accessor handed to running job code.
//
// # Job Record
//
// A job is a plain document in the jobs collection. Field names are the
// Field* constants; timestamps are float64 Unix seconds. [FromRecord]
// decodes a record into the typed [Job] view. A job moves through
//
//	created → running → ended
//	created → running → error
//
// with an orthogonal cancel-requested flag while running. A running job
// whose heartbeat went stale is abandoned; that condition is derived, never
// stored.
//
// # Defining a Job
//
// Job code is a [Code] function. Code that must survive a process restart
// is registered under a callable name so the record can carry a [Spec]:
//
//	var Build = job.NewDefinition("builds.run",
//	    func(ctx context.Context, j *job.Accessor, args BuildArgs) error {
//	        return j.Progress(ctx, "compiling "+args.Target)
//	    },
//	)
//
//	job.RegisterDefinition(registry, Build)
//
// # Registry
//
// [Registry] maps callable names to type-erased [HandlerFunc] values and
// resolves a [Spec] back into runnable [Code] with [Registry.Lookup].
package job
