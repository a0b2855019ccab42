// Package middleware wraps each run of job code.
//
// Every run, first runs and automatic resumes alike, goes through the
// [Default] stack and then through any middleware given to the manager:
//
//	tracing → metrics → logging → recover → timeout → user middleware → code
//
// Middleware see the typed job as loaded when the run began. The error a
// run returns is what the manager stores (its public view) on the record,
// so middleware may replace it: [Recover] turns panics into a "panic"
// *job.Error and [Timeout] turns an expired deadline into a "timeout" one.
//
// A custom middleware:
//
//	func requireUser(ctx context.Context, j *job.Job, next middleware.Handler) error {
//	    if j.User == "" {
//	        return job.NewError("no-user", "job started without a user")
//	    }
//	    return next(ctx)
//	}
package middleware
