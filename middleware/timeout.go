package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/docket/job"
)

// Timeout bounds a run by the job's persisted timeout field. When the run
// fails because that deadline passed, the error becomes a timeout
// *job.Error carrying the limit in seconds. Code that returns its own
// *job.Error keeps it, and a cancellation coming from outside is returned
// unchanged.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.Timeout <= 0 {
			return next(ctx)
		}
		tctx, cancel := context.WithTimeout(ctx, j.Timeout)
		defer cancel()

		err := next(tctx)
		if err == nil || ctx.Err() != nil || !errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return err
		}
		var own *job.Error
		if errors.As(err, &own) {
			return err
		}
		logger.Warn("job exceeded its timeout",
			slog.String("job_id", j.ID),
			slog.Duration("timeout", j.Timeout),
		)
		return job.NewError(job.CodeTimeout, fmt.Sprintf("job exceeded its timeout of %s", j.Timeout)).
			WithDetail("timeout_s", j.Timeout.Seconds()).
			WithCause(err)
	}
}
