package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/docket/job"
)

// Logging logs the start and the outcome of every run. Failures are logged
// as the full *job.Error, private details included; the record only ever
// stores its public view.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		l := logger.With(
			slog.String("job_id", j.ID),
			slog.String("job_name", j.Name),
		)
		if j.NRestarts > 0 {
			l.Info("job resumed", slog.String("user", j.User), slog.Int("n_restarts", j.NRestarts))
		} else {
			l.Info("job started", slog.String("user", j.User))
		}

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			l.Error("job failed", slog.Duration("elapsed", elapsed), slog.Any("error", job.Wrap(err)))
			return err
		}
		l.Info("job completed", slog.Duration("elapsed", elapsed))
		return nil
	}
}
