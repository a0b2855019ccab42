package middleware

import (
	"context"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/docket/job"
)

// Handler runs the job code once the chain reaches it.
type Handler func(ctx context.Context) error

// Middleware wraps one run of a job. j is the record as loaded when the run
// began, so a resumed run sees its n_restarts and persisted timeout. next
// continues the chain.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain composes mws into one Middleware; mws[0] is the outermost. Nil
// entries are skipped.
func Chain(mws ...Middleware) Middleware {
	mws = slices.DeleteFunc(slices.Clone(mws), func(m Middleware) bool { return m == nil })
	return func(ctx context.Context, j *job.Job, next Handler) error {
		var at func(i int) Handler
		at = func(i int) Handler {
			if i == len(mws) {
				return next
			}
			return func(ctx context.Context) error {
				return mws[i](ctx, j, at(i+1))
			}
		}
		return at(0)(ctx)
	}
}

// Default returns the stack every run goes through, outermost first:
// tracing, metrics, logging, recover, timeout. Recover sits inside the
// observers so a panic is traced, counted and logged like any failure.
func Default(logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) []Middleware {
	return []Middleware{
		TracingWithTracer(tracer),
		MetricsWithMeter(meter),
		Logging(logger),
		Recover(),
		Timeout(logger),
	}
}
