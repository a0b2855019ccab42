package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/docket/job"
)

const meterName = "github.com/xraph/docket"

// Run outcomes reported in the "outcome" attribute.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Metrics records run metrics on the global MeterProvider.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter records, per run:
//
//   - docket.job.run.duration (histogram, seconds)
//   - docket.job.runs (counter)
//
// Both carry job_name, resumed (n_restarts > 0) and outcome; failed runs
// also carry error_code, the code of the run's *job.Error.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// The metric API hands back usable noop instruments alongside errors.
	duration, _ := meter.Float64Histogram("docket.job.run.duration",
		metric.WithDescription("Wall time of one run of job code"),
		metric.WithUnit("s"),
	)
	runs, _ := meter.Int64Counter("docket.job.runs",
		metric.WithDescription("Runs of job code, first runs and resumes alike"),
		metric.WithUnit("{run}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)

		attrs := []attribute.KeyValue{
			attribute.String("job_name", j.Name),
			attribute.Bool("resumed", j.NRestarts > 0),
		}
		if err != nil {
			attrs = append(attrs,
				attribute.String("outcome", OutcomeFailed),
				attribute.String("error_code", job.Wrap(err).Code),
			)
		} else {
			attrs = append(attrs, attribute.String("outcome", OutcomeCompleted))
		}
		set := metric.WithAttributeSet(attribute.NewSet(attrs...))
		duration.Record(ctx, time.Since(start).Seconds(), set)
		runs.Add(ctx, 1, set)
		return err
	}
}
