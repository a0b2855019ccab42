package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/docket/job"
)

const tracerName = "github.com/xraph/docket"

// Tracing opens a span per run on the global TracerProvider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer opens a "docket.job.run" span per run. A resumed run
// gets a "resumed" event. On failure the span records the error, is marked
// codes.Error with the public message and carries docket.job.error_code.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		attrs := []attribute.KeyValue{
			attribute.String("docket.job.id", j.ID),
			attribute.String("docket.job.name", j.Name),
			attribute.String("docket.job.user", j.User),
			attribute.Int("docket.job.n_restarts", j.NRestarts),
		}
		if j.Parent != "" {
			attrs = append(attrs, attribute.String("docket.job.parent", j.Parent))
		}
		if j.Timeout > 0 {
			attrs = append(attrs, attribute.Float64("docket.job.timeout_s", j.Timeout.Seconds()))
		}
		ctx, span := tracer.Start(ctx, "docket.job.run",
			trace.WithAttributes(attrs...),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()
		if j.NRestarts > 0 {
			span.AddEvent("resumed", trace.WithAttributes(attribute.Int("attempt", j.NRestarts)))
		}

		err := next(ctx)
		if err == nil {
			span.SetStatus(codes.Ok, "")
			return nil
		}
		jerr := job.Wrap(err)
		span.SetAttributes(attribute.String("docket.job.error_code", jerr.Code))
		span.RecordError(err)
		span.SetStatus(codes.Error, jerr.Message)
		return err
	}
}
