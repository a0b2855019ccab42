package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/docket/ext"
	"github.com/xraph/docket/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobCreated   = (*MetricsExtension)(nil)
	_ ext.JobCompleted = (*MetricsExtension)(nil)
	_ ext.JobFailed    = (*MetricsExtension)(nil)
	_ ext.JobCancelled = (*MetricsExtension)(nil)
	_ ext.JobAbandoned = (*MetricsExtension)(nil)
	_ ext.JobResumed   = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/docket/observability"

// MetricsExtension records system-wide lifecycle counters through an OTel
// meter. Register it as a docket extension to track creation, completion,
// failure, cancellation, abandonment and resume rates.
//
// Every counter carries a job_name attribute.
type MetricsExtension struct {
	JobCreated   metric.Int64Counter
	JobCompleted metric.Int64Counter
	JobFailed    metric.Int64Counter
	JobCancelled metric.Int64Counter
	JobAbandoned metric.Int64Counter
	JobResumed   metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. Instrument creation errors fall back to the noop instruments the
// API returns.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{job}"))
		return c
	}
	return &MetricsExtension{
		JobCreated:   counter("docket.job.created", "Jobs written to the store"),
		JobCompleted: counter("docket.job.completed", "Jobs whose code returned without error"),
		JobFailed:    counter("docket.job.failed", "Jobs that ended with an error"),
		JobCancelled: counter("docket.job.cancelled", "Cancellation requests for live jobs"),
		JobAbandoned: counter("docket.job.abandoned", "Jobs found with a stale heartbeat"),
		JobResumed:   counter("docket.job.resumed", "Abandoned jobs restarted from their spec"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func jobAttrs(j *job.Job) metric.AddOption {
	return metric.WithAttributes(attribute.String("job_name", j.Name))
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobCreated implements ext.JobCreated.
func (m *MetricsExtension) OnJobCreated(ctx context.Context, j *job.Job) error {
	m.JobCreated.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.JobCompleted.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.JobFailed.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobCancelled implements ext.JobCancelled.
func (m *MetricsExtension) OnJobCancelled(ctx context.Context, j *job.Job) error {
	m.JobCancelled.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobAbandoned implements ext.JobAbandoned.
func (m *MetricsExtension) OnJobAbandoned(ctx context.Context, j *job.Job) error {
	m.JobAbandoned.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobResumed implements ext.JobResumed.
func (m *MetricsExtension) OnJobResumed(ctx context.Context, j *job.Job, _ int, _ time.Duration) error {
	m.JobResumed.Add(ctx, 1, jobAttrs(j))
	return nil
}
