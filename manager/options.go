package manager

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/docket"
	"github.com/xraph/docket/backoff"
	"github.com/xraph/docket/ext"
	"github.com/xraph/docket/job"
	mw "github.com/xraph/docket/middleware"
)

// Clock returns the current time. Tests inject a fixed clock.
type Clock func() time.Time

// Option configures a Manager.
type Option func(*Manager)

// WithConfig replaces the default configuration.
func WithConfig(cfg docket.Config) Option {
	return func(m *Manager) { m.config = cfg }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithRegistry sets the registry StartSpec and resumes resolve callables
// through.
func WithRegistry(r *job.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(m *Manager) { m.exts = append(m.exts, e) }
}

// WithMiddleware appends middleware that runs inside the default stack.
func WithMiddleware(mws ...mw.Middleware) Option {
	return func(m *Manager) { m.mws = append(m.mws, mws...) }
}

// WithBackoff sets the delay strategy applied before each automatic
// resume. If not set, backoff.DefaultStrategy() (no delay) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(m *Manager) { m.backoff = b }
}

// WithClock overrides the time source used for job timestamps.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.now = c }
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) { m.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware and the observability extension. If not set, the global
// provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(m *Manager) { m.meterProvider = mp }
}
