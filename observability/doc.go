// Package observability provides an OpenTelemetry metrics extension for
// docket. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for job creation, completion, failure,
// cancellation, abandonment and resume events.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
