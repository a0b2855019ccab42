package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/xraph/docket/job"
	mw "github.com/xraph/docket/middleware"
)

// runPoints collects the docket.job.runs data points recorded on reader.
func runPoints(t *testing.T, reader *sdkmetric.ManualReader) []metricdata.DataPoint[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "docket.job.runs" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("docket.job.runs is %T", m.Data)
			}
			return sum.DataPoints
		}
	}
	return nil
}

func attrsOf(set attribute.Set) map[string]string {
	out := map[string]string{}
	for _, kv := range set.ToSlice() {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func TestMetrics_RunAttributes(t *testing.T) {
	tests := []struct {
		name      string
		nRestarts int
		err       error
		want      map[string]string
	}{
		{
			name: "first run completed",
			want: map[string]string{"job_name": "send-email", "resumed": "false", "outcome": mw.OutcomeCompleted},
		},
		{
			name:      "resumed run completed",
			nRestarts: 1,
			want:      map[string]string{"job_name": "send-email", "resumed": "true", "outcome": mw.OutcomeCompleted},
		},
		{
			name: "plain error",
			err:  errors.New("disk full"),
			want: map[string]string{"resumed": "false", "outcome": mw.OutcomeFailed, "error_code": job.CodeInternal},
		},
		{
			name:      "job error keeps its code",
			nRestarts: 2,
			err:       job.NewError("quota", "over quota"),
			want:      map[string]string{"resumed": "true", "outcome": mw.OutcomeFailed, "error_code": "quota"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := sdkmetric.NewManualReader()
			mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			j := newTestJob()
			j.NRestarts = tt.nRestarts

			err := mw.MetricsWithMeter(mp.Meter("test"))(context.Background(), j, func(context.Context) error { return tt.err })
			if err != tt.err {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}

			points := runPoints(t, reader)
			if len(points) != 1 || points[0].Value != 1 {
				t.Fatalf("points = %+v, want one run", points)
			}
			got := attrsOf(points[0].Attributes)
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q (all: %v)", k, got[k], v, got)
				}
			}
			if _, ok := got["error_code"]; ok && tt.err == nil {
				t.Error("error_code on a completed run")
			}
		})
	}
}

func TestDefault_PanicIsCountedAsFailure(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	chain := mw.Chain(mw.Default(slog.New(slog.DiscardHandler), noop.NewTracerProvider().Tracer("test"), mp.Meter("test"))...)

	err := chain(context.Background(), newTestJob(), func(context.Context) error { panic("kaboom") })
	var je *job.Error
	if !errors.As(err, &je) || je.Code != job.CodePanic {
		t.Fatalf("err = %v, want panic job error", err)
	}

	points := runPoints(t, reader)
	if len(points) != 1 {
		t.Fatalf("points = %+v", points)
	}
	got := attrsOf(points[0].Attributes)
	if got["outcome"] != mw.OutcomeFailed || got["error_code"] != job.CodePanic {
		t.Fatalf("attributes = %v", got)
	}
}

func TestMetrics_GlobalProviderIsNoopSafe(t *testing.T) {
	called := false
	err := mw.Metrics()(context.Background(), newTestJob(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("err = %v, called = %v", err, called)
	}
}
