package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/docket"
	"github.com/xraph/docket/backoff"
	"github.com/xraph/docket/doc"
	"github.com/xraph/docket/ext"
	"github.com/xraph/docket/job"
	mw "github.com/xraph/docket/middleware"
	"github.com/xraph/docket/observability"
	"github.com/xraph/docket/store"
)

const instrumentationName = "github.com/xraph/docket"

// task is the in-process handle of a running job.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager runs jobs and keeps their records in a store.
type Manager struct {
	store    store.Store
	config   docket.Config
	logger   *slog.Logger
	registry *job.Registry
	backoff  backoff.Strategy
	now      Clock

	exts       []ext.Extension
	extensions *ext.Registry
	mws        []mw.Middleware
	chain      mw.Middleware

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// tasks maps job id to the goroutine running it in this process.
	// Heartbeats are stamped only for ids present here.
	tasks *xsync.MapOf[string, *task]
	wg    sync.WaitGroup

	// startMu orders admit against Shutdown flipping closed.
	startMu sync.Mutex
	closed  atomic.Bool

	// snapshot holds the change-detection state of DetectStatusChanges.
	snapMu   sync.Mutex
	snapshot map[string]statusKey
}

// New creates a Manager persisting jobs in st.
func New(st store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:    st,
		config:   docket.DefaultConfig(),
		logger:   slog.Default(),
		registry: job.NewRegistry(),
		now:      time.Now,
		tasks:    xsync.NewMapOf[string, *task](),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.backoff == nil {
		m.backoff = backoff.DefaultStrategy()
	}

	m.extensions = ext.NewRegistry(m.logger)
	if m.meterProvider != nil {
		m.extensions.Register(observability.NewMetricsExtensionWithMeter(
			m.meterProvider.Meter(instrumentationName + "/observability")))
	} else {
		m.extensions.Register(observability.NewMetricsExtension())
	}
	for _, e := range m.exts {
		m.extensions.Register(e)
	}

	tp, mp := m.tracerProvider, m.meterProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	chain := mw.Default(m.logger, tp.Tracer(instrumentationName), mp.Meter(instrumentationName))
	m.chain = mw.Chain(append(chain, m.mws...)...)
	return m
}

// Config returns the manager's configuration.
func (m *Manager) Config() docket.Config { return m.config }

// Registry returns the callable registry.
func (m *Manager) Registry() *job.Registry { return m.registry }

// Store returns the underlying store.
func (m *Manager) Store() store.Store { return m.store }

// Extensions returns the extension registry.
func (m *Manager) Extensions() *ext.Registry { return m.extensions }

// Accessor returns a handle on the record of jobID.
func (m *Manager) Accessor(jobID string) *job.Accessor {
	return job.NewAccessor(m.store, m.config.JobsCollection, jobID)
}

// Status loads a job. It returns docket.ErrJobNotFound when the record is
// missing.
func (m *Manager) Status(ctx context.Context, jobID string) (*job.Job, error) {
	recs, err := m.store.Query(ctx, m.config.JobsCollection, map[string]any{doc.RowID: jobID})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", docket.ErrJobNotFound, jobID)
	}
	return job.FromRecord(recs[0])
}

// Query runs q against the jobs collection and returns the raw records.
func (m *Manager) Query(ctx context.Context, q map[string]any, opts ...store.QueryOption) ([]doc.Record, error) {
	return m.store.Query(ctx, m.config.JobsCollection, q, opts...)
}

// Jobs runs q against the jobs collection and decodes every match.
// Records that fail to decode are logged and skipped.
func (m *Manager) Jobs(ctx context.Context, q map[string]any) ([]*job.Job, error) {
	recs, err := m.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	jobs := make([]*job.Job, 0, len(recs))
	for _, r := range recs {
		j, err := job.FromRecord(r)
		if err != nil {
			m.logger.Warn("skipping undecodable job record", slog.String("error", err.Error()))
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// Running returns the ids of jobs executing in this process.
func (m *Manager) Running() []string {
	ids := make([]string, 0, m.tasks.Size())
	m.tasks.Range(func(jobID string, _ *task) bool {
		ids = append(ids, jobID)
		return true
	})
	return ids
}

// Shutdown stops accepting jobs and waits for background jobs to finish.
// If ctx ends first, running jobs have their contexts cancelled and
// Shutdown waits for them to return.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.startMu.Lock()
	first := m.closed.CompareAndSwap(false, true)
	m.startMu.Unlock()
	if !first {
		return nil
	}
	m.logger.Info("job manager stopping", slog.Int("running", m.tasks.Size()))

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		m.logger.Info("job manager stopped gracefully")
	case <-ctx.Done():
		m.logger.Warn("job manager shutdown timed out, cancelling running jobs")
		m.tasks.Range(func(_ string, t *task) bool {
			t.cancel()
			return true
		})
		<-done
		err = ctx.Err()
	}

	m.extensions.EmitShutdown(context.WithoutCancel(ctx))
	return err
}

func (m *Manager) timestamp() float64 { return job.Timestamp(m.now()) }
