package manager

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/xraph/docket"
	"github.com/xraph/docket/backoff"
	"github.com/xraph/docket/doc"
	"github.com/xraph/docket/id"
	"github.com/xraph/docket/job"
)

// DefaultJobName is used when a job is started without Name.
const DefaultJobName = "job"

type startSettings struct {
	name       string
	background bool
	user       string
	title      string
	parent     string
	props      map[string]any
	spec       *job.Spec
	kwargs     map[string]any
	timeout    time.Duration
	raiseError bool

	// restartAs resumes an existing record instead of creating one.
	restartAs string
	delay     time.Duration
}

// StartOption configures a single job start.
type StartOption func(*startSettings)

// Name sets the job name.
func Name(name string) StartOption {
	return func(s *startSettings) { s.name = name }
}

// Background selects whether the code runs on its own goroutine (the
// default) or on the caller's.
func Background(b bool) StartOption {
	return func(s *startSettings) { s.background = b }
}

// User records the user the job runs for.
func User(user string) StartOption {
	return func(s *startSettings) { s.user = user }
}

// Title sets a human readable label.
func Title(title string) StartOption {
	return func(s *startSettings) { s.title = title }
}

// Parent links the new job as a child of parentID. Without it, a job
// started from inside another job's code is linked to that job.
func Parent(parentID string) StartOption {
	return func(s *startSettings) { s.parent = parentID }
}

// Props stamps extra fields on the record at creation. Reserved job
// fields are rejected with docket.ErrReservedField.
func Props(props map[string]any) StartOption {
	return func(s *startSettings) {
		if s.props == nil {
			s.props = map[string]any{}
		}
		maps.Copy(s.props, props)
	}
}

// Spec attaches a spec so the job can be resumed after its owner dies.
func Spec(spec job.Spec) StartOption {
	return func(s *startSettings) { s.spec = &spec }
}

// Kwargs merges keyword arguments into the job's spec.
func Kwargs(kwargs map[string]any) StartOption {
	return func(s *startSettings) {
		if s.kwargs == nil {
			s.kwargs = map[string]any{}
		}
		maps.Copy(s.kwargs, kwargs)
	}
}

// Timeout bounds one execution of the job.
func Timeout(d time.Duration) StartOption {
	return func(s *startSettings) { s.timeout = d }
}

// RaiseError makes a foreground start return the job's error. Background
// starts never return job errors.
func RaiseError(b bool) StartOption {
	return func(s *startSettings) { s.raiseError = b }
}

func restartAs(jobID string, delay time.Duration) StartOption {
	return func(s *startSettings) {
		s.restartAs = jobID
		s.delay = delay
	}
}

func newStartSettings(opts []StartOption) *startSettings {
	s := &startSettings{name: DefaultJobName, background: true}
	for _, opt := range opts {
		opt(s)
	}
	if s.spec != nil && len(s.kwargs) > 0 {
		spec := job.Spec{Callable: s.spec.Callable, Kwargs: doc.CloneRecord(s.spec.Kwargs)}
		if spec.Kwargs == nil {
			spec.Kwargs = map[string]any{}
		}
		maps.Copy(spec.Kwargs, s.kwargs)
		s.spec = &spec
	}
	return s
}

// StartCode creates a job record and runs code. In the background (the
// default) it returns the job id as soon as the record exists; otherwise
// it returns after the code finished and the record was finalized.
func (m *Manager) StartCode(ctx context.Context, code job.Code, opts ...StartOption) (string, error) {
	s := newStartSettings(opts)
	if s.parent == "" {
		s.parent = job.IDFromContext(ctx)
	}
	if err := m.admit(s.background); err != nil {
		return "", err
	}
	abort := func(err error) (string, error) {
		if s.background {
			m.wg.Done()
		}
		return "", err
	}

	jobID := s.restartAs
	if jobID == "" {
		rec, err := m.create(ctx, s)
		if err != nil {
			return abort(err)
		}
		jobID, _ = doc.ID(rec)
		if j, err := job.FromRecord(rec); err == nil {
			m.extensions.EmitJobCreated(ctx, j)
		}
	} else if err := m.restart(ctx, jobID); err != nil {
		return abort(err)
	}

	base := ctx
	if s.background {
		base = context.WithoutCancel(ctx)
	}
	tctx, cancel := context.WithCancel(base)
	t := &task{cancel: cancel, done: make(chan struct{})}
	m.tasks.Store(jobID, t)

	if s.background {
		go func() {
			defer m.wg.Done()
			_ = m.run(tctx, jobID, t, code, s.delay)
		}()
		return jobID, nil
	}

	if err := m.run(tctx, jobID, t, code, s.delay); err != nil && s.raiseError {
		return jobID, err
	}
	return jobID, nil
}

// admit rejects starts once Shutdown began. Background starts are counted
// in wg under the same lock Shutdown flips closed with, so Shutdown never
// waits on a group that is still growing.
func (m *Manager) admit(background bool) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.closed.Load() {
		return docket.ErrManagerClosed
	}
	if background {
		m.wg.Add(1)
	}
	return nil
}

// StartSpec resolves spec through the registry and starts it. The spec is
// persisted, so the job is resumable. The registered defaults for the
// callable (title, timeout) apply unless opts override them.
func (m *Manager) StartSpec(ctx context.Context, spec job.Spec, opts ...StartOption) (string, error) {
	spec = *newStartSettings(slices.Concat(opts, []StartOption{Spec(spec)})).spec
	code, err := m.registry.Lookup(spec)
	if err != nil {
		return "", err
	}

	all := []StartOption{Name(spec.Callable)}
	if defaults, ok := m.registry.Options(spec.Callable); ok {
		if defaults.Title != "" {
			all = append(all, Title(defaults.Title))
		}
		if defaults.Timeout > 0 {
			all = append(all, Timeout(defaults.Timeout))
		}
	}
	all = append(all, opts...)
	all = append(all, Spec(spec))
	return m.StartCode(ctx, code, all...)
}

// RunInForeground runs code on the caller's goroutine and returns its
// error, wrapped as a *job.Error.
func (m *Manager) RunInForeground(ctx context.Context, code job.Code, opts ...StartOption) (string, error) {
	return m.StartCode(ctx, code, slices.Concat(opts, []StartOption{Background(false), RaiseError(true)})...)
}

// create inserts a fresh job record.
func (m *Manager) create(ctx context.Context, s *startSettings) (doc.Record, error) {
	rec := doc.Record{}
	for k, v := range s.props {
		if job.IsReserved(k) {
			return nil, fmt.Errorf("%w: %q", docket.ErrReservedField, k)
		}
		rec[k] = doc.Clone(v)
	}

	jobID := id.NewJobID().String()
	rec[job.FieldID] = jobID
	rec[job.FieldName] = s.name
	rec[job.FieldUser] = s.user
	rec[job.FieldStarted] = m.timestamp()
	rec[job.FieldEnded] = nil
	rec[job.FieldProgress] = []any{}
	rec[job.FieldNMsgs] = int64(0)
	rec[job.FieldHeartbeat] = nil
	rec[job.FieldCancel] = false
	rec[job.FieldError] = nil
	rec[job.FieldNRestarts] = int64(0)
	rec[job.FieldChildJobs] = []any{}
	if s.title != "" {
		rec[job.FieldTitle] = s.title
	}
	if s.parent != "" {
		rec[job.FieldParent] = s.parent
	}
	if s.spec != nil {
		rec[job.FieldSpec] = s.spec.Record()
	}
	if s.timeout > 0 {
		rec[job.FieldTimeout] = s.timeout.Seconds()
	}

	if _, err := m.store.Insert(ctx, m.config.JobsCollection, rec); err != nil {
		return nil, fmt.Errorf("create job %s: %w", s.name, err)
	}

	if s.parent != "" {
		n, err := m.store.Update(ctx, m.config.JobsCollection, s.parent, map[string]any{
			"$push": map[string]any{job.FieldChildJobs: jobID},
		}, false)
		switch {
		case err != nil:
			m.logger.Warn("failed to link child job",
				slog.String("job_id", jobID),
				slog.String("parent", s.parent),
				slog.String("error", err.Error()),
			)
		case n == 0:
			m.logger.Warn("parent job not found",
				slog.String("job_id", jobID),
				slog.String("parent", s.parent),
			)
		}
	}
	return rec, nil
}

// restart resets a record for another run under the same id.
func (m *Manager) restart(ctx context.Context, jobID string) error {
	n, err := m.store.Update(ctx, m.config.JobsCollection, jobID, map[string]any{
		"$set": map[string]any{
			job.FieldStarted:   m.timestamp(),
			job.FieldEnded:     nil,
			job.FieldHeartbeat: nil,
			job.FieldError:     nil,
			job.FieldCancel:    false,
		},
		"$unset": map[string]any{job.FieldPID: true},
		"$inc":   map[string]any{job.FieldNRestarts: 1},
	}, false)
	if err != nil {
		return fmt.Errorf("restart job %s: %w", jobID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", docket.ErrJobNotFound, jobID)
	}
	return nil
}

// run executes code for jobID, after delay, and finalizes its record.
func (m *Manager) run(ctx context.Context, jobID string, t *task, code job.Code, delay time.Duration) error {
	defer m.release(jobID, t)
	storeCtx := context.WithoutCancel(ctx)

	j, err := m.Status(storeCtx, jobID)
	if err != nil {
		m.logger.Error("job record vanished before start",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return err
	}

	if err := backoff.Sleep(ctx, delay); err != nil {
		return m.finish(storeCtx, j, err, 0)
	}

	now := m.now()
	if _, err := m.stampHeartbeat(storeCtx, jobID, now); err != nil {
		return m.finish(storeCtx, j, err, 0)
	}
	j.Heartbeat = &now

	acc := m.Accessor(jobID)
	ctx = job.WithAccessor(ctx, acc)
	m.extensions.EmitJobStarted(storeCtx, j)

	start := time.Now()
	err = m.chain(ctx, j, func(ctx context.Context) error {
		return code(ctx, acc)
	})
	return m.finish(storeCtx, j, err, time.Since(start))
}

// finish stamps ended (and error) unless the record already ended, then
// notifies extensions. It returns the job's error as a *job.Error.
func (m *Manager) finish(ctx context.Context, j *job.Job, runErr error, elapsed time.Duration) error {
	set := map[string]any{job.FieldEnded: m.timestamp()}
	var jerr *job.Error
	if runErr != nil {
		jerr = job.Wrap(runErr)
		set[job.FieldError] = jerr.Public()
	}

	n, err := m.store.Update(ctx, m.config.JobsCollection,
		map[string]any{job.FieldID: j.ID, job.FieldEnded: nil},
		map[string]any{"$set": set}, false)
	switch {
	case err != nil:
		m.logger.Error("failed to finalize job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	case n == 0:
		m.logger.Debug("job already ended or deleted", slog.String("job_id", j.ID))
	}

	if jerr != nil {
		m.extensions.EmitJobFailed(ctx, j, jerr)
		return jerr
	}
	m.extensions.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

// release drops t from the task registry unless a newer task took its id.
func (m *Manager) release(jobID string, t *task) {
	m.tasks.Compute(jobID, func(old *task, loaded bool) (*task, bool) {
		return old, !loaded || old == t
	})
	t.cancel()
	close(t.done)
}
