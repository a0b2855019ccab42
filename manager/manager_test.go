package manager_test

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/xraph/docket"
	"github.com/xraph/docket/id"
	"github.com/xraph/docket/job"
	"github.com/xraph/docket/manager"
	"github.com/xraph/docket/store/memory"
)

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func testConfig() docket.Config {
	cfg := docket.DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	return cfg
}

func newTestManager(t *testing.T, opts ...manager.Option) (*manager.Manager, *memory.Store) {
	t.Helper()
	st := memory.New()
	base := []manager.Option{
		manager.WithConfig(testConfig()),
		manager.WithLogger(slog.New(slog.DiscardHandler)),
	}
	m := manager.New(st, append(base, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, st
}

func waitEnded(t *testing.T, m *manager.Manager, jobID string) *job.Job {
	t.Helper()
	j, err := m.WaitForJob(context.Background(), jobID, 5*time.Second)
	if err != nil {
		t.Fatalf("WaitForJob(%s): %v", jobID, err)
	}
	if j == nil {
		t.Fatalf("job %s did not end in time", jobID)
	}
	return j
}

func status(t *testing.T, m *manager.Manager, jobID string) *job.Job {
	t.Helper()
	j, err := m.Status(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Status(%s): %v", jobID, err)
	}
	return j
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// recorder is an extension that records lifecycle events.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) add(e string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) has(e string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.events, e)
}

func (r *recorder) OnJobCreated(_ context.Context, _ *job.Job) error { return r.add("created") }
func (r *recorder) OnJobStarted(_ context.Context, _ *job.Job) error { return r.add("started") }
func (r *recorder) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	return r.add("completed")
}
func (r *recorder) OnJobFailed(_ context.Context, _ *job.Job, _ error) error { return r.add("failed") }
func (r *recorder) OnJobCancelled(_ context.Context, _ *job.Job) error    { return r.add("cancelled") }
func (r *recorder) OnJobAbandoned(_ context.Context, _ *job.Job) error    { return r.add("abandoned") }
func (r *recorder) OnJobResumed(_ context.Context, _ *job.Job, _ int, _ time.Duration) error {
	return r.add("resumed")
}
func (r *recorder) OnShutdown(_ context.Context) error { return r.add("shutdown") }

// ──────────────────────────────────────────────────
// Start and status
// ──────────────────────────────────────────────────

func TestStartCode_Foreground(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	jobID, err := m.StartCode(ctx, func(ctx context.Context, j *job.Accessor) error {
		return j.Progress(ctx, "hi")
	}, manager.Name("t"), manager.Background(false))
	if err != nil {
		t.Fatalf("StartCode: %v", err)
	}
	if !id.IsJobID(jobID) {
		t.Fatalf("job id %q does not carry the job prefix", jobID)
	}

	j := status(t, m, jobID)
	if !slices.Equal(j.Progress, []string{"hi"}) {
		t.Errorf("progress = %v, want [hi]", j.Progress)
	}
	if j.NMsgs != 1 {
		t.Errorf("n_msgs = %d, want 1", j.NMsgs)
	}
	if j.Ended == nil {
		t.Error("ended not set")
	}
	if j.Error != nil {
		t.Errorf("error = %v, want nil", j.Error)
	}
	if j.Name != "t" {
		t.Errorf("name = %q, want t", j.Name)
	}
	if j.State() != job.StateEnded {
		t.Errorf("state = %s, want %s", j.State(), job.StateEnded)
	}
}

func TestStartCode_ProgressOrder(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	jobID, err := m.StartCode(ctx, func(ctx context.Context, j *job.Accessor) error {
		if err := j.Progress(ctx, "first"); err != nil {
			return err
		}
		return j.Progress(ctx, "second")
	}, manager.Background(false))
	if err != nil {
		t.Fatalf("StartCode: %v", err)
	}

	j := status(t, m, jobID)
	if j.NMsgs != 2 || !slices.Equal(j.Progress, []string{"first", "second"}) {
		t.Fatalf("n_msgs = %d progress = %v, want 2 [first second]", j.NMsgs, j.Progress)
	}
}

func TestStartCode_ErrorIsRecorded(t *testing.T) {
	boom := errors.New("boom")
	failing := func(context.Context, *job.Accessor) error { return boom }

	t.Run("not raised", func(t *testing.T) {
		m, _ := newTestManager(t)
		jobID, err := m.StartCode(context.Background(), failing, manager.Background(false))
		if err != nil {
			t.Fatalf("StartCode returned %v, want nil", err)
		}
		j := status(t, m, jobID)
		if j.Ended == nil || j.Error == nil {
			t.Fatalf("ended = %v error = %v, want both set", j.Ended, j.Error)
		}
		if j.Error.Code != job.CodeInternal || j.Error.Message != "boom" {
			t.Errorf("error = %+v, want internal/boom", j.Error)
		}
		if j.State() != job.StateError {
			t.Errorf("state = %s, want %s", j.State(), job.StateError)
		}
	})

	t.Run("raised", func(t *testing.T) {
		m, _ := newTestManager(t)
		jobID, err := m.StartCode(context.Background(), failing,
			manager.Background(false), manager.RaiseError(true))
		if !errors.Is(err, boom) {
			t.Fatalf("StartCode = %v, want boom", err)
		}
		var je *job.Error
		if !errors.As(err, &je) {
			t.Fatalf("error %T is not a *job.Error", err)
		}
		if jobID == "" {
			t.Fatal("job id empty")
		}
	})

	t.Run("run in foreground", func(t *testing.T) {
		m, _ := newTestManager(t)
		_, err := m.RunInForeground(context.Background(), failing)
		if !errors.Is(err, boom) {
			t.Fatalf("RunInForeground = %v, want boom", err)
		}
	})

	t.Run("background never raises", func(t *testing.T) {
		m, _ := newTestManager(t)
		jobID, err := m.StartCode(context.Background(), failing, manager.RaiseError(true))
		if err != nil {
			t.Fatalf("StartCode = %v, want nil", err)
		}
		if j := waitEnded(t, m, jobID); j.Error == nil {
			t.Fatal("error not recorded")
		}
	})
}

func TestStartCode_PanicBecomesError(t *testing.T) {
	m, _ := newTestManager(t)
	jobID, err := m.StartCode(context.Background(), func(context.Context, *job.Accessor) error {
		panic("kaboom")
	}, manager.Background(false))
	if err != nil {
		t.Fatalf("StartCode: %v", err)
	}
	j := status(t, m, jobID)
	if j.Error == nil || j.Error.Code != job.CodePanic {
		t.Fatalf("error = %+v, want code %q", j.Error, job.CodePanic)
	}
}

func TestStartCode_Timeout(t *testing.T) {
	m, _ := newTestManager(t)
	jobID, err := m.StartCode(context.Background(), func(ctx context.Context, _ *job.Accessor) error {
		<-ctx.Done()
		return ctx.Err()
	}, manager.Background(false), manager.Timeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("StartCode: %v", err)
	}
	j := status(t, m, jobID)
	if j.Timeout != 20*time.Millisecond {
		t.Errorf("timeout = %v, want 20ms", j.Timeout)
	}
	if j.Error == nil || j.Error.Code != job.CodeTimeout {
		t.Fatalf("error = %+v, want code %q", j.Error, job.CodeTimeout)
	}
}

func TestStartCode_Background(t *testing.T) {
	m, _ := newTestManager(t)
	release := make(chan struct{})

	jobID, err := m.StartCode(context.Background(), func(ctx context.Context, j *job.Accessor) error {
		<-release
		return j.Progress(ctx, "done")
	}, manager.User("ann"))
	if err != nil {
		t.Fatalf("StartCode: %v", err)
	}

	j := status(t, m, jobID)
	if j.Ended != nil {
		t.Fatal("background job ended before it was released")
	}
	if j.User != "ann" {
		t.Errorf("user = %q, want ann", j.User)
	}
	if !slices.Contains(m.Running(), jobID) {
		t.Errorf("Running() = %v, want it to contain %s", m.Running(), jobID)
	}

	close(release)
	j = waitEnded(t, m, jobID)
	if !slices.Equal(j.Progress, []string{"done"}) {
		t.Errorf("progress = %v, want [done]", j.Progress)
	}
	eventually(t, "task release", func() bool { return len(m.Running()) == 0 })
}

func TestStartCode_PropsAndTitle(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	noop := func(context.Context, *job.Accessor) error { return nil }

	jobID, err := m.StartCode(ctx, noop,
		manager.Background(false),
		manager.Title("Nightly report"),
		manager.Props(map[string]any{"team": "ops"}))
	if err != nil {
		t.Fatalf("StartCode: %v", err)
	}
	j := status(t, m, jobID)
	if j.Title != "Nightly report" {
		t.Errorf("title = %q", j.Title)
	}
	if j.Props["team"] != "ops" {
		t.Errorf("props = %v, want team=ops", j.Props)
	}

	_, err = m.StartCode(ctx, noop, manager.Props(map[string]any{job.FieldNMsgs: 5}))
	if !errors.Is(err, docket.ErrReservedField) {
		t.Fatalf("reserved prop: err = %v, want ErrReservedField", err)
	}
}

func TestStartCode_ParentLinks(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	noop := func(context.Context, *job.Accessor) error { return nil }

	var childID string
	parentID, err := m.StartCode(ctx, func(ctx context.Context, _ *job.Accessor) error {
		var err error
		childID, err = m.StartCode(ctx, noop, manager.Name("child"), manager.Background(false))
		return err
	}, manager.Name("parent"), manager.Background(false), manager.RaiseError(true))
	if err != nil {
		t.Fatalf("StartCode: %v", err)
	}

	child := status(t, m, childID)
	if child.Parent != parentID {
		t.Errorf("child parent = %q, want %q", child.Parent, parentID)
	}
	parent := status(t, m, parentID)
	if !slices.Equal(parent.ChildJobs, []string{childID}) {
		t.Errorf("child_jobs = %v, want [%s]", parent.ChildJobs, childID)
	}

	// An explicit parent works outside job code too.
	otherID, err := m.StartCode(ctx, noop, manager.Parent(parentID), manager.Background(false))
	if err != nil {
		t.Fatalf("StartCode: %v", err)
	}
	parent = status(t, m, parentID)
	if !slices.Equal(parent.ChildJobs, []string{childID, otherID}) {
		t.Errorf("child_jobs = %v, want [%s %s]", parent.ChildJobs, childID, otherID)
	}
}

func TestStartSpec(t *testing.T) {
	type greetArgs struct {
		Who string `json:"who"`
	}
	reg := job.NewRegistry()
	job.RegisterDefinition(reg, job.NewDefinition("greet",
		func(ctx context.Context, j *job.Accessor, a greetArgs) error {
			return j.Progress(ctx, "hello "+a.Who)
		}, job.WithTitle("Greeting")))

	m, _ := newTestManager(t, manager.WithRegistry(reg))
	ctx := context.Background()

	t.Run("kwargs from spec", func(t *testing.T) {
		jobID, err := m.StartSpec(ctx, job.Spec{Callable: "greet", Kwargs: map[string]any{"who": "ann"}},
			manager.Background(false))
		if err != nil {
			t.Fatalf("StartSpec: %v", err)
		}
		j := status(t, m, jobID)
		if !slices.Equal(j.Progress, []string{"hello ann"}) {
			t.Errorf("progress = %v", j.Progress)
		}
		if j.Name != "greet" || j.Title != "Greeting" {
			t.Errorf("name = %q title = %q, want greet/Greeting", j.Name, j.Title)
		}
		if j.Spec == nil || j.Spec.Callable != "greet" || j.Spec.Kwargs["who"] != "ann" {
			t.Errorf("spec = %+v", j.Spec)
		}
	})

	t.Run("kwargs option overrides", func(t *testing.T) {
		jobID, err := m.StartSpec(ctx, job.Spec{Callable: "greet", Kwargs: map[string]any{"who": "ann"}},
			manager.Background(false), manager.Kwargs(map[string]any{"who": "bob"}), manager.Title("Hi"))
		if err != nil {
			t.Fatalf("StartSpec: %v", err)
		}
		j := status(t, m, jobID)
		if !slices.Equal(j.Progress, []string{"hello bob"}) {
			t.Errorf("progress = %v", j.Progress)
		}
		if j.Spec.Kwargs["who"] != "bob" || j.Title != "Hi" {
			t.Errorf("spec = %+v title = %q", j.Spec, j.Title)
		}
	})

	t.Run("unknown callable", func(t *testing.T) {
		_, err := m.StartSpec(ctx, job.Spec{Callable: "missing"})
		if !errors.Is(err, docket.ErrUnknownCallable) {
			t.Fatalf("err = %v, want ErrUnknownCallable", err)
		}
	})
}

// ──────────────────────────────────────────────────
// Waiting and cancellation
// ──────────────────────────────────────────────────

func TestWaitForJob(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	release := make(chan struct{})
	defer close(release)

	jobID, err := m.StartCode(ctx, func(context.Context, *job.Accessor) error {
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("StartCode: %v", err)
	}

	j, err := m.WaitForJob(ctx, jobID, 30*time.Millisecond)
	if err != nil || j != nil {
		t.Fatalf("WaitForJob on a live job = (%v, %v), want (nil, nil)", j, err)
	}

	_, err = m.WaitForJob(ctx, "job_missing", time.Second)
	if !errors.Is(err, docket.ErrJobNotFound) {
		t.Fatalf("WaitForJob on a missing job = %v, want ErrJobNotFound", err)
	}
}

func TestCancelJob_Running(t *testing.T) {
	rec := &recorder{}
	m, _ := newTestManager(t, manager.WithExtension(rec))
	ctx := context.Background()

	jobID, err := m.StartCode(ctx, func(ctx context.Context, _ *job.Accessor) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("StartCode: %v", err)
	}

	if err := m.CancelJob(ctx, jobID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	cancelled, err := m.IsCancelled(ctx, jobID)
	if err != nil || !cancelled {
		t.Fatalf("IsCancelled = (%v, %v), want (true, nil)", cancelled, err)
	}

	j := waitEnded(t, m, jobID)
	if !j.Cancel {
		t.Error("cancel flag not set")
	}
	if j.Error == nil || j.Error.Code != job.CodeCancelled {
		t.Errorf("error = %+v, want code %q", j.Error, job.CodeCancelled)
	}
	eventually(t, "cancelled event", func() bool { return rec.has("cancelled") })
}

func TestCancelJob_EndedIsDeleted(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	jobID, err := m.StartCode(ctx, func(context.Context, *job.Accessor) error { return nil },
		manager.Background(false))
	if err != nil {
		t.Fatalf("StartCode: %v", err)
	}
	if err := m.CancelJob(ctx, jobID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if _, err := m.Status(ctx, jobID); !errors.Is(err, docket.ErrJobNotFound) {
		t.Fatalf("Status after cancel = %v, want ErrJobNotFound", err)
	}
	if err := m.CancelJob(ctx, jobID); !errors.Is(err, docket.ErrJobNotFound) {
		t.Fatalf("second CancelJob = %v, want ErrJobNotFound", err)
	}
}

func TestSleepWithCancelCheck(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	release := make(chan struct{})

	// The job ignores its context so only the stored flag can stop the sleep.
	jobID, err := m.StartCode(ctx, func(context.Context, *job.Accessor) error {
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("StartCode: %v", err)
	}
	defer close(release)

	start := time.Now()
	cancelled, err := m.SleepWithCancelCheck(ctx, jobID, 30*time.Millisecond)
	if err != nil || cancelled {
		t.Fatalf("SleepWithCancelCheck = (%v, %v), want (false, nil)", cancelled, err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Error("SleepWithCancelCheck returned early")
	}

	result := make(chan bool, 1)
	go func() {
		c, _ := m.SleepWithCancelCheck(ctx, jobID, time.Minute)
		result <- c
	}()
	if err := m.CancelJob(ctx, jobID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	select {
	case c := <-result:
		if !c {
			t.Fatal("SleepWithCancelCheck = false after cancel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SleepWithCancelCheck did not notice the cancellation")
	}
}

// ──────────────────────────────────────────────────
// Extensions and shutdown
// ──────────────────────────────────────────────────

func TestExtensionsNotified(t *testing.T) {
	rec := &recorder{}
	m, _ := newTestManager(t, manager.WithExtension(rec))
	ctx := context.Background()

	if _, err := m.StartCode(ctx, func(context.Context, *job.Accessor) error { return nil },
		manager.Background(false)); err != nil {
		t.Fatalf("StartCode: %v", err)
	}
	if _, err := m.StartCode(ctx, func(context.Context, *job.Accessor) error { return errors.New("x") },
		manager.Background(false)); err != nil {
		t.Fatalf("StartCode: %v", err)
	}
	for _, e := range []string{"created", "started", "completed", "failed"} {
		if !rec.has(e) {
			t.Errorf("event %q not emitted", e)
		}
	}

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := m.Shutdown(ctx2); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !rec.has("shutdown") {
		t.Error("shutdown not emitted")
	}
}

func TestShutdown(t *testing.T) {
	t.Run("waits for background jobs", func(t *testing.T) {
		m, _ := newTestManager(t)
		jobID, err := m.StartCode(context.Background(), func(context.Context, *job.Accessor) error {
			time.Sleep(30 * time.Millisecond)
			return nil
		})
		if err != nil {
			t.Fatalf("StartCode: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Shutdown(ctx); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
		if j := status(t, m, jobID); j.Ended == nil {
			t.Fatal("job not finished after Shutdown")
		}

		_, err = m.StartCode(context.Background(), func(context.Context, *job.Accessor) error { return nil })
		if !errors.Is(err, docket.ErrManagerClosed) {
			t.Fatalf("StartCode after Shutdown = %v, want ErrManagerClosed", err)
		}
	})

	t.Run("racing starts are waited for or rejected", func(t *testing.T) {
		m, _ := newTestManager(t)
		code := func(context.Context, *job.Accessor) error {
			time.Sleep(time.Millisecond)
			return nil
		}

		var (
			mu      sync.Mutex
			started []string
			wg      sync.WaitGroup
		)
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				jobID, err := m.StartCode(context.Background(), code)
				if err != nil {
					if !errors.Is(err, docket.ErrManagerClosed) {
						t.Errorf("StartCode = %v", err)
					}
					return
				}
				mu.Lock()
				started = append(started, jobID)
				mu.Unlock()
			}()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Shutdown(ctx); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
		wg.Wait()
		// Every admitted start ran to completion inside Shutdown.
		for _, jobID := range started {
			if j := status(t, m, jobID); j.Ended == nil {
				t.Errorf("job %s still running after Shutdown", jobID)
			}
		}
	})

	t.Run("cancels jobs on deadline", func(t *testing.T) {
		m, _ := newTestManager(t)
		jobID, err := m.StartCode(context.Background(), func(ctx context.Context, _ *job.Accessor) error {
			<-ctx.Done()
			return ctx.Err()
		})
		if err != nil {
			t.Fatalf("StartCode: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := m.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Shutdown = %v, want DeadlineExceeded", err)
		}
		j := status(t, m, jobID)
		if j.Error == nil || j.Error.Code != job.CodeCancelled {
			t.Fatalf("error = %+v, want code %q", j.Error, job.CodeCancelled)
		}
	})
}
