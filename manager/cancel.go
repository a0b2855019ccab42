package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/xraph/docket"
	"github.com/xraph/docket/backoff"
	"github.com/xraph/docket/job"
)

// CancelJob requests cancellation of a job.
//
// An ended job is deleted outright. A live job gets cancel=true and, when
// it runs in this process, its context is cancelled. A job with a recorded
// process id is marked ended at once and its process is killed.
func (m *Manager) CancelJob(ctx context.Context, jobID string) error {
	j, err := m.Status(ctx, jobID)
	if err != nil {
		return err
	}

	if j.IsEnded() {
		if _, err := m.store.Delete(ctx, m.config.JobsCollection, jobID); err != nil {
			return fmt.Errorf("delete ended job %s: %w", jobID, err)
		}
		m.logger.Info("deleted ended job on cancel", slog.String("job_id", jobID))
		return nil
	}

	set := map[string]any{job.FieldCancel: true}
	if j.PID > 0 {
		set[job.FieldEnded] = m.timestamp()
	}
	if _, err := m.store.Update(ctx, m.config.JobsCollection, jobID, map[string]any{"$set": set}, false); err != nil {
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	j.Cancel = true

	if t, ok := m.tasks.Load(jobID); ok {
		t.cancel()
	}
	if j.PID > 0 {
		m.kill(jobID, j.PID)
	}

	m.logger.Info("job cancellation requested",
		slog.String("job_id", jobID),
		slog.Int("pid", j.PID),
	)
	m.extensions.EmitJobCancelled(ctx, j)
	return nil
}

func (m *Manager) kill(jobID string, pid int) {
	proc, err := os.FindProcess(pid)
	if err == nil {
		err = proc.Kill()
	}
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		m.logger.Warn("failed to kill job process",
			slog.String("job_id", jobID),
			slog.Int("pid", pid),
			slog.String("error", err.Error()),
		)
	}
}

// IsCancelled reports whether cancellation was requested for jobID. A
// deleted job counts as cancelled.
func (m *Manager) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	return m.Accessor(jobID).IsCancelled(ctx)
}

// SleepWithCancelCheck sleeps for d, polling for cancellation every
// Config.PollInterval. It returns true as soon as cancellation is seen.
func (m *Manager) SleepWithCancelCheck(ctx context.Context, jobID string, d time.Duration) (bool, error) {
	deadline := time.Now().Add(d)
	for {
		cancelled, err := m.IsCancelled(ctx, jobID)
		if err != nil || cancelled {
			return cancelled, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		if err := backoff.Sleep(ctx, min(remaining, m.config.PollInterval)); err != nil {
			return false, err
		}
	}
}

// WaitForJob polls until jobID has ended and returns it. It returns
// (nil, nil) when timeout elapses first and docket.ErrJobNotFound when the
// record does not exist. A zero timeout waits until ctx is done.
func (m *Manager) WaitForJob(ctx context.Context, jobID string, timeout time.Duration) (*job.Job, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		j, err := m.Status(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if j.IsEnded() {
			return j, nil
		}
		wait := m.config.PollInterval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, nil
			}
			wait = min(wait, remaining)
		}
		if err := backoff.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// errNotFound reports whether err means the job record is missing.
func errNotFound(err error) bool { return errors.Is(err, docket.ErrJobNotFound) }
