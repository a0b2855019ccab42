package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/docket/job"
)

// Maintenance runs one housekeeping pass, in order:
//
//  1. prune ended jobs older than Config.Retention and cancelled jobs that
//     have ended
//  2. stamp heartbeats on jobs running in this process
//  3. find abandoned jobs and resume or finalize them
//
// Stages run even when an earlier one fails; the errors are joined.
func (m *Manager) Maintenance(ctx context.Context) error {
	now := m.now()
	var errs []error

	pruned, err := m.prune(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("prune: %w", err))
	}
	beats := m.heartbeat(ctx)
	abandoned, err := m.reapAbandoned(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("abandoned: %w", err))
	}

	m.logger.Debug("maintenance pass",
		slog.Int("pruned", pruned),
		slog.Int("heartbeats", beats),
		slog.Int("abandoned", abandoned),
	)
	return errors.Join(errs...)
}

func (m *Manager) prune(ctx context.Context, now time.Time) (int, error) {
	ended, err := m.Jobs(ctx, map[string]any{job.FieldEnded: map[string]any{"$ne": nil}})
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, j := range ended {
		// A non-timestamp ended value decodes as nil; only a cancel prunes it.
		expired := j.Ended != nil && m.config.Retention > 0 && now.Sub(*j.Ended) > m.config.Retention
		if !expired && !j.Cancel {
			continue
		}
		if _, err := m.store.Delete(ctx, m.config.JobsCollection, j.ID); err != nil {
			return pruned, fmt.Errorf("delete %s: %w", j.ID, err)
		}
		pruned++
		m.logger.Info("pruned job",
			slog.String("job_id", j.ID),
			slog.Bool("cancelled", j.Cancel),
		)
	}
	return pruned, nil
}

// heartbeat stamps every job this process is running.
func (m *Manager) heartbeat(ctx context.Context) int {
	n := 0
	for _, jobID := range m.Running() {
		written, err := m.stampHeartbeat(ctx, jobID, m.now())
		if err != nil {
			m.logger.Warn("heartbeat failed",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if written {
			n++
		}
	}
	return n
}

// stampHeartbeat sets the heartbeat of jobID to at unless the stored one is
// already later, so heartbeats never move backwards.
func (m *Manager) stampHeartbeat(ctx context.Context, jobID string, at time.Time) (bool, error) {
	ts := job.Timestamp(at)
	n, err := m.store.Update(ctx, m.config.JobsCollection, map[string]any{
		job.FieldID: jobID,
		"$or": []any{
			map[string]any{job.FieldHeartbeat: nil},
			map[string]any{job.FieldHeartbeat: map[string]any{"$lt": ts}},
		},
	}, map[string]any{
		"$set": map[string]any{job.FieldHeartbeat: ts},
	}, false)
	return n > 0, err
}

// reapAbandoned handles live jobs that no process is heartbeating.
func (m *Manager) reapAbandoned(ctx context.Context, now time.Time) (int, error) {
	live, err := m.Jobs(ctx, map[string]any{job.FieldEnded: nil})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range live {
		if _, ok := m.tasks.Load(j.ID); ok {
			continue
		}
		if !j.Abandoned(now, m.config.AssumeAbandoned) {
			continue
		}
		n++
		m.logger.Warn("job abandoned",
			slog.String("job_id", j.ID),
			slog.String("job_name", j.Name),
			slog.Int("n_restarts", j.NRestarts),
		)
		m.extensions.EmitJobAbandoned(ctx, j)
		m.considerResuming(ctx, j)
	}
	return n, nil
}

// considerResuming restarts j from its spec when it has restarts left, and
// finalizes it with a server-restart error otherwise.
func (m *Manager) considerResuming(ctx context.Context, j *job.Job) {
	jerr := job.NewError(job.CodeServerRestart, "job was interrupted by a server restart").
		WithDetail("n_restarts", j.NRestarts)

	switch {
	case j.Spec == nil:
		jerr.WithPrivate("reason", "no spec")
	case j.NRestarts >= m.config.MaxRestarts:
		jerr.WithPrivate("reason", "restart limit reached")
	default:
		code, err := m.registry.Lookup(*j.Spec)
		if err != nil {
			jerr.WithPrivate("reason", "unresolvable spec").WithCause(err)
			break
		}
		attempt := j.NRestarts + 1
		delay := m.backoff.Delay(attempt)
		if _, err := m.StartCode(ctx, code, restartAs(j.ID, delay)); err != nil {
			if errNotFound(err) {
				m.logger.Debug("abandoned job vanished before resume", slog.String("job_id", j.ID))
				return
			}
			m.logger.Error("failed to resume job",
				slog.String("job_id", j.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		m.logger.Info("resumed abandoned job",
			slog.String("job_id", j.ID),
			slog.String("callable", j.Spec.Callable),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		m.extensions.EmitJobResumed(ctx, j, attempt, delay)
		return
	}

	n, err := m.store.Update(ctx, m.config.JobsCollection,
		map[string]any{job.FieldID: j.ID, job.FieldEnded: nil},
		map[string]any{"$set": map[string]any{
			job.FieldEnded: m.timestamp(),
			job.FieldError: jerr.Public(),
		}}, false)
	if err != nil {
		m.logger.Error("failed to finalize abandoned job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if n == 0 {
		return
	}
	m.logger.Warn("finalized abandoned job", slog.String("job_id", j.ID), slog.Any("error", jerr))
	m.extensions.EmitJobFailed(ctx, j, jerr)
}
