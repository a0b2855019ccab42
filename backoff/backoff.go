// Package backoff provides restart delay strategies for resumed jobs.
// When maintenance finds an abandoned job that still has restarts left,
// the manager sleeps Strategy.Delay(n) before starting attempt n.
// All strategies are safe for concurrent use (they are stateless).
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a restart.
type Strategy interface {
	// Delay returns how long to wait before restart n (1-indexed).
	// Restart 1 is the first resume after the job was abandoned.
	Delay(restart int) time.Duration
}

// Sleep blocks for d or until ctx is done. A non-positive d returns
// immediately.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of restart number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Immediate restarts without waiting.
func Immediate() Strategy { return NewConstant(0) }

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each restart.
// Delay = min(Initial * 2^(restart-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(restart-1), capped at Max.
func (e *Exponential) Delay(restart int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(max(restart, 1)-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (full jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter applies full jitter to an exponential base.
// Delay = random value in [0, min(Initial * 2^(restart-1), Max)].
// Spreads out resumes when a restarted server finds many abandoned jobs
// at once.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(restart-1), Max)].
func (e *ExponentialWithJitter) Delay(restart int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(max(restart, 1)-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the default used by the manager: resume
// abandoned jobs immediately.
func DefaultStrategy() Strategy {
	return Immediate()
}
