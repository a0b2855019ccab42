package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// scheduleParser supports standard 5-field cron and descriptors like
// "@every 30s".
var scheduleParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Ticker calls Manager.Maintenance on a cron schedule.
type Ticker struct {
	m        *Manager
	spec     string
	schedule cronlib.Schedule
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewTicker returns a Ticker running every Config.MaintenanceInterval.
func (m *Manager) NewTicker() (*Ticker, error) {
	return m.NewTickerWithSchedule("@every " + m.config.MaintenanceInterval.String())
}

// NewTickerWithSchedule returns a Ticker for a cron expression.
// Intervals below one second are rounded up to one second.
func (m *Manager) NewTickerWithSchedule(expr string) (*Ticker, error) {
	schedule, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("maintenance schedule %q: %w", expr, err)
	}
	return &Ticker{m: m, spec: expr, schedule: schedule, logger: m.logger}, nil
}

// Start launches the tick loop. It returns immediately.
func (t *Ticker) Start(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return nil
	}
	t.running = true
	t.stopCh = make(chan struct{})

	t.wg.Add(1)
	go t.loop(t.stopCh)
	t.logger.Info("maintenance ticker started", slog.String("schedule", t.spec))
	return nil
}

// Stop signals the tick loop to stop and waits for it, including a
// Maintenance pass in progress.
func (t *Ticker) Stop(_ context.Context) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	close(t.stopCh)
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info("maintenance ticker stopped")
	return nil
}

func (t *Ticker) loop(stopCh chan struct{}) {
	defer t.wg.Done()

	for {
		timer := time.NewTimer(time.Until(t.schedule.Next(time.Now())))
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
			if err := t.m.Maintenance(context.Background()); err != nil {
				t.logger.Warn("maintenance failed", slog.String("error", err.Error()))
			}
		}
	}
}
