package scheduler

import (
	"context"
	"time"

	"ResearchRadar/internal/ports"
)

// Ticker drives the controller on a fixed interval. The cron-style
// per-project scheduling lives in the controller itself; this only
// supplies the heartbeat.
type Ticker struct {
	interval     time.Duration
	runOnStartup bool
	stop         chan struct{}
}

var _ ports.Scheduler = (*Ticker)(nil)

// NewTicker builds a ticker. An interval of zero falls back to one minute.
func NewTicker(interval time.Duration, runOnStartup bool) *Ticker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Ticker{interval: interval, runOnStartup: runOnStartup}
}

// Start begins ticking in a background goroutine. Calling Start twice
// without a Stop is a no-op.
func (t *Ticker) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}
	if t.stop != nil {
		return nil
	}

	t.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		if t.runOnStartup {
			job(time.Now())
		}
		for {
			select {
			case now := <-ticker.C:
				job(now)
			case <-ctx.Done():
				return
			case <-t.stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine.
func (t *Ticker) Stop(ctx context.Context) error {
	if t.stop == nil {
		return nil
	}
	close(t.stop)
	t.stop = nil
	return nil
}
