package jobs

import (
	"context"
	"log/slog"
	"time"
)

type CallExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

type UsageRetrier interface {
	ReconcilePending(ctx context.Context, limit int) (int, error)
}

// Sweeper periodically abandons calls stuck before connecting and retries
// usage reconciliation that never landed.
type Sweeper struct {
	Calls     CallExpirer
	Usage     UsageRetrier
	Interval  time.Duration
	BatchSize int
	Log       *slog.Logger
}

// Run blocks until ctx is cancelled. A pass runs immediately, then every Interval.
func (s Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one pass. Errors are logged; the next pass retries.
func (s Sweeper) RunOnce(ctx context.Context) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	if s.Calls != nil {
		n, err := s.Calls.ExpireStale(ctx)
		if err != nil {
			log.Error("expire stale calls failed", "err", err)
		} else if n > 0 {
			log.Info("stale calls abandoned", "count", n)
		}
	}
	if s.Usage != nil && ctx.Err() == nil {
		n, err := s.Usage.ReconcilePending(ctx, s.BatchSize)
		if err != nil {
			log.Error("pending usage reconciliation failed", "err", err)
		} else if n > 0 {
			log.Info("pending usage reconciled", "count", n)
		}
	}
}
