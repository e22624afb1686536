package viewsession

import (
	"context"
	"log/slog"
	"time"
)

const sweepTimeout = 10 * time.Second

// Sweeper periodically deletes expired view sessions. Expiry is already
// enforced at read time; sweeping only bounds table growth.
type Sweeper struct {
	store    Store
	interval time.Duration
	log      *slog.Logger
	observe  func(deleted int)
	now      func() time.Time
}

// NewSweeper returns nil when interval is not positive.
func NewSweeper(store Store, interval time.Duration, log *slog.Logger, observe func(deleted int)) *Sweeper {
	if interval <= 0 {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{store: store, interval: interval, log: log, observe: observe, now: time.Now}
}

// Start runs the sweep loop in a goroutine until ctx is cancelled.
// A nil Sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepOnce(ctx)
			}
		}
	}()
}

// SweepOnce deletes sessions expired at the current time.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	tickCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	n, err := s.store.DeleteExpired(tickCtx, s.now().UTC())
	if err != nil {
		s.log.Warn("sweeper.run.fail", "err", err)
		return 0
	}
	if s.observe != nil {
		s.observe(n)
	}
	if n > 0 {
		s.log.Info("sweeper.run", "deleted", n)
	}
	return n
}
