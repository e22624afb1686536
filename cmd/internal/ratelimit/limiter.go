package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether an attempt for key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (ok bool, retryAfter time.Duration, err error)
}

// pruneEvery bounds how many keys MemoryLimiter may accumulate between sweeps.
const pruneEvery = 1024

// MemoryLimiter keeps one sliding Window per key in process memory.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*Window
	limit   int
	window  time.Duration
	calls   int
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*Window),
		limit:   limit,
		window:  window,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (bool, time.Duration, error) {
	m.mu.Lock()
	m.calls++
	if m.calls%pruneEvery == 0 {
		for k, w := range m.windows {
			if w.idle(now) {
				delete(m.windows, k)
			}
		}
	}
	w, ok := m.windows[key]
	if !ok {
		w = NewWindow(m.limit, m.window)
		m.windows[key] = w
	}
	m.mu.Unlock()

	ok, retry := w.Allow(now)
	return ok, retry, nil
}

// Disabled never throttles.
type Disabled struct{}

func (Disabled) Allow(context.Context, string, time.Time) (bool, time.Duration, error) {
	return true, 0, nil
}
