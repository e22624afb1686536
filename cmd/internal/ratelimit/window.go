// Package ratelimit throttles login attempts per key (client IP, email).
package ratelimit

import (
	"sync"
	"time"
)

// Window is a sliding-window counter for a single key.
type Window struct {
	mu     sync.Mutex
	events []time.Time
	limit  int
	window time.Duration
}

func NewWindow(limit int, window time.Duration) *Window {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Window{
		events: make([]time.Time, 0, limit),
		limit:  limit,
		window: window,
	}
}

// Allow records an event at now if the window has room. When it does not,
// retryAfter is how long until the oldest event slides out.
func (w *Window) Allow(now time.Time) (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	if len(w.events) >= w.limit {
		return false, w.events[0].Add(w.window).Sub(now)
	}
	w.events = append(w.events, now)
	return true, 0
}

// idle reports whether the window holds no live events at now.
func (w *Window) idle(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(now)
	return len(w.events) == 0
}

func (w *Window) pruneLocked(now time.Time) {
	cut := now.Add(-w.window)
	dst := w.events[:0]
	for _, t := range w.events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	w.events = dst
}
