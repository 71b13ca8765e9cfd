package ratelimiter

import (
	"strings"
	"sync"
	"time"
)

// WindowLimiter counts requests per key in fixed windows. Unlike the token
// bucket it can report how long a rejected caller should wait, which the
// HTTP layer surfaces as Retry-After.
type WindowLimiter struct {
	max    int
	window time.Duration

	mu    sync.Mutex
	byKey map[string]*windowEntry
	hits  uint64
}

type windowEntry struct {
	count   int
	resetAt time.Time
}

// NewWindow creates a fixed-window limiter; returns nil if args are invalid.
func NewWindow(max int, window time.Duration) *WindowLimiter {
	if max <= 0 || window <= 0 {
		return nil
	}
	return &WindowLimiter{
		max:    max,
		window: window,
		byKey:  make(map[string]*windowEntry),
	}
}

// Allow reports whether the key may proceed at now. When it may not, the
// second return value is the wait until the window resets.
func (l *WindowLimiter) Allow(key string, now time.Time) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok || !now.Before(e.resetAt) {
		e = &windowEntry{resetAt: now.Add(l.window)}
		l.byKey[key] = e
	}

	l.hits++
	if l.hits%sweepEvery == 0 {
		for k, v := range l.byKey {
			if !now.Before(v.resetAt) {
				delete(l.byKey, k)
			}
		}
	}

	if e.count >= l.max {
		return false, e.resetAt.Sub(now)
	}
	e.count++
	return true, 0
}
