// Package ratelimit bounds request volume per key per time unit.
//
// The limiter is a fixed-window counter, not a token bucket or sliding log:
// predictable, O(1) bookkeeping per call. A window boundary can admit up to
// twice the nominal rate in the worst case; upstream providers enforce their
// own hard limits behind it.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Window names the time unit a limit applies over.
type Window string

const (
	PerSecond Window = "second"
	PerMinute Window = "minute"
	PerHour   Window = "hour"
	PerDay    Window = "day"
)

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	switch w {
	case PerSecond:
		return time.Second
	case PerMinute:
		return time.Minute
	case PerHour:
		return time.Hour
	case PerDay:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// ParseWindow converts a string to a Window.
func ParseWindow(s string) (Window, error) {
	switch Window(s) {
	case PerSecond, PerMinute, PerHour, PerDay:
		return Window(s), nil
	}
	return "", fmt.Errorf("invalid rate limit window: %q", s)
}

// Limit is a request budget per window.
type Limit struct {
	Requests int
	Per      Window
}

// windowState tracks one key's current window.
type windowState struct {
	count   int
	resetAt time.Time
}

// Limiter is a process-wide fixed-window counter keyed by opaque strings
// (typically "provider:organization"). State is in-memory only and resets on
// process restart; limiting is best-effort.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*windowState
	now     func() time.Time
}

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{
		entries: make(map[string]*windowState),
		now:     time.Now,
	}
}

// NewWithClock creates a limiter with an injected clock. Used in tests.
func NewWithClock(now func() time.Time) *Limiter {
	l := New()
	l.now = now
	return l
}

// CheckLimit records one request against the key and reports whether it is
// allowed. A missing or elapsed window starts fresh with count=1. At
// capacity the call is denied without incrementing. The read-modify-write is
// a single critical section.
func (l *Limiter) CheckLimit(key string, limit Limit) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st, ok := l.entries[key]
	if !ok || now.After(st.resetAt) {
		l.entries[key] = &windowState{
			count:   1,
			resetAt: now.Add(limit.Per.Duration()),
		}
		return true
	}

	if st.count >= limit.Requests {
		return false
	}

	st.count++
	return true
}

// GetRemainingRequests returns how many requests the key has left in its
// current window without consuming any.
func (l *Limiter) GetRemainingRequests(key string, limit Limit) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.entries[key]
	if !ok || l.now().After(st.resetAt) {
		return limit.Requests
	}

	remaining := limit.Requests - st.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GetResetTime returns when the key's current window resets. The zero time
// means no window is active.
func (l *Limiter) GetResetTime(key string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.entries[key]
	if !ok {
		return time.Time{}
	}
	return st.resetAt
}

// ClearLimits drops all state. Used for test isolation.
func (l *Limiter) ClearLimits() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*windowState)
}

// Size returns the number of tracked keys.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// StartSweeping periodically drops entries whose window has elapsed, so key
// churn (tenants and providers coming and going) cannot grow the map without
// bound. Returns immediately; the sweep stops when ctx is done.
func (l *Limiter) StartSweeping(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
}

// sweep removes elapsed windows.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, st := range l.entries {
		if now.After(st.resetAt) {
			delete(l.entries, key)
		}
	}
}
