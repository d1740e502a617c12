// Package ratelimit provides an in-memory fixed-window counter used to cap
// privileged administrative operations per user. It performs no I/O.
package ratelimit

import (
	"sync"
	"time"
)

type state struct {
	count       int
	windowStart time.Time
}

// Limiter tracks per-key request counts within a rolling window.
type Limiter struct {
	max    int
	window time.Duration

	mu     sync.Mutex
	states map[string]state

	// injectable for tests
	now func() time.Time
}

// New creates a Limiter allowing max operations per window per key.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:    max,
		window: window,
		states: make(map[string]state),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewWithClock creates a Limiter with an injected clock.
func NewWithClock(max int, window time.Duration, now func() time.Time) *Limiter {
	l := New(max, window)
	l.now = now
	return l
}

// Allow records an attempt for key and reports whether it is within the
// ceiling. A denied attempt does not consume window budget; once the window
// elapses the counter resets.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.states[key]
	if !ok || now.Sub(s.windowStart) >= l.window {
		l.states[key] = state{count: 1, windowStart: now}
		return true
	}
	if s.count < l.max {
		s.count++
		l.states[key] = s
		return true
	}
	return false
}

// Remaining returns how many attempts key has left in its current window.
func (l *Limiter) Remaining(key string) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.states[key]
	if !ok || now.Sub(s.windowStart) >= l.window {
		return l.max
	}
	if s.count >= l.max {
		return 0
	}
	return l.max - s.count
}
