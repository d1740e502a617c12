// Package cache provides a small in-memory store of timestamped values served
// within a trust window. Instances are constructor-injected so components own
// their caches explicitly; nothing here is a package-level singleton.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value      V
	observedAt time.Time
}

// Store maps keys to values observed at a point in time. A value is served
// while now - observedAt < trustWindow; a zero trustWindow means entries never
// expire and are dropped only by explicit invalidation.
type Store[K comparable, V any] struct {
	trustWindow time.Duration

	mu      sync.RWMutex
	entries map[K]entry[V]

	now func() time.Time
}

// New creates a Store with the given trust window.
func New[K comparable, V any](trustWindow time.Duration) *Store[K, V] {
	return &Store[K, V]{
		trustWindow: trustWindow,
		entries:     make(map[K]entry[V]),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// NewWithClock creates a Store with an injected clock.
func NewWithClock[K comparable, V any](trustWindow time.Duration, now func() time.Time) *Store[K, V] {
	s := New[K, V](trustWindow)
	s.now = now
	return s
}

// Get returns the cached value for key if one exists within the trust window.
func (s *Store[K, V]) Get(key K) (V, bool) {
	var zero V

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if s.trustWindow > 0 && s.now().Sub(e.observedAt) >= s.trustWindow {
		s.Invalidate(key)
		return zero, false
	}
	return e.value, true
}

// Set stores value for key, stamped with the current time.
func (s *Store[K, V]) Set(key K, value V) {
	s.mu.Lock()
	s.entries[key] = entry[V]{value: value, observedAt: s.now()}
	s.mu.Unlock()
}

// Invalidate drops the entry for key. It performs no I/O.
func (s *Store[K, V]) Invalidate(key K) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Clear drops every entry.
func (s *Store[K, V]) Clear() {
	s.mu.Lock()
	s.entries = make(map[K]entry[V])
	s.mu.Unlock()
}
