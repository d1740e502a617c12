package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGet_WithinTrustWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewWithClock[string, int](time.Minute, func() time.Time { return now })

	s.Set("k", 7)

	now = now.Add(59 * time.Second)
	v, ok := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestGet_ExpiredAfterTrustWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewWithClock[string, int](time.Minute, func() time.Time { return now })

	s.Set("k", 7)

	now = now.Add(time.Minute)
	_, ok := s.Get("k")
	assert.False(t, ok)
}

func TestGet_ZeroWindowNeverExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewWithClock[string, string](0, func() time.Time { return now })

	s.Set("k", "v")

	now = now.Add(1000 * time.Hour)
	v, ok := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestInvalidate(t *testing.T) {
	s := New[string, int](0)
	s.Set("a", 1)
	s.Set("b", 2)

	s.Invalidate("a")
	_, ok := s.Get("a")
	assert.False(t, ok)
	_, ok = s.Get("b")
	assert.True(t, ok)

	s.Clear()
	_, ok = s.Get("b")
	assert.False(t, ok)
}
