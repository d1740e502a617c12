package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow_WithinCeiling(t *testing.T) {
	l := New(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("user-a"), "attempt %d should be allowed", i+1)
	}
	assert.False(t, l.Allow("user-a"))
	assert.False(t, l.Allow("user-a"), "denials do not consume budget")
}

func TestAllow_ExactlyMaxTimes(t *testing.T) {
	l := New(5, time.Minute)

	allowed := 0
	for i := 0; i < 6; i++ {
		if l.Allow("k") {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed)
}

func TestAllow_WindowReset(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewWithClock(2, time.Minute, func() time.Time { return now })

	assert.True(t, l.Allow("k"))
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))

	now = now.Add(time.Minute)
	assert.True(t, l.Allow("k"), "window elapsed, counter resets")
	assert.Equal(t, 1, l.Remaining("k"))
}

func TestAllow_KeysIndependent(t *testing.T) {
	l := New(1, time.Minute)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestRemaining_UntouchedKey(t *testing.T) {
	l := New(4, time.Minute)
	assert.Equal(t, 4, l.Remaining("nobody"))
}
