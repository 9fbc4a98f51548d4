package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_DeniesOverLimit(t *testing.T) {
	l := NewLimiter(10, time.Minute)
	for i := 0; i < 10; i++ {
		require.True(t, l.Take("caller"), "request %d should be allowed", i+1)
	}
	assert.False(t, l.Take("caller"), "request max+1 should be denied")
}

func TestLimiter_WindowElapses(t *testing.T) {
	l := NewLimiter(2, time.Minute)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	require.True(t, l.Take("caller"))
	require.True(t, l.Take("caller"))
	require.False(t, l.Take("caller"))

	clock = clock.Add(61 * time.Second)
	assert.True(t, l.Take("caller"), "request after the window elapses should be allowed")
}

func TestLimiter_CallersAreIndependent(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	require.True(t, l.Take("a"))
	require.False(t, l.Take("a"))
	assert.True(t, l.Take("b"))
}

func TestLimiter_DeniedRequestNotRecorded(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	require.True(t, l.Take("caller"))
	for i := 0; i < 5; i++ {
		require.False(t, l.Take("caller"))
	}
	// Only the single allowed request occupies the window.
	clock = clock.Add(60*time.Second + time.Nanosecond)
	assert.True(t, l.Take("caller"))
}

func TestLimiter_Peek(t *testing.T) {
	l := NewLimiter(3, time.Minute)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	remaining, _ := l.Peek("caller")
	assert.Equal(t, 3, remaining)

	l.Take("caller")
	remaining, reset := l.Peek("caller")
	assert.Equal(t, 2, remaining)
	assert.True(t, reset.Equal(clock.Add(time.Minute)), "window should free a slot one minute after the first request, got %v", reset)
}

func TestLimiter_PeekDoesNotCreateEntries(t *testing.T) {
	l := NewLimiter(3, time.Minute)

	remaining, _ := l.Peek("never-seen")
	assert.Equal(t, 3, remaining)

	l.mu.Lock()
	_, present := l.callers["never-seen"]
	l.mu.Unlock()
	assert.False(t, present, "peeking must not allocate caller state")
}

func TestLimiter_PrunesEmptyCallers(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	l.Take("caller")
	clock = clock.Add(2 * time.Minute)
	remaining, _ := l.Peek("caller")
	assert.Equal(t, 1, remaining)

	l.mu.Lock()
	_, present := l.callers["caller"]
	l.mu.Unlock()
	assert.False(t, present, "expired caller entries should be dropped")
}
