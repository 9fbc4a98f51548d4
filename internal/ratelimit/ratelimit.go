// Package ratelimit implements the per-caller sliding window guard that runs
// before any venue round-trip.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a thread-safe sliding window rate limiter keyed by caller
// identity. Timestamps older than the window are pruned lazily on each check,
// which also bounds memory per caller. The caller identity space is small
// (bearer-token scoped), so a single coarse lock is enough.
type Limiter struct {
	limit   int
	window  time.Duration
	mu      sync.Mutex
	callers map[string][]int64 // unix nanos per caller

	now func() time.Time // injectable clock for tests
}

// NewLimiter creates a limiter allowing limit requests per window per caller.
func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		callers: make(map[string][]int64),
		now:     time.Now,
	}
}

// Take records a request for the caller and reports whether it is allowed.
// A denied request is not recorded.
func (l *Limiter) Take(caller string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now().UnixNano()
	kept := l.prune(caller, now)
	if len(kept) >= l.limit {
		return false
	}
	l.callers[caller] = append(kept, now)
	return true
}

// Peek returns the remaining allowance and the time at which the window next
// frees a slot, without recording a request.
func (l *Limiter) Peek(caller string) (remaining int, reset time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	kept := l.prune(caller, now.UnixNano())
	if kept != nil {
		l.callers[caller] = kept
	}
	remaining = l.limit - len(kept)
	reset = now
	if len(kept) > 0 {
		reset = time.Unix(0, kept[0]+l.window.Nanoseconds()).In(now.Location())
	}
	return remaining, reset
}

// Window returns the limiter's configured window.
func (l *Limiter) Window() time.Duration { return l.window }

// Limit returns the limiter's configured max requests per window.
func (l *Limiter) Limit() int { return l.limit }

// prune drops timestamps outside the window and drops the caller entry
// entirely once empty. Must be called with the lock held.
func (l *Limiter) prune(caller string, now int64) []int64 {
	requests := l.callers[caller]
	cutoff := now - l.window.Nanoseconds()
	idx := 0
	for idx < len(requests) && requests[idx] <= cutoff {
		idx++
	}
	if idx > 0 {
		requests = requests[idx:]
	}
	if len(requests) == 0 {
		delete(l.callers, caller)
		return nil
	}
	return requests
}
