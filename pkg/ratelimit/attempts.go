package ratelimit

import (
	"sync"
	"time"
)

// Clock returns the current time. Tests inject a fake.
type Clock func() time.Time

// AttemptTracker counts attempts per identity inside a sliding window.
// Each identity maps to its ordered attempt timestamps; entries older than
// the window are pruned lazily. It is safe for concurrent use.
type AttemptTracker struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      Clock
	attempts map[string][]time.Time
}

// NewAttemptTracker allows limit attempts per identity within window.
// A nil clock uses time.Now.
func NewAttemptTracker(limit int, window time.Duration, now Clock) *AttemptTracker {
	if now == nil {
		now = time.Now
	}
	return &AttemptTracker{
		limit:    limit,
		window:   window,
		now:      now,
		attempts: make(map[string][]time.Time),
	}
}

// Allow records an attempt for key and reports whether it is within the
// limit. Rejected attempts are not recorded. A non-positive limit allows all.
func (t *AttemptTracker) Allow(key string) bool {
	if t.limit <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	kept := t.prune(key, now)
	if len(kept) >= t.limit {
		return false
	}
	t.attempts[key] = append(kept, now)
	return true
}

// Count returns the attempts for key still inside the window.
func (t *AttemptTracker) Count(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.prune(key, t.now()))
}

// RetryAfter returns how long until key may attempt again, zero if it may now.
func (t *AttemptTracker) RetryAfter(key string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	kept := t.prune(key, now)
	if t.limit <= 0 || len(kept) < t.limit {
		return 0
	}
	return kept[len(kept)-t.limit].Add(t.window).Sub(now)
}

// Reset forgets all attempts for key.
func (t *AttemptTracker) Reset(key string) {
	t.mu.Lock()
	delete(t.attempts, key)
	t.mu.Unlock()
}

// prune drops expired timestamps for key. Caller holds t.mu.
func (t *AttemptTracker) prune(key string, now time.Time) []time.Time {
	ts := t.attempts[key]
	cutoff := now.Add(-t.window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == len(ts) {
		delete(t.attempts, key)
		return nil
	}
	ts = ts[i:]
	t.attempts[key] = ts
	return ts
}
