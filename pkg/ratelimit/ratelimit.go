package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"
)

// Limiter paces outbound requests at a fixed rate with optional positive
// jitter. It is safe for concurrent use.
type Limiter struct {
	ticker   *time.Ticker
	interval time.Duration
	jitter   float64 // 0.0 to 1.0
}

// NewLimiter creates a limiter allowing rps operations per second. A non-positive
// rps yields a limiter that never blocks. Jitter is clamped to [0, 1].
func NewLimiter(rps float64, jitter float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	jitter = min(max(jitter, 0), 1)

	interval := time.Duration(float64(time.Second) / rps)
	return &Limiter{
		ticker:   time.NewTicker(interval),
		interval: interval,
		jitter:   jitter,
	}
}

// Wait blocks until the next slot or until ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.ticker == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ticker.C:
	}

	// A ticker cannot fire early, so only the positive half of the jitter
	// range produces an extra delay.
	extra := time.Duration(float64(l.interval) * l.jitter * (rand.Float64()*2 - 1))
	if extra <= 0 {
		return nil
	}

	timer := time.NewTimer(extra)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Stop releases the underlying ticker.
func (l *Limiter) Stop() {
	if l != nil && l.ticker != nil {
		l.ticker.Stop()
	}
}
