package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter is a token bucket refilled at a fixed rate, with optional jitter
// applied after each admission. It is safe for concurrent use, so one
// Limiter can act as admission control for every caller of an upstream API.
type Limiter struct {
	tokens   chan struct{}
	jitter   float64 // 0.0 to 1.0
	interval time.Duration

	stopOnce sync.Once
	done     chan struct{}
}

// NewLimiter creates a limiter admitting rps operations per second with
// bursts of up to burst operations. A burst below 1 is treated as 1.
// If rps is <= 0, the limiter does not block.
func NewLimiter(rps float64, burst int, jitter float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	if burst < 1 {
		burst = 1
	}
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}

	l := &Limiter{
		tokens:   make(chan struct{}, burst),
		jitter:   jitter,
		interval: time.Duration(float64(time.Second) / rps),
		done:     make(chan struct{}),
	}
	for i := 0; i < burst; i++ {
		l.tokens <- struct{}{}
	}
	go l.refill()
	return l
}

func (l *Limiter) refill() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			select {
			case l.tokens <- struct{}{}:
			default:
				// bucket full
			}
		}
	}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.tokens == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.tokens:
	}

	if l.jitter > 0 {
		// Only positive jitter delays; a negative draw admits immediately.
		jitterFactor := (rand.Float64() * 2) - 1.0
		if d := time.Duration(float64(l.interval) * l.jitter * jitterFactor); d > 0 {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Interval returns the refill interval, zero for an unlimited limiter.
func (l *Limiter) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}

// Stop releases the refill goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	if l == nil || l.done == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.done) })
}
