package infra

import (
	"context"
	"sync"
	"time"
)

// BitMEX REST allows 30 requests per minute unauthenticated.
const (
	BitMEXRESTBurst     = 5
	BitMEXRESTPerSecond = 0.5
)

// RateLimiter is a token bucket shared by concurrent REST callers.
type RateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	burst    float64
	perSec   float64
	lastFill time.Time
	now      func() time.Time
}

// NewRateLimiter allows bursts of maxRequests, refilled at perSecond.
func NewRateLimiter(maxRequests int, perSecond float64) *RateLimiter {
	r := &RateLimiter{
		tokens: float64(maxRequests),
		burst:  float64(maxRequests),
		perSec: perSecond,
		now:    time.Now,
	}
	r.lastFill = r.now()
	return r
}

// NewBitMEXRESTLimiter returns a limiter tuned below the public REST quota.
func NewBitMEXRESTLimiter() *RateLimiter {
	return NewRateLimiter(BitMEXRESTBurst, BitMEXRESTPerSecond)
}

// take consumes a token if one is available, otherwise it reports how long
// until the next one. Callers hold mu.
func (r *RateLimiter) take() (bool, time.Duration) {
	now := r.now()
	r.tokens += now.Sub(r.lastFill).Seconds() * r.perSec
	if r.tokens > r.burst {
		r.tokens = r.burst
	}
	r.lastFill = now

	if r.tokens >= 1 {
		r.tokens--
		return true, 0
	}
	missing := 1 - r.tokens
	return false, time.Duration(missing / r.perSec * float64(time.Second))
}

// TryAcquire takes a token without blocking.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ok, _ := r.take()
	return ok
}

// Wait blocks until a token is taken or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		ok, wait := r.take()
		r.mu.Unlock()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
