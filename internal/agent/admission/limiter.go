// Package admission implements the request admission/throttle subsystem
// (spec.md §4.2): a per-user token-bucket rate limiter, a per-dependency
// circuit breaker, a per-user active-request gate, a bounded global
// priority queue, and a stale-context flusher sweeper.
package admission

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-user token-bucket limiter (spec.md §4.2:
// "capacity C, refill R/sec"). It wraps golang.org/x/time/rate, creating
// one limiter per user id lazily and reusing it across calls.
type RateLimiter struct {
	capacity float64
	refill   float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter creates a RateLimiter with bucket capacity C and refill
// rate R tokens/sec.
func NewRateLimiter(capacity, refillPerSec float64) *RateLimiter {
	return &RateLimiter{
		capacity: capacity,
		refill:   refillPerSec,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether userID may proceed now, consuming one token if
// so. Drops (returns false) once the bucket is empty, per spec.md §4.2.
func (r *RateLimiter) Allow(userID string) bool {
	return r.limiterFor(userID).Allow()
}

func (r *RateLimiter) limiterFor(userID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(r.refill), int(r.capacity))
		r.limiters[userID] = l
	}
	return l
}
