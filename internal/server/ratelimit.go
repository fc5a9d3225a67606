package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a per-customer token bucket. Callers without a
// customer id share the bucket of their remote address.
type RateLimiter struct {
	mu      sync.Mutex
	callers map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// NewRateLimiter returns nil when rps is not positive, which disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		callers: make(map[string]*rate.Limiter),
		limit:   rate.Limit(rps),
		burst:   burst,
	}
}

// Allow reports whether one more request from caller is allowed now.
func (rl *RateLimiter) Allow(caller string) bool {
	rl.mu.Lock()
	limiter, ok := rl.callers[caller]
	if !ok {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.callers[caller] = limiter
	}
	rl.mu.Unlock()
	return limiter.Allow()
}

// Burst is the bucket size granted to each caller.
func (rl *RateLimiter) Burst() int { return rl.burst }
