package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// clientLimiter hands out one token-bucket limiter per client key.
// A ratePerMinute of 0 disables limiting.
type clientLimiter struct {
	mu            sync.Mutex
	limiters      map[string]*rate.Limiter
	ratePerMinute int
}

func newClientLimiter(ratePerMinute int) *clientLimiter {
	return &clientLimiter{
		limiters:      make(map[string]*rate.Limiter),
		ratePerMinute: ratePerMinute,
	}
}

// Allow reports whether the client may proceed right now. Chat requests
// should fail fast rather than queue, so this does not wait for a token.
func (cl *clientLimiter) Allow(key string) bool {
	if cl.ratePerMinute <= 0 {
		return true
	}

	cl.mu.Lock()
	limiter, ok := cl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(cl.ratePerMinute)/60.0), cl.ratePerMinute)
		cl.limiters[key] = limiter
	}
	cl.mu.Unlock()

	return limiter.Allow()
}
