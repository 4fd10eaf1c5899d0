// Package ratelimit provides the per-venue token-bucket rate limiter
// consulted by the execution-feasibility gate.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter tracks one token bucket per venue.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiter creates a limiter with the given per-venue RPS and burst.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *Limiter) getLimiter(venue string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[venue]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, exists := l.limiters[venue]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[venue] = limiter
	return limiter
}

// Allow reports whether one request for the venue fits the budget now.
// It never blocks; a depleted bucket is a rate-limited verdict.
func (l *Limiter) Allow(venue string) bool {
	return l.getLimiter(venue).Allow()
}
