package rpcapi

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per subject, grown lazily and capped
// in size. Grounded on the cuemby-warren ingress middleware's per-client-IP
// limiter map, adapted to key by authenticated user ID instead of IP since
// every frontend RPC requires a valid bearer token before reaching this
// check.
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	perSecond  rate.Limit
	burst      int
	maxEntries int
}

// NewRateLimiter builds a RateLimiter admitting perSecond requests/sec per
// subject with the given burst, evicting its whole table once it grows
// past maxEntries to bound memory under a flood of distinct subjects.
func NewRateLimiter(perSecond float64, burst, maxEntries int) *RateLimiter {
	return &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		perSecond:  rate.Limit(perSecond),
		burst:      burst,
		maxEntries: maxEntries,
	}
}

// Allow reports whether subject may proceed now, consuming one token if so.
func (r *RateLimiter) Allow(subject string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.limiters) > r.maxEntries {
		r.limiters = make(map[string]*rate.Limiter)
	}
	l, ok := r.limiters[subject]
	if !ok {
		l = rate.NewLimiter(r.perSecond, r.burst)
		r.limiters[subject] = l
	}
	return l.Allow()
}
