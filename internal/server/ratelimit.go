package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter keeps one token bucket per client IP
type rateLimiter struct {
	mu       sync.Mutex
	enabled  bool
	limit    rate.Limit
	burst    int
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(enabled bool, requestsPerMin, burst int) *rateLimiter {
	rl := &rateLimiter{visitors: make(map[string]*visitor)}
	rl.SetLimits(enabled, requestsPerMin, burst)
	return rl
}

// SetLimits changes the limits for every client, including existing ones
func (rl *rateLimiter) SetLimits(enabled bool, requestsPerMin, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.enabled = enabled
	rl.limit = rate.Limit(float64(requestsPerMin) / 60.0)
	rl.burst = burst
	for _, v := range rl.visitors {
		v.limiter.SetLimit(rl.limit)
		v.limiter.SetBurst(rl.burst)
	}
}

// Allow checks if a request from the given client IP is allowed
func (rl *rateLimiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	if !rl.enabled {
		rl.mu.Unlock()
		return true
	}
	v, ok := rl.visitors[clientIP]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[clientIP] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()

	return v.limiter.Allow()
}

// cleanup drops clients not seen since cutoff
func (rl *rateLimiter) cleanup(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

// runCleanup prunes idle clients every interval until done is closed
func (rl *rateLimiter) runCleanup(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			rl.cleanup(now.Add(-time.Hour))
		}
	}
}
