package api

import (
	"sync"
	"time"
)

const (
	defaultRateLimit  = 100
	rateLimitWindow   = time.Minute
	rateLimitIdleTTL  = 5 * rateLimitWindow
	rateLimitSweepGap = time.Minute
)

// RateLimiter implements per-user rate limiting on mutating routes
// ARCHITECTURAL DISCOVERY: Per-user state tracking with periodic cleanup prevents memory leaks
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimit
	limit   int
	now     func() time.Time
}

// FUNCTIONAL DISCOVERY: Window resets one minute after its first request
type clientLimit struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per minute per user.
// A non-positive limit means the default of 100.
func NewRateLimiter(limit int) *RateLimiter {
	if limit <= 0 {
		limit = defaultRateLimit
	}
	return &RateLimiter{
		clients: make(map[string]*clientLimit),
		limit:   limit,
		now:     time.Now,
	}
}

// Allow records one request and reports whether it is within the limit
func (rl *RateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	cl, exists := rl.clients[userID]
	if !exists || now.Sub(cl.windowStart) >= rateLimitWindow {
		rl.clients[userID] = &clientLimit{count: 1, windowStart: now}
		return true
	}

	if cl.count >= rl.limit {
		return false
	}
	cl.count++
	return true
}

// Cleanup removes users idle for more than five windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for userID, cl := range rl.clients {
		if now.Sub(cl.windowStart) > rateLimitIdleTTL {
			delete(rl.clients, userID)
		}
	}
}

// Tracked returns the number of users with limiter state
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
