package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// clientIdleTTL exceeds the time a per-client bucket needs to refill,
	// so dropping an idle client never grants extra requests.
	clientIdleTTL = 2 * time.Minute
	// maxClients caps the number of tracked client buckets.
	maxClients = 10000
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a global and a per-client token bucket. Buckets of
// clients idle for longer than clientIdleTTL are swept.
type RateLimiter struct {
	mu        sync.Mutex
	global    *rate.Limiter
	clients   map[string]*clientBucket
	perClient rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a limiter allowing globalRPM requests per minute in
// total and perClientRPM per client. A non-positive value leaves that bucket
// unlimited.
func NewRateLimiter(globalRPM, perClientRPM int) *RateLimiter {
	rl := &RateLimiter{
		global:    rate.NewLimiter(rate.Inf, 1),
		clients:   make(map[string]*clientBucket),
		perClient: rate.Inf,
		burst:     1,
		now:       time.Now,
	}
	if globalRPM > 0 {
		rl.global = rate.NewLimiter(rate.Limit(float64(globalRPM)/60.0), globalRPM)
	}
	if perClientRPM > 0 {
		rl.perClient = rate.Limit(float64(perClientRPM) / 60.0)
		rl.burst = perClientRPM
	}
	return rl
}

// Allow reports whether a request from client may proceed.
func (rl *RateLimiter) Allow(client string) bool {
	if !rl.global.Allow() {
		return false
	}
	if rl.perClient == rate.Inf {
		return true
	}

	rl.mu.Lock()
	now := rl.now()
	if now.Sub(rl.lastSweep) >= clientIdleTTL {
		rl.sweep(now)
	}
	b, ok := rl.clients[client]
	if !ok {
		if len(rl.clients) >= maxClients {
			rl.sweep(now)
			if len(rl.clients) >= maxClients {
				rl.evictOldest()
			}
		}
		b = &clientBucket{limiter: rate.NewLimiter(rl.perClient, rl.burst)}
		rl.clients[client] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// sweep drops idle buckets. Callers hold mu.
func (rl *RateLimiter) sweep(now time.Time) {
	for k, b := range rl.clients {
		if now.Sub(b.lastSeen) >= clientIdleTTL {
			delete(rl.clients, k)
		}
	}
	rl.lastSweep = now
}

// evictOldest drops the least recently seen bucket. Callers hold mu.
func (rl *RateLimiter) evictOldest() {
	var (
		oldest string
		at     time.Time
		found  bool
	)
	for k, b := range rl.clients {
		if !found || b.lastSeen.Before(at) {
			oldest, at, found = k, b.lastSeen, true
		}
	}
	if found {
		delete(rl.clients, oldest)
	}
}

// trackedClients returns the number of client buckets held.
func (rl *RateLimiter) trackedClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
