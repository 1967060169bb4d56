// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ThrottleMessage is shown to clients that log in too often.
const ThrottleMessage = "Connection throttled! Please wait before reconnecting."

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter throttles login attempts per client IP.
type ipLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	entries   map[string]*limiterEntry
	lastPrune time.Time
	now       func() time.Time
}

// newIPLimiter allows limit logins per second per IP with the given
// burst. A non-positive limit disables throttling.
func newIPLimiter(limit float64, burst int) *ipLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ipLimiter{
		limit:   rate.Limit(limit),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

// Allow reports whether ip may start another login now.
func (l *ipLimiter) Allow(ip string) bool {
	if l.limit <= 0 || ip == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	e, ok := l.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (l *ipLimiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < limiterIdleTTL {
		return
	}
	l.lastPrune = now
	for ip, e := range l.entries {
		if now.Sub(e.lastSeen) >= limiterIdleTTL {
			delete(l.entries, ip)
		}
	}
}

func (l *ipLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
