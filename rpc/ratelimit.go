package rpc

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL   = 10 * time.Minute
	limiterSweepSize = 1024
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter throttles mutating calls per client address. A non-positive
// rate disables throttling.
type clientLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	visitors map[string]*limiterEntry
	clockNow func() time.Time
}

func newClientLimiter(perMinute, burst int) *clientLimiter {
	l := &clientLimiter{
		visitors: make(map[string]*limiterEntry),
		clockNow: time.Now,
	}
	if perMinute > 0 {
		l.limit = rate.Limit(float64(perMinute) / 60.0)
		l.burst = burst
		if l.burst <= 0 {
			l.burst = 1
		}
	}
	return l
}

func (l *clientLimiter) allow(source string) bool {
	if l == nil || l.limit == 0 {
		return true
	}
	if source == "" {
		source = "unknown"
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clockNow()
	entry, ok := l.visitors[source]
	if !ok {
		if len(l.visitors) >= limiterSweepSize {
			l.sweep(now)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[source] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *clientLimiter) sweep(now time.Time) {
	for source, entry := range l.visitors {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(l.visitors, source)
		}
	}
}
