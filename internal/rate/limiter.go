package rate

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedLimiter keeps one token bucket per caller key.
type KeyedLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*keyedEntry
	rate        rate.Limit
	burst       int
	idle        time.Duration
	lastCleanup time.Time
	now         func() time.Time
}

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter allows rps requests per second per key with the given
// burst. Buckets unused for 10 minutes are dropped.
func NewKeyedLimiter(rps float64, burst int) *KeyedLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &KeyedLimiter{
		limiters: make(map[string]*keyedEntry),
		rate:     rate.Limit(rps),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether a request for key may proceed now.
func (l *KeyedLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := l.now()
	l.mu.Lock()
	l.maybeCleanup(now)
	entry, ok := l.limiters[key]
	if !ok {
		entry = &keyedEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()
	return entry.limiter.AllowN(now, 1)
}

func (l *KeyedLimiter) maybeCleanup(now time.Time) {
	if !l.lastCleanup.IsZero() && now.Sub(l.lastCleanup) < l.idle {
		return
	}
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) >= l.idle {
			delete(l.limiters, key)
		}
	}
	l.lastCleanup = now
}
