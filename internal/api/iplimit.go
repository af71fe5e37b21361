package api

import (
	"sync"
	"time"
)

type ipWindow struct {
	start time.Time
	count int
}

// ipLimiter is a fixed-window per-IP counter for the public storefront
// endpoints. State is process-local; that is acceptable because the limit
// only shields the token lookup from scraping, it is not a billing control.
type ipLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string]*ipWindow
}

func newIPLimiter(limit int, window time.Duration) *ipLimiter {
	return &ipLimiter{
		limit:   limit,
		window:  window,
		entries: make(map[string]*ipWindow),
	}
}

func (l *ipLimiter) Allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[ip]
	if !ok || now.Sub(entry.start) >= l.window {
		l.entries[ip] = &ipWindow{start: now, count: 1}
		l.sweepLocked(now)
		return true
	}
	if entry.count >= l.limit {
		return false
	}
	entry.count++
	return true
}

// sweepLocked drops stale windows so the map does not grow unbounded.
func (l *ipLimiter) sweepLocked(now time.Time) {
	if len(l.entries) < 4096 {
		return
	}
	for ip, entry := range l.entries {
		if now.Sub(entry.start) >= l.window {
			delete(l.entries, ip)
		}
	}
}
