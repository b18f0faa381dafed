// Package ratelimit throttles callers with one token bucket per key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds Capacity tokens per key and refills the full capacity evenly
// over each interval.
type Limiter struct {
	mu       sync.RWMutex
	buckets  map[string]*bucket
	limit    rate.Limit
	capacity int
	now      func() time.Time
}

func NewLimiter(capacity int, interval time.Duration) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Limiter{
		buckets:  make(map[string]*bucket),
		limit:    rate.Limit(float64(capacity) / interval.Seconds()),
		capacity: capacity,
		now:      time.Now,
	}
}

func (l *Limiter) getBucket(key string) *bucket {
	l.mu.RLock()
	b, exists := l.buckets[key]
	l.mu.RUnlock()

	if exists {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if b, exists := l.buckets[key]; exists {
		return b
	}
	b = &bucket{limiter: rate.NewLimiter(l.limit, l.capacity)}
	l.buckets[key] = b
	return b
}

// Allow takes one token from key's bucket.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	b := l.getBucket(key)

	l.mu.Lock()
	b.lastSeen = now
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// RetryAfter is how long key must wait for its next token.
func (l *Limiter) RetryAfter(key string) time.Duration {
	now := l.now()
	b := l.getBucket(key)
	r := b.limiter.ReserveN(now, 1)
	defer r.CancelAt(now)
	return r.DelayFrom(now)
}

// Sweep drops buckets idle for longer than idle and returns how many it removed.
// A dropped key starts again with a full bucket.
func (l *Limiter) Sweep(idle time.Duration) int {
	cutoff := l.now().Add(-idle)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}
