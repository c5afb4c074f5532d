package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// RateLimiter is an in-process domain.RateLimiter with one token bucket per
// key. A bucket refills limit tokens per window and bursts up to limit.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	idle    time.Duration
	now     func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	limit    int
	window   time.Duration
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter. Buckets unused for idle are dropped
// by Cleanup.
func NewRateLimiter(idle time.Duration) *RateLimiter {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &RateLimiter{buckets: make(map[string]*bucket), idle: idle, now: time.Now}
}

// Allow reports whether one more request for key fits, and consumes a token
// if so.
func (l *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok || b.limit != limit || b.window != window {
		b = &bucket{
			lim:    rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
			limit:  limit,
			window: window,
		}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.lim.AllowN(now, 1), nil
}

// Cleanup drops idle buckets and returns how many were removed.
func (l *RateLimiter) Cleanup() int {
	cutoff := l.now().Add(-l.idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
