// Package ratelimit is a small in-memory per-user burst limiter. It sits in
// front of the solve endpoint so a stuck client cannot burn through its
// weekly quota in seconds; the quota ledger stays the source of truth.
package ratelimit

import (
	"sync"
	"time"
)

type counter struct {
	count     int
	lastReset time.Time
}

type Limiter struct {
	mu       sync.Mutex
	limit    int
	counters map[int64]*counter
	now      func() time.Time
}

// New creates a limiter allowing limit requests per user per minute.
// limit <= 0 disables limiting.
func New(limit int) *Limiter {
	l := &Limiter{
		limit:    limit,
		counters: make(map[int64]*counter),
		now:      time.Now,
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			l.cleanup()
		}
	}()

	return l
}

func (l *Limiter) Allow(userID int64) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, exists := l.counters[userID]
	if !exists || now.Sub(c.lastReset) >= time.Minute {
		l.counters[userID] = &counter{count: 1, lastReset: now}
		return true
	}

	if c.count >= l.limit {
		return false
	}
	c.count++
	return true
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for userID, c := range l.counters {
		if now.Sub(c.lastReset) >= time.Minute {
			delete(l.counters, userID)
		}
	}
}
