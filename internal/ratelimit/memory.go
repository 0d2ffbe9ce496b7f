package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type counter struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a process-local fixed-window limiter. Counters live in
// one map shared by all handlers; a background sweep drops expired entries
// to bound memory.
//
// Fixed windows admit up to 2×max requests in a short span around a window
// boundary. That looseness is accepted; use RedisLimiter when limits must
// hold across instances.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

// Allow increments the scope's counter, starting a fresh window if none
// exists or the stored one has elapsed. It never returns an error.
func (l *MemoryLimiter) Allow(_ context.Context, scope string, window time.Duration, max int) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[scope]
	if !ok || c.resetAt.Before(now) {
		c = &counter{resetAt: now.Add(window)}
		l.counters[scope] = c
	}
	c.count++

	return c.count > max, nil
}

// Start runs the periodic sweep until ctx is cancelled.
func (l *MemoryLimiter) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := l.sweep()
				if removed > 0 {
					slog.Debug("rate limiter sweep", "removed", removed)
				}
			}
		}
	}()
}

func (l *MemoryLimiter) sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	var removed int
	for scope, c := range l.counters {
		if c.resetAt.Before(now) {
			delete(l.counters, scope)
			removed++
		}
	}
	return removed
}

func (l *MemoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}
