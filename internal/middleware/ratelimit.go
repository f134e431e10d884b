package middleware

import (
	"sync"
	"time"
)

const (
	maxEntries      = 10000
	cleanupInterval = time.Minute
	entryTTL        = 5 * time.Minute
)

type rateLimitEntry struct {
	timestamps []time.Time
	lastAccess time.Time
}

// RateLimiter is an in-process sliding window limiter. It backs the Redis
// limiter while Redis is unreachable, so limits hold per instance.
type RateLimiter struct {
	mu          sync.Mutex
	window      time.Duration
	store       map[string]*rateLimitEntry
	lastCleanup time.Time
	now         func() time.Time
}

func NewRateLimiter(window time.Duration) *RateLimiter {
	return &RateLimiter{
		window:      window,
		store:       make(map[string]*rateLimitEntry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (rl *RateLimiter) cleanup(now time.Time) {
	if now.Sub(rl.lastCleanup) < cleanupInterval {
		return
	}
	rl.lastCleanup = now

	for key, entry := range rl.store {
		if now.Sub(entry.lastAccess) > entryTTL {
			delete(rl.store, key)
		}
	}

	if len(rl.store) > maxEntries {
		drop := len(rl.store) / 5
		for key := range rl.store {
			if drop == 0 {
				break
			}
			delete(rl.store, key)
			drop--
		}
	}
}

func (rl *RateLimiter) Check(key string, limit int) (allowed bool, remaining int, resetAt int64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanup(now)
	windowStart := now.Add(-rl.window)

	entry, exists := rl.store[key]
	if !exists {
		entry = &rateLimitEntry{lastAccess: now}
		rl.store[key] = entry
	}
	entry.lastAccess = now

	filtered := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			filtered = append(filtered, ts)
		}
	}
	entry.timestamps = filtered

	remaining = limit - len(entry.timestamps)
	if remaining < 0 {
		remaining = 0
	}

	if len(entry.timestamps) > 0 {
		resetAt = entry.timestamps[0].Add(rl.window).Unix()
	} else {
		resetAt = now.Add(rl.window).Unix()
	}

	if len(entry.timestamps) >= limit {
		return false, 0, resetAt
	}

	entry.timestamps = append(entry.timestamps, now)
	return true, remaining - 1, resetAt
}
