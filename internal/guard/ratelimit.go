package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/trafficwise/platform/internal/domain"
)

// RateLimiter is an in-process sliding window limiter. It is used when no
// Redis is configured.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	window  time.Duration
}

// NewRateLimiter creates a rate limiter with the given limit per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
	}
}

// Check records a hit for key and reports whether it is within the limit.
func (rl *RateLimiter) Check(_ context.Context, key string) domain.GuardResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	entries := rl.windows[key]
	valid := entries[:0]
	for _, t := range entries {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.windows[key] = valid
		return exceeded(rl.limit, rl.window)
	}

	rl.windows[key] = append(valid, now)
	return domain.GuardResult{Allowed: true}
}

// RedisRateLimiter is a fixed window limiter shared by every API replica.
type RedisRateLimiter struct {
	store  Counter
	limit  int
	window time.Duration
	logger *slog.Logger
}

// NewRedisRateLimiter creates a limiter backed by store.
func NewRedisRateLimiter(store Counter, limit int, window time.Duration, logger *slog.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{store: store, limit: limit, window: window, logger: logger}
}

// Check increments the counter for key. Redis errors fail open.
func (rl *RedisRateLimiter) Check(ctx context.Context, key string) domain.GuardResult {
	count, err := rl.store.IncrWithExpire(ctx, "ratelimit:"+key, rl.window)
	if err != nil {
		rl.logger.Warn("rate limit store unavailable, allowing", "key", key, "error", err)
		return domain.GuardResult{Allowed: true}
	}
	if int(count) > rl.limit {
		return exceeded(rl.limit, rl.window)
	}
	return domain.GuardResult{Allowed: true}
}

func exceeded(limit int, window time.Duration) domain.GuardResult {
	return domain.GuardResult{
		Allowed: false,
		Reason:  fmt.Sprintf("rate limit exceeded: %d/%s", limit, window),
		Guard:   "rate_limiter",
	}
}
