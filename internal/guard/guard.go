// Package guard holds request guards that protect the submission path:
// per-uid rate limits, duplicate-submission detection, the processing
// backend circuit breaker, and sign-in lockout.
package guard

import (
	"context"
	"time"

	"github.com/trafficwise/platform/internal/domain"
)

// Limiter decides whether a key may proceed.
type Limiter interface {
	Check(ctx context.Context, key string) domain.GuardResult
}

// Deduplicator claims idempotency keys.
type Deduplicator interface {
	Check(ctx context.Context, key string) domain.GuardResult
	Remove(ctx context.Context, key string)
}

// Counter is the Redis subset used by RedisRateLimiter.
type Counter interface {
	IncrWithExpire(ctx context.Context, key string, expiration time.Duration) (int64, error)
}

// Claimer is the Redis subset used by RedisIdempotencyGuard.
type Claimer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}
