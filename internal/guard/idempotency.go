package guard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/trafficwise/platform/internal/domain"
)

func duplicate() domain.GuardResult {
	return domain.GuardResult{
		Allowed: false,
		Reason:  "duplicate request: idempotency key already processed",
		Guard:   "idempotency",
	}
}

// IdempotencyGuard deduplicates requests by idempotency key for ttl.
type IdempotencyGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewIdempotencyGuard creates an in-memory idempotency guard.
func NewIdempotencyGuard(ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Check claims key. An empty key is always allowed.
func (ig *IdempotencyGuard) Check(_ context.Context, key string) domain.GuardResult {
	if key == "" {
		return domain.GuardResult{Allowed: true}
	}

	ig.mu.Lock()
	defer ig.mu.Unlock()

	now := ig.now()
	if at, ok := ig.seen[key]; ok && now.Sub(at) < ig.ttl {
		return duplicate()
	}
	ig.seen[key] = now
	return domain.GuardResult{Allowed: true}
}

// Remove releases key so a failed request can be retried.
func (ig *IdempotencyGuard) Remove(_ context.Context, key string) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	delete(ig.seen, key)
}

// RedisIdempotencyGuard claims keys with SET NX so replicas share one view.
type RedisIdempotencyGuard struct {
	store  Claimer
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisIdempotencyGuard creates a guard backed by store.
func NewRedisIdempotencyGuard(store Claimer, ttl time.Duration, logger *slog.Logger) *RedisIdempotencyGuard {
	return &RedisIdempotencyGuard{store: store, ttl: ttl, logger: logger}
}

// Check claims key. Redis errors fail open.
func (g *RedisIdempotencyGuard) Check(ctx context.Context, key string) domain.GuardResult {
	if key == "" {
		return domain.GuardResult{Allowed: true}
	}
	ok, err := g.store.SetNX(ctx, "idem:"+key, 1, g.ttl)
	if err != nil {
		g.logger.Warn("idempotency store unavailable, allowing", "key", key, "error", err)
		return domain.GuardResult{Allowed: true}
	}
	if !ok {
		return duplicate()
	}
	return domain.GuardResult{Allowed: true}
}

// Remove releases key.
func (g *RedisIdempotencyGuard) Remove(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := g.store.Delete(ctx, "idem:"+key); err != nil {
		g.logger.Warn("failed to release idempotency key", "key", key, "error", err)
	}
}
