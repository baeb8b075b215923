// Package cache provides the webhook idempotency stores.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/shared"
)

// NewIdempotencyStore uses Redis when redisURL is set and reachable, and the
// in-memory store otherwise.
func NewIdempotencyStore(ctx context.Context, redisURL, keyPrefix string, logger *zap.Logger) (shared.IdempotencyStore, error) {
	if redisURL == "" {
		logger.Info("Using in-memory webhook idempotency store")
		return NewInMemoryIdempotencyStore(clockwork.NewRealClock()), nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.Warn("Redis unavailable, falling back to in-memory idempotency store", zap.Error(err))
		return NewInMemoryIdempotencyStore(clockwork.NewRealClock()), nil
	}

	logger.Info("Using Redis webhook idempotency store")
	return NewRedisIdempotencyStore(client, keyPrefix), nil
}
