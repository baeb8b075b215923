package apl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
)

// RedisAPL stores auth data in one Redis hash per app. Field is the Saleor API
// URL, value is the JSON encoded auth data.
type RedisAPL struct {
	client            *redis.Client
	hashCollectionKey string
	logger            *zap.Logger
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("apl: parse redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// NewRedisAPL wraps an existing client. hashCollectionKey is usually "app-<kind>".
func NewRedisAPL(client *redis.Client, hashCollectionKey string, logger *zap.Logger) *RedisAPL {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisAPL{
		client:            client,
		hashCollectionKey: hashCollectionKey,
		logger:            logger,
	}
}

// HashCollectionKey returns the Redis hash holding all records.
func (r *RedisAPL) HashCollectionKey() string {
	return r.hashCollectionKey
}

func (r *RedisAPL) Get(ctx context.Context, saleorAPIURL string) (*apl.AuthData, error) {
	raw, err := r.client.HGet(ctx, r.hashCollectionKey, saleorAPIURL).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apl.ErrAuthDataNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("apl: redis get: %w", err)
	}

	var data apl.AuthData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("apl: decode redis value: %w", err)
	}
	return &data, nil
}

func (r *RedisAPL) Set(ctx context.Context, data apl.AuthData) error {
	if err := data.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("apl: encode auth data: %w", err)
	}
	if err := r.client.HSet(ctx, r.hashCollectionKey, data.SaleorAPIURL, raw).Err(); err != nil {
		return fmt.Errorf("apl: redis set: %w", err)
	}
	return nil
}

func (r *RedisAPL) Delete(ctx context.Context, saleorAPIURL string) error {
	if err := r.client.HDel(ctx, r.hashCollectionKey, saleorAPIURL).Err(); err != nil {
		return fmt.Errorf("apl: redis delete: %w", err)
	}
	return nil
}

func (r *RedisAPL) GetAll(ctx context.Context) ([]apl.AuthData, error) {
	values, err := r.client.HGetAll(ctx, r.hashCollectionKey).Result()
	if err != nil {
		return nil, fmt.Errorf("apl: redis get all: %w", err)
	}

	result := make([]apl.AuthData, 0, len(values))
	for field, raw := range values {
		var data apl.AuthData
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			r.logger.Warn("Skipping malformed auth data", zap.String("saleor_api_url", field), zap.Error(err))
			continue
		}
		result = append(result, data)
	}
	return result, nil
}

func (r *RedisAPL) IsReady(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("apl: redis not ready: %w", err)
	}
	return nil
}

func (r *RedisAPL) IsConfigured(context.Context) error {
	if r.client == nil || r.hashCollectionKey == "" {
		return errors.New("apl: redis client or hash collection key missing")
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisAPL) Close() error {
	return r.client.Close()
}

var _ apl.APL = (*RedisAPL)(nil)
