// Package apl implements the auth persistence layer backends.
package apl

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/config"
)

// DefaultFilePath is where FileAPL keeps its data when FILE_APL_PATH is unset
const DefaultFilePath = ".auth-data.json"

// APL types accepted by the APL env variable
const (
	TypeFile        = "file"
	TypeRedis       = "redis"
	TypeSaleorCloud = "saleor-cloud"
	TypeUpstash     = "upstash"
)

var (
	ErrRestNotConfigured  = errors.New("Rest APL is not configured - missing env variables")
	ErrRedisNotConfigured = errors.New("Redis APL is not configured - missing env variables")
	ErrInvalidAPLConfig   = errors.New("Invalid APL config")
)

type factoryOptions struct {
	logger     *zap.Logger
	httpClient *http.Client
}

// Option configures New
type Option func(*factoryOptions)

// WithLogger sets the logger handed to the backend
func WithLogger(logger *zap.Logger) Option {
	return func(o *factoryOptions) {
		o.logger = logger
	}
}

// WithHTTPClient sets the HTTP client of the REST backends
func WithHTTPClient(client *http.Client) Option {
	return func(o *factoryOptions) {
		o.httpClient = client
	}
}

// HashCollectionKey is the Redis hash used by an app kind.
func HashCollectionKey(kind string) string {
	return "app-" + kind
}

// New picks the backend named by cfg.Type. An empty or unknown type is
// rejected with ErrInvalidAPLConfig; config.Load defaults an unset APL to file.
func New(cfg config.APLConfig, kind string, opts ...Option) (apl.APL, error) {
	o := &factoryOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	switch cfg.Type {
	case TypeFile:
		return NewFileAPL(cfg.FilePath, o.logger), nil
	case TypeUpstash:
		return NewUpstashAPL(cfg.UpstashURL, cfg.UpstashToken, o.httpClient), nil
	case TypeSaleorCloud:
		if cfg.RestEndpoint == "" || cfg.RestToken == "" {
			return nil, ErrRestNotConfigured
		}
		return NewSaleorCloudAPL(cfg.RestEndpoint, cfg.RestToken, o.httpClient, o.logger), nil
	case TypeRedis:
		if cfg.RedisURL == "" {
			return nil, ErrRedisNotConfigured
		}
		client, err := NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return NewRedisAPL(client, HashCollectionKey(kind), o.logger), nil
	default:
		return nil, ErrInvalidAPLConfig
	}
}
