// Package productsfeed generates Google Merchant feeds of Saleor channels and
// caches them in S3.
package productsfeed

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	domain "github.com/trieb-work/saleor-apps/internal/domain/productsfeed"
	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/logger"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry"
)

// Error codes
const (
	CodeMissingChannelURLs = "MISSING_CHANNEL_URLS"
	CodeMissingS3          = "MISSING_S3_CONFIGURATION"
	CodeInvalidS3          = "INVALID_S3_CONFIGURATION"
	CodeStorageFailed      = "STORAGE_FAILED"
	CodeFetchFailed        = "FETCH_VARIANTS_FAILED"
	CodeRenderFailed       = "RENDER_FAILED"
	CodeConfigLoadFailed   = "CONFIG_LOAD_FAILED"
	CodeConfigSaveFailed   = "CONFIG_SAVE_FAILED"
	CodeValidationError    = "VALIDATION_ERROR"
)

const (
	feedFileName    = "google.xml"
	feedContentType = "application/xml"
)

// FeedKey is the object key of a channel feed: <domain>/<channel>/google.xml.
func FeedKey(saleorAPIURL, channelSlug string) string {
	return telemetry.TenantDomain(saleorAPIURL) + "/" + channelSlug + "/" + feedFileName
}

// Service serves feeds and the feed configuration.
type Service struct {
	configs         ConfigStore
	storages        StorageFactory
	variants        VariantSourceFactory
	clock           clockwork.Clock
	cacheTTL        time.Duration
	presignTTL      time.Duration
	variantsPerPage int
	logger          *zap.Logger
}

// ServiceConfig contains the dependencies of Service
type ServiceConfig struct {
	Configs         ConfigStore
	Storages        StorageFactory
	Variants        VariantSourceFactory
	Clock           clockwork.Clock
	CacheTTL        time.Duration
	PresignTTL      time.Duration
	VariantsPerPage int
	Logger          *zap.Logger
}

// NewService creates a new Service
func NewService(cfg ServiceConfig) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	if cfg.VariantsPerPage <= 0 {
		cfg.VariantsPerPage = 100
	}
	return &Service{
		configs:         cfg.Configs,
		storages:        cfg.Storages,
		variants:        cfg.Variants,
		clock:           cfg.Clock,
		cacheTTL:        cfg.CacheTTL,
		presignTTL:      cfg.PresignTTL,
		variantsPerPage: cfg.VariantsPerPage,
		logger:          cfg.Logger,
	}
}

// FeedResult points at the feed to redirect to.
type FeedResult struct {
	URL         string
	Regenerated bool
	Items       int
}

// GetFeed returns a presigned URL of the channel feed, regenerating the feed
// when the stored one is older than the cache TTL.
func (s *Service) GetFeed(ctx context.Context, authData *apl.AuthData, channelSlug string) (*FeedResult, error) {
	log := logger.WithLogger(logger.WithChannel(ctx, channelSlug), s.logger)

	cfg, err := s.load(ctx, authData)
	if err != nil {
		return nil, err
	}
	urls := cfg.GetUrlsForChannel(channelSlug)
	if urls == nil {
		return nil, shared.NewClientError(CodeMissingChannelURLs, "The channel "+channelSlug+" has no storefront URLs configured", nil)
	}
	s3cfg := cfg.GetS3Config()
	if s3cfg == nil {
		return nil, shared.NewClientError(CodeMissingS3, "S3 bucket is not configured", nil)
	}
	store, err := s.storages(*s3cfg, authData.SaleorAPIURL)
	if err != nil {
		return nil, shared.NewClientError(CodeInvalidS3, "S3 configuration is not usable", err)
	}

	key := FeedKey(authData.SaleorAPIURL, channelSlug)
	modified, found, err := store.LastModified(ctx, key)
	if err != nil {
		return nil, shared.NewServerError(CodeStorageFailed, "Failed to check the cached feed", err)
	}

	result := &FeedResult{}
	if found && s.clock.Since(modified) < s.cacheTTL {
		log.Debug("Serving cached feed", zap.String("key", key), zap.Time("modified", modified))
	} else {
		data, items, err := s.generate(ctx, authData, cfg, channelSlug, urls)
		if err != nil {
			return nil, err
		}
		if err := store.Upload(ctx, key, data, feedContentType); err != nil {
			return nil, shared.NewServerError(CodeStorageFailed, "Failed to upload the feed", err)
		}
		log.Info("Uploaded feed", zap.String("key", key), zap.Int("items", items))
		result.Regenerated = true
		result.Items = items
	}

	url, _, err := store.GenerateDownloadURL(ctx, key, s.presignTTL)
	if err != nil {
		return nil, shared.NewServerError(CodeStorageFailed, "Failed to sign the feed URL", err)
	}
	result.URL = url
	return result, nil
}

func (s *Service) generate(ctx context.Context, authData *apl.AuthData, cfg *domain.AppConfig, channelSlug string, urls *domain.ChannelURLs) ([]byte, int, error) {
	builder, err := domain.NewItemBuilder(cfg.GetTitleTemplate(), urls.ProductStorefrontURL, cfg.GetAttributeMapping())
	if err != nil {
		return nil, 0, shared.NewClientError(CodeValidationError, err.Error(), err)
	}

	source := s.variants(authData)
	var items []domain.Item
	after := ""
	for {
		page, err := source.FetchProductVariants(ctx, channelSlug, after, s.variantsPerPage, cfg.GetImageSize())
		if err != nil {
			return nil, 0, shared.NewServerError(CodeFetchFailed, "Failed to fetch product variants", err)
		}
		for _, v := range page.Variants {
			item, ok, err := builder.Build(v)
			if err != nil {
				return nil, 0, shared.NewClientError(CodeRenderFailed, fmt.Sprintf("Failed to render variant %s", v.ID), err)
			}
			if ok {
				items = append(items, item)
			}
		}
		if !page.HasNextPage || page.EndCursor == "" {
			break
		}
		after = page.EndCursor
	}

	data, err := domain.RenderRSS(domain.FeedInfo{
		Title:       channelSlug,
		Link:        urls.StorefrontURL,
		Description: "Product feed of channel " + channelSlug,
	}, items)
	if err != nil {
		return nil, 0, shared.NewServerError(CodeRenderFailed, "Failed to encode the feed", err)
	}
	return data, len(items), nil
}

func (s *Service) load(ctx context.Context, authData *apl.AuthData) (*domain.AppConfig, error) {
	raw, err := s.configs.Load(ctx, authData)
	if err != nil {
		return nil, shared.NewServerError(CodeConfigLoadFailed, "Failed to load products feed configuration", err)
	}
	if raw == "" {
		return domain.NewAppConfig(), nil
	}
	cfg, err := domain.Parse(raw)
	if err != nil {
		return nil, shared.NewServerError(CodeConfigLoadFailed, err.Error(), err)
	}
	return cfg, nil
}

func (s *Service) save(ctx context.Context, authData *apl.AuthData, cfg *domain.AppConfig) error {
	raw, err := cfg.Serialize()
	if err != nil {
		return shared.NewServerError(CodeConfigSaveFailed, "Failed to serialize products feed configuration", err)
	}
	if err := s.configs.Save(ctx, authData, raw); err != nil {
		return shared.NewServerError(CodeConfigSaveFailed, "Failed to save products feed configuration", err)
	}
	return nil
}
