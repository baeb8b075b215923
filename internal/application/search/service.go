// Package search keeps Algolia indexes in sync with Saleor products.
package search

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
	domain "github.com/trieb-work/saleor-apps/internal/domain/search"
	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/algolia"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/logger"
	saleorapi "github.com/trieb-work/saleor-apps/internal/infrastructure/saleor"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry"
)

// ConfigKey is the metadata key of the serialized Config
const ConfigKey = "search-config"

// Error codes
const (
	CodeMissingConfiguration = "MISSING_CONFIGURATION"
	CodeUnsupportedEvent     = "UNSUPPORTED_EVENT"
	CodeInvalidPayload       = "INVALID_PAYLOAD"
	CodeChannelsFailed       = "CHANNELS_FETCH_FAILED"
	CodeConfigLoadFailed     = "CONFIG_LOAD_FAILED"
	CodeConfigSaveFailed     = "CONFIG_SAVE_FAILED"
)

// Indexer writes objects to search indexes.
type Indexer interface {
	SaveObjects(ctx context.Context, index string, objects []map[string]any) error
	DeleteObjects(ctx context.Context, index string, ids []string) error
	ListIndices(ctx context.Context) ([]string, error)
}

// IndexerFactory creates an indexer from stored credentials.
type IndexerFactory func(cfg domain.Config, saleorAPIURL string) (Indexer, error)

// ChannelLister lists the channels of a Saleor instance.
type ChannelLister interface {
	FetchChannels(ctx context.Context) ([]saleor.Channel, error)
}

// ChannelListerFactory creates a lister for an installation.
type ChannelListerFactory func(authData *apl.AuthData) ChannelLister

// ConfigStore loads and saves the serialized config of one installation.
type ConfigStore interface {
	Load(ctx context.Context, authData *apl.AuthData) (string, error)
	Save(ctx context.Context, authData *apl.AuthData, raw string) error
}

// NewIndexerFactory returns a factory over the Algolia client.
func NewIndexerFactory(recorder *telemetry.APICallRecorder) IndexerFactory {
	return func(cfg domain.Config, saleorAPIURL string) (Indexer, error) {
		return algolia.NewClient(algolia.Config{
			AppID:    cfg.AppID,
			APIKey:   cfg.SecretKey,
			Tenant:   saleorAPIURL,
			Recorder: recorder,
		})
	}
}

// NewChannelListerFactory returns a factory over the Saleor GraphQL client.
func NewChannelListerFactory(opts ...saleorapi.Option) ChannelListerFactory {
	return func(authData *apl.AuthData) ChannelLister {
		return saleorapi.NewClient(authData.SaleorAPIURL, authData.Token, opts...)
	}
}

// Service handles product webhooks and the Algolia configuration.
type Service struct {
	configs  ConfigStore
	indexers IndexerFactory
	channels ChannelListerFactory
	logger   *zap.Logger
}

// ServiceConfig contains the dependencies of Service
type ServiceConfig struct {
	Configs  ConfigStore
	Indexers IndexerFactory
	Channels ChannelListerFactory
	Logger   *zap.Logger
}

// NewService creates a new Service
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		configs:  cfg.Configs,
		indexers: cfg.Indexers,
		channels: cfg.Channels,
		logger:   cfg.Logger,
	}
}

type webhookPayload struct {
	Product        *saleor.Product        `json:"product"`
	ProductVariant *saleor.ProductVariant `json:"productVariant"`
}

// SyncResult summarizes the writes of one webhook.
type SyncResult struct {
	Saved   int `json:"saved"`
	Deleted int `json:"deleted"`
}

// HandleProductEvent applies a product or variant webhook to every channel index.
// Variants listed in a channel are saved to its index and removed from the others.
func (s *Service) HandleProductEvent(ctx context.Context, authData *apl.AuthData, event string, payload json.RawMessage) (*SyncResult, error) {
	deleted := false
	switch event {
	case saleor.EventProductDeleted, saleor.EventProductVariantDeleted:
		deleted = true
	case saleor.EventProductCreated, saleor.EventProductUpdated,
		saleor.EventProductVariantCreated, saleor.EventProductVariantUpdated,
		saleor.EventProductVariantBackInStock, saleor.EventProductVariantOutOfStock:
	default:
		return nil, shared.NewNoOpError(CodeUnsupportedEvent, "Event "+event+" is not indexed")
	}

	var parsed webhookPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, shared.NewClientError(CodeInvalidPayload, "Event payload is not valid JSON", err)
	}
	variants := payloadVariants(parsed)
	if len(variants) == 0 {
		return nil, shared.NewNoOpError(CodeInvalidPayload, "Event payload has no product variants")
	}

	cfg, err := s.loadConfig(ctx, authData)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, shared.NewNoOpError(CodeMissingConfiguration, "Algolia is not configured")
	}

	channels, err := s.channels(authData).FetchChannels(ctx)
	if err != nil {
		return nil, shared.NewServerError(CodeChannelsFailed, "Failed to fetch channels", err)
	}
	indexer, err := s.indexers(*cfg, authData.SaleorAPIURL)
	if err != nil {
		return nil, shared.NewClientError(CodeMissingConfiguration, "Algolia credentials are not usable", err)
	}

	result := &SyncResult{}
	for _, channel := range channels {
		index := domain.IndexName(cfg.IndexNamePrefix, channel.Slug, channel.CurrencyCode)

		var objects []map[string]any
		var stale []string
		for i := range variants {
			v := &variants[i]
			listing := v.ListingFor(channel.Slug)
			if deleted || listing == nil {
				stale = append(stale, v.ID)
				continue
			}
			objects = append(objects, VariantToObject(v, channel, listing))
		}

		if len(objects) > 0 {
			if err := indexer.SaveObjects(ctx, index, objects); err != nil {
				return nil, err
			}
		}
		if len(stale) > 0 {
			if err := indexer.DeleteObjects(ctx, index, stale); err != nil {
				return nil, err
			}
		}
		result.Saved += len(objects)
		result.Deleted += len(stale)
	}

	logger.WithLogger(ctx, s.logger).Info("Synchronized Algolia indexes",
		zap.String("event", event),
		zap.Int("channels", len(channels)),
		zap.Int("saved", result.Saved),
		zap.Int("deleted", result.Deleted),
	)
	return result, nil
}

// payloadVariants returns the variants of the payload with their product set.
func payloadVariants(p webhookPayload) []saleor.ProductVariant {
	if p.ProductVariant != nil {
		return []saleor.ProductVariant{*p.ProductVariant}
	}
	if p.Product == nil {
		return nil
	}
	product := *p.Product
	product.Variants = nil
	variants := make([]saleor.ProductVariant, 0, len(p.Product.Variants))
	for _, v := range p.Product.Variants {
		if v.Product == nil {
			v.Product = &product
		}
		variants = append(variants, v)
	}
	return variants
}

// VariantToObject builds the Algolia record of a variant in one channel.
func VariantToObject(v *saleor.ProductVariant, channel saleor.Channel, listing *saleor.VariantChannelListing) map[string]any {
	obj := map[string]any{
		"objectID":          v.ID,
		"variantId":         v.ID,
		"variantName":       v.Name,
		"sku":               v.SKU,
		"channel":           channel.Slug,
		"inStock":           v.InStock(),
		"variantAttributes": attributesToMap(v.Attributes),
		"variantMetadata":   algolia.MetadataToAttributes(v.Metadata),
	}
	if listing != nil && listing.Price != nil {
		obj["price"] = listing.Price.Amount.InexactFloat64()
		obj["currency"] = listing.Price.Currency
	}

	p := v.Product
	if p == nil {
		obj["name"] = v.Name
		return obj
	}
	name := p.Name
	if v.Name != "" && v.Name != p.Name {
		name += " - " + v.Name
	}
	obj["name"] = name
	obj["productId"] = p.ID
	obj["productName"] = p.Name
	obj["slug"] = p.Slug
	obj["description"] = p.SEODescription
	obj["attributes"] = attributesToMap(p.Attributes)
	obj["metadata"] = algolia.MetadataToAttributes(p.Metadata)
	if p.Thumbnail != nil {
		obj["thumbnail"] = p.Thumbnail.URL
	}
	if p.ProductType != nil {
		obj["productType"] = p.ProductType.Name
	}
	if p.Rating != nil {
		obj["rating"] = *p.Rating
	}
	if p.Category != nil {
		obj["category"] = p.Category.Name
		obj["categories"] = categoryLevels(p.Category)
	}
	collections := make([]string, 0, len(p.Collections))
	for _, c := range p.Collections {
		collections = append(collections, c.Name)
	}
	obj["collections"] = collections
	return obj
}

func attributesToMap(attrs []saleor.SelectedAttribute) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, a := range attrs {
		values := make([]string, 0, len(a.Values))
		for _, v := range a.Values {
			values = append(values, v.Name)
		}
		switch len(values) {
		case 0:
			continue
		case 1:
			out[a.Attribute.Name] = values[0]
		default:
			out[a.Attribute.Name] = values
		}
	}
	return out
}

// categoryLevels returns the hierarchical facet of a category, root first:
// {lvl0: "Food", lvl1: "Food > Juices"}.
func categoryLevels(c *saleor.Category) map[string]string {
	var path []string
	for cur := c; cur != nil; cur = cur.Parent {
		path = append([]string{cur.Name}, path...)
	}
	out := make(map[string]string, len(path))
	for i := range path {
		out["lvl"+strconv.Itoa(i)] = strings.Join(path[:i+1], " > ")
	}
	return out
}

func (s *Service) loadConfig(ctx context.Context, authData *apl.AuthData) (*domain.Config, error) {
	raw, err := s.configs.Load(ctx, authData)
	if err != nil {
		return nil, shared.NewServerError(CodeConfigLoadFailed, "Failed to load Algolia configuration", err)
	}
	cfg, err := domain.ParseConfig(raw)
	if err != nil {
		return nil, shared.NewServerError(CodeConfigLoadFailed, "Stored Algolia configuration is invalid", err)
	}
	return cfg, nil
}

// GetConfig returns the configuration with a masked secret, or nil.
func (s *Service) GetConfig(ctx context.Context, authData *apl.AuthData) (*domain.Config, error) {
	cfg, err := s.loadConfig(ctx, authData)
	if err != nil || cfg == nil {
		return nil, err
	}
	masked := cfg.Masked()
	return &masked, nil
}

// SetConfig checks the credentials by listing indices, then stores them.
// A masked secret keeps the stored one.
func (s *Service) SetConfig(ctx context.Context, authData *apl.AuthData, cfg domain.Config) error {
	current, err := s.loadConfig(ctx, authData)
	if err != nil {
		return err
	}
	if current != nil && cfg.SecretKey == current.Masked().SecretKey {
		cfg.SecretKey = current.SecretKey
	}
	if err := cfg.Validate(); err != nil {
		return shared.NewClientError("VALIDATION_ERROR", err.Error(), err)
	}

	indexer, err := s.indexers(cfg, authData.SaleorAPIURL)
	if err != nil {
		return shared.NewClientError("VALIDATION_ERROR", "Algolia credentials are not usable", err)
	}
	if _, err := indexer.ListIndices(ctx); err != nil {
		if shared.IsClientError(err) {
			return shared.NewClientError("INVALID_CREDENTIALS", "Algolia rejected the credentials", err)
		}
		return err
	}

	raw, err := cfg.Serialize()
	if err != nil {
		return shared.NewServerError(CodeConfigSaveFailed, "Failed to serialize Algolia configuration", err)
	}
	if err := s.configs.Save(ctx, authData, raw); err != nil {
		return shared.NewServerError(CodeConfigSaveFailed, "Failed to save Algolia configuration", err)
	}
	return nil
}
