package productsfeed

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	domain "github.com/trieb-work/saleor-apps/internal/domain/productsfeed"
	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
	"github.com/trieb-work/saleor-apps/internal/domain/shared"
)

// ConfigView is the configuration as the dashboard sees it.
type ConfigView struct {
	S3               *domain.S3Config              `json:"s3"`
	TitleTemplate    string                        `json:"titleTemplate"`
	ImageSize        int                           `json:"imageSize"`
	AttributeMapping domain.AttributeMapping       `json:"attributeMapping"`
	ChannelConfig    map[string]domain.ChannelURLs `json:"channelConfig"`
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

func view(cfg *domain.AppConfig) *ConfigView {
	v := &ConfigView{
		S3:               cfg.GetS3Config(),
		TitleTemplate:    cfg.GetTitleTemplate(),
		ImageSize:        cfg.GetImageSize(),
		AttributeMapping: cfg.GetAttributeMapping(),
		ChannelConfig:    map[string]domain.ChannelURLs{},
	}
	if v.S3 != nil {
		v.S3.SecretAccessKey = maskSecret(v.S3.SecretAccessKey)
	}
	for _, slug := range cfg.ChannelSlugs() {
		v.ChannelConfig[slug] = *cfg.GetUrlsForChannel(slug)
	}
	return v
}

func validationError(err error) error {
	return shared.NewClientError(CodeValidationError, err.Error(), err)
}

// GetConfig returns the configuration with the S3 secret masked.
func (s *Service) GetConfig(ctx context.Context, authData *apl.AuthData) (*ConfigView, error) {
	cfg, err := s.load(ctx, authData)
	if err != nil {
		return nil, err
	}
	return view(cfg), nil
}

// SetS3 stores the bucket settings after checking the bucket is reachable.
// A masked secret keeps the stored one.
func (s *Service) SetS3(ctx context.Context, authData *apl.AuthData, s3 domain.S3Config) (*ConfigView, error) {
	cfg, err := s.load(ctx, authData)
	if err != nil {
		return nil, err
	}
	if existing := cfg.GetS3Config(); existing != nil && s3.SecretAccessKey == maskSecret(existing.SecretAccessKey) {
		s3.SecretAccessKey = existing.SecretAccessKey
	}
	if err := cfg.SetS3(s3); err != nil {
		return nil, validationError(err)
	}

	store, err := s.storages(s3, authData.SaleorAPIURL)
	if err != nil {
		return nil, shared.NewClientError(CodeInvalidS3, "S3 configuration is not usable", err)
	}
	if err := store.CheckBucket(ctx); err != nil {
		return nil, shared.NewClientError(CodeInvalidS3, "Could not access the S3 bucket "+s3.BucketName, err)
	}

	if err := s.save(ctx, authData, cfg); err != nil {
		return nil, err
	}
	return view(cfg), nil
}

// SetAttributeMapping stores the attribute mapping.
func (s *Service) SetAttributeMapping(ctx context.Context, authData *apl.AuthData, m domain.AttributeMapping) (*ConfigView, error) {
	return s.update(ctx, authData, func(cfg *domain.AppConfig) error {
		cfg.SetAttributeMapping(m)
		return nil
	})
}

// SetChannelUrls stores the storefront URLs of a channel.
func (s *Service) SetChannelUrls(ctx context.Context, authData *apl.AuthData, channelSlug string, urls domain.ChannelURLs) (*ConfigView, error) {
	return s.update(ctx, authData, func(cfg *domain.AppConfig) error {
		return cfg.SetChannelUrls(channelSlug, urls)
	})
}

// SetImageSize stores the thumbnail size.
func (s *Service) SetImageSize(ctx context.Context, authData *apl.AuthData, size int) (*ConfigView, error) {
	return s.update(ctx, authData, func(cfg *domain.AppConfig) error {
		return cfg.SetImageSize(size)
	})
}

// TitlePreview is a title template rendered for the example variant.
type TitlePreview struct {
	Template string `json:"titleTemplate"`
	Preview  string `json:"preview"`
}

// SetTitleTemplate stores the title template and returns its rendering for
// an example variant.
func (s *Service) SetTitleTemplate(ctx context.Context, authData *apl.AuthData, tpl string) (*TitlePreview, error) {
	preview, err := PreviewTitle(tpl)
	if err != nil {
		return nil, err
	}
	if _, err := s.update(ctx, authData, func(cfg *domain.AppConfig) error {
		return cfg.SetTitleTemplate(tpl)
	}); err != nil {
		return nil, err
	}
	return &TitlePreview{Template: tpl, Preview: preview}, nil
}

// PreviewTitle renders tpl for the example variant without storing it.
func PreviewTitle(tpl string) (string, error) {
	builder, err := domain.NewItemBuilder(tpl, "https://example.com", domain.AttributeMapping{})
	if err != nil {
		return "", validationError(domain.ErrInvalidTitleTemplate)
	}
	item, _, err := builder.Build(exampleVariant())
	if err != nil {
		return "", validationError(domain.ErrInvalidTitleTemplate)
	}
	return item.Title, nil
}

func (s *Service) update(ctx context.Context, authData *apl.AuthData, apply func(*domain.AppConfig) error) (*ConfigView, error) {
	cfg, err := s.load(ctx, authData)
	if err != nil {
		return nil, err
	}
	if err := apply(cfg); err != nil {
		return nil, validationError(err)
	}
	if err := s.save(ctx, authData, cfg); err != nil {
		return nil, err
	}
	return view(cfg), nil
}

func exampleVariant() saleor.ProductVariant {
	return saleor.ProductVariant{
		ID:   "UHJvZHVjdFZhcmlhbnQ6MzQ4",
		Name: "XL",
		SKU:  "T-SHIRT-XL",
		Pricing: &saleor.VariantPricing{Price: saleor.TaxedMoney{
			Gross: saleor.Money{Amount: decimal.RequireFromString("25.00"), Currency: "USD"},
		}},
		Product: &saleor.Product{
			ID:   "UHJvZHVjdDoxNTI=",
			Name: "Monospace Tee",
			Slug: "monospace-tee",
			Category: &saleor.Category{
				ID:   "Q2F0ZWdvcnk6Mzk=",
				Name: "T-shirts",
				Slug: "t-shirts",
			},
		},
	}
}
