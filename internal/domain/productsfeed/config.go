// Package productsfeed holds the products feed app configuration.
package productsfeed

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Defaults of a new configuration
const (
	DefaultImageSize     = 1024
	DefaultTitleTemplate = "{{variant.product.name}} - {{variant.name}}"
	MinImageSize         = 256
)

// Messages of the configuration errors, shown to dashboard users as is.
var (
	ErrLoad                 = errors.New("Can't load the configuration")
	ErrInvalidS3            = errors.New("Invalid S3 config provided")
	ErrInvalidChannels      = errors.New("Invalid channels config provided")
	ErrInvalidTitleTemplate = errors.New("Invalid title template provided")
	ErrInvalidImageSize     = errors.New("Invalid image size config provided")
)

// S3Config is the bucket the feeds are uploaded to.
type S3Config struct {
	BucketName      string `json:"bucketName" validate:"required"`
	SecretAccessKey string `json:"secretAccessKey" validate:"required"`
	AccessKeyID     string `json:"accessKeyId" validate:"required"`
	Region          string `json:"region" validate:"required"`
}

// AttributeMapping lists, per feed field, the attribute ids whose values fill it.
type AttributeMapping struct {
	BrandAttributeIDs         []string `json:"brandAttributeIds"`
	ColorAttributeIDs         []string `json:"colorAttributeIds"`
	SizeAttributeIDs          []string `json:"sizeAttributeIds"`
	MaterialAttributeIDs      []string `json:"materialAttributeIds"`
	PatternAttributeIDs       []string `json:"patternAttributeIds"`
	GTINAttributeIDs          []string `json:"gtinAttributeIds"`
	ShippingLabelAttributeIDs []string `json:"shippingLabelAttributeIds"`
}

// attributeMappingKeys are the JSON keys of AttributeMapping. A present key must hold a list.
var attributeMappingKeys = []string{
	"brandAttributeIds", "colorAttributeIds", "sizeAttributeIds", "materialAttributeIds",
	"patternAttributeIds", "gtinAttributeIds", "shippingLabelAttributeIds",
}

func (m AttributeMapping) normalized() AttributeMapping {
	for _, ids := range []*[]string{
		&m.BrandAttributeIDs, &m.ColorAttributeIDs, &m.SizeAttributeIDs, &m.MaterialAttributeIDs,
		&m.PatternAttributeIDs, &m.GTINAttributeIDs, &m.ShippingLabelAttributeIDs,
	} {
		if *ids == nil {
			*ids = []string{}
		}
	}
	return m
}

// ChannelURLs are the storefront URL templates of a channel.
type ChannelURLs struct {
	StorefrontURL        string `json:"storefrontUrl" validate:"required,url"`
	ProductStorefrontURL string `json:"productStorefrontUrl" validate:"required,url"`
}

// ChannelConfig is the per-channel part of the configuration.
type ChannelConfig struct {
	StorefrontURLs ChannelURLs `json:"storefrontUrls"`
}

type rootData struct {
	S3               *S3Config                `json:"s3"`
	TitleTemplate    string                   `json:"titleTemplate"`
	ImageSize        int                      `json:"imageSize"`
	AttributeMapping AttributeMapping         `json:"attributeMapping"`
	ChannelConfig    map[string]ChannelConfig `json:"channelConfig"`
}

// AppConfig is the configuration of one installation.
type AppConfig struct {
	root rootData
}

// NewAppConfig returns a configuration holding the defaults.
func NewAppConfig() *AppConfig {
	return &AppConfig{root: rootData{
		TitleTemplate:    DefaultTitleTemplate,
		ImageSize:        DefaultImageSize,
		AttributeMapping: AttributeMapping{}.normalized(),
		ChannelConfig:    map[string]ChannelConfig{},
	}}
}

// storedData mirrors rootData with the optional fields left raw.
type storedData struct {
	S3               json.RawMessage `json:"s3"`
	TitleTemplate    json.RawMessage `json:"titleTemplate"`
	ImageSize        json.RawMessage `json:"imageSize"`
	AttributeMapping json.RawMessage `json:"attributeMapping"`
	ChannelConfig    json.RawMessage `json:"channelConfig"`
}

// Parse decodes a stored configuration. The s3 and channelConfig keys are
// required, s3 may be null. Any schema violation yields ErrLoad.
func Parse(raw string) (*AppConfig, error) {
	var stored storedData
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, ErrLoad
	}
	c := NewAppConfig()

	switch {
	case len(stored.S3) == 0:
		return nil, ErrLoad
	case !isNull(stored.S3):
		var s3 S3Config
		if err := json.Unmarshal(stored.S3, &s3); err != nil || validate.Struct(s3) != nil {
			return nil, ErrLoad
		}
		c.root.S3 = &s3
	}

	if len(stored.TitleTemplate) > 0 {
		if err := json.Unmarshal(stored.TitleTemplate, &c.root.TitleTemplate); err != nil || isNull(stored.TitleTemplate) {
			return nil, ErrLoad
		}
	}

	if len(stored.ImageSize) > 0 && !isNull(stored.ImageSize) {
		size, err := coerceInt(stored.ImageSize)
		if err != nil || size < MinImageSize {
			return nil, ErrLoad
		}
		c.root.ImageSize = size
	}

	if len(stored.AttributeMapping) > 0 && !isNull(stored.AttributeMapping) {
		var lists map[string]json.RawMessage
		if err := json.Unmarshal(stored.AttributeMapping, &lists); err != nil {
			return nil, ErrLoad
		}
		for _, key := range attributeMappingKeys {
			if raw, ok := lists[key]; ok && isNull(raw) {
				return nil, ErrLoad
			}
		}
		var mapping AttributeMapping
		if err := json.Unmarshal(stored.AttributeMapping, &mapping); err != nil {
			return nil, ErrLoad
		}
		c.root.AttributeMapping = mapping.normalized()
	}

	if len(stored.ChannelConfig) == 0 || isNull(stored.ChannelConfig) {
		return nil, ErrLoad
	}
	if err := json.Unmarshal(stored.ChannelConfig, &c.root.ChannelConfig); err != nil {
		return nil, ErrLoad
	}
	if c.root.ChannelConfig == nil {
		c.root.ChannelConfig = map[string]ChannelConfig{}
	}
	for _, cc := range c.root.ChannelConfig {
		if validate.Struct(cc.StorefrontURLs) != nil {
			return nil, ErrLoad
		}
	}
	return c, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// coerceInt accepts a JSON number or a numeric string.
func coerceInt(raw json.RawMessage) (int, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		n = json.Number(strings.TrimSpace(s))
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	i := int(f)
	if float64(i) != f {
		return 0, strconv.ErrSyntax
	}
	return i, nil
}

// Serialize encodes the configuration.
func (c *AppConfig) Serialize() (string, error) {
	raw, err := json.Marshal(c.root)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// SetS3 replaces the bucket settings.
func (c *AppConfig) SetS3(s3 S3Config) error {
	if err := validate.Struct(s3); err != nil {
		return ErrInvalidS3
	}
	c.root.S3 = &s3
	return nil
}

// GetS3Config returns nil when no bucket is configured.
func (c *AppConfig) GetS3Config() *S3Config {
	if c.root.S3 == nil {
		return nil
	}
	s3 := *c.root.S3
	return &s3
}

// SetAttributeMapping replaces the attribute mapping. Ids are stored as given.
func (c *AppConfig) SetAttributeMapping(m AttributeMapping) {
	c.root.AttributeMapping = m.normalized()
}

// GetAttributeMapping returns the mapping with empty lists for unset fields.
func (c *AppConfig) GetAttributeMapping() AttributeMapping {
	return c.root.AttributeMapping
}

// SetChannelUrls stores the storefront URLs of a channel.
func (c *AppConfig) SetChannelUrls(channelSlug string, urls ChannelURLs) error {
	if channelSlug == "" || validate.Struct(urls) != nil {
		return ErrInvalidChannels
	}
	c.root.ChannelConfig[channelSlug] = ChannelConfig{StorefrontURLs: urls}
	return nil
}

// GetUrlsForChannel returns nil for a channel without URLs.
func (c *AppConfig) GetUrlsForChannel(channelSlug string) *ChannelURLs {
	cc, ok := c.root.ChannelConfig[channelSlug]
	if !ok {
		return nil
	}
	return &cc.StorefrontURLs
}

// ChannelSlugs returns the slugs of the configured channels.
func (c *AppConfig) ChannelSlugs() []string {
	out := make([]string, 0, len(c.root.ChannelConfig))
	for slug := range c.root.ChannelConfig {
		out = append(out, slug)
	}
	return out
}

// SetTitleTemplate replaces the item title template. It must be a parsable
// handlebars template.
func (c *AppConfig) SetTitleTemplate(tpl string) error {
	if strings.TrimSpace(tpl) == "" {
		return ErrInvalidTitleTemplate
	}
	if _, err := raymond.Parse(tpl); err != nil {
		return ErrInvalidTitleTemplate
	}
	c.root.TitleTemplate = tpl
	return nil
}

// GetTitleTemplate returns the item title template.
func (c *AppConfig) GetTitleTemplate() string {
	return c.root.TitleTemplate
}

// SetImageSize sets the thumbnail size requested from Saleor.
func (c *AppConfig) SetImageSize(size int) error {
	if size < MinImageSize {
		return ErrInvalidImageSize
	}
	c.root.ImageSize = size
	return nil
}

// GetImageSize returns the thumbnail size.
func (c *AppConfig) GetImageSize() int {
	return c.root.ImageSize
}
