// Package search holds the Algolia app configuration and index naming.
package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds the Algolia credentials of one installation.
type Config struct {
	AppID           string `json:"appId" validate:"required"`
	SecretKey       string `json:"secretKey" validate:"required"`
	IndexNamePrefix string `json:"indexNamePrefix" validate:"omitempty,excludesall=. "`
}

// ParseConfig decodes a stored blob. An empty blob yields nil.
func ParseConfig(raw string) (*Config, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("search: parse config: %w", err)
	}
	return &cfg, nil
}

// Serialize encodes the config.
func (c *Config) Serialize() (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("search: serialize config: %w", err)
	}
	return string(raw), nil
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("search: invalid config: %w", err)
	}
	return nil
}

// Masked hides all but the last four characters of the secret key.
func (c Config) Masked() Config {
	if n := len(c.SecretKey); n > 4 {
		c.SecretKey = strings.Repeat("*", n-4) + c.SecretKey[n-4:]
	} else {
		c.SecretKey = strings.Repeat("*", n)
	}
	return c
}

// IndexName returns "<prefix>.<channel>.<currency>.products", without the
// prefix segment when prefix is empty.
func IndexName(prefix, channelSlug, currency string) string {
	name := channelSlug + "." + currency + ".products"
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
