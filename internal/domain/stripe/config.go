// Package stripe holds the Stripe app configuration model.
package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Environment of a key pair
type Environment string

const (
	EnvironmentTest Environment = "TEST"
	EnvironmentLive Environment = "LIVE"
)

// ErrValidation wraps every Config validation failure
var ErrValidation = errors.New("stripe config validation error")

// ValidationError carries the user facing message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Config is one Stripe account configuration.
type Config struct {
	Name           string `json:"name"`
	ID             string `json:"id"`
	RestrictedKey  string `json:"restrictedKey"`
	PublishableKey string `json:"publishableKey"`
	WebhookSecret  string `json:"webhookSecret"`
	WebhookID      string `json:"webhookId"`
}

// NewConfig validates the fields and returns the config.
func NewConfig(name, id, restrictedKey, publishableKey, webhookSecret, webhookID string) (*Config, error) {
	c := &Config{
		Name:           name,
		ID:             id,
		RestrictedKey:  restrictedKey,
		PublishableKey: publishableKey,
		WebhookSecret:  webhookSecret,
		WebhookID:      webhookID,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks names and that both keys belong to the same environment.
func (c *Config) Validate() error {
	if c.Name == "" {
		return &ValidationError{Message: "Config name cannot be empty"}
	}
	if c.ID == "" {
		return &ValidationError{Message: "Config id cannot be empty"}
	}

	bothTest := strings.HasPrefix(c.RestrictedKey, "rk_test") && strings.HasPrefix(c.PublishableKey, "pk_test")
	bothLive := strings.HasPrefix(c.RestrictedKey, "rk_live") && strings.HasPrefix(c.PublishableKey, "pk_live")
	if !bothTest && !bothLive {
		return &ValidationError{Message: "Publishable key and restricted key must be of the same environment - TEST or LIVE"}
	}
	return nil
}

// Environment is derived from the publishable key.
func (c *Config) Environment() Environment {
	if strings.HasPrefix(c.PublishableKey, "pk_test") {
		return EnvironmentTest
	}
	return EnvironmentLive
}

// FrontendConfig is what the dashboard may see.
type FrontendConfig struct {
	Name           string      `json:"name"`
	ID             string      `json:"id"`
	RestrictedKey  string      `json:"restrictedKey"`
	PublishableKey string      `json:"publishableKey"`
	Environment    Environment `json:"environment"`
}

// FrontendConfig masks the restricted key.
func (c *Config) FrontendConfig() FrontendConfig {
	return FrontendConfig{
		Name:           c.Name,
		ID:             c.ID,
		RestrictedKey:  MaskKey(c.RestrictedKey),
		PublishableKey: c.PublishableKey,
		Environment:    c.Environment(),
	}
}

// MaskKey keeps the last four characters.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return "..." + key
	}
	return "..." + key[len(key)-4:]
}

// RootConfig holds every config of an installation and the channel bindings.
type RootConfig struct {
	Configs        map[string]Config `json:"configs"`
	ChannelMapping map[string]string `json:"channelMapping"`
}

// NewRootConfig returns an empty root config.
func NewRootConfig() *RootConfig {
	return &RootConfig{
		Configs:        map[string]Config{},
		ChannelMapping: map[string]string{},
	}
}

// ParseRootConfig decodes a stored blob. An empty blob is an empty config.
func ParseRootConfig(raw string) (*RootConfig, error) {
	root := NewRootConfig()
	if strings.TrimSpace(raw) == "" {
		return root, nil
	}
	if err := json.Unmarshal([]byte(raw), root); err != nil {
		return nil, fmt.Errorf("stripe: parse root config: %w", err)
	}
	if root.Configs == nil {
		root.Configs = map[string]Config{}
	}
	if root.ChannelMapping == nil {
		root.ChannelMapping = map[string]string{}
	}
	return root, nil
}

// Serialize encodes the root config.
func (r *RootConfig) Serialize() (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("stripe: serialize root config: %w", err)
	}
	return string(raw), nil
}

// GetConfigForChannel returns nil when the channel is not bound.
func (r *RootConfig) GetConfigForChannel(channelID string) *Config {
	configID, ok := r.ChannelMapping[channelID]
	if !ok {
		return nil
	}
	return r.GetConfigByID(configID)
}

// GetConfigByID returns nil for an unknown id.
func (r *RootConfig) GetConfigByID(id string) *Config {
	c, ok := r.Configs[id]
	if !ok {
		return nil
	}
	return &c
}

// AddConfig validates and stores c.
func (r *RootConfig) AddConfig(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.Configs[c.ID] = c
	return nil
}

// RemoveConfig deletes the config and its channel bindings.
func (r *RootConfig) RemoveConfig(id string) {
	delete(r.Configs, id)
	for channelID, configID := range r.ChannelMapping {
		if configID == id {
			delete(r.ChannelMapping, channelID)
		}
	}
}

// BindChannel maps channelID to configID. An empty configID unbinds it.
func (r *RootConfig) BindChannel(channelID, configID string) error {
	if configID == "" {
		delete(r.ChannelMapping, channelID)
		return nil
	}
	if _, ok := r.Configs[configID]; !ok {
		return fmt.Errorf("stripe: config %q does not exist", configID)
	}
	r.ChannelMapping[channelID] = configID
	return nil
}

// FrontendConfigs lists masked configs.
func (r *RootConfig) FrontendConfigs() []FrontendConfig {
	out := make([]FrontendConfig, 0, len(r.Configs))
	for _, c := range r.Configs {
		out = append(out, c.FrontendConfig())
	}
	return out
}
