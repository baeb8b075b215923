// Package klaviyo holds the Klaviyo app configuration.
package klaviyo

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultMetricNames are the Klaviyo metric names of the tracked events.
var DefaultMetricNames = map[string]string{
	saleor.EventOrderCreated:       "Order Created",
	saleor.EventOrderFullyPaid:     "Order Fully Paid",
	saleor.EventCustomerCreated:    "Customer Created",
	saleor.EventFulfillmentCreated: "Fulfillment Created",
}

// IsTrackedEvent reports whether the app sends event to Klaviyo.
func IsTrackedEvent(event string) bool {
	_, ok := DefaultMetricNames[event]
	return ok
}

// EventSettings configures one tracked event.
type EventSettings struct {
	Enabled         bool   `json:"enabled"`
	CustomEventName string `json:"customEventName" validate:"max=128"`
}

// Config is the Klaviyo configuration of one installation.
type Config struct {
	PublicToken string                   `json:"publicToken" validate:"omitempty,alphanum,min=6,max=8"`
	Events      map[string]EventSettings `json:"events" validate:"dive"`
}

// DefaultConfig has every event enabled with its default metric name and no token.
func DefaultConfig() *Config {
	cfg := &Config{Events: make(map[string]EventSettings, len(DefaultMetricNames))}
	for event, name := range DefaultMetricNames {
		cfg.Events[event] = EventSettings{Enabled: true, CustomEventName: name}
	}
	return cfg
}

// ParseConfig decodes a stored blob. Events missing from the blob keep their defaults.
func ParseConfig(raw string) (*Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(raw) == "" {
		return cfg, nil
	}
	var stored Config
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("klaviyo: parse config: %w", err)
	}
	cfg.PublicToken = stored.PublicToken
	for event, settings := range stored.Events {
		if IsTrackedEvent(event) {
			cfg.Events[event] = settings
		}
	}
	return cfg, nil
}

// Serialize encodes the config.
func (c *Config) Serialize() (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("klaviyo: serialize config: %w", err)
	}
	return string(raw), nil
}

// Validate checks the token format and the event keys.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("klaviyo: invalid config: %w", err)
	}
	for event := range c.Events {
		if !IsTrackedEvent(event) {
			return fmt.Errorf("klaviyo: unsupported event %q", event)
		}
	}
	return nil
}

// MetricName returns the configured metric name of event, falling back to the default.
func (c *Config) MetricName(event string) string {
	if s, ok := c.Events[event]; ok && strings.TrimSpace(s.CustomEventName) != "" {
		return s.CustomEventName
	}
	return DefaultMetricNames[event]
}

// IsEnabled reports whether event should be sent.
func (c *Config) IsEnabled(event string) bool {
	s, ok := c.Events[event]
	return ok && s.Enabled
}
