// Package smtp holds the SMTP app configurations, channel rules and event templates.
package smtp

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrConfigurationNotFound is returned for unknown configuration ids
var ErrConfigurationNotFound = errors.New("smtp: configuration not found")

// Events are the Saleor events the app can send messages for.
var Events = []string{
	saleor.EventOrderCreated,
	saleor.EventOrderConfirmed,
	saleor.EventOrderFulfilled,
	saleor.EventOrderFullyPaid,
	saleor.EventOrderCancelled,
	saleor.EventOrderRefunded,
	saleor.EventInvoiceSent,
	saleor.EventGiftCardSent,
}

// IsSupportedEvent reports whether event is one of Events.
func IsSupportedEvent(event string) bool {
	return slices.Contains(Events, event)
}

// Encryption of the SMTP connection
type Encryption string

const (
	EncryptionNone Encryption = "NONE"
	// EncryptionSSL is implicit TLS, usually on port 465.
	EncryptionSSL Encryption = "SSL"
	// EncryptionTLS is mandatory STARTTLS, usually on port 587.
	EncryptionTLS Encryption = "TLS"
)

// ChannelMode selects how ChannelRules.Channels is applied.
type ChannelMode string

const (
	ChannelModeRestrict ChannelMode = "restrict"
	ChannelModeExclude  ChannelMode = "exclude"
)

// ChannelRules limit a configuration to some channels. Without Override the
// configuration applies to every channel.
type ChannelRules struct {
	Override bool        `json:"override"`
	Mode     ChannelMode `json:"mode" validate:"omitempty,oneof=restrict exclude"`
	Channels []string    `json:"channels"`
}

// Accepts reports whether the rules allow channelSlug.
func (r ChannelRules) Accepts(channelSlug string) bool {
	if !r.Override {
		return true
	}
	listed := slices.Contains(r.Channels, channelSlug)
	if r.Mode == ChannelModeExclude {
		return !listed
	}
	return listed
}

// Sender is the From address.
type Sender struct {
	Name  string `json:"senderName"`
	Email string `json:"senderEmail" validate:"omitempty,email"`
}

// Server is the SMTP server connection.
type Server struct {
	Host       string     `json:"smtpHost" validate:"required,hostname_rfc1123|ip"`
	Port       int        `json:"smtpPort" validate:"required,min=1,max=65535"`
	User       string     `json:"smtpUser"`
	Password   string     `json:"smtpPassword"`
	Encryption Encryption `json:"encryption" validate:"oneof=NONE SSL TLS"`
}

// EventConfig is the template of one event.
type EventConfig struct {
	Active   bool   `json:"active"`
	Subject  string `json:"subject" validate:"required"`
	Template string `json:"template" validate:"required"`
}

// Configuration is one SMTP setup with its templates.
type Configuration struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name" validate:"required,max=128"`
	Active       bool                   `json:"active"`
	Sender       Sender                 `json:"sender"`
	Server       Server                 `json:"server"`
	ChannelRules ChannelRules           `json:"channels"`
	Events       map[string]EventConfig `json:"events" validate:"dive"`
}

// Validate checks the schema of the configuration.
func (c *Configuration) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("smtp: invalid configuration: %w", err)
	}
	for event := range c.Events {
		if !IsSupportedEvent(event) {
			return fmt.Errorf("smtp: unsupported event %q", event)
		}
	}
	return nil
}

// EventConfig returns the template of event and whether it is active.
func (c *Configuration) EventConfig(event string) (EventConfig, bool) {
	ec, ok := c.Events[event]
	return ec, ok && ec.Active
}

// Masked hides the SMTP password.
func (c Configuration) Masked() Configuration {
	if c.Server.Password != "" {
		c.Server.Password = MaskedPassword
	}
	return c
}

// MaskedPassword replaces stored passwords in views.
const MaskedPassword = "********"

// RootConfig holds all configurations of an installation.
type RootConfig struct {
	Configurations []Configuration `json:"configurations"`
}

// ParseRootConfig decodes a stored blob. An empty blob is an empty config.
func ParseRootConfig(raw string) (*RootConfig, error) {
	root := &RootConfig{Configurations: []Configuration{}}
	if strings.TrimSpace(raw) == "" {
		return root, nil
	}
	if err := json.Unmarshal([]byte(raw), root); err != nil {
		return nil, fmt.Errorf("smtp: parse root config: %w", err)
	}
	return root, nil
}

// Serialize encodes the config.
func (r *RootConfig) Serialize() (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("smtp: serialize root config: %w", err)
	}
	return string(raw), nil
}

// Add assigns an id, fills missing event templates with the defaults and
// stores the configuration.
func (r *RootConfig) Add(c Configuration, defaults map[string]EventConfig) (Configuration, error) {
	c.ID = uuid.NewString()
	if c.Events == nil {
		c.Events = make(map[string]EventConfig, len(defaults))
	}
	for event, ec := range defaults {
		if _, ok := c.Events[event]; !ok {
			c.Events[event] = ec
		}
	}
	if c.Server.Encryption == "" {
		c.Server.Encryption = EncryptionNone
	}
	if err := c.Validate(); err != nil {
		return Configuration{}, err
	}
	r.Configurations = append(r.Configurations, c)
	return c, nil
}

// Get returns nil for an unknown id.
func (r *RootConfig) Get(id string) *Configuration {
	for i := range r.Configurations {
		if r.Configurations[i].ID == id {
			return &r.Configurations[i]
		}
	}
	return nil
}

// Update replaces a configuration, keeping its events. A masked or empty
// password keeps the stored one.
func (r *RootConfig) Update(c Configuration) error {
	existing := r.Get(c.ID)
	if existing == nil {
		return ErrConfigurationNotFound
	}
	if c.Server.Password == "" || c.Server.Password == MaskedPassword {
		c.Server.Password = existing.Server.Password
	}
	c.Events = existing.Events
	if err := c.Validate(); err != nil {
		return err
	}
	*existing = c
	return nil
}

// UpdateEvent replaces the template of one event.
func (r *RootConfig) UpdateEvent(id, event string, ec EventConfig) error {
	existing := r.Get(id)
	if existing == nil {
		return ErrConfigurationNotFound
	}
	if !IsSupportedEvent(event) {
		return fmt.Errorf("smtp: unsupported event %q", event)
	}
	if err := validate.Struct(ec); err != nil {
		return fmt.Errorf("smtp: invalid event configuration: %w", err)
	}
	if existing.Events == nil {
		existing.Events = map[string]EventConfig{}
	}
	existing.Events[event] = ec
	return nil
}

// Remove deletes a configuration.
func (r *RootConfig) Remove(id string) error {
	for i := range r.Configurations {
		if r.Configurations[i].ID == id {
			r.Configurations = slices.Delete(r.Configurations, i, i+1)
			return nil
		}
	}
	return ErrConfigurationNotFound
}

// ForChannel returns the active configurations whose rules accept channelSlug.
func (r *RootConfig) ForChannel(channelSlug string) []Configuration {
	var out []Configuration
	for _, c := range r.Configurations {
		if c.Active && c.ChannelRules.Accepts(channelSlug) {
			out = append(out, c)
		}
	}
	return out
}
