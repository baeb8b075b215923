// Package avatax holds the AvaTax app configuration model.
package avatax

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrConnectionNotFound is returned for unknown connection ids
var ErrConnectionNotFound = errors.New("avatax: connection not found")

// Credentials authenticate against the AvaTax REST API.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Address is the ship-from address of the company.
type Address struct {
	Country string `json:"country" validate:"required"`
	Zip     string `json:"zip" validate:"required"`
	State   string `json:"state"`
	City    string `json:"city"`
	Street  string `json:"street"`
}

// Connection is one AvaTax account configuration.
type Connection struct {
	ID                         string      `json:"id"`
	Name                       string      `json:"name" validate:"required"`
	Credentials                Credentials `json:"credentials"`
	IsSandbox                  bool        `json:"isSandbox"`
	CompanyCode                string      `json:"companyCode"`
	IsAutocommit               bool        `json:"isAutocommit"`
	IsDocumentRecordingEnabled bool        `json:"isDocumentRecordingEnabled"`
	ShippingTaxCode            string      `json:"shippingTaxCode"`
	Address                    Address     `json:"address"`
}

// DefaultCompanyCode is used when a connection has no company code
const DefaultCompanyCode = "DEFAULT"

// Validate checks the required fields.
func (c *Connection) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("avatax: invalid connection: %w", err)
	}
	return nil
}

// Company returns the company code or DEFAULT.
func (c *Connection) Company() string {
	if c.CompanyCode == "" {
		return DefaultCompanyCode
	}
	return c.CompanyCode
}

// Masked hides the password.
func (c Connection) Masked() Connection {
	c.Credentials.Password = maskSecret(c.Credentials.Password)
	return c
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

// RootConfig holds the connections of an installation and the channel bindings.
type RootConfig struct {
	Connections    map[string]Connection `json:"connections"`
	ChannelMapping map[string]string     `json:"channelMapping"`
}

// NewRootConfig returns an empty config.
func NewRootConfig() *RootConfig {
	return &RootConfig{
		Connections:    map[string]Connection{},
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
		return nil, fmt.Errorf("avatax: parse root config: %w", err)
	}
	if root.Connections == nil {
		root.Connections = map[string]Connection{}
	}
	if root.ChannelMapping == nil {
		root.ChannelMapping = map[string]string{}
	}
	return root, nil
}

// Serialize encodes the config.
func (r *RootConfig) Serialize() (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("avatax: serialize root config: %w", err)
	}
	return string(raw), nil
}

// AddConnection validates c, assigns an id and stores it.
func (r *RootConfig) AddConnection(c Connection) (Connection, error) {
	c.ID = uuid.NewString()
	if err := c.Validate(); err != nil {
		return Connection{}, err
	}
	r.Connections[c.ID] = c
	return c, nil
}

// UpdateConnection replaces an existing connection. A masked or empty
// password keeps the stored one.
func (r *RootConfig) UpdateConnection(c Connection) error {
	existing, ok := r.Connections[c.ID]
	if !ok {
		return ErrConnectionNotFound
	}
	if c.Credentials.Password == "" || c.Credentials.Password == maskSecret(existing.Credentials.Password) {
		c.Credentials.Password = existing.Credentials.Password
	}
	if err := c.Validate(); err != nil {
		return err
	}
	r.Connections[c.ID] = c
	return nil
}

// RemoveConnection deletes the connection and its channel bindings.
func (r *RootConfig) RemoveConnection(id string) error {
	if _, ok := r.Connections[id]; !ok {
		return ErrConnectionNotFound
	}
	delete(r.Connections, id)
	for channel, connID := range r.ChannelMapping {
		if connID == id {
			delete(r.ChannelMapping, channel)
		}
	}
	return nil
}

// GetConnection returns nil for an unknown id.
func (r *RootConfig) GetConnection(id string) *Connection {
	c, ok := r.Connections[id]
	if !ok {
		return nil
	}
	return &c
}

// GetConnectionForChannel returns nil when the channel slug is not bound.
func (r *RootConfig) GetConnectionForChannel(channelSlug string) *Connection {
	id, ok := r.ChannelMapping[channelSlug]
	if !ok {
		return nil
	}
	return r.GetConnection(id)
}

// BindChannel maps a channel slug to a connection. An empty id unbinds it.
func (r *RootConfig) BindChannel(channelSlug, connectionID string) error {
	if connectionID == "" {
		delete(r.ChannelMapping, channelSlug)
		return nil
	}
	if _, ok := r.Connections[connectionID]; !ok {
		return ErrConnectionNotFound
	}
	r.ChannelMapping[channelSlug] = connectionID
	return nil
}

// MaskedConnections lists connections with hidden passwords.
func (r *RootConfig) MaskedConnections() []Connection {
	out := make([]Connection, 0, len(r.Connections))
	for _, c := range r.Connections {
		out = append(out, c.Masked())
	}
	return out
}
