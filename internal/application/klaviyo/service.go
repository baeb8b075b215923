// Package klaviyo forwards Saleor events to Klaviyo as metrics.
package klaviyo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	domain "github.com/trieb-work/saleor-apps/internal/domain/klaviyo"
	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	klaviyoapi "github.com/trieb-work/saleor-apps/internal/infrastructure/klaviyo"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/logger"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry"
)

// ConfigKey is the metadata key of the serialized Config
const ConfigKey = "klaviyo-config"

// Error codes
const (
	CodeUnsupportedEvent = "UNSUPPORTED_EVENT"
	CodeEventDisabled    = "EVENT_DISABLED"
	CodeMissingToken     = "MISSING_PUBLIC_TOKEN"
	CodeMissingEmail     = "MISSING_EMAIL"
	CodeInvalidPayload   = "INVALID_PAYLOAD"
	CodeConfigLoadFailed = "CONFIG_LOAD_FAILED"
	CodeConfigSaveFailed = "CONFIG_SAVE_FAILED"
)

// EventSender delivers one event to Klaviyo.
type EventSender interface {
	Send(ctx context.Context, event klaviyoapi.Event) error
}

// SenderFactory creates a sender for a public token on behalf of a tenant.
type SenderFactory func(publicToken, saleorAPIURL string) (EventSender, error)

// ConfigStore loads and saves the serialized config of one installation.
type ConfigStore interface {
	Load(ctx context.Context, authData *apl.AuthData) (string, error)
	Save(ctx context.Context, authData *apl.AuthData, raw string) error
}

// NewSenderFactory returns a factory over the HTTP client.
func NewSenderFactory(recorder *telemetry.APICallRecorder) SenderFactory {
	return func(publicToken, saleorAPIURL string) (EventSender, error) {
		return klaviyoapi.NewClient(klaviyoapi.Config{
			PublicToken: publicToken,
			Tenant:      saleorAPIURL,
			Recorder:    recorder,
		})
	}
}

// Service tracks Saleor events in Klaviyo.
type Service struct {
	configs ConfigStore
	senders SenderFactory
	clock   clockwork.Clock
	logger  *zap.Logger
}

// ServiceConfig contains the dependencies of Service
type ServiceConfig struct {
	Configs ConfigStore
	Senders SenderFactory
	Clock   clockwork.Clock
	Logger  *zap.Logger
}

// NewService creates a new Service
func NewService(cfg ServiceConfig) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		configs: cfg.Configs,
		senders: cfg.Senders,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}
}

type eventPayload struct {
	Order       *saleor.Order `json:"order"`
	User        *saleor.User  `json:"user"`
	Fulfillment *struct {
		ID string `json:"id"`
	} `json:"fulfillment"`
}

// subject returns the id of the object the event is about.
func (p eventPayload) subject() string {
	switch {
	case p.Fulfillment != nil:
		return p.Fulfillment.ID
	case p.Order != nil:
		return p.Order.ID
	case p.User != nil:
		return p.User.ID
	}
	return ""
}

func (p eventPayload) email() string {
	if p.Order != nil {
		if email := p.Order.RecipientEmail(); email != "" {
			return email
		}
	}
	if p.User != nil {
		return p.User.Email
	}
	return ""
}

// TrackEvent sends the Klaviyo metric configured for event.
func (s *Service) TrackEvent(ctx context.Context, authData *apl.AuthData, event string, payload json.RawMessage) error {
	if !domain.IsTrackedEvent(event) {
		return shared.NewNoOpError(CodeUnsupportedEvent, "Event "+event+" is not tracked")
	}

	cfg, err := s.load(ctx, authData)
	if err != nil {
		return err
	}
	if cfg.PublicToken == "" {
		return shared.NewNoOpError(CodeMissingToken, "Klaviyo public token is not configured")
	}
	if !cfg.IsEnabled(event) {
		return shared.NewNoOpError(CodeEventDisabled, "Event "+event+" is disabled")
	}

	var parsed eventPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return shared.NewClientError(CodeInvalidPayload, "Event payload is not valid JSON", err)
	}
	email := parsed.email()
	if email == "" {
		return shared.NewNoOpError(CodeMissingEmail, "Email recipient has not been specified in the event payload.")
	}
	var properties map[string]any
	if err := json.Unmarshal(payload, &properties); err != nil {
		return shared.NewClientError(CodeInvalidPayload, "Event payload is not a JSON object", err)
	}

	metric := cfg.MetricName(event)
	out := klaviyoapi.Event{
		Metric:     metric,
		Email:      email,
		UniqueID:   uniqueID(authData.SaleorAPIURL, event, parsed.subject()),
		Time:       s.eventTime(parsed),
		Properties: properties,
	}
	if parsed.Order != nil {
		out.Value = parsed.Order.Total.Gross.Amount.InexactFloat64()
	}

	sender, err := s.senders(cfg.PublicToken, authData.SaleorAPIURL)
	if err != nil {
		return shared.NewClientError(CodeMissingToken, "Klaviyo public token is not usable", err)
	}
	if err := sender.Send(ctx, out); err != nil {
		return err
	}

	logger.WithLogger(ctx, s.logger).Info("Sent event to Klaviyo",
		zap.String("event", event),
		zap.String("metric", metric),
	)
	return nil
}

// uniqueID is stable per tenant, event and subject so Klaviyo drops redeliveries.
func uniqueID(saleorAPIURL, event, subject string) string {
	if subject == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(saleorAPIURL+"#"+event+"#"+subject)).String()
}

func (s *Service) eventTime(p eventPayload) time.Time {
	if p.Order != nil && !p.Order.Created.IsZero() && p.Fulfillment == nil {
		return p.Order.Created
	}
	return s.clock.Now()
}

func (s *Service) load(ctx context.Context, authData *apl.AuthData) (*domain.Config, error) {
	raw, err := s.configs.Load(ctx, authData)
	if err != nil {
		return nil, shared.NewServerError(CodeConfigLoadFailed, "Failed to load Klaviyo configuration", err)
	}
	cfg, err := domain.ParseConfig(raw)
	if err != nil {
		return nil, shared.NewServerError(CodeConfigLoadFailed, "Stored Klaviyo configuration is invalid", err)
	}
	return cfg, nil
}

// GetConfig returns the configuration with defaults applied.
func (s *Service) GetConfig(ctx context.Context, authData *apl.AuthData) (*domain.Config, error) {
	return s.load(ctx, authData)
}

// SetConfig validates and stores the configuration.
func (s *Service) SetConfig(ctx context.Context, authData *apl.AuthData, cfg domain.Config) (*domain.Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, shared.NewClientError("VALIDATION_ERROR", err.Error(), err)
	}
	raw, err := cfg.Serialize()
	if err != nil {
		return nil, shared.NewServerError(CodeConfigSaveFailed, "Failed to serialize Klaviyo configuration", err)
	}
	if err := s.configs.Save(ctx, authData, raw); err != nil {
		return nil, shared.NewServerError(CodeConfigSaveFailed, "Failed to save Klaviyo configuration", err)
	}
	// Reparse so missing events get their defaults.
	return domain.ParseConfig(raw)
}
