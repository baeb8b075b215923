// Package smtp sends templated emails for Saleor events.
package smtp

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	domain "github.com/trieb-work/saleor-apps/internal/domain/smtp"
	smtpapi "github.com/trieb-work/saleor-apps/internal/infrastructure/smtp"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/logger"
)

// Error codes
const (
	CodeUnsupportedEvent  = "UNSUPPORTED_EVENT"
	CodeNoConfiguration   = "NO_CONFIGURATION"
	CodeMissingRecipient  = "MISSING_RECIPIENT"
	CodeInvalidPayload    = "INVALID_PAYLOAD"
	CodeTemplateFailed    = "TEMPLATE_COMPILATION_FAILED"
	CodeSenderUnavailable = "SENDER_UNAVAILABLE"
	CodeConfigLoadFailed  = "CONFIG_LOAD_FAILED"
	CodeConfigSaveFailed  = "CONFIG_SAVE_FAILED"
	CodeValidationError   = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
)

// SendEventMessagesInput describes one Saleor event to email about.
type SendEventMessagesInput struct {
	ChannelSlug    string
	Event          string
	Payload        json.RawMessage
	RecipientEmail string
}

// Service renders and sends event messages.
type Service struct {
	configs  ConfigStore
	senders  SenderFactory
	compiler TemplateCompiler
	defaults func() (map[string]domain.EventConfig, error)
	logger   *zap.Logger
}

// ServiceConfig contains the dependencies of Service
type ServiceConfig struct {
	Configs  ConfigStore
	Senders  SenderFactory
	Compiler TemplateCompiler
	Logger   *zap.Logger
}

// NewService creates a new Service
func NewService(cfg ServiceConfig) *Service {
	if cfg.Compiler == nil {
		cfg.Compiler = smtpapi.NewCompiler()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		configs:  cfg.Configs,
		senders:  cfg.Senders,
		compiler: cfg.Compiler,
		defaults: domain.DefaultEventConfigs,
		logger:   cfg.Logger,
	}
}

// SendEventMessages sends one message per active configuration that accepts
// the channel and has the event enabled. Failures of single configurations
// do not stop the others; the most severe failure is returned.
func (s *Service) SendEventMessages(ctx context.Context, authData *apl.AuthData, in SendEventMessagesInput) error {
	log := logger.WithLogger(ctx, s.logger)

	if !domain.IsSupportedEvent(in.Event) {
		return shared.NewNoOpError(CodeUnsupportedEvent, "Event "+in.Event+" is not supported")
	}
	if in.RecipientEmail == "" {
		return shared.NewNoOpError(CodeMissingRecipient, "Email recipient has not been specified in the event payload.")
	}

	root, err := s.load(ctx, authData)
	if err != nil {
		return err
	}

	type target struct {
		config domain.Configuration
		event  domain.EventConfig
	}
	var targets []target
	for _, c := range root.ForChannel(in.ChannelSlug) {
		if ec, active := c.EventConfig(in.Event); active {
			targets = append(targets, target{config: c, event: ec})
		}
	}
	if len(targets) == 0 {
		return shared.NewNoOpError(CodeNoConfiguration, "No active configuration for event "+in.Event+" in channel "+in.ChannelSlug)
	}

	var payload map[string]any
	if err := json.Unmarshal(in.Payload, &payload); err != nil {
		return shared.NewClientError(CodeInvalidPayload, "Event payload is not a JSON object", err)
	}

	sender, err := s.senders(authData.SaleorAPIURL)
	if err != nil {
		return shared.NewServerError(CodeSenderUnavailable, "Failed to create SMTP sender", err)
	}

	var errs []error
	for _, t := range targets {
		compiled, err := s.compiler.Compile(t.event.Subject, t.event.Template, payload)
		if err != nil {
			log.Warn("Failed to compile email template",
				zap.String("configuration_id", t.config.ID),
				zap.String("event", in.Event),
				zap.Error(err),
			)
			errs = append(errs, shared.NewClientError(CodeTemplateFailed, "Failed to compile template of configuration "+t.config.Name, err))
			continue
		}

		err = sender.Send(ctx, smtpapi.SendInput{
			Server:    t.config.Server,
			FromName:  t.config.Sender.Name,
			FromEmail: t.config.Sender.Email,
			To:        in.RecipientEmail,
			Subject:   compiled.Subject,
			HTML:      compiled.HTML,
		})
		if err != nil {
			log.Error("Failed to send email",
				zap.String("configuration_id", t.config.ID),
				zap.String("event", in.Event),
				zap.Error(err),
			)
			if _, ok := shared.AsAppError(err); !ok {
				err = shared.NewServerError(smtpapi.CodeDeliveryFailed, "Failed to send email", err)
			}
			errs = append(errs, err)
			continue
		}
		log.Info("Sent email",
			zap.String("configuration_id", t.config.ID),
			zap.String("event", in.Event),
		)
	}
	return shared.MostSevere(errs...)
}

func (s *Service) load(ctx context.Context, authData *apl.AuthData) (*domain.RootConfig, error) {
	raw, err := s.configs.Load(ctx, authData)
	if err != nil {
		return nil, shared.NewServerError(CodeConfigLoadFailed, "Failed to load SMTP configuration", err)
	}
	root, err := domain.ParseRootConfig(raw)
	if err != nil {
		return nil, shared.NewServerError(CodeConfigLoadFailed, "Stored SMTP configuration is invalid", err)
	}
	return root, nil
}

func (s *Service) save(ctx context.Context, authData *apl.AuthData, root *domain.RootConfig) error {
	raw, err := root.Serialize()
	if err != nil {
		return shared.NewServerError(CodeConfigSaveFailed, "Failed to serialize SMTP configuration", err)
	}
	if err := s.configs.Save(ctx, authData, raw); err != nil {
		return shared.NewServerError(CodeConfigSaveFailed, "Failed to save SMTP configuration", err)
	}
	return nil
}
