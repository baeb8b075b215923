package smtp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	domain "github.com/trieb-work/saleor-apps/internal/domain/smtp"
	smtpapi "github.com/trieb-work/saleor-apps/internal/infrastructure/smtp"
)

func validationError(err error) error {
	if errors.Is(err, domain.ErrConfigurationNotFound) {
		return shared.NewClientError(CodeNotFound, "Configuration not found", err)
	}
	return shared.NewClientError(CodeValidationError, err.Error(), err)
}

// ListConfigurations returns every configuration with masked passwords.
func (s *Service) ListConfigurations(ctx context.Context, authData *apl.AuthData) ([]domain.Configuration, error) {
	root, err := s.load(ctx, authData)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Configuration, 0, len(root.Configurations))
	for _, c := range root.Configurations {
		out = append(out, c.Masked())
	}
	return out, nil
}

// GetConfiguration returns one configuration with a masked password.
func (s *Service) GetConfiguration(ctx context.Context, authData *apl.AuthData, id string) (*domain.Configuration, error) {
	root, err := s.load(ctx, authData)
	if err != nil {
		return nil, err
	}
	c := root.Get(id)
	if c == nil {
		return nil, validationError(domain.ErrConfigurationNotFound)
	}
	masked := c.Masked()
	return &masked, nil
}

// CreateConfiguration stores a new configuration with the default templates
// for every event it does not define.
func (s *Service) CreateConfiguration(ctx context.Context, authData *apl.AuthData, c domain.Configuration) (*domain.Configuration, error) {
	defaults, err := s.defaults()
	if err != nil {
		return nil, shared.NewServerError(CodeConfigLoadFailed, "Default templates are invalid", err)
	}
	root, err := s.load(ctx, authData)
	if err != nil {
		return nil, err
	}
	created, err := root.Add(c, defaults)
	if err != nil {
		return nil, validationError(err)
	}
	if err := s.save(ctx, authData, root); err != nil {
		return nil, err
	}
	masked := created.Masked()
	return &masked, nil
}

// UpdateConfiguration replaces the settings of a configuration, keeping its templates.
func (s *Service) UpdateConfiguration(ctx context.Context, authData *apl.AuthData, c domain.Configuration) error {
	root, err := s.load(ctx, authData)
	if err != nil {
		return err
	}
	if err := root.Update(c); err != nil {
		return validationError(err)
	}
	return s.save(ctx, authData, root)
}

// DeleteConfiguration removes a configuration.
func (s *Service) DeleteConfiguration(ctx context.Context, authData *apl.AuthData, id string) error {
	root, err := s.load(ctx, authData)
	if err != nil {
		return err
	}
	if err := root.Remove(id); err != nil {
		return validationError(err)
	}
	return s.save(ctx, authData, root)
}

// UpdateEventConfig replaces the template of one event after checking that it compiles.
func (s *Service) UpdateEventConfig(ctx context.Context, authData *apl.AuthData, id, event string, ec domain.EventConfig) error {
	if _, err := s.compiler.Compile(ec.Subject, ec.Template, map[string]any{}); err != nil {
		return shared.NewClientError(CodeTemplateFailed, "Template does not compile", err)
	}
	root, err := s.load(ctx, authData)
	if err != nil {
		return err
	}
	if err := root.UpdateEvent(id, event, ec); err != nil {
		return validationError(err)
	}
	return s.save(ctx, authData, root)
}

// PreviewInput is a template rendered against a sample payload.
type PreviewInput struct {
	Subject  string          `json:"subject"`
	Template string          `json:"template"`
	Payload  json.RawMessage `json:"payload"`
}

// Preview compiles a template without sending it.
func (s *Service) Preview(_ context.Context, in PreviewInput) (*smtpapi.Compiled, error) {
	payload := map[string]any{}
	if len(in.Payload) > 0 {
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			return nil, shared.NewClientError(CodeInvalidPayload, "Preview payload is not a JSON object", err)
		}
	}
	compiled, err := s.compiler.Compile(in.Subject, in.Template, payload)
	if err != nil {
		return nil, shared.NewClientError(CodeTemplateFailed, err.Error(), err)
	}
	return compiled, nil
}
