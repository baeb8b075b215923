package stripe

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	domain "github.com/trieb-work/saleor-apps/internal/domain/stripe"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/logger"
)

// ConfigsView is the dashboard view of an installation's configs.
type ConfigsView struct {
	Configs        []domain.FrontendConfig `json:"configs"`
	ChannelMapping map[string]string       `json:"channelMapping"`
}

// CreateConfigInput holds a new Stripe configuration
type CreateConfigInput struct {
	Name           string `json:"name" binding:"required"`
	RestrictedKey  string `json:"restrictedKey" binding:"required"`
	PublishableKey string `json:"publishableKey" binding:"required"`
}

// WebhookURL is the Stripe webhook target for one configuration.
func (s *Service) WebhookURL(saleorAPIURL, configID string) string {
	q := url.Values{}
	q.Set("saleorApiUrl", saleorAPIURL)
	q.Set("configurationId", configID)
	return strings.TrimSuffix(s.appBaseURL, "/") + "/api/webhooks/stripe?" + q.Encode()
}

// ListConfigs returns the masked configs and channel mapping.
func (s *Service) ListConfigs(ctx context.Context, authData *apl.AuthData) (*ConfigsView, error) {
	root, err := s.loadRoot(ctx, authData)
	if err != nil {
		return nil, err
	}
	return &ConfigsView{
		Configs:        root.FrontendConfigs(),
		ChannelMapping: root.ChannelMapping,
	}, nil
}

// CreateConfig validates the keys, registers a Stripe webhook endpoint and
// stores the config with the endpoint secret.
func (s *Service) CreateConfig(ctx context.Context, authData *apl.AuthData, in CreateConfigInput) (*domain.FrontendConfig, error) {
	cfg, err := domain.NewConfig(in.Name, uuid.NewString(), in.RestrictedKey, in.PublishableKey, "", "")
	if err != nil {
		return nil, shared.NewClientError("VALIDATION_ERROR", err.Error(), err)
	}

	root, err := s.loadRoot(ctx, authData)
	if err != nil {
		return nil, err
	}

	gateway, err := s.gateways(cfg.RestrictedKey, authData.SaleorAPIURL)
	if err != nil {
		return nil, shared.NewServerError("STRIPE_CLIENT_FAILED", "Failed to create Stripe client", err)
	}
	endpoint, err := gateway.CreateWebhookEndpoint(ctx, s.WebhookURL(authData.SaleorAPIURL, cfg.ID), "Saleor Stripe app: "+cfg.Name)
	if err != nil {
		return nil, err
	}
	cfg.WebhookID = endpoint.ID
	cfg.WebhookSecret = endpoint.Secret

	if err := root.AddConfig(*cfg); err != nil {
		return nil, shared.NewClientError("VALIDATION_ERROR", err.Error(), err)
	}
	if err := s.save(ctx, authData, root); err != nil {
		return nil, err
	}

	logger.WithLogger(ctx, s.logger).Info("Created Stripe configuration",
		zap.String("config_id", cfg.ID),
		zap.String("webhook_id", endpoint.ID),
	)
	fc := cfg.FrontendConfig()
	return &fc, nil
}

// DeleteConfig removes the config, its channel bindings and its Stripe webhook endpoint.
func (s *Service) DeleteConfig(ctx context.Context, authData *apl.AuthData, configID string) error {
	root, err := s.loadRoot(ctx, authData)
	if err != nil {
		return err
	}
	cfg := root.GetConfigByID(configID)
	if cfg == nil {
		return shared.NewClientError("NOT_FOUND", "Configuration not found", nil)
	}

	if cfg.WebhookID != "" {
		gateway, err := s.gateways(cfg.RestrictedKey, authData.SaleorAPIURL)
		if err != nil {
			return shared.NewServerError("STRIPE_CLIENT_FAILED", "Failed to create Stripe client", err)
		}
		if err := gateway.DeleteWebhookEndpoint(ctx, cfg.WebhookID); err != nil {
			// The endpoint may already be gone on Stripe's side.
			if !shared.IsClientError(err) {
				return err
			}
			logger.WithLogger(ctx, s.logger).Warn("Stripe webhook endpoint could not be removed",
				zap.String("webhook_id", cfg.WebhookID),
				zap.Error(err),
			)
		}
	}

	root.RemoveConfig(configID)
	return s.save(ctx, authData, root)
}

// BindChannel maps a channel to a config. An empty configID removes the binding.
func (s *Service) BindChannel(ctx context.Context, authData *apl.AuthData, channelID, configID string) error {
	if channelID == "" {
		return shared.NewClientError("VALIDATION_ERROR", "Channel id cannot be empty", nil)
	}
	root, err := s.loadRoot(ctx, authData)
	if err != nil {
		return err
	}
	if err := root.BindChannel(channelID, configID); err != nil {
		return shared.NewClientError("NOT_FOUND", "Configuration not found", err)
	}
	return s.save(ctx, authData, root)
}

func (s *Service) save(ctx context.Context, authData *apl.AuthData, root *domain.RootConfig) error {
	raw, err := root.Serialize()
	if err != nil {
		return shared.NewServerError("CONFIG_SAVE_FAILED", "Failed to serialize Stripe configuration", err)
	}
	if err := s.configs.Save(ctx, authData, raw); err != nil {
		return shared.NewServerError("CONFIG_SAVE_FAILED", "Failed to save Stripe configuration", err)
	}
	return nil
}
