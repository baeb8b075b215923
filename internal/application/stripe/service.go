package stripe

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	domain "github.com/trieb-work/saleor-apps/internal/domain/stripe"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/logger"
	stripeapi "github.com/trieb-work/saleor-apps/internal/infrastructure/stripe"
)

// Error codes of the Stripe use cases
const (
	CodeMissingConfiguration     = "MISSING_CONFIGURATION"
	CodeInvalidPayload           = "INVALID_PAYLOAD"
	CodeUnsupportedPaymentMethod = "UNSUPPORTED_PAYMENT_METHOD"
	CodeMissingPSPReference      = "MISSING_PSP_REFERENCE"
	CodeInvalidSignature         = "INVALID_SIGNATURE"
)

// Service implements the transaction webhooks and the Stripe webhook.
type Service struct {
	configs        ConfigStore
	gateways       GatewayFactory
	reporters      ReporterFactory
	idempotency    shared.IdempotencyStore
	idempotencyTTL time.Duration
	appBaseURL     string
	logger         *zap.Logger
}

// ServiceConfig contains the dependencies of Service
type ServiceConfig struct {
	Configs        ConfigStore
	Gateways       GatewayFactory
	Reporters      ReporterFactory
	Idempotency    shared.IdempotencyStore
	IdempotencyTTL time.Duration
	AppBaseURL     string // public URL Stripe sends webhooks to
	Logger         *zap.Logger
}

// NewService creates a new Service
func NewService(cfg ServiceConfig) *Service {
	if cfg.IdempotencyTTL == 0 {
		cfg.IdempotencyTTL = shared.DefaultIdempotencyTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		configs:        cfg.Configs,
		gateways:       cfg.Gateways,
		reporters:      cfg.Reporters,
		idempotency:    cfg.Idempotency,
		idempotencyTTL: cfg.IdempotencyTTL,
		appBaseURL:     cfg.AppBaseURL,
		logger:         cfg.Logger,
	}
}

func (s *Service) loadRoot(ctx context.Context, authData *apl.AuthData) (*domain.RootConfig, error) {
	raw, err := s.configs.Load(ctx, authData)
	if err != nil {
		return nil, shared.NewServerError("CONFIG_LOAD_FAILED", "Failed to load Stripe configuration", err)
	}
	root, err := domain.ParseRootConfig(raw)
	if err != nil {
		return nil, shared.NewServerError("CONFIG_LOAD_FAILED", "Stored Stripe configuration is invalid", err)
	}
	return root, nil
}

func (s *Service) gatewayForChannel(ctx context.Context, authData *apl.AuthData, channelID string) (PaymentGateway, error) {
	root, err := s.loadRoot(ctx, authData)
	if err != nil {
		return nil, err
	}
	cfg := root.GetConfigForChannel(channelID)
	if cfg == nil {
		return nil, shared.NewClientError(CodeMissingConfiguration, "Stripe is not configured for channel "+channelID, nil)
	}
	gateway, err := s.gateways(cfg.RestrictedKey, authData.SaleorAPIURL)
	if err != nil {
		return nil, shared.NewServerError(CodeMissingConfiguration, "Failed to create Stripe client", err)
	}
	return gateway, nil
}

type sessionData struct {
	PaymentIntent struct {
		PaymentMethod string `json:"paymentMethod"`
	} `json:"paymentIntent"`
}

// TransactionInitializeSession creates a payment intent for a new Saleor transaction.
func (s *Service) TransactionInitializeSession(ctx context.Context, authData *apl.AuthData, event saleor.TransactionSessionEvent) (*saleor.TransactionSessionResponse, error) {
	var data sessionData
	if len(event.Data) == 0 || json.Unmarshal(event.Data, &data) != nil {
		return nil, shared.NewClientError(CodeInvalidPayload, "Missing or invalid data.paymentIntent in the event payload", nil)
	}
	if data.PaymentIntent.PaymentMethod != "card" {
		return nil, shared.NewClientError(CodeUnsupportedPaymentMethod, "Unsupported payment method: "+data.PaymentIntent.PaymentMethod, nil)
	}

	gateway, err := s.gatewayForChannel(ctx, authData, event.SourceObject.Channel.ID)
	if err != nil {
		return nil, err
	}

	pi, err := gateway.CreatePaymentIntent(ctx, stripeapi.CreatePaymentIntentInput{
		Amount:             event.Action.Amount,
		Currency:           event.Action.Currency,
		ManualCapture:      event.Action.ActionType == saleor.ActionAuthorization,
		IdempotencyKey:     event.Transaction.ID,
		PaymentMethodTypes: []string{"card"},
		Metadata: map[string]string{
			domain.MetadataTransactionID: event.Transaction.ID,
			domain.MetadataSourceID:      event.SourceObject.ID,
			domain.MetadataChannelID:     event.SourceObject.Channel.ID,
		},
	})
	if err != nil {
		return s.failure(ctx, event.Action, err)
	}

	logger.WithLogger(ctx, s.logger).Info("Created Stripe payment intent",
		zap.String("payment_intent_id", pi.ID),
		zap.String("transaction_id", event.Transaction.ID),
	)

	result := saleor.ResultChargeActionRequired
	if event.Action.ActionType == saleor.ActionAuthorization {
		result = saleor.ResultAuthorizationActionRequired
	}
	return &saleor.TransactionSessionResponse{
		Result:       result,
		Amount:       event.Action.Amount,
		PSPReference: pi.ID,
		Data: map[string]any{
			"paymentIntent": map[string]any{"stripeClientSecret": pi.ClientSecret},
		},
	}, nil
}

// TransactionProcessSession reads the payment intent and reports its current state.
func (s *Service) TransactionProcessSession(ctx context.Context, authData *apl.AuthData, event saleor.TransactionSessionEvent) (*saleor.TransactionSessionResponse, error) {
	if event.Transaction.PSPReference == "" {
		return nil, shared.NewClientError(CodeMissingPSPReference, "Transaction has no payment intent reference", nil)
	}
	gateway, err := s.gatewayForChannel(ctx, authData, event.SourceObject.Channel.ID)
	if err != nil {
		return nil, err
	}

	pi, err := gateway.GetPaymentIntent(ctx, event.Transaction.PSPReference)
	if err != nil {
		return s.failure(ctx, event.Action, err)
	}

	result := domain.ResultForStatus(pi.Status, event.Action.ActionType)
	return &saleor.TransactionSessionResponse{
		Result:       result,
		Amount:       event.Action.Amount,
		PSPReference: pi.ID,
		Message:      pi.LastError,
		Actions:      domain.ActionsForResult(result),
		Data: map[string]any{
			"paymentIntent": map[string]any{"stripeClientSecret": pi.ClientSecret},
		},
	}, nil
}

// TransactionChargeRequested captures an authorized payment intent.
func (s *Service) TransactionChargeRequested(ctx context.Context, authData *apl.AuthData, event saleor.TransactionChargeRequestedEvent) (*saleor.TransactionSessionResponse, error) {
	if event.Transaction.PSPReference == "" {
		return nil, shared.NewClientError(CodeMissingPSPReference, "Transaction has no payment intent reference", nil)
	}
	gateway, err := s.gatewayForChannel(ctx, authData, event.ChannelID())
	if err != nil {
		return nil, err
	}

	action := saleor.TransactionAction{
		Amount:     event.Action.Amount,
		Currency:   event.Action.Currency,
		ActionType: saleor.ActionCharge,
	}
	pi, err := gateway.CapturePaymentIntent(ctx, event.Transaction.PSPReference, event.Action.Amount, event.Action.Currency)
	if err != nil {
		return s.failure(ctx, action, err)
	}

	resp := &saleor.TransactionSessionResponse{
		Result:       saleor.ResultChargeSuccess,
		Amount:       event.Action.Amount,
		PSPReference: pi.ID,
		Actions:      domain.ActionsForResult(saleor.ResultChargeSuccess),
	}
	if pi.Status != domain.StatusSucceeded {
		resp.Result = saleor.ResultChargeFailure
		resp.Message = "Payment intent status after capture: " + pi.Status
		resp.Actions = nil
	}
	return resp, nil
}

// failure turns Stripe client errors into a FAILURE result. Server errors
// are returned so the webhook is retried.
func (s *Service) failure(ctx context.Context, action saleor.TransactionAction, err error) (*saleor.TransactionSessionResponse, error) {
	appErr, ok := shared.AsAppError(err)
	if !ok || appErr.Kind != shared.KindClient {
		return nil, err
	}

	logger.WithLogger(ctx, s.logger).Warn("Stripe rejected the request",
		zap.String("code", appErr.Code),
		zap.Error(err),
	)

	result := saleor.ResultChargeFailure
	if action.ActionType == saleor.ActionAuthorization {
		result = saleor.ResultAuthorizationFailure
	}
	return &saleor.TransactionSessionResponse{
		Result:  result,
		Amount:  action.Amount,
		Message: appErr.Message,
		Data: map[string]any{
			"paymentIntent": map[string]any{
				"errors": []map[string]string{{"code": appErr.Code, "message": appErr.Message}},
			},
		},
	}, nil
}
