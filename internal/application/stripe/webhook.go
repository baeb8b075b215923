package stripe

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	domain "github.com/trieb-work/saleor-apps/internal/domain/stripe"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/logger"
	stripeapi "github.com/trieb-work/saleor-apps/internal/infrastructure/stripe"
)

// Stripe webhook event types handled by the app
const (
	EventPaymentIntentSucceeded               = "payment_intent.succeeded"
	EventPaymentIntentAmountCapturableUpdated = "payment_intent.amount_capturable_updated"
	EventPaymentIntentPaymentFailed           = "payment_intent.payment_failed"
	EventPaymentIntentCanceled                = "payment_intent.canceled"
	EventPaymentIntentProcessing              = "payment_intent.processing"
)

// WebhookResult summarizes a processed Stripe webhook
type WebhookResult struct {
	EventID          string `json:"eventId"`
	EventType        string `json:"eventType"`
	ReportedType     string `json:"reportedType,omitempty"`
	AlreadyProcessed bool   `json:"alreadyProcessed"`
}

// HandleStripeWebhook verifies and processes a Stripe webhook delivered for
// one configuration of one installation.
func (s *Service) HandleStripeWebhook(ctx context.Context, authData *apl.AuthData, configID string, payload []byte, signature string) (*WebhookResult, error) {
	root, err := s.loadRoot(ctx, authData)
	if err != nil {
		return nil, err
	}
	cfg := root.GetConfigByID(configID)
	if cfg == nil {
		return nil, shared.NewClientError(CodeMissingConfiguration, "Unknown Stripe configuration "+configID, nil)
	}

	event, err := stripeapi.ConstructEvent(payload, signature, cfg.WebhookSecret)
	if err != nil {
		return nil, shared.NewClientError(CodeInvalidSignature, "Invalid Stripe webhook signature", err)
	}

	log := logger.WithLogger(ctx, s.logger).With(
		zap.String("stripe_event_id", event.ID),
		zap.String("stripe_event_type", event.Type),
	)
	result := &WebhookResult{EventID: event.ID, EventType: event.Type}

	reportType, ok := reportTypeFor(event)
	if !ok {
		log.Debug("Unhandled Stripe event type")
		return nil, shared.NewNoOpError("UNHANDLED_EVENT", "Stripe event "+event.Type+" is not handled")
	}
	result.ReportedType = reportType

	transactionID := event.PaymentIntent.Metadata[domain.MetadataTransactionID]
	if transactionID == "" {
		return nil, shared.NewNoOpError("UNKNOWN_TRANSACTION", "Payment intent was not created by Saleor")
	}

	if s.idempotency != nil {
		first, err := s.idempotency.MarkProcessed(ctx, event.ID, s.idempotencyTTL)
		if err != nil {
			return nil, shared.NewServerError("IDEMPOTENCY_FAILED", "Failed to check Stripe event idempotency", err)
		}
		if !first {
			log.Info("Skipping duplicate Stripe event")
			result.AlreadyProcessed = true
			return result, nil
		}
	}

	amount := event.PaymentIntent.Amount
	if reportType == saleor.ResultAuthorizationSuccess {
		amount = event.PaymentIntent.AmountCapturable
	}
	alreadyProcessed, err := s.reporters(authData).TransactionEventReport(ctx, saleor.TransactionEventReportInput{
		TransactionID:    transactionID,
		Type:             reportType,
		Amount:           amount,
		PSPReference:     event.PaymentIntent.ID,
		Message:          event.PaymentIntent.LastError,
		Time:             time.Now().UTC().Format(time.RFC3339),
		AvailableActions: domain.ActionsForResult(reportType),
	})
	if err != nil {
		if s.idempotency != nil {
			if ferr := s.idempotency.Forget(ctx, event.ID); ferr != nil {
				log.Warn("Failed to release idempotency key", zap.Error(ferr))
			}
		}
		return nil, shared.NewServerError("TRANSACTION_REPORT_FAILED", "Failed to report transaction event to Saleor", err)
	}
	result.AlreadyProcessed = alreadyProcessed

	log.Info("Reported Stripe event to Saleor",
		zap.String("transaction_id", transactionID),
		zap.String("type", reportType),
	)
	return result, nil
}

func reportTypeFor(event *stripeapi.Event) (string, bool) {
	if event.PaymentIntent == nil {
		return "", false
	}
	authorization := event.PaymentIntent.CaptureMethod == "manual"
	pick := func(charge, auth string) string {
		if authorization {
			return auth
		}
		return charge
	}

	switch event.Type {
	case EventPaymentIntentSucceeded:
		return saleor.ResultChargeSuccess, true
	case EventPaymentIntentAmountCapturableUpdated:
		return saleor.ResultAuthorizationSuccess, true
	case EventPaymentIntentPaymentFailed:
		return pick(saleor.ResultChargeFailure, saleor.ResultAuthorizationFailure), true
	case EventPaymentIntentCanceled:
		return saleor.ResultCancelSuccess, true
	case EventPaymentIntentProcessing:
		return pick(saleor.ResultChargeRequest, saleor.ResultAuthorizationRequest), true
	default:
		return "", false
	}
}
