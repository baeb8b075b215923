// Package stripe implements the Stripe payment app use cases.
package stripe

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
	stripeapi "github.com/trieb-work/saleor-apps/internal/infrastructure/stripe"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry"
)

// ConfigKey is the metadata key of the serialized RootConfig
const ConfigKey = "stripe-config"

// PaymentGateway is the Stripe API used by the use cases.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, in stripeapi.CreatePaymentIntentInput) (*stripeapi.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*stripeapi.PaymentIntent, error)
	CapturePaymentIntent(ctx context.Context, id string, amount decimal.Decimal, currency string) (*stripeapi.PaymentIntent, error)
	CreateWebhookEndpoint(ctx context.Context, url, description string) (*stripeapi.WebhookEndpoint, error)
	DeleteWebhookEndpoint(ctx context.Context, id string) error
}

// GatewayFactory creates a gateway for a restricted key on behalf of a tenant.
type GatewayFactory func(restrictedKey, saleorAPIURL string) (PaymentGateway, error)

// ConfigStore loads and saves the serialized config of one installation.
type ConfigStore interface {
	Load(ctx context.Context, authData *apl.AuthData) (string, error)
	Save(ctx context.Context, authData *apl.AuthData, raw string) error
}

// TransactionReporter reports asynchronous payment outcomes to Saleor.
type TransactionReporter interface {
	TransactionEventReport(ctx context.Context, in saleor.TransactionEventReportInput) (bool, error)
}

// ReporterFactory creates a reporter for one installation.
type ReporterFactory func(authData *apl.AuthData) TransactionReporter

// NewGatewayFactory returns a factory over the stripe-go client.
func NewGatewayFactory(recorder *telemetry.APICallRecorder) GatewayFactory {
	return func(restrictedKey, saleorAPIURL string) (PaymentGateway, error) {
		return stripeapi.NewClient(stripeapi.ClientConfig{
			RestrictedKey: restrictedKey,
			Tenant:        saleorAPIURL,
			Recorder:      recorder,
		})
	}
}
