// Package stripe wraps the stripe-go API client for the payment app.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry"
)

// Environment attribute values
const (
	EnvironmentTest = "test"
	EnvironmentLive = "live"
)

// ErrMissingKey is returned when no restricted key was configured
var ErrMissingKey = errors.New("stripe: restricted key is required")

// NewRecorder builds the span and counter helper shared by every Stripe client.
func NewRecorder(meter metric.Meter) (*telemetry.APICallRecorder, error) {
	return telemetry.NewAPICallRecorder(telemetry.APICallConfig{
		Vendor:         "Stripe",
		PeerService:    "stripe",
		CounterName:    "saleor.app.stripe.api.requests",
		Description:    "The number of requests to Stripe API",
		EnvironmentKey: "stripe.environment",
		Meter:          meter,
	})
}

// ClientConfig configures a per-installation client.
type ClientConfig struct {
	RestrictedKey string
	Tenant        string // Saleor API URL
	Recorder      *telemetry.APICallRecorder
}

// Client calls Stripe with one restricted key.
type Client struct {
	api      *client.API
	env      string
	tenant   string
	recorder *telemetry.APICallRecorder
}

// NewClient creates a client. The API backends are the process-wide stripe
// backends so tests can swap them with stripe.SetBackend.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.RestrictedKey == "" {
		return nil, ErrMissingKey
	}
	recorder := cfg.Recorder
	if recorder == nil {
		var err error
		if recorder, err = NewRecorder(nil); err != nil {
			return nil, err
		}
	}
	return &Client{
		api:      client.New(cfg.RestrictedKey, nil),
		env:      environmentOf(cfg.RestrictedKey),
		tenant:   cfg.Tenant,
		recorder: recorder,
	}, nil
}

func environmentOf(key string) string {
	if strings.Contains(key, "_test_") {
		return EnvironmentTest
	}
	return EnvironmentLive
}

// Environment returns test or live.
func (c *Client) Environment() string { return c.env }

func (c *Client) call(ctx context.Context, operation, method string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	return c.recorder.Do(ctx, telemetry.APICall{
		Operation:   operation,
		Method:      method,
		Environment: c.env,
		Tenant:      c.tenant,
		Attributes:  attrs,
	}, func(ctx context.Context) error {
		return mapError(fn(ctx))
	})
}

// PaymentIntent is the subset of a Stripe payment intent the app uses.
type PaymentIntent struct {
	ID               string
	Status           string
	ClientSecret     string
	Amount           decimal.Decimal
	AmountCapturable decimal.Decimal
	Currency         string
	CaptureMethod    string
	Metadata         map[string]string
	LastError        string
}

func fromStripe(pi *stripe.PaymentIntent) (*PaymentIntent, error) {
	amount, err := FromMinorUnits(pi.Amount, string(pi.Currency))
	if err != nil {
		return nil, fmt.Errorf("stripe: payment intent %s: %w", pi.ID, err)
	}
	capturable, _ := FromMinorUnits(pi.AmountCapturable, string(pi.Currency))
	out := &PaymentIntent{
		ID:               pi.ID,
		Status:           string(pi.Status),
		ClientSecret:     pi.ClientSecret,
		Amount:           amount.Amount(),
		AmountCapturable: capturable.Amount(),
		Currency:         string(amount.Currency()),
		CaptureMethod:    string(pi.CaptureMethod),
		Metadata:         pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		out.LastError = pi.LastPaymentError.Msg
	}
	return out, nil
}

// CreatePaymentIntentInput describes a new payment intent.
type CreatePaymentIntentInput struct {
	Amount        decimal.Decimal
	Currency      string
	ManualCapture bool
	// IdempotencyKey is the Saleor transaction id.
	IdempotencyKey     string
	PaymentMethodTypes []string
	Metadata           map[string]string
}

// CreatePaymentIntent creates a payment intent. The amount is sent in minor units.
func (c *Client) CreatePaymentIntent(ctx context.Context, in CreatePaymentIntentInput) (*PaymentIntent, error) {
	minor, err := ToMinorUnits(in.Amount, in.Currency)
	if err != nil {
		return nil, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	var out *PaymentIntent
	err = c.call(ctx, "createPaymentIntent", "create_payment_intent", func(ctx context.Context) error {
		params := &stripe.PaymentIntentParams{
			Amount:   stripe.Int64(minor),
			Currency: stripe.String(strings.ToLower(strings.TrimSpace(in.Currency))),
		}
		params.Context = ctx
		if in.ManualCapture {
			params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
		} else {
			params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodAutomatic))
		}
		if len(in.PaymentMethodTypes) > 0 {
			params.PaymentMethodTypes = stripe.StringSlice(in.PaymentMethodTypes)
		}
		if in.IdempotencyKey != "" {
			params.SetIdempotencyKey(in.IdempotencyKey)
		}
		for k, v := range in.Metadata {
			params.AddMetadata(k, v)
		}

		pi, err := c.api.PaymentIntents.New(params)
		if err != nil {
			return err
		}
		out, err = fromStripe(pi)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetPaymentIntent reads a payment intent by id.
func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	var out *PaymentIntent
	err := c.call(ctx, "getPaymentIntent", "get_payment_intent", func(ctx context.Context) error {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		pi, err := c.api.PaymentIntents.Get(id, params)
		if err != nil {
			return err
		}
		out, err = fromStripe(pi)
		return err
	}, attribute.String("stripe.payment_intent_id", id))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CapturePaymentIntent captures an authorized payment intent. A zero amount
// captures the full capturable amount.
func (c *Client) CapturePaymentIntent(ctx context.Context, id string, amount decimal.Decimal, currency string) (*PaymentIntent, error) {
	var out *PaymentIntent
	err := c.call(ctx, "capturePaymentIntent", "capture_payment_intent", func(ctx context.Context) error {
		params := &stripe.PaymentIntentCaptureParams{}
		params.Context = ctx
		if !amount.IsZero() {
			minor, err := ToMinorUnits(amount, currency)
			if err != nil {
				return err
			}
			params.AmountToCapture = stripe.Int64(minor)
		}
		pi, err := c.api.PaymentIntents.Capture(id, params)
		if err != nil {
			return err
		}
		out, err = fromStripe(pi)
		return err
	}, attribute.String("stripe.payment_intent_id", id))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WebhookEndpoint is a registered Stripe webhook.
type WebhookEndpoint struct {
	ID     string
	Secret string
	URL    string
}

// WebhookEvents are the payment intent events the app subscribes to.
var WebhookEvents = []string{
	string(stripe.EventTypePaymentIntentAmountCapturableUpdated),
	string(stripe.EventTypePaymentIntentCanceled),
	string(stripe.EventTypePaymentIntentPaymentFailed),
	string(stripe.EventTypePaymentIntentProcessing),
	string(stripe.EventTypePaymentIntentSucceeded),
}

// CreateWebhookEndpoint registers url for the payment intent events.
func (c *Client) CreateWebhookEndpoint(ctx context.Context, url, description string) (*WebhookEndpoint, error) {
	var out *WebhookEndpoint
	err := c.call(ctx, "createWebhookEndpoint", "create_webhook_endpoint", func(ctx context.Context) error {
		params := &stripe.WebhookEndpointParams{
			URL:           stripe.String(url),
			EnabledEvents: stripe.StringSlice(WebhookEvents),
			Description:   stripe.String(description),
		}
		params.Context = ctx
		we, err := c.api.WebhookEndpoints.New(params)
		if err != nil {
			return err
		}
		out = &WebhookEndpoint{ID: we.ID, Secret: we.Secret, URL: we.URL}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteWebhookEndpoint removes a webhook endpoint.
func (c *Client) DeleteWebhookEndpoint(ctx context.Context, id string) error {
	return c.call(ctx, "deleteWebhookEndpoint", "delete_webhook_endpoint", func(ctx context.Context) error {
		params := &stripe.WebhookEndpointParams{}
		params.Context = ctx
		_, err := c.api.WebhookEndpoints.Del(id, params)
		return err
	})
}
