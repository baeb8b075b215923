package stripe

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// ErrInvalidWebhookSignature is returned when a Stripe-Signature header does not verify
var ErrInvalidWebhookSignature = errors.New("stripe: invalid webhook signature")

// Event is a verified Stripe webhook event.
type Event struct {
	ID       string
	Type     string
	Livemode bool
	// PaymentIntent is set for payment_intent.* events.
	PaymentIntent *PaymentIntent
}

// ConstructEvent verifies the signature and decodes the event. API version
// mismatches are tolerated.
func ConstructEvent(payload []byte, signature, secret string) (*Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
	}

	out := &Event{
		ID:       evt.ID,
		Type:     string(evt.Type),
		Livemode: evt.Livemode,
	}
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return out, nil
	}
	if obj, ok := evt.Data.Object["object"].(string); !ok || obj != "payment_intent" {
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("stripe: decode payment intent: %w", err)
	}
	if out.PaymentIntent, err = fromStripe(&pi); err != nil {
		return nil, err
	}
	return out, nil
}
