package stripe

import (
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v81"

	"github.com/trieb-work/saleor-apps/internal/domain/shared"
)

// Error codes carried by mapped AppErrors
const (
	CodeCardError        = "STRIPE_CARD_ERROR"
	CodeInvalidRequest   = "STRIPE_INVALID_REQUEST"
	CodeIdempotencyError = "STRIPE_IDEMPOTENCY_ERROR"
	CodeAPIError         = "STRIPE_API_ERROR"
)

// mapError translates stripe-go errors into client or server AppErrors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *shared.AppError
	if errors.As(err, &appErr) {
		return err
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return shared.NewServerError(CodeAPIError, "Stripe request failed", err)
	}
	if stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
		return shared.NewServerError(CodeAPIError, stripeErr.Msg, err)
	}

	switch stripeErr.Type {
	case stripe.ErrorTypeCard:
		return shared.NewClientError(CodeCardError, stripeErr.Msg, err)
	case stripe.ErrorTypeInvalidRequest:
		return shared.NewClientError(CodeInvalidRequest, stripeErr.Msg, err)
	case stripe.ErrorTypeIdempotency:
		return shared.NewClientError(CodeIdempotencyError, stripeErr.Msg, err)
	default:
		return shared.NewServerError(CodeAPIError, stripeErr.Msg, err)
	}
}
