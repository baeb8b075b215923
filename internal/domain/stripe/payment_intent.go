package stripe

import (
	saleor "github.com/trieb-work/saleor-apps/internal/domain/saleor"
)

// PaymentIntent statuses as reported by Stripe
const (
	StatusSucceeded             = "succeeded"
	StatusRequiresCapture       = "requires_capture"
	StatusProcessing            = "processing"
	StatusRequiresPaymentMethod = "requires_payment_method"
	StatusRequiresConfirmation  = "requires_confirmation"
	StatusRequiresAction        = "requires_action"
	StatusCanceled              = "canceled"
)

// Metadata keys written on every payment intent
const (
	MetadataTransactionID = "saleor_transaction_id"
	MetadataSourceID      = "saleor_source_id"
	MetadataChannelID     = "channel_id"
)

// ResultForStatus maps a payment intent status to a Saleor transaction
// result. actionType picks the CHARGE or AUTHORIZATION family for
// intermediate statuses.
func ResultForStatus(status, actionType string) string {
	authorization := actionType == saleor.ActionAuthorization
	pick := func(charge, auth string) string {
		if authorization {
			return auth
		}
		return charge
	}

	switch status {
	case StatusSucceeded:
		return saleor.ResultChargeSuccess
	case StatusRequiresCapture:
		return saleor.ResultAuthorizationSuccess
	case StatusProcessing:
		return pick(saleor.ResultChargeRequest, saleor.ResultAuthorizationRequest)
	case StatusRequiresPaymentMethod, StatusRequiresConfirmation, StatusRequiresAction:
		return pick(saleor.ResultChargeActionRequired, saleor.ResultAuthorizationActionRequired)
	case StatusCanceled:
		return pick(saleor.ResultChargeFailure, saleor.ResultAuthorizationFailure)
	default:
		return pick(saleor.ResultChargeFailure, saleor.ResultAuthorizationFailure)
	}
}

// ActionsForResult lists the actions Saleor may offer next.
func ActionsForResult(result string) []string {
	switch result {
	case saleor.ResultChargeSuccess:
		return []string{"REFUND"}
	case saleor.ResultAuthorizationSuccess:
		return []string{"CHARGE", "CANCEL"}
	default:
		return nil
	}
}
