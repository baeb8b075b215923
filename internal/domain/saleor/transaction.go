package saleor

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Transaction action types
const (
	ActionCharge        = "CHARGE"
	ActionAuthorization = "AUTHORIZATION"
)

// Transaction event result types reported back to Saleor
const (
	ResultChargeSuccess               = "CHARGE_SUCCESS"
	ResultChargeFailure               = "CHARGE_FAILURE"
	ResultChargeRequest               = "CHARGE_REQUEST"
	ResultChargeActionRequired        = "CHARGE_ACTION_REQUIRED"
	ResultAuthorizationSuccess        = "AUTHORIZATION_SUCCESS"
	ResultAuthorizationFailure        = "AUTHORIZATION_FAILURE"
	ResultAuthorizationRequest        = "AUTHORIZATION_REQUEST"
	ResultAuthorizationActionRequired = "AUTHORIZATION_ACTION_REQUIRED"
	ResultCancelSuccess               = "CANCEL_SUCCESS"
)

type TransactionAction struct {
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	ActionType string          `json:"actionType"`
}

type TransactionItem struct {
	ID           string `json:"id"`
	PSPReference string `json:"pspReference,omitempty"`
}

type SourceObject struct {
	Typename string  `json:"__typename,omitempty"`
	ID       string  `json:"id,omitempty"`
	Channel  Channel `json:"channel"`
	Email    string  `json:"userEmail,omitempty"`
}

// TransactionSessionEvent is the payload of TRANSACTION_INITIALIZE_SESSION
// and TRANSACTION_PROCESS_SESSION.
type TransactionSessionEvent struct {
	Action         TransactionAction `json:"action"`
	Transaction    TransactionItem   `json:"transaction"`
	Data           json.RawMessage   `json:"data"`
	SourceObject   SourceObject      `json:"sourceObject"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
}

// TransactionChargeRequestedEvent is the payload of TRANSACTION_CHARGE_REQUESTED.
type TransactionChargeRequestedEvent struct {
	Action      TransactionAction `json:"action"`
	Transaction struct {
		ID           string        `json:"id"`
		PSPReference string        `json:"pspReference"`
		SourceObject SourceObject  `json:"sourceObject"`
		Checkout     *SourceObject `json:"checkout,omitempty"`
		Order        *SourceObject `json:"order,omitempty"`
	} `json:"transaction"`
}

// ChannelID returns the channel of the order or checkout the transaction belongs to.
func (e TransactionChargeRequestedEvent) ChannelID() string {
	switch {
	case e.Transaction.SourceObject.Channel.ID != "":
		return e.Transaction.SourceObject.Channel.ID
	case e.Transaction.Order != nil:
		return e.Transaction.Order.Channel.ID
	case e.Transaction.Checkout != nil:
		return e.Transaction.Checkout.Channel.ID
	}
	return ""
}

// TransactionSessionResponse is the synchronous webhook response body.
type TransactionSessionResponse struct {
	Result       string          `json:"result"`
	Amount       decimal.Decimal `json:"amount"`
	PSPReference string          `json:"pspReference,omitempty"`
	Message      string          `json:"message,omitempty"`
	ExternalURL  string          `json:"externalUrl,omitempty"`
	Data         any             `json:"data,omitempty"`
	Actions      []string        `json:"actions,omitempty"`
}

// TransactionEventReportInput is sent through the transactionEventReport mutation.
type TransactionEventReportInput struct {
	TransactionID    string          `json:"id"`
	Type             string          `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	PSPReference     string          `json:"pspReference"`
	Message          string          `json:"message,omitempty"`
	ExternalURL      string          `json:"externalUrl,omitempty"`
	Time             string          `json:"time,omitempty"`
	AvailableActions []string        `json:"availableActions,omitempty"`
}
