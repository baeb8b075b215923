package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	avataxapp "github.com/trieb-work/saleor-apps/internal/application/avatax"
	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	domain "github.com/trieb-work/saleor-apps/internal/domain/avatax"
	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	avataxapi "github.com/trieb-work/saleor-apps/internal/infrastructure/avatax"
)

type MockAvataxService struct {
	mock.Mock
}

func (m *MockAvataxService) CalculateTaxes(ctx context.Context, authData *apl.AuthData, event saleor.CalculateTaxesEvent) (*saleor.CalculateTaxesResponse, error) {
	args := m.Called(ctx, authData, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*saleor.CalculateTaxesResponse), args.Error(1)
}

func (m *MockAvataxService) OrderConfirmed(ctx context.Context, authData *apl.AuthData, order saleor.Order) (*avataxapi.Transaction, error) {
	args := m.Called(ctx, authData, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*avataxapi.Transaction), args.Error(1)
}

func (m *MockAvataxService) OrderCancelled(ctx context.Context, authData *apl.AuthData, order saleor.Order) error {
	return m.Called(ctx, authData, order).Error(0)
}

func (m *MockAvataxService) ListConnections(ctx context.Context, authData *apl.AuthData) (*avataxapp.ConnectionsView, error) {
	args := m.Called(ctx, authData)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*avataxapp.ConnectionsView), args.Error(1)
}

func (m *MockAvataxService) CreateConnection(ctx context.Context, authData *apl.AuthData, conn domain.Connection) (*domain.Connection, error) {
	args := m.Called(ctx, authData, conn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Connection), args.Error(1)
}

func (m *MockAvataxService) UpdateConnection(ctx context.Context, authData *apl.AuthData, conn domain.Connection) error {
	return m.Called(ctx, authData, conn).Error(0)
}

func (m *MockAvataxService) DeleteConnection(ctx context.Context, authData *apl.AuthData, id string) error {
	return m.Called(ctx, authData, id).Error(0)
}

func (m *MockAvataxService) BindChannel(ctx context.Context, authData *apl.AuthData, channelSlug, connectionID string) error {
	return m.Called(ctx, authData, channelSlug, connectionID).Error(0)
}

func (m *MockAvataxService) CheckCredentials(ctx context.Context, authData *apl.AuthData, in avataxapp.CredentialsCheck) error {
	return m.Called(ctx, authData, in).Error(0)
}

func (m *MockAvataxService) ValidateAddress(ctx context.Context, authData *apl.AuthData, connectionID string, address domain.Address) (*avataxapi.AddressResolution, error) {
	args := m.Called(ctx, authData, connectionID, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*avataxapi.AddressResolution), args.Error(1)
}

func (m *MockAvataxService) SearchTaxCodes(ctx context.Context, authData *apl.AuthData, connectionID, filter string) ([]avataxapi.TaxCode, error) {
	args := m.Called(ctx, authData, connectionID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]avataxapi.TaxCode), args.Error(1)
}

func (m *MockAvataxService) LookupEntityUseCode(ctx context.Context, authData *apl.AuthData, connectionID, code string) (*avataxapi.EntityUseCode, error) {
	args := m.Called(ctx, authData, connectionID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*avataxapi.EntityUseCode), args.Error(1)
}

const calculateTaxesPayload = `{"taxBase":{"currency":"USD","channel":{"slug":"default-channel"},"lines":[{"quantity":2,"sourceLine":{"__typename":"CheckoutLine","id":"Q2hlY2tvdXRMaW5lOjE=","productSku":"SKU-1"}}],"sourceObject":{"__typename":"Checkout","id":"Q2hlY2tvdXQ6MQ=="}}}`

func TestAvataxHandler_CalculateTaxes(t *testing.T) {
	t.Run("replies with the taxes", func(t *testing.T) {
		service := new(MockAvataxService)
		service.On("CalculateTaxes", mock.Anything, mock.Anything, mock.MatchedBy(func(e saleor.CalculateTaxesEvent) bool {
			return e.TaxBase.Channel.Slug == "default-channel" && len(e.TaxBase.Lines) == 1 && e.TaxBase.Lines[0].SKU() == "SKU-1"
		})).Return(&saleor.CalculateTaxesResponse{
			ShippingPriceGrossAmount: 5,
			ShippingPriceNetAmount:   5,
			Lines:                    []saleor.TaxLineResult{{TotalGrossAmount: 21.4, TotalNetAmount: 20, TaxRate: 7}},
		}, nil)

		c, w := webhookContext(http.MethodPost, "/api/webhooks/checkout-calculate-taxes", calculateTaxesPayload)
		NewAvataxHandler(service, nil).CalculateTaxes(c)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{
			"shipping_price_gross_amount": 5,
			"shipping_price_net_amount": 5,
			"shipping_tax_rate": 0,
			"lines": [{"total_gross_amount": 21.4, "total_net_amount": 20, "tax_rate": 7}]
		}`, w.Body.String())
		service.AssertExpectations(t)
	})

	t.Run("vendor failure", func(t *testing.T) {
		service := new(MockAvataxService)
		service.On("CalculateTaxes", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, shared.NewServerError("AVATAX_REQUEST_FAILED", "AvaTax request failed", errors.New("502")))

		c, w := webhookContext(http.MethodPost, "/api/webhooks/checkout-calculate-taxes", calculateTaxesPayload)
		NewAvataxHandler(service, nil).CalculateTaxes(c)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		service := new(MockAvataxService)
		c, w := webhookContext(http.MethodPost, "/api/webhooks/checkout-calculate-taxes", "[")
		NewAvataxHandler(service, nil).CalculateTaxes(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		service.AssertNotCalled(t, "CalculateTaxes", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAvataxHandler_OrderConfirmed(t *testing.T) {
	t.Run("commits the order", func(t *testing.T) {
		service := new(MockAvataxService)
		service.On("OrderConfirmed", mock.Anything, mock.Anything, mock.MatchedBy(func(o saleor.Order) bool {
			return o.Number == "42"
		})).Return(&avataxapi.Transaction{Code: "T3JkZXI6MQ=="}, nil)

		c, w := webhookContext(http.MethodPost, "/api/webhooks/order-confirmed", orderConfirmedPayload)
		NewAvataxHandler(service, nil).OrderConfirmed(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, MessageEventHandled, decodeMessage(t, w).Message)
	})

	t.Run("channel without a connection is a no-op", func(t *testing.T) {
		service := new(MockAvataxService)
		service.On("OrderConfirmed", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, shared.NewNoOpError("NO_CONNECTION", "Channel has no AvaTax connection"))

		c, w := webhookContext(http.MethodPost, "/api/webhooks/order-confirmed", orderConfirmedPayload)
		NewAvataxHandler(service, nil).OrderConfirmed(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "[no op]: Channel has no AvaTax connection", decodeMessage(t, w).Message)
	})
}

func TestAvataxHandler_OrderCancelled(t *testing.T) {
	service := new(MockAvataxService)
	service.On("OrderCancelled", mock.Anything, mock.Anything, mock.Anything).
		Return(shared.NewClientError("INVALID_ORDER", "Order has no AvaTax transaction", nil))

	c, w := webhookContext(http.MethodPost, "/api/webhooks/order-cancelled", orderConfirmedPayload)
	NewAvataxHandler(service, nil).OrderCancelled(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
