package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	domain "github.com/trieb-work/saleor-apps/internal/domain/stripe"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/cache"
	stripeapi "github.com/trieb-work/saleor-apps/internal/infrastructure/stripe"
)

// MockPaymentGateway is a mock implementation of PaymentGateway
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) CreatePaymentIntent(ctx context.Context, in stripeapi.CreatePaymentIntentInput) (*stripeapi.PaymentIntent, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripeapi.PaymentIntent), args.Error(1)
}

func (m *MockPaymentGateway) GetPaymentIntent(ctx context.Context, id string) (*stripeapi.PaymentIntent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripeapi.PaymentIntent), args.Error(1)
}

func (m *MockPaymentGateway) CapturePaymentIntent(ctx context.Context, id string, amount decimal.Decimal, currency string) (*stripeapi.PaymentIntent, error) {
	args := m.Called(ctx, id, amount, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripeapi.PaymentIntent), args.Error(1)
}

func (m *MockPaymentGateway) CreateWebhookEndpoint(ctx context.Context, url, description string) (*stripeapi.WebhookEndpoint, error) {
	args := m.Called(ctx, url, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripeapi.WebhookEndpoint), args.Error(1)
}

func (m *MockPaymentGateway) DeleteWebhookEndpoint(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// MockReporter is a mock implementation of TransactionReporter
type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) TransactionEventReport(ctx context.Context, in saleor.TransactionEventReportInput) (bool, error) {
	args := m.Called(ctx, in)
	return args.Bool(0), args.Error(1)
}

type memoryConfigStore struct {
	raw     string
	saves   int
	loadErr error
}

func (s *memoryConfigStore) Load(context.Context, *apl.AuthData) (string, error) {
	return s.raw, s.loadErr
}

func (s *memoryConfigStore) Save(_ context.Context, _ *apl.AuthData, raw string) error {
	s.raw = raw
	s.saves++
	return nil
}

const channelID = "Q2hhbm5lbDox"

var testAuthData = &apl.AuthData{
	SaleorAPIURL: "https://shop.saleor.cloud/graphql/",
	Token:        "token",
	AppID:        "QXBwOjE=",
}

type fixture struct {
	service  *Service
	gateway  *MockPaymentGateway
	reporter *MockReporter
	store    *memoryConfigStore
	keys     []string
}

func newFixture(t *testing.T, bound bool) *fixture {
	t.Helper()
	root := domain.NewRootConfig()
	require.NoError(t, root.AddConfig(domain.Config{
		Name:           "Main",
		ID:             "cfg-1",
		RestrictedKey:  "rk_test_abcd",
		PublishableKey: "pk_test_abcd",
		WebhookSecret:  "whsec_test",
		WebhookID:      "we_1",
	}))
	if bound {
		require.NoError(t, root.BindChannel(channelID, "cfg-1"))
	}
	raw, err := root.Serialize()
	require.NoError(t, err)

	f := &fixture{
		gateway:  &MockPaymentGateway{},
		reporter: &MockReporter{},
		store:    &memoryConfigStore{raw: raw},
	}
	idem := cache.NewInMemoryIdempotencyStore(clockwork.NewFakeClock())
	t.Cleanup(func() { _ = idem.Close() })

	f.service = NewService(ServiceConfig{
		Configs: f.store,
		Gateways: func(key, saleorAPIURL string) (PaymentGateway, error) {
			f.keys = append(f.keys, key)
			return f.gateway, nil
		},
		Reporters:   func(*apl.AuthData) TransactionReporter { return f.reporter },
		Idempotency: idem,
		AppBaseURL:  "https://stripe.apps.example.com/",
		Logger:      zaptest.NewLogger(t),
	})
	return f
}

func sessionEvent(actionType string, data string) saleor.TransactionSessionEvent {
	return saleor.TransactionSessionEvent{
		Action: saleor.TransactionAction{
			Amount:     decimal.RequireFromString("49.99"),
			Currency:   "EUR",
			ActionType: actionType,
		},
		Transaction: saleor.TransactionItem{ID: "VHJhbnNhY3Rpb25JdGVtOjE="},
		Data:        json.RawMessage(data),
		SourceObject: saleor.SourceObject{
			Typename: "Checkout",
			ID:       "Q2hlY2tvdXQ6MQ==",
			Channel:  saleor.Channel{ID: channelID, Slug: "default-channel"},
		},
	}
}

// ============================================================================
// TransactionInitializeSession
// ============================================================================

func TestTransactionInitializeSession(t *testing.T) {
	tests := []struct {
		actionType string
		manual     bool
		wantResult string
	}{
		{saleor.ActionCharge, false, saleor.ResultChargeActionRequired},
		{saleor.ActionAuthorization, true, saleor.ResultAuthorizationActionRequired},
	}
	for _, tt := range tests {
		t.Run(tt.actionType, func(t *testing.T) {
			f := newFixture(t, true)
			f.gateway.On("CreatePaymentIntent", mock.Anything, mock.MatchedBy(func(in stripeapi.CreatePaymentIntentInput) bool {
				return in.ManualCapture == tt.manual &&
					in.IdempotencyKey == "VHJhbnNhY3Rpb25JdGVtOjE=" &&
					in.Currency == "EUR" &&
					in.Amount.Equal(decimal.RequireFromString("49.99")) &&
					in.Metadata[domain.MetadataChannelID] == channelID &&
					in.Metadata[domain.MetadataSourceID] == "Q2hlY2tvdXQ6MQ=="
			})).Return(&stripeapi.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret"}, nil)

			resp, err := f.service.TransactionInitializeSession(context.Background(), testAuthData,
				sessionEvent(tt.actionType, `{"paymentIntent":{"paymentMethod":"card"}}`))
			require.NoError(t, err)
			assert.Equal(t, tt.wantResult, resp.Result)
			assert.Equal(t, "pi_1", resp.PSPReference)
			assert.True(t, decimal.RequireFromString("49.99").Equal(resp.Amount))

			body, err := json.Marshal(resp.Data)
			require.NoError(t, err)
			assert.JSONEq(t, `{"paymentIntent":{"stripeClientSecret":"pi_1_secret"}}`, string(body))
			assert.Equal(t, []string{"rk_test_abcd"}, f.keys)
			f.gateway.AssertExpectations(t)
		})
	}
}

func TestTransactionInitializeSession_Errors(t *testing.T) {
	t.Run("invalid data", func(t *testing.T) {
		f := newFixture(t, true)
		_, err := f.service.TransactionInitializeSession(context.Background(), testAuthData, sessionEvent(saleor.ActionCharge, `not-json`))
		assert.True(t, shared.IsClientError(err))
	})

	t.Run("unsupported payment method", func(t *testing.T) {
		f := newFixture(t, true)
		_, err := f.service.TransactionInitializeSession(context.Background(), testAuthData,
			sessionEvent(saleor.ActionCharge, `{"paymentIntent":{"paymentMethod":"klarna"}}`))
		require.True(t, shared.IsClientError(err))
		appErr, _ := shared.AsAppError(err)
		assert.Equal(t, CodeUnsupportedPaymentMethod, appErr.Code)
	})

	t.Run("channel not configured", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.service.TransactionInitializeSession(context.Background(), testAuthData,
			sessionEvent(saleor.ActionCharge, `{"paymentIntent":{"paymentMethod":"card"}}`))
		require.True(t, shared.IsClientError(err))
		appErr, _ := shared.AsAppError(err)
		assert.Equal(t, CodeMissingConfiguration, appErr.Code)
	})

	t.Run("stripe client error becomes failure result", func(t *testing.T) {
		f := newFixture(t, true)
		f.gateway.On("CreatePaymentIntent", mock.Anything, mock.Anything).
			Return(nil, shared.NewClientError(stripeapi.CodeInvalidRequest, "Amount must be at least 0.50 eur", nil))

		resp, err := f.service.TransactionInitializeSession(context.Background(), testAuthData,
			sessionEvent(saleor.ActionAuthorization, `{"paymentIntent":{"paymentMethod":"card"}}`))
		require.NoError(t, err)
		assert.Equal(t, saleor.ResultAuthorizationFailure, resp.Result)
		assert.Equal(t, "Amount must be at least 0.50 eur", resp.Message)
	})

	t.Run("stripe server error propagates", func(t *testing.T) {
		f := newFixture(t, true)
		f.gateway.On("CreatePaymentIntent", mock.Anything, mock.Anything).
			Return(nil, shared.NewServerError(stripeapi.CodeAPIError, "Stripe unavailable", errors.New("503")))

		_, err := f.service.TransactionInitializeSession(context.Background(), testAuthData,
			sessionEvent(saleor.ActionCharge, `{"paymentIntent":{"paymentMethod":"card"}}`))
		assert.True(t, shared.IsServerError(err))
	})

	t.Run("config load failure", func(t *testing.T) {
		f := newFixture(t, true)
		f.store.loadErr = errors.New("saleor down")
		_, err := f.service.TransactionInitializeSession(context.Background(), testAuthData,
			sessionEvent(saleor.ActionCharge, `{"paymentIntent":{"paymentMethod":"card"}}`))
		assert.True(t, shared.IsServerError(err))
	})
}

// ============================================================================
// TransactionProcessSession
// ============================================================================

func TestTransactionProcessSession(t *testing.T) {
	tests := []struct {
		status     string
		actionType string
		want       string
	}{
		{domain.StatusSucceeded, saleor.ActionCharge, saleor.ResultChargeSuccess},
		{domain.StatusRequiresCapture, saleor.ActionAuthorization, saleor.ResultAuthorizationSuccess},
		{domain.StatusProcessing, saleor.ActionCharge, saleor.ResultChargeRequest},
		{domain.StatusRequiresAction, saleor.ActionAuthorization, saleor.ResultAuthorizationActionRequired},
		{domain.StatusCanceled, saleor.ActionCharge, saleor.ResultChargeFailure},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			f := newFixture(t, true)
			f.gateway.On("GetPaymentIntent", mock.Anything, "pi_1").
				Return(&stripeapi.PaymentIntent{ID: "pi_1", Status: tt.status}, nil)

			event := sessionEvent(tt.actionType, `{}`)
			event.Transaction.PSPReference = "pi_1"
			resp, err := f.service.TransactionProcessSession(context.Background(), testAuthData, event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Result)
			assert.Equal(t, "pi_1", resp.PSPReference)
		})
	}

	t.Run("missing psp reference", func(t *testing.T) {
		f := newFixture(t, true)
		_, err := f.service.TransactionProcessSession(context.Background(), testAuthData, sessionEvent(saleor.ActionCharge, `{}`))
		assert.True(t, shared.IsClientError(err))
	})
}

// ============================================================================
// TransactionChargeRequested
// ============================================================================

func chargeEvent() saleor.TransactionChargeRequestedEvent {
	var event saleor.TransactionChargeRequestedEvent
	event.Action = saleor.TransactionAction{Amount: decimal.RequireFromString("20"), Currency: "EUR", ActionType: saleor.ActionCharge}
	event.Transaction.ID = "tx-1"
	event.Transaction.PSPReference = "pi_1"
	event.Transaction.SourceObject.Channel = saleor.Channel{ID: channelID}
	return event
}

func TestTransactionChargeRequested(t *testing.T) {
	t.Run("captured", func(t *testing.T) {
		f := newFixture(t, true)
		f.gateway.On("CapturePaymentIntent", mock.Anything, "pi_1", decimal.RequireFromString("20"), "EUR").
			Return(&stripeapi.PaymentIntent{ID: "pi_1", Status: domain.StatusSucceeded}, nil)

		resp, err := f.service.TransactionChargeRequested(context.Background(), testAuthData, chargeEvent())
		require.NoError(t, err)
		assert.Equal(t, saleor.ResultChargeSuccess, resp.Result)
		assert.Equal(t, []string{"REFUND"}, resp.Actions)
	})

	t.Run("not succeeded after capture", func(t *testing.T) {
		f := newFixture(t, true)
		f.gateway.On("CapturePaymentIntent", mock.Anything, "pi_1", mock.Anything, mock.Anything).
			Return(&stripeapi.PaymentIntent{ID: "pi_1", Status: domain.StatusProcessing}, nil)

		resp, err := f.service.TransactionChargeRequested(context.Background(), testAuthData, chargeEvent())
		require.NoError(t, err)
		assert.Equal(t, saleor.ResultChargeFailure, resp.Result)
	})

	t.Run("capture rejected", func(t *testing.T) {
		f := newFixture(t, true)
		f.gateway.On("CapturePaymentIntent", mock.Anything, "pi_1", mock.Anything, mock.Anything).
			Return(nil, shared.NewClientError(stripeapi.CodeInvalidRequest, "This PaymentIntent could not be captured", nil))

		resp, err := f.service.TransactionChargeRequested(context.Background(), testAuthData, chargeEvent())
		require.NoError(t, err)
		assert.Equal(t, saleor.ResultChargeFailure, resp.Result)
		assert.Contains(t, resp.Message, "could not be captured")
	})
}

// ============================================================================
// Stripe webhook
// ============================================================================

func signedWebhook(t *testing.T, eventType, captureMethod string) ([]byte, string) {
	t.Helper()
	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "` + eventType + `",
		"data": {"object": {
			"id": "pi_1",
			"object": "payment_intent",
			"amount": 4999,
			"amount_capturable": 4999,
			"currency": "eur",
			"capture_method": "` + captureMethod + `",
			"status": "succeeded",
			"metadata": {"saleor_transaction_id": "tx-1"}
		}}
	}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write([]byte(ts + "." + string(payload)))
	return payload, "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestHandleStripeWebhook(t *testing.T) {
	tests := []struct {
		eventType     string
		captureMethod string
		wantType      string
	}{
		{EventPaymentIntentSucceeded, "automatic", saleor.ResultChargeSuccess},
		{EventPaymentIntentAmountCapturableUpdated, "manual", saleor.ResultAuthorizationSuccess},
		{EventPaymentIntentPaymentFailed, "automatic", saleor.ResultChargeFailure},
		{EventPaymentIntentPaymentFailed, "manual", saleor.ResultAuthorizationFailure},
		{EventPaymentIntentCanceled, "manual", saleor.ResultCancelSuccess},
		{EventPaymentIntentProcessing, "automatic", saleor.ResultChargeRequest},
	}
	for _, tt := range tests {
		t.Run(tt.eventType+"/"+tt.captureMethod, func(t *testing.T) {
			f := newFixture(t, true)
			f.reporter.On("TransactionEventReport", mock.Anything, mock.MatchedBy(func(in saleor.TransactionEventReportInput) bool {
				return in.TransactionID == "tx-1" && in.Type == tt.wantType && in.PSPReference == "pi_1" &&
					in.Amount.Equal(decimal.RequireFromString("49.99"))
			})).Return(false, nil).Once()

			payload, sig := signedWebhook(t, tt.eventType, tt.captureMethod)
			result, err := f.service.HandleStripeWebhook(context.Background(), testAuthData, "cfg-1", payload, sig)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, result.ReportedType)
			f.reporter.AssertExpectations(t)
		})
	}
}

func TestHandleStripeWebhook_Duplicate(t *testing.T) {
	f := newFixture(t, true)
	f.reporter.On("TransactionEventReport", mock.Anything, mock.Anything).Return(false, nil).Once()

	payload, sig := signedWebhook(t, EventPaymentIntentSucceeded, "automatic")
	_, err := f.service.HandleStripeWebhook(context.Background(), testAuthData, "cfg-1", payload, sig)
	require.NoError(t, err)

	result, err := f.service.HandleStripeWebhook(context.Background(), testAuthData, "cfg-1", payload, sig)
	require.NoError(t, err)
	assert.True(t, result.AlreadyProcessed)
	f.reporter.AssertNumberOfCalls(t, "TransactionEventReport", 1)
}

func TestHandleStripeWebhook_ReportFailureReleasesKey(t *testing.T) {
	f := newFixture(t, true)
	f.reporter.On("TransactionEventReport", mock.Anything, mock.Anything).Return(false, errors.New("saleor down")).Once()
	f.reporter.On("TransactionEventReport", mock.Anything, mock.Anything).Return(false, nil).Once()

	payload, sig := signedWebhook(t, EventPaymentIntentSucceeded, "automatic")
	_, err := f.service.HandleStripeWebhook(context.Background(), testAuthData, "cfg-1", payload, sig)
	assert.True(t, shared.IsServerError(err))

	result, err := f.service.HandleStripeWebhook(context.Background(), testAuthData, "cfg-1", payload, sig)
	require.NoError(t, err)
	assert.False(t, result.AlreadyProcessed)
}

func TestHandleStripeWebhook_Errors(t *testing.T) {
	t.Run("unknown config", func(t *testing.T) {
		f := newFixture(t, true)
		payload, sig := signedWebhook(t, EventPaymentIntentSucceeded, "automatic")
		_, err := f.service.HandleStripeWebhook(context.Background(), testAuthData, "missing", payload, sig)
		assert.True(t, shared.IsClientError(err))
	})

	t.Run("bad signature", func(t *testing.T) {
		f := newFixture(t, true)
		payload, _ := signedWebhook(t, EventPaymentIntentSucceeded, "automatic")
		_, err := f.service.HandleStripeWebhook(context.Background(), testAuthData, "cfg-1", payload, "t=1,v1=deadbeef")
		require.True(t, shared.IsClientError(err))
		assert.ErrorIs(t, err, stripeapi.ErrInvalidWebhookSignature)
	})

	t.Run("unhandled type is no-op", func(t *testing.T) {
		f := newFixture(t, true)
		payload, sig := signedWebhook(t, "payment_intent.created", "automatic")
		_, err := f.service.HandleStripeWebhook(context.Background(), testAuthData, "cfg-1", payload, sig)
		assert.True(t, shared.IsNoOpError(err))
	})
}

// ============================================================================
// Config service
// ============================================================================

func TestCreateConfig(t *testing.T) {
	f := newFixture(t, false)
	f.gateway.On("CreateWebhookEndpoint", mock.Anything, mock.MatchedBy(func(url string) bool {
		return assert.Contains(t, url, "https://stripe.apps.example.com/api/webhooks/stripe?configurationId=") &&
			assert.Contains(t, url, "saleorApiUrl=https%3A%2F%2Fshop.saleor.cloud%2Fgraphql%2F")
	}), "Saleor Stripe app: Second").Return(&stripeapi.WebhookEndpoint{ID: "we_2", Secret: "whsec_2"}, nil)

	fc, err := f.service.CreateConfig(context.Background(), testAuthData, CreateConfigInput{
		Name:           "Second",
		RestrictedKey:  "rk_live_secret9876",
		PublishableKey: "pk_live_public",
	})
	require.NoError(t, err)
	assert.Equal(t, "...9876", fc.RestrictedKey)
	assert.Equal(t, domain.EnvironmentLive, fc.Environment)

	root, err := domain.ParseRootConfig(f.store.raw)
	require.NoError(t, err)
	stored := root.GetConfigByID(fc.ID)
	require.NotNil(t, stored)
	assert.Equal(t, "whsec_2", stored.WebhookSecret)
	assert.Equal(t, "we_2", stored.WebhookID)

	view, err := f.service.ListConfigs(context.Background(), testAuthData)
	require.NoError(t, err)
	assert.Len(t, view.Configs, 2)
}

func TestCreateConfig_Invalid(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.service.CreateConfig(context.Background(), testAuthData, CreateConfigInput{
		Name:           "Mixed",
		RestrictedKey:  "rk_test_1",
		PublishableKey: "pk_live_1",
	})
	require.True(t, shared.IsClientError(err))
	appErr, _ := shared.AsAppError(err)
	assert.Equal(t, "Publishable key and restricted key must be of the same environment - TEST or LIVE", appErr.Message)
	assert.Zero(t, f.store.saves)
}

func TestDeleteConfigAndBindChannel(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.service.BindChannel(ctx, testAuthData, channelID, "cfg-1"))
	assert.True(t, shared.IsClientError(f.service.BindChannel(ctx, testAuthData, channelID, "missing")))
	assert.True(t, shared.IsClientError(f.service.BindChannel(ctx, testAuthData, "", "cfg-1")))

	f.gateway.On("DeleteWebhookEndpoint", mock.Anything, "we_1").
		Return(shared.NewClientError(stripeapi.CodeInvalidRequest, "No such webhook endpoint", nil))
	require.NoError(t, f.service.DeleteConfig(ctx, testAuthData, "cfg-1"))

	view, err := f.service.ListConfigs(ctx, testAuthData)
	require.NoError(t, err)
	assert.Empty(t, view.Configs)
	assert.Empty(t, view.ChannelMapping)

	assert.True(t, shared.IsClientError(f.service.DeleteConfig(ctx, testAuthData, "cfg-1")))
}
