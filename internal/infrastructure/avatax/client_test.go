package avatax

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry/telemetrytest"
)

func newTestClient(t *testing.T, rec *telemetrytest.Recorder, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	recorder, err := NewRecorder(rec.Meter)
	require.NoError(t, err)
	c, err := NewClient(Config{
		Username:   "user",
		Password:   "pass",
		Sandbox:    true,
		Tenant:     "https://shop.eu.saleor.cloud/graphql/",
		AppVersion: "1.0.0",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Recorder:   recorder,
	})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// ============================================================================
// Construction
// ============================================================================

func TestNewClient(t *testing.T) {
	_, err := NewClient(Config{Username: "u"})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	c, err := NewClient(Config{Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, EnvironmentProduction, c.Environment())
	assert.Equal(t, ProductionBaseURL, c.baseURL)

	c, err = NewClient(Config{Username: "u", Password: "p", Sandbox: true})
	require.NoError(t, err)
	assert.Equal(t, EnvironmentSandbox, c.Environment())
	assert.Equal(t, SandboxBaseURL, c.baseURL)
}

// ============================================================================
// Transactions
// ============================================================================

func TestClient_CreateTransaction(t *testing.T) {
	rec := telemetrytest.New(t)
	c := newTestClient(t, rec, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/transactions/createoradjust", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user", user)
		assert.Equal(t, "pass", pass)
		assert.Contains(t, r.Header.Get("X-Avalara-Client"), "saleor-app-avatax; 1.0.0; REST; v2")

		var body struct {
			CreateTransactionModel CreateTransactionModel `json:"createTransactionModel"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DocumentSalesOrder, body.CreateTransactionModel.Type)
		assert.Len(t, body.CreateTransactionModel.Lines, 1)

		writeJSON(w, http.StatusCreated, `{
			"id": 1, "code": "order-1", "type": "SalesOrder", "status": "Temporary",
			"totalAmount": 100, "totalTax": 8.5,
			"lines": [{"lineNumber": "1", "lineAmount": 100, "tax": 8.5, "taxableAmount": 100,
				"details": [{"rate": 0.065, "tax": 6.5}, {"rate": 0.02, "tax": 2}]}]
		}`)
	})

	tx, err := c.CreateTransaction(context.Background(), CreateTransactionModel{
		Type:         DocumentSalesOrder,
		Code:         "order-1",
		Date:         "2026-10-15",
		CustomerCode: "customer@example.com",
		Lines:        []LineItem{{Number: "1", Quantity: decimal.NewFromInt(1), Amount: decimal.NewFromInt(100)}},
	})
	require.NoError(t, err)
	assert.Equal(t, "order-1", tx.Code)
	require.Len(t, tx.Lines, 1)
	assert.True(t, decimal.RequireFromString("0.085").Equal(tx.Lines[0].Rate()))

	ended := rec.Spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "calling AvaTax createOrAdjustTransaction API", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.String("avatax.document_type", "SalesOrder"))
	assert.Equal(t, int64(1), rec.CounterValue(t, "saleor.app.avatax.api.requests",
		attribute.String("status", "success"),
		attribute.String("method", "create_or_adjust_transaction"),
		attribute.String("avatax.enviroment", "sandbox"),
		attribute.String("saleor.tenant_domain", "shop.eu.saleor.cloud"),
	))
}

func TestClient_VoidTransaction(t *testing.T) {
	rec := telemetrytest.New(t)
	c := newTestClient(t, rec, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/companies/ACME/transactions/T3JkZXI6MQ==/void", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"code":"DocVoided"}`, string(raw))
		writeJSON(w, http.StatusOK, `{"id": 1, "code": "T3JkZXI6MQ==", "status": "Cancelled"}`)
	})

	tx, err := c.VoidTransaction(context.Background(), "T3JkZXI6MQ==", "ACME")
	require.NoError(t, err)
	assert.Equal(t, "Cancelled", tx.Status)
	assert.Equal(t, int64(1), rec.CounterValue(t, "saleor.app.avatax.api.requests", attribute.String("method", "void_transaction")))
}

// ============================================================================
// Definitions and utilities
// ============================================================================

func TestClient_ListTaxCodes(t *testing.T) {
	rec := telemetrytest.New(t)
	var queries []string
	c := newTestClient(t, rec, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/definitions/taxcodes", r.URL.Path)
		queries = append(queries, r.URL.Query().Get("$filter")+"|"+r.URL.Query().Get("$top"))
		writeJSON(w, http.StatusOK, `{"@recordsetCount": 1, "value": [{"id": 1, "taxCode": "P0000000", "description": "Tangible personal property"}]}`)
	})

	codes, err := c.ListTaxCodes(context.Background(), "P00")
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, "P0000000", codes[0].TaxCode)

	_, err = c.ListTaxCodes(context.Background(), "")
	require.NoError(t, err)

	// the filter goes out verbatim, without Go string escaping
	_, err = c.ListTaxCodes(context.Background(), `P0\01`+"\t")
	require.NoError(t, err)

	assert.Equal(t, []string{
		`taxCode contains "P00"|50`,
		"|50",
		"taxCode contains \"P0\\01\t\"|50",
	}, queries)
}

func TestClient_GetEntityUseCode(t *testing.T) {
	rec := telemetrytest.New(t)
	c := newTestClient(t, rec, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "code eq A", r.URL.Query().Get("$filter"))
		writeJSON(w, http.StatusOK, `{"value": [{"code": "A", "name": "FEDERAL GOV"}]}`)
	})

	codes, err := c.GetEntityUseCode(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, "FEDERAL GOV", codes[0].Name)
	assert.Equal(t, []string{"calling AvaTax listEntityUseCodes API"}, rec.SpanNames())
}

func TestClient_ValidateAddress(t *testing.T) {
	rec := telemetrytest.New(t)
	c := newTestClient(t, rec, func(w http.ResponseWriter, r *http.Request) {
		var in AddressInfo
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "98110", in.PostalCode)
		writeJSON(w, http.StatusOK, `{"validatedAddresses": [{"line1": "100 RAVINE LN NE", "postalCode": "98110-2687", "country": "US"}]}`)
	})

	res, err := c.ValidateAddress(context.Background(), AddressInfo{Line1: "100 Ravine Ln", PostalCode: "98110", Country: "US"})
	require.NoError(t, err)
	require.Len(t, res.ValidatedAddresses, 1)
	assert.Equal(t, "98110-2687", res.ValidatedAddresses[0].PostalCode)
}

func TestClient_Ping(t *testing.T) {
	t.Run("authenticated", func(t *testing.T) {
		rec := telemetrytest.New(t)
		c := newTestClient(t, rec, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"version": "24.1.0", "authenticated": true, "authenticationType": "UsernamePassword"}`)
		})
		res, err := c.Ping(context.Background())
		require.NoError(t, err)
		assert.True(t, res.Authenticated)
	})

	t.Run("unauthenticated is a client error", func(t *testing.T) {
		rec := telemetrytest.New(t)
		c := newTestClient(t, rec, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"authenticated": false}`)
		})
		_, err := c.Ping(context.Background())
		require.True(t, shared.IsClientError(err))
		assert.Equal(t, int64(1), rec.CounterValue(t, "saleor.app.avatax.api.requests",
			attribute.String("status", "error"), attribute.String("method", "ping")))
	})
}

// ============================================================================
// Error parsing
// ============================================================================

func TestClient_ErrorParsing(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind shared.ErrorKind
		wantCode string
		wantMsg  string
	}{
		{
			name:     "invalid address",
			status:   http.StatusBadRequest,
			body:     `{"error":{"code":"InvalidAddress","message":"The address value was incomplete.","target":"IncorrectData","details":[{"code":"InvalidAddress","description":"The address value NULL was incomplete."}]}}`,
			wantKind: shared.KindClient,
			wantCode: CodeInvalidAddress,
			wantMsg:  "The address value NULL was incomplete.",
		},
		{
			name:     "entity not found",
			status:   http.StatusNotFound,
			body:     `{"error":{"code":"EntityNotFoundError","message":"Transaction not found."}}`,
			wantKind: shared.KindClient,
			wantCode: CodeEntityNotFound,
			wantMsg:  "Transaction not found.",
		},
		{
			name:     "authentication",
			status:   http.StatusUnauthorized,
			body:     `{"error":{"code":"AuthenticationException","message":"Authentication failed."}}`,
			wantKind: shared.KindClient,
			wantCode: CodeAuthentication,
		},
		{
			name:     "unknown code with 4xx",
			status:   http.StatusBadRequest,
			body:     `{"error":{"code":"SomethingNew","message":"nope"}}`,
			wantKind: shared.KindClient,
			wantCode: CodeInvalidRequest,
		},
		{
			name:     "server error",
			status:   http.StatusServiceUnavailable,
			body:     `{"error":{"code":"ServerConfiguration","message":"down"}}`,
			wantKind: shared.KindServer,
			wantCode: CodeServiceError,
		},
		{
			name:     "unknown body",
			status:   http.StatusBadGateway,
			body:     `<html>bad gateway</html>`,
			wantKind: shared.KindServer,
			wantCode: CodeUnexpectedError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := telemetrytest.New(t)
			c := newTestClient(t, rec, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			_, err := c.VoidTransaction(context.Background(), "code", "DEFAULT")
			require.Error(t, err)
			appErr, ok := shared.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, appErr.Kind)
			assert.Equal(t, tt.wantCode, appErr.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, appErr.Message)
			}
		})
	}
}

func TestClient_TransportFailure(t *testing.T) {
	rec := telemetrytest.New(t)
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	c, err := NewClient(Config{Username: "u", Password: "p", BaseURL: server.URL, Recorder: mustRecorder(t, rec)})
	require.NoError(t, err)
	_, err = c.Ping(context.Background())
	assert.True(t, shared.IsServerError(err))
}

func mustRecorder(t *testing.T, rec *telemetrytest.Recorder) *telemetry.APICallRecorder {
	t.Helper()
	r, err := NewRecorder(rec.Meter)
	require.NoError(t, err)
	return r
}
