package klaviyo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry/telemetrytest"
)

func newTestClient(t *testing.T, rec *telemetrytest.Recorder, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	recorder, err := NewRecorder(rec.Meter)
	require.NoError(t, err)
	c, err := NewClient(Config{
		PublicToken: "AbC123",
		Tenant:      "https://shop.saleor.cloud/graphql/",
		BaseURL:     srv.URL,
		Recorder:    recorder,
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_MissingToken(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestSend(t *testing.T) {
	rec := telemetrytest.New(t)

	var (
		gotPath     string
		gotQuery    string
		gotRevision string
		gotBody     map[string]any
	)
	c := newTestClient(t, rec, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("company_id")
		gotRevision = r.Header.Get("revision")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusAccepted)
	})

	err := c.Send(context.Background(), Event{
		Metric:     "Order Created",
		Email:      "buyer@example.com",
		UniqueID:   "evt-1",
		Time:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Properties: map[string]any{"number": "1001"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/client/events/", gotPath)
	assert.Equal(t, "AbC123", gotQuery)
	assert.Equal(t, Revision, gotRevision)

	data := gotBody["data"].(map[string]any)
	assert.Equal(t, "event", data["type"])
	attrs := data["attributes"].(map[string]any)
	assert.Equal(t, "evt-1", attrs["unique_id"])
	assert.Equal(t, "2026-03-01T12:00:00Z", attrs["time"])
	assert.Equal(t, "1001", attrs["properties"].(map[string]any)["number"])
	metricName := attrs["metric"].(map[string]any)["data"].(map[string]any)["attributes"].(map[string]any)["name"]
	assert.Equal(t, "Order Created", metricName)
	email := attrs["profile"].(map[string]any)["data"].(map[string]any)["attributes"].(map[string]any)["email"]
	assert.Equal(t, "buyer@example.com", email)

	assert.Equal(t, []string{"calling Klaviyo createClientEvent API"}, rec.SpanNames())
	assert.Equal(t, int64(1), rec.CounterValue(t, "saleor.app.klaviyo.api.requests",
		attribute.String("status", "success"),
		attribute.String("method", "create_client_event"),
		attribute.String("saleor.tenant_domain", "shop.saleor.cloud"),
	))
}

func TestSend_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind shared.ErrorKind
		wantMsg  string
	}{
		{"bad request", http.StatusBadRequest, `{"errors":[{"id":"e1","code":"invalid","title":"Invalid input.","detail":"profile email is invalid"}]}`, shared.KindClient, "profile email is invalid"},
		{"rate limited", http.StatusTooManyRequests, `{"errors":[{"code":"throttled","title":"Request was throttled."}]}`, shared.KindClient, "Request was throttled."},
		{"server error", http.StatusBadGateway, `upstream down`, shared.KindServer, "upstream down"},
		{"unexpected success code", http.StatusOK, ``, shared.KindServer, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := telemetrytest.New(t)
			c := newTestClient(t, rec, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			err := c.Send(context.Background(), Event{Metric: "Order Created", Email: "a@b.c"})
			require.Error(t, err)
			appErr, ok := shared.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, appErr.Kind)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, appErr.Message)
			}
			assert.Equal(t, int64(1), rec.CounterValue(t, "saleor.app.klaviyo.api.requests", attribute.String("status", "error")))
		})
	}
}

func TestSend_TransportFailure(t *testing.T) {
	rec := telemetrytest.New(t)
	recorder, err := NewRecorder(rec.Meter)
	require.NoError(t, err)
	c, err := NewClient(Config{PublicToken: "AbC123", BaseURL: "http://127.0.0.1:1", Recorder: recorder})
	require.NoError(t, err)

	err = c.Send(context.Background(), Event{Metric: "Order Created"})
	assert.True(t, shared.IsServerError(err))
}
