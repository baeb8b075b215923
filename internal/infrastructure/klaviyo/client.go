// Package klaviyo sends client-side events to the Klaviyo API.
package klaviyo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry"
)

const (
	// DefaultBaseURL is the Klaviyo API host
	DefaultBaseURL = "https://a.klaviyo.com"
	// Revision is the API revision sent with every request
	Revision = "2024-10-15"

	maxErrorBody = 64 << 10
)

// Error codes
const (
	CodeInvalidRequest   = "KLAVIYO_INVALID_REQUEST"
	CodeServiceError     = "KLAVIYO_SERVICE_ERROR"
	CodeTransportFailure = "KLAVIYO_TRANSPORT_FAILURE"
)

// ErrMissingToken is returned when the public token is empty
var ErrMissingToken = errors.New("klaviyo: public token is required")

// NewRecorder builds the span and counter helper of Klaviyo clients.
func NewRecorder(meter metric.Meter) (*telemetry.APICallRecorder, error) {
	return telemetry.NewAPICallRecorder(telemetry.APICallConfig{
		Vendor:      "Klaviyo",
		PeerService: "klaviyo",
		CounterName: "saleor.app.klaviyo.api.requests",
		Description: "The number of requests to Klaviyo API",
		Meter:       meter,
	})
}

// Config configures a Client
type Config struct {
	PublicToken string
	Tenant      string // Saleor API URL
	BaseURL     string
	HTTPClient  *http.Client
	Recorder    *telemetry.APICallRecorder
}

// Client sends events for one Klaviyo account.
type Client struct {
	baseURL    string
	token      string
	tenant     string
	httpClient *http.Client
	recorder   *telemetry.APICallRecorder
}

// NewClient creates a client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.PublicToken) == "" {
		return nil, ErrMissingToken
	}
	baseURL := DefaultBaseURL
	if cfg.BaseURL != "" {
		baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	recorder := cfg.Recorder
	if recorder == nil {
		var err error
		if recorder, err = NewRecorder(nil); err != nil {
			return nil, err
		}
	}
	return &Client{
		baseURL:    baseURL,
		token:      cfg.PublicToken,
		tenant:     cfg.Tenant,
		httpClient: httpClient,
		recorder:   recorder,
	}, nil
}

// Event is one tracked metric occurrence.
type Event struct {
	Metric     string
	Email      string
	UniqueID   string
	Time       time.Time
	Value      float64
	Properties map[string]any
}

type resource[T any] struct {
	Data T `json:"data"`
}

type metricData struct {
	Type       string `json:"type"`
	Attributes struct {
		Name string `json:"name"`
	} `json:"attributes"`
}

type profileData struct {
	Type       string `json:"type"`
	Attributes struct {
		Email string `json:"email"`
	} `json:"attributes"`
}

type eventAttributes struct {
	Properties map[string]any        `json:"properties"`
	Metric     resource[metricData]  `json:"metric"`
	Profile    resource[profileData] `json:"profile"`
	UniqueID   string                `json:"unique_id,omitempty"`
	Time       string                `json:"time,omitempty"`
	Value      float64               `json:"value,omitempty"`
}

type eventData struct {
	Type       string          `json:"type"`
	Attributes eventAttributes `json:"attributes"`
}

func (e Event) body() resource[eventData] {
	attrs := eventAttributes{
		Properties: e.Properties,
		UniqueID:   e.UniqueID,
		Value:      e.Value,
	}
	if attrs.Properties == nil {
		attrs.Properties = map[string]any{}
	}
	if !e.Time.IsZero() {
		attrs.Time = e.Time.UTC().Format(time.RFC3339)
	}
	attrs.Metric.Data.Type = "metric"
	attrs.Metric.Data.Attributes.Name = e.Metric
	attrs.Profile.Data.Type = "profile"
	attrs.Profile.Data.Attributes.Email = e.Email
	return resource[eventData]{Data: eventData{Type: "event", Attributes: attrs}}
}

// Send posts the event. Klaviyo accepts it asynchronously with 202.
func (c *Client) Send(ctx context.Context, event Event) error {
	attrs := []attribute.KeyValue{attribute.String("klaviyo.metric", event.Metric)}
	return c.recorder.Do(ctx, telemetry.APICall{
		Operation:  "createClientEvent",
		Method:     "create_client_event",
		Tenant:     c.tenant,
		Attributes: attrs,
	}, func(ctx context.Context) error {
		return c.send(ctx, event)
	})
}

func (c *Client) send(ctx context.Context, event Event) error {
	raw, err := json.Marshal(event.body())
	if err != nil {
		return shared.NewServerError(CodeInvalidRequest, "Failed to encode Klaviyo event", err)
	}

	endpoint := c.baseURL + "/client/events/?" + url.Values{"company_id": {c.token}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return shared.NewServerError(CodeTransportFailure, "Failed to build Klaviyo request", err)
	}
	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("revision", Revision)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return shared.NewServerError(CodeTransportFailure, "Klaviyo request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return parseError(resp.StatusCode, body)
}

// APIError is one entry of a Klaviyo JSON:API error response.
type APIError struct {
	StatusCode int    `json:"-"`
	ID         string `json:"id"`
	Code       string `json:"code"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("klaviyo: %s (%d): %s", e.Code, e.StatusCode, e.Detail)
}

func parseError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Code: http.StatusText(status), Detail: fmt.Sprintf("%.200s", body)}
	var envelope struct {
		Errors []APIError `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Errors) > 0 {
		*apiErr = envelope.Errors[0]
		apiErr.StatusCode = status
	}

	message := apiErr.Detail
	if message == "" {
		message = apiErr.Title
	}
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		return shared.NewClientError(CodeInvalidRequest, message, apiErr)
	}
	return shared.NewServerError(CodeServiceError, message, apiErr)
}
