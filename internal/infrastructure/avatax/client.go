// Package avatax is a REST client for the AvaTax v2 API.
package avatax

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry"
)

// Base URLs of the AvaTax environments
const (
	SandboxBaseURL    = "https://sandbox-rest.avatax.com"
	ProductionBaseURL = "https://rest.avatax.com"
)

// Environment attribute values
const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"
)

const maxResponseSize = 5 << 20

// ErrMissingCredentials is returned when username or password is empty
var ErrMissingCredentials = errors.New("avatax: username and password are required")

// NewRecorder builds the span and counter helper shared by AvaTax clients.
func NewRecorder(meter metric.Meter) (*telemetry.APICallRecorder, error) {
	return telemetry.NewAPICallRecorder(telemetry.APICallConfig{
		Vendor:         "AvaTax",
		PeerService:    "avatax",
		CounterName:    "saleor.app.avatax.api.requests",
		Description:    "The number of requests to AvaTax API",
		EnvironmentKey: "avatax.enviroment",
		Meter:          meter,
	})
}

// Config configures a Client
type Config struct {
	Username   string
	Password   string
	Sandbox    bool
	Tenant     string // Saleor API URL
	AppName    string
	AppVersion string
	// BaseURL overrides the environment URL.
	BaseURL    string
	HTTPClient *http.Client
	Recorder   *telemetry.APICallRecorder
}

// Client calls AvaTax with one set of credentials.
type Client struct {
	baseURL    string
	env        string
	username   string
	password   string
	tenant     string
	userAgent  string
	httpClient *http.Client
	recorder   *telemetry.APICallRecorder
}

// NewClient creates a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, ErrMissingCredentials
	}
	env := EnvironmentProduction
	baseURL := ProductionBaseURL
	if cfg.Sandbox {
		env = EnvironmentSandbox
		baseURL = SandboxBaseURL
	}
	if cfg.BaseURL != "" {
		baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	recorder := cfg.Recorder
	if recorder == nil {
		var err error
		if recorder, err = NewRecorder(nil); err != nil {
			return nil, err
		}
	}
	appName := cfg.AppName
	if appName == "" {
		appName = "saleor-app-avatax"
	}
	machine, _ := os.Hostname()

	return &Client{
		baseURL:    baseURL,
		env:        env,
		username:   cfg.Username,
		password:   cfg.Password,
		tenant:     cfg.Tenant,
		userAgent:  fmt.Sprintf("%s; %s; REST; v2; %s", appName, cfg.AppVersion, machine),
		httpClient: httpClient,
		recorder:   recorder,
	}, nil
}

// Environment returns sandbox or production.
func (c *Client) Environment() string { return c.env }

func (c *Client) call(ctx context.Context, operation, method string, attrs []attribute.KeyValue, fn func(ctx context.Context) error) error {
	return c.recorder.Do(ctx, telemetry.APICall{
		Operation:   operation,
		Method:      method,
		Environment: c.env,
		Tenant:      c.tenant,
		Attributes:  attrs,
	}, fn)
}

func (c *Client) do(ctx context.Context, httpMethod, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("avatax: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, endpoint, reader)
	if err != nil {
		return fmt.Errorf("avatax: build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Avalara-Client", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return networkError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return networkError(err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return parseError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return parseError(resp.StatusCode, raw)
	}
	return nil
}

// CreateTransaction creates or adjusts a transaction. Adjusting keeps the
// call idempotent for a given document code.
func (c *Client) CreateTransaction(ctx context.Context, model CreateTransactionModel) (*Transaction, error) {
	var out Transaction
	attrs := []attribute.KeyValue{attribute.String("avatax.document_type", model.Type)}
	err := c.call(ctx, "createOrAdjustTransaction", "create_or_adjust_transaction", attrs, func(ctx context.Context) error {
		body := map[string]any{"createTransactionModel": model}
		return c.do(ctx, http.MethodPost, "/api/v2/transactions/createoradjust", nil, body, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VoidTransaction voids a committed or uncommitted transaction with reason DocVoided.
func (c *Client) VoidTransaction(ctx context.Context, transactionCode, companyCode string) (*Transaction, error) {
	var out Transaction
	attrs := []attribute.KeyValue{attribute.String("avatax.code", "DocVoided")}
	err := c.call(ctx, "voidTransaction", "void_transaction", attrs, func(ctx context.Context) error {
		path := fmt.Sprintf("/api/v2/companies/%s/transactions/%s/void", url.PathEscape(companyCode), url.PathEscape(transactionCode))
		return c.do(ctx, http.MethodPost, path, nil, map[string]string{"code": "DocVoided"}, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateAddress resolves an address.
func (c *Client) ValidateAddress(ctx context.Context, address AddressInfo) (*AddressResolution, error) {
	var out AddressResolution
	err := c.call(ctx, "resolveAddress", "resolve_address", nil, func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, "/api/v2/addresses/resolve", nil, address, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTaxCodes searches tax codes. An empty filter lists the first 50.
func (c *Client) ListTaxCodes(ctx context.Context, filter string) ([]TaxCode, error) {
	var out fetchResult[TaxCode]
	err := c.call(ctx, "listTaxCodes", "list_tax_codes", nil, func(ctx context.Context) error {
		q := url.Values{}
		q.Set("$top", "50")
		if filter != "" {
			q.Set("$filter", `taxCode contains "`+filter+`"`)
		}
		return c.do(ctx, http.MethodGet, "/api/v2/definitions/taxcodes", q, nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

// Ping checks the credentials. Unauthenticated credentials are a client error.
func (c *Client) Ping(ctx context.Context) (*PingResult, error) {
	var out PingResult
	err := c.call(ctx, "ping", "ping", nil, func(ctx context.Context) error {
		if err := c.do(ctx, http.MethodGet, "/api/v2/utilities/ping", nil, nil, &out); err != nil {
			return err
		}
		if !out.Authenticated {
			return unauthenticatedError()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetEntityUseCode looks up an entity use code. The result is empty when
// the code does not exist.
func (c *Client) GetEntityUseCode(ctx context.Context, useCode string) ([]EntityUseCode, error) {
	var out fetchResult[EntityUseCode]
	attrs := []attribute.KeyValue{attribute.String("avatax.use_code", useCode)}
	err := c.call(ctx, "listEntityUseCodes", "list_entity_use_code", attrs, func(ctx context.Context) error {
		q := url.Values{}
		q.Set("$filter", "code eq "+useCode)
		return c.do(ctx, http.MethodGet, "/api/v2/definitions/entityusecodes", q, nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}
