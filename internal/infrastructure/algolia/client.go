// Package algolia indexes product variants in Algolia.
package algolia

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/algolia/algoliasearch-client-go/v3/algolia/search"
	"github.com/algolia/algoliasearch-client-go/v3/algolia/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry"
)

// Error codes
const (
	CodeInvalidRequest = "ALGOLIA_INVALID_REQUEST"
	CodeServiceError   = "ALGOLIA_SERVICE_ERROR"
)

// ErrMissingCredentials is returned when the app id or key is empty
var ErrMissingCredentials = errors.New("algolia: app id and api key are required")

// NewRecorder builds the span and counter helper of Algolia clients.
func NewRecorder(meter metric.Meter) (*telemetry.APICallRecorder, error) {
	return telemetry.NewAPICallRecorder(telemetry.APICallConfig{
		Vendor:      "Algolia",
		PeerService: "algolia",
		CounterName: "saleor.app.search.algolia.requests",
		Description: "The number of requests to Algolia API",
		Meter:       meter,
	})
}

// Config configures a Client
type Config struct {
	AppID    string
	APIKey   string
	Tenant   string // Saleor API URL
	Hosts    []string
	Recorder *telemetry.APICallRecorder
	// Requester overrides the HTTP layer of the SDK.
	Requester transport.Requester
}

// Client wraps the Algolia search client of one application.
type Client struct {
	search   *search.Client
	tenant   string
	recorder *telemetry.APICallRecorder
	status   *statusRequester
}

// NewClient creates a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.AppID == "" || cfg.APIKey == "" {
		return nil, ErrMissingCredentials
	}
	recorder := cfg.Recorder
	if recorder == nil {
		var err error
		if recorder, err = NewRecorder(nil); err != nil {
			return nil, err
		}
	}
	base := cfg.Requester
	if base == nil {
		base = httpRequester{client: &http.Client{Timeout: 30 * time.Second}}
	}
	status := &statusRequester{next: base}

	return &Client{
		search: search.NewClientWithConfig(search.Configuration{
			AppID:     cfg.AppID,
			APIKey:    cfg.APIKey,
			Hosts:     cfg.Hosts,
			Requester: status,
		}),
		tenant:   cfg.Tenant,
		recorder: recorder,
		status:   status,
	}, nil
}

func (c *Client) call(ctx context.Context, operation, method, index string, fn func(ctx context.Context) error) error {
	var attrs []attribute.KeyValue
	if index != "" {
		attrs = append(attrs, attribute.String("algolia.index", index))
	}
	return c.recorder.Do(ctx, telemetry.APICall{
		Operation:  operation,
		Method:     method,
		Tenant:     c.tenant,
		Attributes: attrs,
	}, func(ctx context.Context) error {
		c.status.reset()
		if err := fn(ctx); err != nil {
			return mapError(c.status.last(), err)
		}
		return nil
	})
}

// SaveObjects adds or replaces objects by objectID.
func (c *Client) SaveObjects(ctx context.Context, index string, objects []map[string]any) error {
	if len(objects) == 0 {
		return nil
	}
	return c.call(ctx, "saveObjects", "save_objects", index, func(ctx context.Context) error {
		_, err := c.search.InitIndex(index).SaveObjects(objects, ctx)
		return err
	})
}

// DeleteObjects removes objects by id. Unknown ids are ignored by Algolia.
func (c *Client) DeleteObjects(ctx context.Context, index string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.call(ctx, "deleteObjects", "delete_objects", index, func(ctx context.Context) error {
		_, err := c.search.InitIndex(index).DeleteObjects(ids, ctx)
		return err
	})
}

// ListIndices returns the index names of the application.
func (c *Client) ListIndices(ctx context.Context) ([]string, error) {
	var names []string
	err := c.call(ctx, "listIndices", "list_indices", "", func(ctx context.Context) error {
		res, err := c.search.ListIndices(ctx)
		if err != nil {
			return err
		}
		for _, item := range res.Items {
			names = append(names, item.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// mapError classifies by the last HTTP status the SDK received. No status
// means the request never got an answer.
func mapError(status int, err error) error {
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		return shared.NewClientError(CodeInvalidRequest, "Algolia rejected the request", err)
	}
	return shared.NewServerError(CodeServiceError, "Algolia request failed", err)
}

type httpRequester struct {
	client *http.Client
}

func (r httpRequester) Request(req *http.Request) (*http.Response, error) {
	return r.client.Do(req)
}

// statusRequester remembers the status code of the last response.
type statusRequester struct {
	next transport.Requester

	mu     sync.Mutex
	status int
}

func (r *statusRequester) Request(req *http.Request) (*http.Response, error) {
	resp, err := r.next.Request(req)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil || resp == nil {
		r.status = 0
		return resp, err
	}
	r.status = resp.StatusCode
	return resp, nil
}

func (r *statusRequester) reset() {
	r.mu.Lock()
	r.status = 0
	r.mu.Unlock()
}

func (r *statusRequester) last() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}
