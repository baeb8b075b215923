// Package saleor is a minimal GraphQL client for the Saleor API an app is
// installed in.
package saleor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry"
)

// maxResponseSize is the maximum accepted GraphQL response size (10MB)
const maxResponseSize = 10 * 1024 * 1024

var (
	ErrUnauthorized = errors.New("saleor: app token rejected")
	ErrGraphQL      = errors.New("saleor: graphql error")
)

// GraphQLError is one entry of the errors array.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// MutationError is the errors field of Saleor mutation payloads.
type MutationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Client calls one Saleor instance with the app token.
type Client struct {
	apiURL     string
	token      string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client. token may be empty for unauthenticated queries.
func NewClient(apiURL, token string, opts ...Option) *Client {
	c := &Client{
		apiURL:     apiURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIURL returns the GraphQL endpoint.
func (c *Client) APIURL() string {
	return c.apiURL
}

// Do runs query with vars and decodes the data field into out.
func (c *Client) Do(ctx context.Context, query string, vars map[string]any, out any) error {
	ctx, span := telemetry.StartSpan(ctx, "saleor.graphql "+operationName(query),
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrPeerService, "saleor"),
	)
	defer span.End()

	err := c.do(ctx, query, vars, out)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.SetOK(span)
	return nil
}

func (c *Client) do(ctx context.Context, query string, vars map[string]any, out any) error {
	payload, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return fmt.Errorf("saleor: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("saleor: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("saleor: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("saleor: failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("saleor: HTTP %d", resp.StatusCode)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []GraphQLError  `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("saleor: decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("%w: %s", ErrGraphQL, strings.Join(msgs, "; "))
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("saleor: decode data: %w", err)
	}
	return nil
}

func mutationErrors(errs []MutationError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.Code))
	}
	return fmt.Errorf("%w: %s", ErrGraphQL, strings.Join(msgs, "; "))
}

// operationName extracts the name after query/mutation for span names.
func operationName(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		if (f == "query" || f == "mutation") && i+1 < len(fields) {
			name := fields[i+1]
			if j := strings.IndexAny(name, "({"); j >= 0 {
				name = name[:j]
			}
			if name != "" {
				return name
			}
		}
	}
	return "anonymous"
}
