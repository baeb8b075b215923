package apl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry"
)

// UpstashAPL stores auth data as plain keys through the Upstash Redis REST API.
type UpstashAPL struct {
	restURL    string
	restToken  string
	httpClient *http.Client
}

// NewUpstashAPL creates the Upstash APL. httpClient may be nil.
func NewUpstashAPL(restURL, restToken string, httpClient *http.Client) *UpstashAPL {
	if httpClient == nil {
		httpClient = newHTTPClient()
	}
	return &UpstashAPL{restURL: restURL, restToken: restToken, httpClient: httpClient}
}

type upstashResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (u *UpstashAPL) command(ctx context.Context, args ...string) (json.RawMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "apl.upstash."+args[0])
	defer span.End()

	status, raw, err := doJSON(ctx, u.httpClient, http.MethodPost, u.restURL, u.restToken, args)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var resp upstashResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		err = fmt.Errorf("apl: decode upstash response (HTTP %d): %w", status, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	if resp.Error != "" {
		err := fmt.Errorf("apl: upstash %s: %s", args[0], resp.Error)
		telemetry.RecordError(span, err)
		return nil, err
	}
	return resp.Result, nil
}

func (u *UpstashAPL) Get(ctx context.Context, saleorAPIURL string) (*apl.AuthData, error) {
	result, err := u.command(ctx, "GET", saleorAPIURL)
	if err != nil {
		return nil, err
	}

	if len(result) == 0 {
		return nil, apl.ErrAuthDataNotFound
	}
	var value *string
	if err := json.Unmarshal(result, &value); err != nil {
		return nil, fmt.Errorf("apl: decode upstash value: %w", err)
	}
	if value == nil {
		return nil, apl.ErrAuthDataNotFound
	}

	var data apl.AuthData
	if err := json.Unmarshal([]byte(*value), &data); err != nil {
		return nil, fmt.Errorf("apl: decode auth data: %w", err)
	}
	return &data, nil
}

func (u *UpstashAPL) Set(ctx context.Context, data apl.AuthData) error {
	if err := data.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("apl: encode auth data: %w", err)
	}
	_, err = u.command(ctx, "SET", data.SaleorAPIURL, string(raw))
	return err
}

func (u *UpstashAPL) Delete(ctx context.Context, saleorAPIURL string) error {
	_, err := u.command(ctx, "DEL", saleorAPIURL)
	return err
}

func (u *UpstashAPL) GetAll(context.Context) ([]apl.AuthData, error) {
	return nil, fmt.Errorf("upstash: %w", apl.ErrNotSupported)
}

func (u *UpstashAPL) IsReady(ctx context.Context) error {
	if err := u.IsConfigured(ctx); err != nil {
		return err
	}
	_, err := u.command(ctx, "PING")
	return err
}

func (u *UpstashAPL) IsConfigured(context.Context) error {
	if u.restURL == "" || u.restToken == "" {
		return errors.New("apl: UPSTASH_URL or UPSTASH_TOKEN missing")
	}
	return nil
}

var _ apl.APL = (*UpstashAPL)(nil)
