package apl

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry"
)

// SaleorCloudAPL talks to the Saleor Cloud auth data REST resource.
type SaleorCloudAPL struct {
	resourceURL string
	token       string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewSaleorCloudAPL creates the REST APL. httpClient may be nil.
func NewSaleorCloudAPL(resourceURL, token string, httpClient *http.Client, logger *zap.Logger) *SaleorCloudAPL {
	if httpClient == nil {
		httpClient = newHTTPClient()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SaleorCloudAPL{
		resourceURL: strings.TrimRight(resourceURL, "/"),
		token:       token,
		httpClient:  httpClient,
		logger:      logger,
	}
}

type cloudAuthData struct {
	SaleorAppID  string `json:"saleor_app_id"`
	SaleorAPIURL string `json:"saleor_api_url"`
	JWKS         string `json:"jwks,omitempty"`
	Domain       string `json:"domain,omitempty"`
	Token        string `json:"token"`
}

type cloudPage struct {
	Count   int             `json:"count"`
	Next    *string         `json:"next"`
	Results []cloudAuthData `json:"results"`
}

func toCloud(d apl.AuthData) cloudAuthData {
	return cloudAuthData{
		SaleorAppID:  d.AppID,
		SaleorAPIURL: d.SaleorAPIURL,
		JWKS:         d.JWKS,
		Domain:       d.Domain(),
		Token:        d.Token,
	}
}

func (c cloudAuthData) toAuthData() apl.AuthData {
	return apl.AuthData{
		SaleorAPIURL: c.SaleorAPIURL,
		Token:        c.Token,
		AppID:        c.SaleorAppID,
		JWKS:         c.JWKS,
	}
}

// ResourceID encodes a Saleor API URL the way the resource is addressed.
func ResourceID(saleorAPIURL string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(saleorAPIURL))
}

func (s *SaleorCloudAPL) Get(ctx context.Context, saleorAPIURL string) (*apl.AuthData, error) {
	ctx, span := telemetry.StartSpan(ctx, "apl.saleor_cloud.get")
	defer span.End()

	status, raw, err := doJSON(ctx, s.httpClient, http.MethodGet, s.resourceURL+"/"+ResourceID(saleorAPIURL), s.token, nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, apl.ErrAuthDataNotFound
	}
	if status >= 300 {
		err := fmt.Errorf("apl: saleor cloud get returned HTTP %d", status)
		telemetry.RecordError(span, err)
		return nil, err
	}

	var body cloudAuthData
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("apl: decode saleor cloud response: %w", err)
	}
	data := body.toAuthData()
	return &data, nil
}

func (s *SaleorCloudAPL) Set(ctx context.Context, data apl.AuthData) error {
	if err := data.Validate(); err != nil {
		return err
	}
	ctx, span := telemetry.StartSpan(ctx, "apl.saleor_cloud.set")
	defer span.End()

	status, _, err := doJSON(ctx, s.httpClient, http.MethodPost, s.resourceURL, s.token, toCloud(data))
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if status >= 300 {
		err := fmt.Errorf("apl: saleor cloud set returned HTTP %d", status)
		telemetry.RecordError(span, err)
		return err
	}
	return nil
}

func (s *SaleorCloudAPL) Delete(ctx context.Context, saleorAPIURL string) error {
	ctx, span := telemetry.StartSpan(ctx, "apl.saleor_cloud.delete")
	defer span.End()

	status, _, err := doJSON(ctx, s.httpClient, http.MethodDelete, s.resourceURL+"/"+ResourceID(saleorAPIURL), s.token, nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if status >= 300 && status != http.StatusNotFound {
		err := fmt.Errorf("apl: saleor cloud delete returned HTTP %d", status)
		telemetry.RecordError(span, err)
		return err
	}
	return nil
}

// GetAll follows the next links until the last page.
func (s *SaleorCloudAPL) GetAll(ctx context.Context) ([]apl.AuthData, error) {
	ctx, span := telemetry.StartSpan(ctx, "apl.saleor_cloud.get_all")
	defer span.End()

	var result []apl.AuthData
	next := s.resourceURL
	for next != "" {
		status, raw, err := doJSON(ctx, s.httpClient, http.MethodGet, next, s.token, nil)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if status >= 300 {
			err := fmt.Errorf("apl: saleor cloud list returned HTTP %d", status)
			telemetry.RecordError(span, err)
			return nil, err
		}

		var page cloudPage
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("apl: decode saleor cloud page: %w", err)
		}
		for _, item := range page.Results {
			result = append(result, item.toAuthData())
		}

		next = ""
		if page.Next != nil {
			next = *page.Next
		}
	}
	s.logger.Debug("Listed auth data", zap.Int("count", len(result)))
	return result, nil
}

func (s *SaleorCloudAPL) IsReady(ctx context.Context) error {
	return s.IsConfigured(ctx)
}

func (s *SaleorCloudAPL) IsConfigured(context.Context) error {
	if s.resourceURL == "" || s.token == "" {
		return errors.New("apl: saleor cloud resource URL or token missing")
	}
	return nil
}

var _ apl.APL = (*SaleorCloudAPL)(nil)
