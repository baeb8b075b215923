// Package auth verifies what Saleor sends to an app: webhook payload
// signatures and dashboard session tokens, both checked against the JWKS
// the Saleor instance publishes.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

// maxJWKSSize is the maximum accepted JWKS document size (256KB)
const maxJWKSSize = 256 << 10

var (
	ErrInvalidJWKS = errors.New("auth: invalid JWKS")
	ErrKeyNotFound = errors.New("auth: signing key not found in JWKS")
)

// KeySet maps key ids to RSA public keys.
type KeySet map[string]*rsa.PublicKey

// Lookup returns the key for kid. With an empty kid and a single key, that key is returned.
func (ks KeySet) Lookup(kid string) (*rsa.PublicKey, error) {
	if key, ok := ks[kid]; ok {
		return key, nil
	}
	if kid == "" && len(ks) == 1 {
		for _, key := range ks {
			return key, nil
		}
	}
	return nil, ErrKeyNotFound
}

// ParseJWKS decodes the RSA keys of a JWKS document. Non-RSA keys are skipped.
func ParseJWKS(raw string) (KeySet, error) {
	var set jose.JSONWebKeySet
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJWKS, err)
	}

	keys := make(KeySet, len(set.Keys))
	for _, jwk := range set.Keys {
		key, ok := jwk.Key.(*rsa.PublicKey)
		if !ok {
			continue
		}
		keys[jwk.KeyID] = key
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no RSA keys", ErrInvalidJWKS)
	}
	return keys, nil
}

// JWKSURL returns the well-known JWKS location of a Saleor instance.
func JWKSURL(saleorAPIURL string) (string, error) {
	u, err := url.Parse(saleorAPIURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("auth: invalid saleor api url %q", saleorAPIURL)
	}
	return u.Scheme + "://" + u.Host + "/.well-known/jwks.json", nil
}

// JWKSProvider fetches the current JWKS of a Saleor instance.
type JWKSProvider interface {
	Fetch(ctx context.Context, saleorAPIURL string) (string, error)
}

// JWKSFetcher downloads JWKS documents over HTTP.
type JWKSFetcher struct {
	httpClient *http.Client
}

// NewJWKSFetcher creates a fetcher. httpClient may be nil.
func NewJWKSFetcher(httpClient *http.Client) *JWKSFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &JWKSFetcher{httpClient: httpClient}
}

func (f *JWKSFetcher) Fetch(ctx context.Context, saleorAPIURL string) (string, error) {
	jwksURL, err := JWKSURL(saleorAPIURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return "", fmt.Errorf("auth: failed to create request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth: fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSSize))
	if err != nil {
		return "", fmt.Errorf("auth: read JWKS: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth: fetch JWKS: HTTP %d", resp.StatusCode)
	}
	if _, err := ParseJWKS(string(body)); err != nil {
		return "", err
	}
	return string(body), nil
}
