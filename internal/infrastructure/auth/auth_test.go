package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
)

// =============================================================================
// Helpers
// =============================================================================

type testKey struct {
	kid  string
	priv *rsa.PrivateKey
}

func newTestKey(t *testing.T, kid string) testKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return testKey{kid: kid, priv: priv}
}

func (k testKey) jwks(t *testing.T) string {
	t.Helper()
	doc := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": k.kid,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(k.priv.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.priv.E)).Bytes()),
		}},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(raw)
}

func (k testKey) signDetached(t *testing.T, body []byte, unencoded bool) string {
	t.Helper()
	header := map[string]any{"alg": "RS256", "kid": k.kid}
	if unencoded {
		header["b64"] = false
		header["crit"] = []string{"b64"}
	}
	rawHeader, err := json.Marshal(header)
	require.NoError(t, err)
	h := base64.RawURLEncoding.EncodeToString(rawHeader)

	payload := base64.RawURLEncoding.EncodeToString(body)
	if unencoded {
		payload = string(body)
	}
	sig, err := jwt.SigningMethodRS256.Sign(h+"."+payload, k.priv)
	require.NoError(t, err)
	return h + ".." + base64.RawURLEncoding.EncodeToString(sig)
}

func (k testKey) token(t *testing.T, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = k.kid
	s, err := tok.SignedString(k.priv)
	require.NoError(t, err)
	return s
}

func hmacDetached(t *testing.T, body []byte, kid string) string {
	t.Helper()
	rawHeader, err := json.Marshal(map[string]any{"alg": "HS256", "kid": kid})
	require.NoError(t, err)
	h := base64.RawURLEncoding.EncodeToString(rawHeader)
	sig, err := jwt.SigningMethodHS256.Sign(h+"."+base64.RawURLEncoding.EncodeToString(body), []byte("secret"))
	require.NoError(t, err)
	return h + ".." + base64.RawURLEncoding.EncodeToString(sig)
}

type stubJWKS struct {
	jwks  string
	err   error
	calls int
}

func (s *stubJWKS) Fetch(context.Context, string) (string, error) {
	s.calls++
	return s.jwks, s.err
}

type memoryAPL struct {
	mu   sync.Mutex
	data map[string]apl.AuthData
}

func newMemoryAPL() *memoryAPL { return &memoryAPL{data: map[string]apl.AuthData{}} }

func (m *memoryAPL) Get(_ context.Context, url string) (*apl.AuthData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[url]
	if !ok {
		return nil, apl.ErrAuthDataNotFound
	}
	return &d, nil
}
func (m *memoryAPL) Set(_ context.Context, d apl.AuthData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[d.SaleorAPIURL] = d
	return nil
}
func (m *memoryAPL) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, url)
	return nil
}
func (m *memoryAPL) GetAll(context.Context) ([]apl.AuthData, error) { return nil, nil }
func (m *memoryAPL) IsReady(context.Context) error                  { return nil }
func (m *memoryAPL) IsConfigured(context.Context) error             { return nil }

const testSaleorURL = "https://demo.saleor.cloud/graphql/"

// =============================================================================
// JWKS
// =============================================================================

func TestParseJWKS(t *testing.T) {
	key := newTestKey(t, "key-1")

	keys, err := ParseJWKS(key.jwks(t))
	require.NoError(t, err)
	got, err := keys.Lookup("key-1")
	require.NoError(t, err)
	assert.Equal(t, key.priv.PublicKey.N, got.N)
	assert.Equal(t, key.priv.PublicKey.E, got.E)

	_, err = keys.Lookup("")
	assert.NoError(t, err, "single key is used when kid is absent")
	_, err = keys.Lookup("other")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	for name, raw := range map[string]string{
		"not json": "nope",
		"no keys":  `{"keys":[]}`,
		"only ec":  `{"keys":[{"kty":"EC","kid":"x"}]}`,
		"bad n":    `{"keys":[{"kty":"RSA","kid":"x","n":"***","e":"AQAB"}]}`,
		"zero e":   `{"keys":[{"kty":"RSA","kid":"x","n":"AQAB","e":""}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseJWKS(raw)
			assert.ErrorIs(t, err, ErrInvalidJWKS)
		})
	}
}

func TestJWKSURL(t *testing.T) {
	got, err := JWKSURL("https://demo.saleor.cloud/graphql/")
	require.NoError(t, err)
	assert.Equal(t, "https://demo.saleor.cloud/.well-known/jwks.json", got)

	_, err = JWKSURL("::")
	assert.Error(t, err)
}

func TestJWKSFetcher(t *testing.T) {
	key := newTestKey(t, "k")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(key.jwks(t)))
	}))
	defer srv.Close()

	f := NewJWKSFetcher(srv.Client())
	got, err := f.Fetch(context.Background(), srv.URL+"/graphql/")
	require.NoError(t, err)
	assert.JSONEq(t, key.jwks(t), got)

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()
	_, err = f.Fetch(context.Background(), broken.URL+"/graphql/")
	assert.ErrorContains(t, err, "HTTP 502")
}

// =============================================================================
// Webhook signatures
// =============================================================================

func TestWebhookVerifier_StoredJWKS(t *testing.T) {
	key := newTestKey(t, "k1")
	fetcher := &stubJWKS{}
	v := NewWebhookVerifier(newMemoryAPL(), fetcher, zaptest.NewLogger(t))
	body := []byte(`{"order":{"id":"T3JkZXI6MQ=="}}`)
	authData := &apl.AuthData{SaleorAPIURL: testSaleorURL, Token: "t", AppID: "a", JWKS: key.jwks(t)}

	for _, unencoded := range []bool{false, true} {
		require.NoError(t, v.Verify(context.Background(), authData, body, key.signDetached(t, body, unencoded)))
	}
	assert.Zero(t, fetcher.calls)
}

func TestWebhookVerifier_RefreshesRotatedKeys(t *testing.T) {
	oldKey := newTestKey(t, "old")
	newKey := newTestKey(t, "new")
	store := newMemoryAPL()
	fetcher := &stubJWKS{jwks: newKey.jwks(t)}
	v := NewWebhookVerifier(store, fetcher, zaptest.NewLogger(t))

	authData := &apl.AuthData{SaleorAPIURL: testSaleorURL, Token: "t", AppID: "a", JWKS: oldKey.jwks(t)}
	body := []byte(`{}`)

	require.NoError(t, v.Verify(context.Background(), authData, body, newKey.signDetached(t, body, true)))
	assert.Equal(t, 1, fetcher.calls)

	stored, err := store.Get(context.Background(), testSaleorURL)
	require.NoError(t, err)
	assert.Equal(t, newKey.jwks(t), stored.JWKS)
}

func TestWebhookVerifier_Rejects(t *testing.T) {
	key := newTestKey(t, "k1")
	other := newTestKey(t, "k1")
	body := []byte(`{"a":1}`)
	authData := &apl.AuthData{SaleorAPIURL: testSaleorURL, JWKS: key.jwks(t)}

	tests := []struct {
		name      string
		signature string
		fetcher   *stubJWKS
		wantErr   error
	}{
		{"missing", "", &stubJWKS{}, ErrMissingSignature},
		{"wrong key", other.signDetached(t, body, false), &stubJWKS{jwks: key.jwks(t)}, ErrInvalidSignature},
		{"tampered body", key.signDetached(t, []byte(`{"a":2}`), false), &stubJWKS{jwks: key.jwks(t)}, ErrInvalidSignature},
		{"not detached", "a.b.c", &stubJWKS{jwks: key.jwks(t)}, ErrInvalidSignature},
		{"hmac alg", hmacDetached(t, body, key.kid), &stubJWKS{jwks: key.jwks(t)}, ErrInvalidSignature},
		{"fetch fails", other.signDetached(t, body, false), &stubJWKS{err: errors.New("offline")}, ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewWebhookVerifier(newMemoryAPL(), tt.fetcher, nil)
			err := v.Verify(context.Background(), authData, body, tt.signature)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWebhookVerifier_UnencodedPayloadSignedByJose(t *testing.T) {
	key := newTestKey(t, "k1")
	body := []byte(`{"checkout":{"id":"Q2hlY2tvdXQ6MQ==","totalPrice":{"gross":{"amount":12.5}}}}`)

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: jose.JSONWebKey{Key: key.priv, KeyID: key.kid}},
		(&jose.SignerOptions{}).WithBase64(false),
	)
	require.NoError(t, err)
	obj, err := signer.Sign(body)
	require.NoError(t, err)
	signature, err := obj.DetachedCompactSerialize()
	require.NoError(t, err)

	fetcher := &stubJWKS{jwks: key.jwks(t)}
	v := NewWebhookVerifier(newMemoryAPL(), fetcher, zaptest.NewLogger(t))
	authData := &apl.AuthData{SaleorAPIURL: testSaleorURL, JWKS: key.jwks(t)}

	require.NoError(t, v.Verify(context.Background(), authData, body, signature))
	assert.Zero(t, fetcher.calls)

	err = v.Verify(context.Background(), authData, []byte(`{"checkout":{}}`), signature)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

// =============================================================================
// Dashboard tokens
// =============================================================================

func validClaims() Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "demo.saleor.cloud",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		App:             "QXBwOjE=",
		Email:           "staff@example.com",
		UserPermissions: []string{"MANAGE_APPS", "MANAGE_ORDERS"},
		Type:            "thirdparty",
	}
}

func TestTokenVerifier(t *testing.T) {
	key := newTestKey(t, "k1")
	authData := &apl.AuthData{SaleorAPIURL: testSaleorURL, AppID: "QXBwOjE=", JWKS: key.jwks(t)}

	t.Run("valid", func(t *testing.T) {
		v := NewTokenVerifier(&stubJWKS{})
		claims, err := v.Verify(context.Background(), authData, key.token(t, validClaims()))
		require.NoError(t, err)
		assert.Equal(t, "staff@example.com", claims.Email)
	})

	t.Run("rotated key is fetched", func(t *testing.T) {
		newKey := newTestKey(t, "k2")
		fetcher := &stubJWKS{jwks: newKey.jwks(t)}
		v := NewTokenVerifier(fetcher)
		_, err := v.Verify(context.Background(), authData, newKey.token(t, validClaims()))
		require.NoError(t, err)
		assert.Equal(t, 1, fetcher.calls)
	})

	tests := []struct {
		name    string
		mutate  func(*Claims)
		token   string
		wantErr error
	}{
		{"missing", nil, "-", ErrMissingToken},
		{"garbage", nil, "not.a.jwt", ErrInvalidToken},
		{"expired", func(c *Claims) { c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute)) }, "", ErrExpiredToken},
		{"other app", func(c *Claims) { c.App = "QXBwOjI=" }, "", ErrTokenAppMismatch},
		{"no manage apps", func(c *Claims) { c.UserPermissions = []string{"MANAGE_ORDERS"} }, "", ErrInsufficientPermissions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := tt.token
			if tt.mutate != nil {
				c := validClaims()
				tt.mutate(&c)
				token = key.token(t, c)
			}
			if token == "-" {
				token = ""
			}
			v := NewTokenVerifier(&stubJWKS{jwks: key.jwks(t)})
			_, err := v.Verify(context.Background(), authData, token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClaims_Permissions(t *testing.T) {
	c := validClaims()
	assert.True(t, c.HasPermission("MANAGE_APPS"))
	assert.False(t, c.HasPermission("MANAGE_USERS"))
	assert.True(t, c.HasAllPermissions("MANAGE_APPS", "MANAGE_ORDERS"))
	assert.False(t, c.HasAllPermissions("MANAGE_APPS", "MANAGE_USERS"))
}
