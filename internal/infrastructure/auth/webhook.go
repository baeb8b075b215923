package auth

import (
	"context"
	"errors"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/logger"
)

var (
	ErrMissingSignature = errors.New("auth: missing webhook signature")
	ErrInvalidSignature = errors.New("auth: invalid webhook signature")
)

// WebhookVerifier checks the detached JWS Saleor puts in the saleor-signature header.
type WebhookVerifier struct {
	apl    apl.APL
	jwks   JWKSProvider
	logger *zap.Logger
}

// NewWebhookVerifier creates a verifier. Refreshed key sets are written back to store.
func NewWebhookVerifier(store apl.APL, jwks JWKSProvider, log *zap.Logger) *WebhookVerifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookVerifier{apl: store, jwks: jwks, logger: log}
}

// Verify checks signature against body. When the stored JWKS does not verify
// the payload, the JWKS is fetched once more, since Saleor may have rotated keys.
func (v *WebhookVerifier) Verify(ctx context.Context, authData *apl.AuthData, body []byte, signature string) error {
	if signature == "" {
		return ErrMissingSignature
	}

	if authData.JWKS != "" {
		if err := verifyDetached(authData.JWKS, body, signature); err == nil {
			return nil
		}
	}

	fresh, err := v.jwks.Fetch(ctx, authData.SaleorAPIURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if err := verifyDetached(fresh, body, signature); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	updated := *authData
	updated.JWKS = fresh
	if err := v.apl.Set(ctx, updated); err != nil {
		logger.WithLogger(ctx, v.logger).Warn("Failed to store refreshed JWKS", zap.Error(err))
	}
	authData.JWKS = fresh
	return nil
}

// signatureAlgorithms are the JWS algorithms Saleor signs webhooks with.
var signatureAlgorithms = []jose.SignatureAlgorithm{jose.RS256}

// verifyDetached verifies a compact JWS with an empty payload segment against
// body. Both base64url and unencoded (b64=false) payloads are accepted.
func verifyDetached(jwks string, body []byte, signature string) error {
	jws, err := jose.ParseDetached(signature, body, signatureAlgorithms)
	if err != nil {
		return fmt.Errorf("parse detached JWS: %w", err)
	}
	if len(jws.Signatures) != 1 {
		return errors.New("expected exactly one signature")
	}

	keys, err := ParseJWKS(jwks)
	if err != nil {
		return err
	}
	key, err := keys.Lookup(jws.Signatures[0].Protected.KeyID)
	if err != nil {
		return err
	}
	if _, err := jws.Verify(key); err != nil {
		return fmt.Errorf("verify JWS: %w", err)
	}
	return nil
}
