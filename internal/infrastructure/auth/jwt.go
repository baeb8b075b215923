package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
)

// PermissionManageApps is required to open an app's configuration
const PermissionManageApps = "MANAGE_APPS"

// Common errors
var (
	ErrMissingToken            = errors.New("auth: missing dashboard token")
	ErrInvalidToken            = errors.New("auth: invalid token")
	ErrExpiredToken            = errors.New("auth: token has expired")
	ErrTokenNotYetValid        = errors.New("auth: token is not yet valid")
	ErrTokenAppMismatch        = errors.New("auth: token was issued for a different app")
	ErrInsufficientPermissions = errors.New("auth: insufficient permissions")
)

// Claims of the token the Saleor dashboard hands to an app iframe.
type Claims struct {
	jwt.RegisteredClaims
	App             string   `json:"app"`
	UserID          string   `json:"user_id,omitempty"`
	Email           string   `json:"email,omitempty"`
	IsStaff         bool     `json:"is_staff,omitempty"`
	UserPermissions []string `json:"user_permissions"`
	Type            string   `json:"type,omitempty"`
}

// HasPermission checks if the claims contain a specific permission
func (c *Claims) HasPermission(permission string) bool {
	for _, p := range c.UserPermissions {
		if p == permission {
			return true
		}
	}
	return false
}

// HasAllPermissions checks if the claims contain all of the specified permissions
func (c *Claims) HasAllPermissions(permissions ...string) bool {
	for _, required := range permissions {
		if !c.HasPermission(required) {
			return false
		}
	}
	return true
}

// TokenVerifier validates dashboard tokens against the instance JWKS.
type TokenVerifier struct {
	jwks                JWKSProvider
	requiredPermissions []string
}

// NewTokenVerifier creates a verifier. Without explicit permissions MANAGE_APPS is required.
func NewTokenVerifier(jwks JWKSProvider, requiredPermissions ...string) *TokenVerifier {
	if len(requiredPermissions) == 0 {
		requiredPermissions = []string{PermissionManageApps}
	}
	return &TokenVerifier{jwks: jwks, requiredPermissions: requiredPermissions}
}

// Verify parses token with the stored JWKS, falling back to a freshly fetched one.
func (v *TokenVerifier) Verify(ctx context.Context, authData *apl.AuthData, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	claims, err := parseToken(token, authData.JWKS)
	if err != nil && !errors.Is(err, ErrExpiredToken) && !errors.Is(err, ErrTokenNotYetValid) {
		fresh, fetchErr := v.jwks.Fetch(ctx, authData.SaleorAPIURL)
		if fetchErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, fetchErr)
		}
		claims, err = parseToken(token, fresh)
	}
	if err != nil {
		return nil, err
	}

	if claims.App != authData.AppID {
		return nil, ErrTokenAppMismatch
	}
	if !claims.HasAllPermissions(v.requiredPermissions...) {
		return nil, ErrInsufficientPermissions
	}
	return claims, nil
}

func parseToken(tokenString, jwks string) (*Claims, error) {
	keys, err := ParseJWKS(jwks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrInvalidToken
		}
		kid, _ := token.Header["kid"].(string)
		return keys.Lookup(kid)
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
