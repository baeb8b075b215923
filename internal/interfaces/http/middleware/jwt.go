package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/auth"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/logger"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/dto"
)

// Dashboard token context keys
const (
	JWTClaimsKey  = "jwt_claims"
	JWTUserIDKey  = "jwt_user_id"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenVerifier validates a dashboard token for an installation
type TokenVerifier interface {
	Verify(ctx context.Context, authData *apl.AuthData, token string) (*auth.Claims, error)
}

// DashboardAuthConfig configures the DashboardAuth middleware
type DashboardAuthConfig struct {
	Verifier TokenVerifier
	Logger   *zap.Logger
}

// DashboardAuth protects the configuration endpoints the dashboard iframe
// calls. It must run after Tenant. The token comes from authorization-bearer,
// falling back to a standard Authorization: Bearer header.
func DashboardAuth(cfg DashboardAuthConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		authData := GetAuthData(c)
		if authData == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(
				dto.ErrCodeUnauthorized, "Missing auth data",
			))
			return
		}

		claims, err := cfg.Verifier.Verify(ctx, authData, extractToken(c))
		if err != nil {
			logger.WithLogger(ctx, log).Warn("Dashboard token rejected", zap.Error(err))
			status, code := http.StatusUnauthorized, dto.ErrCodeUnauthorized
			if errors.Is(err, auth.ErrInsufficientPermissions) || errors.Is(err, auth.ErrTokenAppMismatch) {
				status, code = http.StatusForbidden, dto.ErrCodeForbidden
			}
			c.AbortWithStatusJSON(status, dto.NewErrorResponse(code, tokenErrorMessage(err)))
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTUserIDKey, claims.UserID)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if token := strings.TrimSpace(c.GetHeader(HeaderAuthorizationBearer)); token != "" {
		return token
	}
	header := c.GetHeader(AuthHeaderKey)
	if strings.HasPrefix(header, BearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	}
	return ""
}

func tokenErrorMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return "Missing authorization-bearer header"
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token has expired"
	case errors.Is(err, auth.ErrTokenAppMismatch):
		return "Token was issued for a different app"
	case errors.Is(err, auth.ErrInsufficientPermissions):
		return "Insufficient permissions"
	default:
		return "Invalid token"
	}
}

// GetClaims returns the verified dashboard claims, or nil.
func GetClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(JWTClaimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}
