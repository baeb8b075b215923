package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/logger"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/dto"
)

// Headers Saleor and the dashboard send with every request
const (
	HeaderSaleorAPIURL        = "Saleor-Api-Url"
	HeaderSaleorDomain        = "Saleor-Domain"
	HeaderSaleorEvent         = "Saleor-Event"
	HeaderSaleorSignature     = "Saleor-Signature"
	HeaderSaleorSchemaVersion = "Saleor-Schema-Version"
	HeaderAuthorizationBearer = "Authorization-Bearer"
)

// Tenant context keys
const (
	SaleorAPIURLKey = "saleor_api_url"
	AuthDataKey     = "saleor_auth_data"
)

// TenantConfig configures the Tenant middleware
type TenantConfig struct {
	APL apl.APL
	// QueryParam is read when the headers are absent. Vendor callbacks such as
	// Stripe webhooks carry the Saleor API URL in the query string.
	QueryParam string
	Logger     *zap.Logger
}

// SaleorAPIURL returns the Saleor API URL a request belongs to. Older Saleor
// versions only send saleor-domain, which is turned into the default API URL.
func SaleorAPIURL(c *gin.Context, queryParam string) string {
	if u := strings.TrimSpace(c.GetHeader(HeaderSaleorAPIURL)); u != "" {
		return u
	}
	if queryParam != "" {
		if u := strings.TrimSpace(c.Query(queryParam)); u != "" {
			return u
		}
	}
	if d := strings.TrimSpace(c.GetHeader(HeaderSaleorDomain)); d != "" {
		return "https://" + d + "/graphql/"
	}
	return ""
}

// Tenant resolves the auth data of the calling Saleor instance from the APL.
// Unknown instances get 401, APL failures 500.
func Tenant(cfg TenantConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		saleorAPIURL := SaleorAPIURL(c, cfg.QueryParam)
		if saleorAPIURL == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(
				dto.ErrCodeBadRequest, "Missing saleor-api-url header",
			))
			return
		}

		ctx := logger.WithTenant(c.Request.Context(), saleorAPIURL)
		c.Request = c.Request.WithContext(ctx)
		c.Set(SaleorAPIURLKey, saleorAPIURL)

		authData, err := cfg.APL.Get(ctx, saleorAPIURL)
		if err != nil {
			if errors.Is(err, apl.ErrAuthDataNotFound) {
				logger.WithLogger(ctx, log).Warn("Auth data not found for Saleor instance")
				c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(
					dto.ErrCodeUnauthorized, "Can't find auth data for saleorApiUrl "+saleorAPIURL+". Please register the application",
				))
				return
			}
			logger.WithLogger(ctx, log).Error("Failed to load auth data", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, dto.NewErrorResponse(
				dto.ErrCodeInternal, "Failed to load auth data",
			))
			return
		}

		c.Set(AuthDataKey, authData)
		c.Next()
	}
}

// GetAuthData returns the auth data resolved by Tenant, or nil.
func GetAuthData(c *gin.Context) *apl.AuthData {
	if v, ok := c.Get(AuthDataKey); ok {
		if data, ok := v.(*apl.AuthData); ok {
			return data
		}
	}
	return nil
}

// GetSaleorAPIURL returns the Saleor API URL resolved by Tenant, or "".
func GetSaleorAPIURL(c *gin.Context) string {
	return c.GetString(SaleorAPIURLKey)
}
