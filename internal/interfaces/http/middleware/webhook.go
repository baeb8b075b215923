package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/logger"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/dto"
)

// Webhook context keys
const (
	RawBodyKey      = "saleor_webhook_body"
	WebhookEventKey = "saleor_webhook_event"
)

// WebhookVerifier checks the saleor-signature header of a delivery
type WebhookVerifier interface {
	Verify(ctx context.Context, authData *apl.AuthData, body []byte, signature string) error
}

// WebhookConfig configures the SaleorWebhook middleware
type WebhookConfig struct {
	Verifier    WebhookVerifier
	MaxBodySize int64
	Logger      *zap.Logger
}

// SaleorWebhook verifies a Saleor webhook delivery. It must run after Tenant.
// The verified body is kept in the context and restored on the request.
func SaleorWebhook(cfg WebhookConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxBody := cfg.MaxBodySize
	if maxBody <= 0 {
		maxBody = 5 << 20
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

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBody+1))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(
				dto.ErrCodeBadRequest, "Failed to read request body",
			))
			return
		}
		if int64(len(body)) > maxBody {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponse(
				dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size",
			))
			return
		}

		event := c.GetHeader(HeaderSaleorEvent)
		reqLog := logger.WithLogger(ctx, log).With(zap.String("saleor_event", event))

		if err := cfg.Verifier.Verify(ctx, authData, body, c.GetHeader(HeaderSaleorSignature)); err != nil {
			reqLog.Warn("Webhook signature verification failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(
				dto.ErrCodeUnauthorized, "Signature verification failed",
			))
			return
		}

		c.Set(RawBodyKey, body)
		c.Set(WebhookEventKey, event)
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

// GetRawBody returns the verified webhook body, or nil.
func GetRawBody(c *gin.Context) []byte {
	if v, ok := c.Get(RawBodyKey); ok {
		if body, ok := v.([]byte); ok {
			return body
		}
	}
	return nil
}

// GetWebhookEvent returns the saleor-event header of a verified delivery.
func GetWebhookEvent(c *gin.Context) string {
	return c.GetString(WebhookEventKey)
}
