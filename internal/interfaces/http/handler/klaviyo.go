package handler

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	domain "github.com/trieb-work/saleor-apps/internal/domain/klaviyo"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/middleware"
)

// KlaviyoService is the part of the Klaviyo app the handlers use
type KlaviyoService interface {
	TrackEvent(ctx context.Context, authData *apl.AuthData, event string, payload json.RawMessage) error
	GetConfig(ctx context.Context, authData *apl.AuthData) (*domain.Config, error)
	SetConfig(ctx context.Context, authData *apl.AuthData, cfg domain.Config) (*domain.Config, error)
}

// KlaviyoHandler serves the Klaviyo app webhooks and configuration API
type KlaviyoHandler struct {
	BaseHandler
	service KlaviyoService
}

// NewKlaviyoHandler creates a new KlaviyoHandler
func NewKlaviyoHandler(service KlaviyoService, log *zap.Logger) *KlaviyoHandler {
	return &KlaviyoHandler{BaseHandler: NewBaseHandler(log), service: service}
}

// Webhook returns the handler tracking one Saleor event in Klaviyo.
func (h *KlaviyoHandler) Webhook(event string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authData := h.authData(c)
		if authData == nil {
			return
		}
		body := middleware.GetRawBody(c)
		if !json.Valid(body) {
			h.WebhookResult(c, invalidPayload(nil))
			return
		}
		h.WebhookResult(c, h.service.TrackEvent(c.Request.Context(), authData, event, body))
	}
}

// GetConfig returns the public token and event settings
// @Summary      Get Klaviyo configuration
// @Description  Public token and per event settings
// @Tags         klaviyo
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Success      200 {object} dto.Response{data=domain.Config}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/klaviyo/config [get]
func (h *KlaviyoHandler) GetConfig(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	cfg, err := h.service.GetConfig(c.Request.Context(), authData)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cfg)
}

// SetConfig replaces the configuration
// @Summary      Set Klaviyo configuration
// @Description  Replaces the public token and event settings
// @Tags         klaviyo
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        request body domain.Config true "Configuration"
// @Success      200 {object} dto.Response{data=domain.Config}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/klaviyo/config [put]
func (h *KlaviyoHandler) SetConfig(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var req domain.Config
	if !h.bindJSON(c, &req) {
		return
	}
	cfg, err := h.service.SetConfig(c.Request.Context(), authData, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cfg)
}
