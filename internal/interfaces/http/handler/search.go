package handler

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	searchapp "github.com/trieb-work/saleor-apps/internal/application/search"
	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	domain "github.com/trieb-work/saleor-apps/internal/domain/search"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/dto"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/middleware"
)

// SearchService is the part of the search app the handlers use
type SearchService interface {
	HandleProductEvent(ctx context.Context, authData *apl.AuthData, event string, payload json.RawMessage) (*searchapp.SyncResult, error)
	GetConfig(ctx context.Context, authData *apl.AuthData) (*domain.Config, error)
	SetConfig(ctx context.Context, authData *apl.AuthData, cfg domain.Config) error
}

// SearchHandler serves the search app webhooks and configuration API
type SearchHandler struct {
	BaseHandler
	service SearchService
}

// NewSearchHandler creates a new SearchHandler
func NewSearchHandler(service SearchService, log *zap.Logger) *SearchHandler {
	return &SearchHandler{BaseHandler: NewBaseHandler(log), service: service}
}

// Webhook returns the handler syncing one product event to Algolia.
func (h *SearchHandler) Webhook(event string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authData := h.authData(c)
		if authData == nil {
			return
		}
		result, err := h.service.HandleProductEvent(c.Request.Context(), authData, event, middleware.GetRawBody(c))
		if err == nil && result != nil {
			h.Log(c).Info("Synced product event",
				zap.String("event", event),
				zap.Int("saved", result.Saved),
				zap.Int("deleted", result.Deleted),
			)
		}
		h.WebhookResult(c, err)
	}
}

// GetConfig returns the Algolia configuration with a masked secret
// @Summary      Get Algolia configuration
// @Description  Algolia credentials with a masked secret key
// @Tags         search
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Success      200 {object} dto.Response{data=domain.Config}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/search/config [get]
func (h *SearchHandler) GetConfig(c *gin.Context) {
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

// SetConfig checks the Algolia credentials and stores them
// @Summary      Set Algolia configuration
// @Description  Checks the Algolia credentials and stores them
// @Tags         search
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        request body domain.Config true "Algolia credentials"
// @Success      200 {object} dto.Response{data=dto.MessageResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/search/config [put]
func (h *SearchHandler) SetConfig(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var req domain.Config
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.service.SetConfig(c.Request.Context(), authData, req); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewMessageResponse("Configuration saved"))
}
