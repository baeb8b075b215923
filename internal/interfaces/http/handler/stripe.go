package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	stripeapp "github.com/trieb-work/saleor-apps/internal/application/stripe"
	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	domain "github.com/trieb-work/saleor-apps/internal/domain/stripe"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/dto"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/middleware"
)

// Stripe webhook request parameters
const (
	StripeSignatureHeader  = "Stripe-Signature"
	StripeSaleorAPIURLArg  = "saleorApiUrl"
	StripeConfigurationArg = "configurationId"
)

// Stripe payloads are small; larger bodies are rejected before verification.
const maxStripePayloadSize = 65536

// StripeService is the part of the Stripe app the handlers use
type StripeService interface {
	TransactionInitializeSession(ctx context.Context, authData *apl.AuthData, event saleor.TransactionSessionEvent) (*saleor.TransactionSessionResponse, error)
	TransactionProcessSession(ctx context.Context, authData *apl.AuthData, event saleor.TransactionSessionEvent) (*saleor.TransactionSessionResponse, error)
	TransactionChargeRequested(ctx context.Context, authData *apl.AuthData, event saleor.TransactionChargeRequestedEvent) (*saleor.TransactionSessionResponse, error)
	HandleStripeWebhook(ctx context.Context, authData *apl.AuthData, configID string, payload []byte, signature string) (*stripeapp.WebhookResult, error)
	ListConfigs(ctx context.Context, authData *apl.AuthData) (*stripeapp.ConfigsView, error)
	CreateConfig(ctx context.Context, authData *apl.AuthData, in stripeapp.CreateConfigInput) (*domain.FrontendConfig, error)
	DeleteConfig(ctx context.Context, authData *apl.AuthData, configID string) error
	BindChannel(ctx context.Context, authData *apl.AuthData, channelID, configID string) error
}

// StripeHandler serves the Stripe app transaction webhooks, the Stripe
// webhook endpoint and the configuration API
type StripeHandler struct {
	BaseHandler
	service StripeService
}

// NewStripeHandler creates a new StripeHandler
func NewStripeHandler(service StripeService, log *zap.Logger) *StripeHandler {
	return &StripeHandler{BaseHandler: NewBaseHandler(log), service: service}
}

func (h *StripeHandler) transactionReply(c *gin.Context, resp *saleor.TransactionSessionResponse, err error) {
	if err != nil {
		h.WebhookResult(c, err)
		return
	}
	h.Log(c).Info("Transaction webhook handled",
		zap.String("result", resp.Result),
		zap.String("psp_reference", resp.PSPReference),
	)
	c.JSON(http.StatusOK, resp)
}

func (h *StripeHandler) sessionEvent(c *gin.Context) (*apl.AuthData, *saleor.TransactionSessionEvent) {
	authData := h.authData(c)
	if authData == nil {
		return nil, nil
	}
	var event saleor.TransactionSessionEvent
	if err := json.Unmarshal(middleware.GetRawBody(c), &event); err != nil {
		h.WebhookResult(c, invalidPayload(err))
		return nil, nil
	}
	return authData, &event
}

// TransactionInitializeSession answers TRANSACTION_INITIALIZE_SESSION.
func (h *StripeHandler) TransactionInitializeSession(c *gin.Context) {
	authData, event := h.sessionEvent(c)
	if event == nil {
		return
	}
	resp, err := h.service.TransactionInitializeSession(c.Request.Context(), authData, *event)
	h.transactionReply(c, resp, err)
}

// TransactionProcessSession answers TRANSACTION_PROCESS_SESSION.
func (h *StripeHandler) TransactionProcessSession(c *gin.Context) {
	authData, event := h.sessionEvent(c)
	if event == nil {
		return
	}
	resp, err := h.service.TransactionProcessSession(c.Request.Context(), authData, *event)
	h.transactionReply(c, resp, err)
}

// TransactionChargeRequested answers TRANSACTION_CHARGE_REQUESTED.
func (h *StripeHandler) TransactionChargeRequested(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var event saleor.TransactionChargeRequestedEvent
	if err := json.Unmarshal(middleware.GetRawBody(c), &event); err != nil {
		h.WebhookResult(c, invalidPayload(err))
		return
	}
	resp, err := h.service.TransactionChargeRequested(c.Request.Context(), authData, event)
	h.transactionReply(c, resp, err)
}

// StripeWebhook receives payment intent events from Stripe. The installation
// and configuration come from the query string of the registered endpoint.
func (h *StripeHandler) StripeWebhook(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	log := h.Log(c)

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxStripePayloadSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewMessageResponse("Failed to read request body"))
		return
	}
	if len(payload) > maxStripePayloadSize {
		c.JSON(http.StatusRequestEntityTooLarge, dto.NewMessageResponse("Payload too large"))
		return
	}
	signature := c.GetHeader(StripeSignatureHeader)
	if signature == "" {
		c.JSON(http.StatusUnauthorized, dto.NewMessageResponse("Missing Stripe-Signature header"))
		return
	}
	configID := c.Query(StripeConfigurationArg)
	if configID == "" {
		c.JSON(http.StatusBadRequest, dto.NewMessageResponse("Missing configurationId query parameter"))
		return
	}

	result, err := h.service.HandleStripeWebhook(c.Request.Context(), authData, configID, payload, signature)
	if appErr, ok := shared.AsAppError(err); ok && appErr.Code == stripeapp.CodeInvalidSignature {
		log.Warn("Stripe webhook signature verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, dto.NewMessageResponse(appErr.Message))
		return
	}
	if err != nil {
		h.WebhookResult(c, err)
		return
	}
	log.Info("Stripe webhook handled",
		zap.String("stripe_event_id", result.EventID),
		zap.Bool("already_processed", result.AlreadyProcessed),
	)
	c.JSON(http.StatusOK, result)
}

// ListConfigs returns the masked Stripe configurations and channel mapping
// @Summary      List Stripe configurations
// @Description  Configurations with masked restricted keys and the channel mapping
// @Tags         stripe
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Success      200 {object} dto.Response{data=stripeapp.ConfigsView}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/stripe/configs [get]
func (h *StripeHandler) ListConfigs(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	view, err := h.service.ListConfigs(c.Request.Context(), authData)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// CreateConfig registers the Stripe webhook endpoint and stores the keys
// @Summary      Create Stripe configuration
// @Description  Registers the Stripe webhook endpoint and stores the keys
// @Tags         stripe
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        request body stripeapp.CreateConfigInput true "Stripe keys"
// @Success      201 {object} dto.Response{data=domain.FrontendConfig}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/stripe/configs [post]
func (h *StripeHandler) CreateConfig(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var req stripeapp.CreateConfigInput
	if !h.bindJSON(c, &req) {
		return
	}
	cfg, err := h.service.CreateConfig(c.Request.Context(), authData, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, cfg)
}

// DeleteConfig removes a configuration and its Stripe webhook endpoint
// @Summary      Delete Stripe configuration
// @Description  Removes a configuration and its Stripe webhook endpoint
// @Tags         stripe
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        id path string true "Configuration ID"
// @Success      204
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/stripe/configs/{id} [delete]
func (h *StripeHandler) DeleteConfig(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	if err := h.service.DeleteConfig(c.Request.Context(), authData, c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// BindStripeChannelRequest selects the configuration of a channel
type BindStripeChannelRequest struct {
	ConfigurationID string `json:"configurationId"`
}

// BindChannel maps a channel id to a configuration
// @Summary      Bind channel to configuration
// @Description  Selects the Stripe configuration used for a channel
// @Tags         stripe
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        channelId path string true "Saleor channel ID"
// @Param        request body BindStripeChannelRequest true "Configuration to use"
// @Success      200 {object} dto.Response{data=dto.MessageResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/stripe/channels/{channelId} [put]
func (h *StripeHandler) BindChannel(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var req BindStripeChannelRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.service.BindChannel(c.Request.Context(), authData, c.Param("channelId"), req.ConfigurationID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewMessageResponse("Channel updated"))
}
