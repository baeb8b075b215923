package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	avataxapp "github.com/trieb-work/saleor-apps/internal/application/avatax"
	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	domain "github.com/trieb-work/saleor-apps/internal/domain/avatax"
	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
	avataxapi "github.com/trieb-work/saleor-apps/internal/infrastructure/avatax"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/logger"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/dto"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/middleware"
)

// AvataxService is the part of the AvaTax app the handlers use
type AvataxService interface {
	CalculateTaxes(ctx context.Context, authData *apl.AuthData, event saleor.CalculateTaxesEvent) (*saleor.CalculateTaxesResponse, error)
	OrderConfirmed(ctx context.Context, authData *apl.AuthData, order saleor.Order) (*avataxapi.Transaction, error)
	OrderCancelled(ctx context.Context, authData *apl.AuthData, order saleor.Order) error
	ListConnections(ctx context.Context, authData *apl.AuthData) (*avataxapp.ConnectionsView, error)
	CreateConnection(ctx context.Context, authData *apl.AuthData, conn domain.Connection) (*domain.Connection, error)
	UpdateConnection(ctx context.Context, authData *apl.AuthData, conn domain.Connection) error
	DeleteConnection(ctx context.Context, authData *apl.AuthData, id string) error
	BindChannel(ctx context.Context, authData *apl.AuthData, channelSlug, connectionID string) error
	CheckCredentials(ctx context.Context, authData *apl.AuthData, in avataxapp.CredentialsCheck) error
	ValidateAddress(ctx context.Context, authData *apl.AuthData, connectionID string, address domain.Address) (*avataxapi.AddressResolution, error)
	SearchTaxCodes(ctx context.Context, authData *apl.AuthData, connectionID, filter string) ([]avataxapi.TaxCode, error)
	LookupEntityUseCode(ctx context.Context, authData *apl.AuthData, connectionID, code string) (*avataxapi.EntityUseCode, error)
}

// AvataxHandler serves the AvaTax app webhooks and configuration API
type AvataxHandler struct {
	BaseHandler
	service AvataxService
}

// NewAvataxHandler creates a new AvataxHandler
func NewAvataxHandler(service AvataxService, log *zap.Logger) *AvataxHandler {
	return &AvataxHandler{BaseHandler: NewBaseHandler(log), service: service}
}

// CalculateTaxes answers the CHECKOUT_CALCULATE_TAXES and
// ORDER_CALCULATE_TAXES sync webhooks.
func (h *AvataxHandler) CalculateTaxes(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var event saleor.CalculateTaxesEvent
	if err := json.Unmarshal(middleware.GetRawBody(c), &event); err != nil {
		h.WebhookResult(c, invalidPayload(err))
		return
	}
	ctx := logger.WithChannel(c.Request.Context(), event.TaxBase.Channel.Slug)
	c.Request = c.Request.WithContext(ctx)

	resp, err := h.service.CalculateTaxes(ctx, authData, event)
	if err != nil {
		h.WebhookResult(c, err)
		return
	}
	h.Log(c).Info("Taxes calculated", zap.Int("lines", len(resp.Lines)))
	c.JSON(http.StatusOK, resp)
}

// OrderConfirmed records the order as an AvaTax transaction.
func (h *AvataxHandler) OrderConfirmed(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	order := h.decodeOrder(c)
	if order == nil {
		return
	}
	tx, err := h.service.OrderConfirmed(c.Request.Context(), authData, *order)
	if err == nil && tx != nil {
		h.Log(c).Info("Order committed to AvaTax", zap.String("transaction_code", tx.Code))
	}
	h.WebhookResult(c, err)
}

// OrderCancelled voids the AvaTax transaction of the order.
func (h *AvataxHandler) OrderCancelled(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	order := h.decodeOrder(c)
	if order == nil {
		return
	}
	h.WebhookResult(c, h.service.OrderCancelled(c.Request.Context(), authData, *order))
}

// ListConnections returns the connections with masked passwords and the channel mapping
// @Summary      List AvaTax connections
// @Description  Connections with masked passwords and the channel to connection mapping
// @Tags         avatax
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Success      200 {object} dto.Response{data=avataxapp.ConnectionsView}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/avatax/connections [get]
func (h *AvataxHandler) ListConnections(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	view, err := h.service.ListConnections(c.Request.Context(), authData)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// CreateConnection stores a new connection after checking its credentials
// @Summary      Create AvaTax connection
// @Description  Checks the credentials against AvaTax and stores the connection
// @Tags         avatax
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        request body domain.Connection true "Connection"
// @Success      201 {object} dto.Response{data=domain.Connection}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/avatax/connections [post]
func (h *AvataxHandler) CreateConnection(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var req domain.Connection
	if !h.bindJSON(c, &req) {
		return
	}
	created, err := h.service.CreateConnection(c.Request.Context(), authData, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, created)
}

// UpdateConnection replaces a connection
// @Summary      Update AvaTax connection
// @Description  Replaces a connection. A masked password keeps the stored one
// @Tags         avatax
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        id path string true "Connection ID"
// @Param        request body domain.Connection true "Connection"
// @Success      200 {object} dto.Response{data=dto.MessageResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/avatax/connections/{id} [put]
func (h *AvataxHandler) UpdateConnection(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var req domain.Connection
	if !h.bindJSON(c, &req) {
		return
	}
	req.ID = c.Param("id")
	if err := h.service.UpdateConnection(c.Request.Context(), authData, req); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewMessageResponse("Connection updated"))
}

// DeleteConnection removes a connection
// @Summary      Delete AvaTax connection
// @Description  Removes a connection and its channel bindings
// @Tags         avatax
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        id path string true "Connection ID"
// @Success      204
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/avatax/connections/{id} [delete]
func (h *AvataxHandler) DeleteConnection(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	if err := h.service.DeleteConnection(c.Request.Context(), authData, c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// BindChannelRequest selects the connection of a channel
type BindChannelRequest struct {
	ConnectionID string `json:"connectionId"`
}

// BindChannel maps a channel to a connection
// @Summary      Bind channel to connection
// @Description  Selects the connection used for a channel
// @Tags         avatax
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        slug path string true "Channel slug"
// @Param        request body BindChannelRequest true "Connection to use"
// @Success      200 {object} dto.Response{data=dto.MessageResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/avatax/channels/{slug} [put]
func (h *AvataxHandler) BindChannel(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var req BindChannelRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.service.BindChannel(c.Request.Context(), authData, c.Param("slug"), req.ConnectionID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewMessageResponse("Channel updated"))
}

// CheckCredentials pings AvaTax with unsaved credentials
// @Summary      Check AvaTax credentials
// @Description  Pings AvaTax with credentials that are not saved yet
// @Tags         avatax
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        request body avataxapp.CredentialsCheck true "Credentials"
// @Success      200 {object} dto.Response{data=dto.MessageResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/avatax/credentials/check [post]
func (h *AvataxHandler) CheckCredentials(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var req avataxapp.CredentialsCheck
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.service.CheckCredentials(c.Request.Context(), authData, req); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewMessageResponse("Credentials are valid"))
}

// ValidateAddress resolves the ship-from address of a connection
// @Summary      Validate ship-from address
// @Description  Resolves an address with the AvaTax address resolution API
// @Tags         avatax
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        id path string true "Connection ID"
// @Param        request body domain.Address true "Address to resolve"
// @Success      200 {object} dto.Response{data=avataxapi.AddressResolution}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/avatax/connections/{id}/address-validation [post]
func (h *AvataxHandler) ValidateAddress(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var req domain.Address
	if !h.bindJSON(c, &req) {
		return
	}
	resolution, err := h.service.ValidateAddress(c.Request.Context(), authData, c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resolution)
}

// SearchTaxCodes lists the AvaTax tax codes matching ?filter
// @Summary      Search tax codes
// @Description  Lists the AvaTax tax codes whose code contains the filter
// @Tags         avatax
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        id path string true "Connection ID"
// @Param        filter query string false "Tax code substring"
// @Success      200 {object} dto.Response{data=[]avataxapi.TaxCode}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/avatax/connections/{id}/tax-codes [get]
func (h *AvataxHandler) SearchTaxCodes(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	codes, err := h.service.SearchTaxCodes(c.Request.Context(), authData, c.Param("id"), c.Query("filter"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, codes)
}

// LookupEntityUseCode returns one entity use code
// @Summary      Look up entity use code
// @Description  Returns one AvaTax exemption reason
// @Tags         avatax
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        id path string true "Connection ID"
// @Param        code path string true "Entity use code"
// @Success      200 {object} dto.Response{data=avataxapi.EntityUseCode}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/avatax/connections/{id}/entity-use-codes/{code} [get]
func (h *AvataxHandler) LookupEntityUseCode(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	code, err := h.service.LookupEntityUseCode(c.Request.Context(), authData, c.Param("id"), c.Param("code"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, code)
}
