package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	smtpapp "github.com/trieb-work/saleor-apps/internal/application/smtp"
	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	domain "github.com/trieb-work/saleor-apps/internal/domain/smtp"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/logger"
	smtpapi "github.com/trieb-work/saleor-apps/internal/infrastructure/smtp"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/dto"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/middleware"
)

// SMTPService is the part of the SMTP app the handlers use
type SMTPService interface {
	SendEventMessages(ctx context.Context, authData *apl.AuthData, in smtpapp.SendEventMessagesInput) error
	ListConfigurations(ctx context.Context, authData *apl.AuthData) ([]domain.Configuration, error)
	GetConfiguration(ctx context.Context, authData *apl.AuthData, id string) (*domain.Configuration, error)
	CreateConfiguration(ctx context.Context, authData *apl.AuthData, c domain.Configuration) (*domain.Configuration, error)
	UpdateConfiguration(ctx context.Context, authData *apl.AuthData, c domain.Configuration) error
	DeleteConfiguration(ctx context.Context, authData *apl.AuthData, id string) error
	UpdateEventConfig(ctx context.Context, authData *apl.AuthData, id, event string, ec domain.EventConfig) error
	Preview(ctx context.Context, in smtpapp.PreviewInput) (*smtpapi.Compiled, error)
}

// SMTPHandler serves the SMTP app webhooks and configuration API
type SMTPHandler struct {
	BaseHandler
	service SMTPService
}

// NewSMTPHandler creates a new SMTPHandler
func NewSMTPHandler(service SMTPService, log *zap.Logger) *SMTPHandler {
	return &SMTPHandler{BaseHandler: NewBaseHandler(log), service: service}
}

// smtpPayload covers the order, invoice and gift card subscriptions.
type smtpPayload struct {
	Order       *saleor.Order   `json:"order"`
	SentToEmail string          `json:"sentToEmail"`
	Channel     string          `json:"channel"`
	GiftCard    json.RawMessage `json:"giftCard"`
}

func (p smtpPayload) recipient() string {
	if p.Order != nil {
		if email := p.Order.RecipientEmail(); email != "" {
			return email
		}
	}
	return p.SentToEmail
}

func (p smtpPayload) channelSlug() string {
	if p.Order != nil && p.Order.Channel.Slug != "" {
		return p.Order.Channel.Slug
	}
	return p.Channel
}

// Webhook returns the handler of one SMTP event.
func (h *SMTPHandler) Webhook(event string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authData := h.authData(c)
		if authData == nil {
			return
		}
		body := middleware.GetRawBody(c)

		var payload smtpPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			h.WebhookResult(c, invalidPayload(err))
			return
		}
		if event != saleor.EventGiftCardSent && payload.Order == nil {
			h.Log(c).Info("Request rejected: order data is missing", zap.String("event", event))
			c.Status(http.StatusOK)
			return
		}

		ctx := logger.WithChannel(c.Request.Context(), payload.channelSlug())
		c.Request = c.Request.WithContext(ctx)

		err := h.service.SendEventMessages(ctx, authData, smtpapp.SendEventMessagesInput{
			ChannelSlug:    payload.channelSlug(),
			Event:          event,
			Payload:        body,
			RecipientEmail: payload.recipient(),
		})
		if appErr, ok := shared.AsAppError(err); ok && appErr.Code == smtpapp.CodeMissingRecipient {
			h.Log(c).Info("Email recipient has not been specified in the event payload", zap.String("event", event))
			c.JSON(http.StatusOK, dto.NewMessageError(appErr.Message))
			return
		}
		h.WebhookResult(c, err)
	}
}

// ListConfigurations returns every configuration with masked passwords
// @Summary      List SMTP configurations
// @Description  Configurations with masked SMTP passwords
// @Tags         smtp
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Success      200 {object} dto.Response{data=[]domain.Configuration}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/smtp/configurations [get]
func (h *SMTPHandler) ListConfigurations(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	configs, err := h.service.ListConfigurations(c.Request.Context(), authData)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, configs)
}

// GetConfiguration returns one configuration
// @Summary      Get SMTP configuration
// @Description  Returns one configuration with a masked SMTP password
// @Tags         smtp
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        id path string true "Configuration ID"
// @Success      200 {object} dto.Response{data=domain.Configuration}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/smtp/configurations/{id} [get]
func (h *SMTPHandler) GetConfiguration(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	config, err := h.service.GetConfiguration(c.Request.Context(), authData, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, config)
}

// CreateConfiguration adds a configuration with the default templates
// @Summary      Create SMTP configuration
// @Description  Adds a configuration with the default template of every event
// @Tags         smtp
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        request body domain.Configuration true "Configuration"
// @Success      201 {object} dto.Response{data=domain.Configuration}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/smtp/configurations [post]
func (h *SMTPHandler) CreateConfiguration(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var req domain.Configuration
	if !h.bindJSON(c, &req) {
		return
	}
	created, err := h.service.CreateConfiguration(c.Request.Context(), authData, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, created)
}

// UpdateConfiguration replaces the connection settings of a configuration
// @Summary      Update SMTP configuration
// @Description  Replaces the sender, server and channel settings of a configuration
// @Tags         smtp
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        id path string true "Configuration ID"
// @Param        request body domain.Configuration true "Configuration"
// @Success      200 {object} dto.Response{data=dto.MessageResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/smtp/configurations/{id} [put]
func (h *SMTPHandler) UpdateConfiguration(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var req domain.Configuration
	if !h.bindJSON(c, &req) {
		return
	}
	req.ID = c.Param("id")
	if err := h.service.UpdateConfiguration(c.Request.Context(), authData, req); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewMessageResponse("Configuration updated"))
}

// DeleteConfiguration removes a configuration
// @Summary      Delete SMTP configuration
// @Description  Removes a configuration
// @Tags         smtp
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        id path string true "Configuration ID"
// @Success      204
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/smtp/configurations/{id} [delete]
func (h *SMTPHandler) DeleteConfiguration(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	if err := h.service.DeleteConfiguration(c.Request.Context(), authData, c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// UpdateEventConfig changes the template of one event
// @Summary      Update event template
// @Description  Changes the subject, template and active flag of one event
// @Tags         smtp
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        id path string true "Configuration ID"
// @Param        event path string true "Saleor event, e.g. ORDER_CREATED"
// @Param        request body domain.EventConfig true "Event configuration"
// @Success      200 {object} dto.Response{data=dto.MessageResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/smtp/configurations/{id}/events/{event} [put]
func (h *SMTPHandler) UpdateEventConfig(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var req domain.EventConfig
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.service.UpdateEventConfig(c.Request.Context(), authData, c.Param("id"), c.Param("event"), req); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewMessageResponse("Event configuration updated"))
}

// Preview renders a template against a sample payload
// @Summary      Preview email template
// @Description  Renders a handlebars subject and MJML template against a sample payload
// @Tags         smtp
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        request body smtpapp.PreviewInput true "Template and payload"
// @Success      200 {object} dto.Response{data=smtpapi.Compiled}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/smtp/preview [post]
func (h *SMTPHandler) Preview(c *gin.Context) {
	var req smtpapp.PreviewInput
	if !h.bindJSON(c, &req) {
		return
	}
	compiled, err := h.service.Preview(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, compiled)
}
