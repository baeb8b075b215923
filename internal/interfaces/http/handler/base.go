// Package handler contains the gin handlers of the Saleor apps.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/logger"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/dto"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/middleware"
)

// Webhook reply messages
const (
	MessageEventHandled  = "The event has been handled"
	MessageInternalError = "An unexpected error occurred"
)

// BaseHandler provides common handler utilities
type BaseHandler struct {
	logger *zap.Logger
}

// NewBaseHandler creates a BaseHandler logging to log
func NewBaseHandler(log *zap.Logger) BaseHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return BaseHandler{logger: log}
}

// Log returns the request scoped logger
func (h *BaseHandler) Log(c *gin.Context) *logger.ContextLogger {
	base := h.logger
	if base == nil {
		base = zap.NewNop()
	}
	return logger.WithLogger(c.Request.Context(), base)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// Forbidden sends a 403 forbidden response
func (h *BaseHandler) Forbidden(c *gin.Context, message string) {
	h.Error(c, http.StatusForbidden, dto.ErrCodeForbidden, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// HandleError converts use case errors to dashboard responses. AppErrors map
// by kind, DomainErrors by code and anything else is an internal error.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := middleware.GetRequestID(c)

	if appErr, ok := shared.AsAppError(err); ok {
		status := dto.StatusForKind(appErr.Kind)
		switch appErr.Kind {
		case shared.KindServer:
			h.Log(c).Error("Request failed", zap.String("code", appErr.Code), zap.Error(err))
			c.JSON(status, dto.NewErrorResponseWithRequestID(dto.ErrCodeInternal, appErr.Message, requestID))
		case shared.KindNoOp:
			c.JSON(status, dto.NewSuccessResponse(dto.NewMessageResponse(dto.NoOpMessage(appErr.Message))))
		default:
			code := dto.NormalizeErrorCode(appErr.Code)
			if _, known := dto.ErrorCodeHTTPStatus[code]; !known || code == dto.ErrCodeInternal {
				code = dto.ErrCodeClient
			}
			status = dto.GetHTTPStatus(code)
			h.Log(c).Info("Request rejected", zap.String("code", appErr.Code), zap.Error(err))
			c.JSON(status, dto.NewErrorResponseWithRequestID(code, appErr.Message, requestID))
		}
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, domainErr.Message, requestID))
		return
	}

	h.Log(c).Error("Unhandled error", zap.Error(err))
	h.InternalError(c, MessageInternalError)
}

// WebhookResult replies to a Saleor webhook delivery. Server and unknown
// errors give 500 so Saleor retries, client errors 400, no-ops 200.
func (h *BaseHandler) WebhookResult(c *gin.Context, err error) {
	log := h.Log(c)
	if err == nil {
		log.Info("Webhook handled")
		c.JSON(http.StatusOK, dto.NewMessageResponse(MessageEventHandled))
		return
	}

	appErr, ok := shared.AsAppError(err)
	if !ok {
		log.Error("Webhook failed with unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.NewMessageResponse(MessageInternalError))
		return
	}

	switch appErr.Kind {
	case shared.KindNoOp:
		log.Info("Webhook skipped", zap.String("code", appErr.Code), zap.String("reason", appErr.Message))
		c.JSON(http.StatusOK, dto.NewMessageResponse(dto.NoOpMessage(appErr.Message)))
	case shared.KindClient:
		log.Info("Webhook rejected", zap.String("code", appErr.Code), zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.NewMessageResponse(appErr.Message))
	default:
		log.Error("Webhook failed", zap.String("code", appErr.Code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.NewMessageResponse(appErr.Message))
	}
}

// authData returns the installation resolved by the tenant middleware.
// It replies 401 and returns nil when the route was mounted without it.
func (h *BaseHandler) authData(c *gin.Context) *apl.AuthData {
	data := middleware.GetAuthData(c)
	if data == nil {
		h.Unauthorized(c, "Missing auth data")
	}
	return data
}

// bindJSON binds the request body, replying with validation details on failure.
func (h *BaseHandler) bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

func invalidPayload(err error) error {
	return shared.NewClientError(shared.ErrInvalidPayload.Code, "Event payload is not valid JSON", err)
}

type orderPayload struct {
	Order *saleor.Order `json:"order"`
}

// decodeOrder reads the order of a verified delivery. Deliveries without an
// order are acknowledged with 200 and no body.
func (h *BaseHandler) decodeOrder(c *gin.Context) *saleor.Order {
	var payload orderPayload
	if err := json.Unmarshal(middleware.GetRawBody(c), &payload); err != nil {
		h.WebhookResult(c, invalidPayload(err))
		return nil
	}
	if payload.Order == nil {
		h.Log(c).Info("Request rejected: order data is missing")
		c.Status(http.StatusOK)
		return nil
	}
	ctx := logger.WithChannel(c.Request.Context(), payload.Order.Channel.Slug)
	c.Request = c.Request.WithContext(ctx)
	return payload.Order
}
