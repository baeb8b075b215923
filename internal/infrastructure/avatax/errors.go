package avatax

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/trieb-work/saleor-apps/internal/domain/shared"
)

// Error codes carried by mapped AppErrors
const (
	CodeInvalidAddress   = "AVATAX_INVALID_ADDRESS"
	CodeInvalidTaxCode   = "AVATAX_INVALID_TAX_CODE"
	CodeEntityNotFound   = "AVATAX_ENTITY_NOT_FOUND"
	CodeAuthentication   = "AVATAX_AUTHENTICATION_FAILED"
	CodeInvalidRequest   = "AVATAX_INVALID_REQUEST"
	CodeServiceError     = "AVATAX_SERVICE_ERROR"
	CodeUnexpectedError  = "AVATAX_UNEXPECTED_ERROR"
	CodeTransportFailure = "AVATAX_TRANSPORT_FAILURE"
)

// ErrorDetail is one entry of an AvaTax error body.
type ErrorDetail struct {
	Code        string `json:"code"`
	Number      int    `json:"number"`
	Message     string `json:"message"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// APIError is the parsed AvaTax error body.
type APIError struct {
	StatusCode int           `json:"-"`
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	Target     string        `json:"target"`
	Details    []ErrorDetail `json:"details"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("avatax: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// clientCodes maps AvaTax error codes to internal codes of client errors.
var clientCodes = map[string]string{
	"InvalidAddress":                CodeInvalidAddress,
	"AddressRangeError":             CodeInvalidAddress,
	"AddressUnknownStreetError":     CodeInvalidAddress,
	"AddressNotGeocodedError":       CodeInvalidAddress,
	"AddressConflictException":      CodeInvalidAddress,
	"InvalidZipForStateError":       CodeInvalidAddress,
	"MissingAddress":                CodeInvalidAddress,
	"GetTaxError":                   CodeInvalidAddress,
	"InvalidTaxCode":                CodeInvalidTaxCode,
	"TaxCodeNotFound":               CodeInvalidTaxCode,
	"EntityNotFoundError":           CodeEntityNotFound,
	"CompanyNotFoundError":          CodeEntityNotFound,
	"AuthenticationException":       CodeAuthentication,
	"AuthorizationException":        CodeAuthentication,
	"PermissionRequired":            CodeAuthentication,
	"ModelRequiredException":        CodeInvalidRequest,
	"ValueRequiredError":            CodeInvalidRequest,
	"DocumentCodeConflict":          CodeInvalidRequest,
	"CannotModifyLockedTransaction": CodeInvalidRequest,
}

// parseError maps an AvaTax error response to a client or server AppError.
func parseError(status int, body []byte) error {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil || envelope.Error.Code == "" {
		cause := fmt.Errorf("avatax: unexpected response (%d): %.200s", status, body)
		return shared.NewServerError(CodeUnexpectedError, "Unexpected AvaTax response", cause)
	}
	apiErr := envelope.Error
	apiErr.StatusCode = status

	message := apiErr.Message
	if len(apiErr.Details) > 0 && apiErr.Details[0].Description != "" {
		message = apiErr.Details[0].Description
	}

	if status >= http.StatusInternalServerError {
		return shared.NewServerError(CodeServiceError, message, apiErr)
	}
	if code, ok := clientCodes[apiErr.Code]; ok {
		return shared.NewClientError(code, message, apiErr)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return shared.NewClientError(CodeAuthentication, message, apiErr)
	}
	return shared.NewClientError(CodeInvalidRequest, message, apiErr)
}

func networkError(err error) error {
	return shared.NewServerError(CodeTransportFailure, "AvaTax request failed", err)
}

func unauthenticatedError() error {
	return shared.NewClientError(CodeAuthentication, "AvaTax credentials are not valid", &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       "AuthenticationException",
		Message:    "Ping returned authenticated=false",
	})
}
