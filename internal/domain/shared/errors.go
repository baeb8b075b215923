package shared

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound       = NewDomainError("NOT_FOUND", "Resource not found")
	ErrInvalidPayload = NewDomainError("INVALID_PAYLOAD", "Webhook payload is invalid")
)

// =============================================================================
// Use case result errors
// =============================================================================

// ErrorKind classifies an AppError by who is expected to act on it.
type ErrorKind int

const (
	// KindServer means the app or a vendor failed; the caller may retry.
	KindServer ErrorKind = iota
	// KindClient means the request or the stored configuration is wrong.
	KindClient
	// KindNoOp means there was nothing to do for this event.
	KindNoOp
)

// String returns the lowercase kind name used in logs and metric attributes.
func (k ErrorKind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindNoOp:
		return "no_op"
	default:
		return "server"
	}
}

// AppError is the error type returned by use cases and outbound clients.
// Handlers translate its Kind into an HTTP status.
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewClientError creates an error caused by invalid input or configuration
func NewClientError(code, message string, cause error) *AppError {
	return &AppError{Kind: KindClient, Code: code, Message: message, Cause: cause}
}

// NewServerError creates an error caused by the app or a vendor outage
func NewServerError(code, message string, cause error) *AppError {
	return &AppError{Kind: KindServer, Code: code, Message: message, Cause: cause}
}

// NewNoOpError creates an error signalling that the event was intentionally skipped
func NewNoOpError(code, message string) *AppError {
	return &AppError{Kind: KindNoOp, Code: code, Message: message}
}

// AsAppError extracts an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of the first AppError in the chain.
// Errors without an AppError are treated as server errors.
func KindOf(err error) ErrorKind {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Kind
	}
	return KindServer
}

// IsClientError reports whether err carries a client AppError
func IsClientError(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Kind == KindClient
}

// IsServerError reports whether err carries a server AppError
func IsServerError(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Kind == KindServer
}

// IsNoOpError reports whether err carries a no-op AppError
func IsNoOpError(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Kind == KindNoOp
}

// MostSevere picks the error to report when several independent operations failed.
// Server errors outrank client errors, which outrank no-ops.
func MostSevere(errs ...error) error {
	var picked error
	rank := func(err error) int {
		switch KindOf(err) {
		case KindServer:
			return 3
		case KindClient:
			return 2
		default:
			return 1
		}
	}
	for _, err := range errs {
		if err == nil {
			continue
		}
		if picked == nil || rank(err) > rank(picked) {
			picked = err
		}
	}
	return picked
}
