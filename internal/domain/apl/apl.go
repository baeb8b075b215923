// Package apl defines the auth persistence layer: where an app keeps the
// token Saleor hands it during registration, keyed by the Saleor API URL.
package apl

import (
	"context"
	"errors"
	"strings"
)

// ErrAuthDataNotFound is returned when no auth data exists for a Saleor API URL
var ErrAuthDataNotFound = errors.New("apl: auth data not found")

// ErrNotSupported is returned by backends that cannot list their records
var ErrNotSupported = errors.New("apl: operation not supported by this backend")

// AuthData is what the app needs to call back into one Saleor instance.
type AuthData struct {
	SaleorAPIURL string `json:"saleorApiUrl"`
	Token        string `json:"token"`
	AppID        string `json:"appId"`
	JWKS         string `json:"jwks,omitempty"`
}

// Validate reports whether the record can be stored.
func (a AuthData) Validate() error {
	if strings.TrimSpace(a.SaleorAPIURL) == "" {
		return errors.New("apl: saleorApiUrl is required")
	}
	if a.Token == "" {
		return errors.New("apl: token is required")
	}
	if a.AppID == "" {
		return errors.New("apl: appId is required")
	}
	return nil
}

// Domain returns the host part of the Saleor API URL.
func (a AuthData) Domain() string {
	u := strings.TrimPrefix(strings.TrimPrefix(a.SaleorAPIURL, "https://"), "http://")
	if i := strings.IndexAny(u, "/:"); i >= 0 {
		u = u[:i]
	}
	return u
}

// APL stores auth data per Saleor instance.
type APL interface {
	Get(ctx context.Context, saleorAPIURL string) (*AuthData, error)
	Set(ctx context.Context, data AuthData) error
	Delete(ctx context.Context, saleorAPIURL string) error
	GetAll(ctx context.Context) ([]AuthData, error)
	// IsReady reports whether the backend can serve requests now.
	IsReady(ctx context.Context) error
	// IsConfigured reports whether the backend has the settings it needs.
	IsConfigured(ctx context.Context) error
}
