// Package avatax implements the AvaTax tax app use cases.
package avatax

import (
	"context"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	domain "github.com/trieb-work/saleor-apps/internal/domain/avatax"
	avataxapi "github.com/trieb-work/saleor-apps/internal/infrastructure/avatax"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry"
)

// ConfigKey is the metadata key of the serialized RootConfig
const ConfigKey = "avatax-config"

// TaxClient is the AvaTax API used by the use cases.
type TaxClient interface {
	CreateTransaction(ctx context.Context, model avataxapi.CreateTransactionModel) (*avataxapi.Transaction, error)
	VoidTransaction(ctx context.Context, transactionCode, companyCode string) (*avataxapi.Transaction, error)
	ValidateAddress(ctx context.Context, address avataxapi.AddressInfo) (*avataxapi.AddressResolution, error)
	ListTaxCodes(ctx context.Context, filter string) ([]avataxapi.TaxCode, error)
	Ping(ctx context.Context) (*avataxapi.PingResult, error)
	GetEntityUseCode(ctx context.Context, useCode string) ([]avataxapi.EntityUseCode, error)
}

// ClientFactory creates a client for a connection on behalf of a tenant.
type ClientFactory func(conn *domain.Connection, saleorAPIURL string) (TaxClient, error)

// ConfigStore loads and saves the serialized config of one installation.
type ConfigStore interface {
	Load(ctx context.Context, authData *apl.AuthData) (string, error)
	Save(ctx context.Context, authData *apl.AuthData, raw string) error
}

// NewClientFactory returns a factory over the REST client.
func NewClientFactory(recorder *telemetry.APICallRecorder, appVersion string) ClientFactory {
	return func(conn *domain.Connection, saleorAPIURL string) (TaxClient, error) {
		return avataxapi.NewClient(avataxapi.Config{
			Username:   conn.Credentials.Username,
			Password:   conn.Credentials.Password,
			Sandbox:    conn.IsSandbox,
			Tenant:     saleorAPIURL,
			AppVersion: appVersion,
			Recorder:   recorder,
		})
	}
}
