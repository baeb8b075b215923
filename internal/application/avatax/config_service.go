package avatax

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	domain "github.com/trieb-work/saleor-apps/internal/domain/avatax"
	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	avataxapi "github.com/trieb-work/saleor-apps/internal/infrastructure/avatax"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/logger"
)

// ConnectionsView is the dashboard view of an installation's connections.
type ConnectionsView struct {
	Connections    []domain.Connection `json:"connections"`
	ChannelMapping map[string]string   `json:"channelMapping"`
}

// CredentialsCheck holds credentials to verify before saving a connection.
type CredentialsCheck struct {
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	IsSandbox bool   `json:"isSandbox"`
}

func validationError(err error) error {
	if errors.Is(err, domain.ErrConnectionNotFound) {
		return shared.NewClientError("NOT_FOUND", "Connection not found", err)
	}
	return shared.NewClientError("VALIDATION_ERROR", err.Error(), err)
}

// ListConnections returns the connections with masked passwords.
func (s *Service) ListConnections(ctx context.Context, authData *apl.AuthData) (*ConnectionsView, error) {
	root, err := s.loadRoot(ctx, authData)
	if err != nil {
		return nil, err
	}
	return &ConnectionsView{
		Connections:    root.MaskedConnections(),
		ChannelMapping: root.ChannelMapping,
	}, nil
}

// CreateConnection verifies the credentials with a ping and stores the connection.
func (s *Service) CreateConnection(ctx context.Context, authData *apl.AuthData, conn domain.Connection) (*domain.Connection, error) {
	if err := conn.Validate(); err != nil {
		return nil, validationError(err)
	}
	if err := s.ping(ctx, &conn, authData.SaleorAPIURL); err != nil {
		return nil, err
	}

	root, err := s.loadRoot(ctx, authData)
	if err != nil {
		return nil, err
	}
	created, err := root.AddConnection(conn)
	if err != nil {
		return nil, validationError(err)
	}
	if err := s.save(ctx, authData, root); err != nil {
		return nil, err
	}

	logger.WithLogger(ctx, s.logger).Info("Created AvaTax connection",
		zap.String("connection_id", created.ID),
		zap.Bool("sandbox", created.IsSandbox),
	)
	masked := created.Masked()
	return &masked, nil
}

// UpdateConnection replaces a stored connection.
func (s *Service) UpdateConnection(ctx context.Context, authData *apl.AuthData, conn domain.Connection) error {
	root, err := s.loadRoot(ctx, authData)
	if err != nil {
		return err
	}
	if err := root.UpdateConnection(conn); err != nil {
		return validationError(err)
	}
	return s.save(ctx, authData, root)
}

// DeleteConnection removes a connection and its channel bindings.
func (s *Service) DeleteConnection(ctx context.Context, authData *apl.AuthData, id string) error {
	root, err := s.loadRoot(ctx, authData)
	if err != nil {
		return err
	}
	if err := root.RemoveConnection(id); err != nil {
		return validationError(err)
	}
	return s.save(ctx, authData, root)
}

// BindChannel maps a channel slug to a connection. An empty id unbinds it.
func (s *Service) BindChannel(ctx context.Context, authData *apl.AuthData, channelSlug, connectionID string) error {
	if channelSlug == "" {
		return shared.NewClientError("VALIDATION_ERROR", "Channel slug cannot be empty", nil)
	}
	root, err := s.loadRoot(ctx, authData)
	if err != nil {
		return err
	}
	if err := root.BindChannel(channelSlug, connectionID); err != nil {
		return validationError(err)
	}
	return s.save(ctx, authData, root)
}

// CheckCredentials pings AvaTax with unsaved credentials.
func (s *Service) CheckCredentials(ctx context.Context, authData *apl.AuthData, in CredentialsCheck) error {
	conn := &domain.Connection{
		Credentials: domain.Credentials{Username: in.Username, Password: in.Password},
		IsSandbox:   in.IsSandbox,
	}
	return s.ping(ctx, conn, authData.SaleorAPIURL)
}

func (s *Service) ping(ctx context.Context, conn *domain.Connection, saleorAPIURL string) error {
	client, err := s.client(conn, saleorAPIURL)
	if err != nil {
		return err
	}
	_, err = client.Ping(ctx)
	return err
}

func (s *Service) storedClient(ctx context.Context, authData *apl.AuthData, connectionID string) (TaxClient, error) {
	root, err := s.loadRoot(ctx, authData)
	if err != nil {
		return nil, err
	}
	conn := root.GetConnection(connectionID)
	if conn == nil {
		return nil, shared.NewClientError("NOT_FOUND", "Connection not found", nil)
	}
	return s.client(conn, authData.SaleorAPIURL)
}

// ValidateAddress resolves an address with a stored connection.
func (s *Service) ValidateAddress(ctx context.Context, authData *apl.AuthData, connectionID string, address domain.Address) (*avataxapi.AddressResolution, error) {
	client, err := s.storedClient(ctx, authData, connectionID)
	if err != nil {
		return nil, err
	}
	return client.ValidateAddress(ctx, avataxapi.AddressInfo{
		Line1:      address.Street,
		City:       address.City,
		Region:     address.State,
		Country:    address.Country,
		PostalCode: address.Zip,
	})
}

// SearchTaxCodes lists tax codes matching filter.
func (s *Service) SearchTaxCodes(ctx context.Context, authData *apl.AuthData, connectionID, filter string) ([]avataxapi.TaxCode, error) {
	client, err := s.storedClient(ctx, authData, connectionID)
	if err != nil {
		return nil, err
	}
	return client.ListTaxCodes(ctx, filter)
}

// LookupEntityUseCode checks that an exemption code exists.
func (s *Service) LookupEntityUseCode(ctx context.Context, authData *apl.AuthData, connectionID, code string) (*avataxapi.EntityUseCode, error) {
	client, err := s.storedClient(ctx, authData, connectionID)
	if err != nil {
		return nil, err
	}
	codes, err := client.GetEntityUseCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, shared.NewClientError(avataxapi.CodeEntityNotFound, "Entity use code "+code+" does not exist", nil)
	}
	return &codes[0], nil
}
