package avatax

import (
	"context"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	domain "github.com/trieb-work/saleor-apps/internal/domain/avatax"
	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
	"github.com/trieb-work/saleor-apps/internal/domain/shared"
	avataxapi "github.com/trieb-work/saleor-apps/internal/infrastructure/avatax"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/logger"
)

// Error codes of the AvaTax use cases
const (
	CodeMissingConfiguration = "MISSING_CONFIGURATION"
	CodeMissingAddress       = "MISSING_ADDRESS"
	CodeConfigLoadFailed     = "CONFIG_LOAD_FAILED"
	CodeConfigSaveFailed     = "CONFIG_SAVE_FAILED"
	CodeClientFailed         = "AVATAX_CLIENT_FAILED"
)

// TaxCodeMetadataKey is the tax class metadata key holding the AvaTax tax code
const TaxCodeMetadataKey = "avataxTaxCode"

const shippingLineNumber = "shipping"

// Service implements the tax webhooks and the connection management.
type Service struct {
	configs ConfigStore
	clients ClientFactory
	clock   clockwork.Clock
	logger  *zap.Logger
}

// ServiceConfig contains the dependencies of Service
type ServiceConfig struct {
	Configs ConfigStore
	Clients ClientFactory
	Clock   clockwork.Clock
	Logger  *zap.Logger
}

// NewService creates a new Service
func NewService(cfg ServiceConfig) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		configs: cfg.Configs,
		clients: cfg.Clients,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}
}

func (s *Service) loadRoot(ctx context.Context, authData *apl.AuthData) (*domain.RootConfig, error) {
	raw, err := s.configs.Load(ctx, authData)
	if err != nil {
		return nil, shared.NewServerError(CodeConfigLoadFailed, "Failed to load AvaTax configuration", err)
	}
	root, err := domain.ParseRootConfig(raw)
	if err != nil {
		return nil, shared.NewServerError(CodeConfigLoadFailed, "Stored AvaTax configuration is invalid", err)
	}
	return root, nil
}

func (s *Service) save(ctx context.Context, authData *apl.AuthData, root *domain.RootConfig) error {
	raw, err := root.Serialize()
	if err != nil {
		return shared.NewServerError(CodeConfigSaveFailed, "Failed to serialize AvaTax configuration", err)
	}
	if err := s.configs.Save(ctx, authData, raw); err != nil {
		return shared.NewServerError(CodeConfigSaveFailed, "Failed to save AvaTax configuration", err)
	}
	return nil
}

func (s *Service) client(conn *domain.Connection, saleorAPIURL string) (TaxClient, error) {
	c, err := s.clients(conn, saleorAPIURL)
	if err != nil {
		return nil, shared.NewClientError(CodeClientFailed, "AvaTax connection is not usable", err)
	}
	return c, nil
}

// channelConnection resolves the connection bound to channelSlug.
func (s *Service) channelConnection(ctx context.Context, authData *apl.AuthData, channelSlug string) (*domain.Connection, error) {
	root, err := s.loadRoot(ctx, authData)
	if err != nil {
		return nil, err
	}
	conn := root.GetConnectionForChannel(channelSlug)
	if conn == nil {
		return nil, shared.NewClientError(CodeMissingConfiguration, "AvaTax is not configured for channel "+channelSlug, nil)
	}
	return conn, nil
}

// CalculateTaxes answers CHECKOUT_CALCULATE_TAXES and ORDER_CALCULATE_TAXES.
func (s *Service) CalculateTaxes(ctx context.Context, authData *apl.AuthData, event saleor.CalculateTaxesEvent) (*saleor.CalculateTaxesResponse, error) {
	base := event.TaxBase
	ctx = logger.WithChannel(ctx, base.Channel.Slug)

	conn, err := s.channelConnection(ctx, authData, base.Channel.Slug)
	if err != nil {
		return nil, err
	}

	if len(base.Lines) == 0 {
		shipping := base.ShippingPrice.Amount.InexactFloat64()
		return &saleor.CalculateTaxesResponse{
			ShippingPriceGrossAmount: shipping,
			ShippingPriceNetAmount:   shipping,
			Lines:                    []saleor.TaxLineResult{},
		}, nil
	}
	if base.Address == nil {
		return nil, shared.NewClientError(CodeMissingAddress, "Tax base has no address", nil)
	}

	model := s.buildCalculateModel(conn, base)
	client, err := s.client(conn, authData.SaleorAPIURL)
	if err != nil {
		return nil, err
	}
	tx, err := client.CreateTransaction(ctx, model)
	if err != nil {
		return nil, err
	}

	logger.WithLogger(ctx, s.logger).Debug("Calculated taxes with AvaTax",
		zap.String("source", base.SourceObject.ID),
		zap.String("total_tax", tx.TotalTax.String()),
	)
	return taxesResponse(base, tx), nil
}

func (s *Service) buildCalculateModel(conn *domain.Connection, base saleor.TaxBase) avataxapi.CreateTransactionModel {
	discount := decimal.Zero
	for _, d := range base.Discounts {
		discount = discount.Add(d.Amount.Amount)
	}

	lines := make([]avataxapi.LineItem, 0, len(base.Lines)+1)
	for i, line := range base.Lines {
		item := avataxapi.LineItem{
			Number:      strconv.Itoa(i + 1),
			Quantity:    decimal.NewFromInt(int64(line.Quantity)),
			Amount:      line.TotalPrice.Amount,
			ItemCode:    line.SKU(),
			Description: line.Name(),
			TaxIncluded: base.PricesEnteredWithTaxes,
			Discounted:  !discount.IsZero(),
		}
		if line.SourceLine.TaxClass != nil {
			item.TaxCode = saleor.MetadataValue(line.SourceLine.TaxClass.Metadata, TaxCodeMetadataKey)
		}
		if line.ChargeTaxes != nil && !*line.ChargeTaxes {
			item.TaxCode = "NT"
		}
		lines = append(lines, item)
	}
	if !base.ShippingPrice.Amount.IsZero() {
		lines = append(lines, avataxapi.LineItem{
			Number:      shippingLineNumber,
			Quantity:    decimal.NewFromInt(1),
			Amount:      base.ShippingPrice.Amount,
			TaxCode:     conn.ShippingTaxCode,
			ItemCode:    "Shipping",
			TaxIncluded: base.PricesEnteredWithTaxes,
		})
	}

	email := base.SourceObject.UserEmail
	customerCode := email
	if base.SourceObject.User != nil {
		customerCode = base.SourceObject.User.ID
		if email == "" {
			email = base.SourceObject.User.Email
		}
	}
	if customerCode == "" {
		customerCode = base.SourceObject.ID
	}

	return avataxapi.CreateTransactionModel{
		Type:          avataxapi.DocumentSalesOrder,
		CompanyCode:   conn.Company(),
		Date:          s.clock.Now().UTC().Format(time.DateOnly),
		CustomerCode:  customerCode,
		EntityUseCode: base.SourceObject.AvataxEntityCode,
		Addresses: avataxapi.Addresses{
			ShipFrom: shipFrom(conn),
			ShipTo:   toAddressInfo(base.Address),
		},
		Lines:        lines,
		Commit:       false,
		CurrencyCode: base.Currency,
		Discount:     discount,
		Email:        email,
	}
}

func taxesResponse(base saleor.TaxBase, tx *avataxapi.Transaction) *saleor.CalculateTaxesResponse {
	byNumber := make(map[string]avataxapi.TransactionLine, len(tx.Lines))
	for _, l := range tx.Lines {
		byNumber[l.LineNumber] = l
	}

	resp := &saleor.CalculateTaxesResponse{Lines: make([]saleor.TaxLineResult, 0, len(base.Lines))}
	for i, line := range base.Lines {
		calculated, ok := byNumber[strconv.Itoa(i+1)]
		if !ok {
			amount := line.TotalPrice.Amount.Round(2).InexactFloat64()
			resp.Lines = append(resp.Lines, saleor.TaxLineResult{TotalGrossAmount: amount, TotalNetAmount: amount})
			continue
		}
		gross, net := grossNet(calculated)
		resp.Lines = append(resp.Lines, saleor.TaxLineResult{
			TotalGrossAmount: gross,
			TotalNetAmount:   net,
			TaxRate:          calculated.Rate().InexactFloat64(),
		})
	}

	if shipping, ok := byNumber[shippingLineNumber]; ok {
		gross, net := grossNet(shipping)
		resp.ShippingPriceGrossAmount = gross
		resp.ShippingPriceNetAmount = net
		resp.ShippingTaxRate = shipping.Rate().InexactFloat64()
	} else {
		amount := base.ShippingPrice.Amount.Round(2).InexactFloat64()
		resp.ShippingPriceGrossAmount = amount
		resp.ShippingPriceNetAmount = amount
	}
	return resp
}

// grossNet derives both amounts from a calculated line. Tax included lines
// carry the gross amount in lineAmount.
func grossNet(line avataxapi.TransactionLine) (float64, float64) {
	if line.TaxIncluded {
		gross := line.LineAmount
		return gross.Round(2).InexactFloat64(), gross.Sub(line.Tax).Round(2).InexactFloat64()
	}
	net := line.LineAmount
	return net.Add(line.Tax).Round(2).InexactFloat64(), net.Round(2).InexactFloat64()
}

func shipFrom(conn *domain.Connection) *avataxapi.AddressInfo {
	return &avataxapi.AddressInfo{
		Line1:      conn.Address.Street,
		City:       conn.Address.City,
		Region:     conn.Address.State,
		Country:    conn.Address.Country,
		PostalCode: conn.Address.Zip,
	}
}

func toAddressInfo(a *saleor.Address) *avataxapi.AddressInfo {
	if a == nil {
		return nil
	}
	return &avataxapi.AddressInfo{
		Line1:      a.StreetAddress1,
		City:       a.City,
		Region:     a.CountryArea,
		Country:    a.Country.Code,
		PostalCode: a.PostalCode,
	}
}

// OrderConfirmed records the order in AvaTax. The document code is the
// Saleor order id so a later cancellation can void it.
func (s *Service) OrderConfirmed(ctx context.Context, authData *apl.AuthData, order saleor.Order) (*avataxapi.Transaction, error) {
	ctx = logger.WithChannel(ctx, order.Channel.Slug)
	conn, err := s.orderConnection(ctx, authData, order)
	if err != nil {
		return nil, err
	}

	address := order.ShippingAddress
	if address == nil {
		address = order.BillingAddress
	}
	if address == nil {
		return nil, shared.NewClientError(CodeMissingAddress, "Order has no shipping or billing address", nil)
	}

	docType := avataxapi.DocumentSalesInvoice
	if !conn.IsDocumentRecordingEnabled {
		docType = avataxapi.DocumentSalesOrder
	}

	lines := make([]avataxapi.LineItem, 0, len(order.Lines)+1)
	for i, line := range order.Lines {
		item := avataxapi.LineItem{
			Number:      strconv.Itoa(i + 1),
			Quantity:    decimal.NewFromInt(int64(line.Quantity)),
			Amount:      line.TotalPrice.Net.Amount,
			ItemCode:    line.ProductSKU,
			Description: line.ProductName,
		}
		if line.TaxClass != nil {
			item.TaxCode = saleor.MetadataValue(line.TaxClass.Metadata, TaxCodeMetadataKey)
		}
		lines = append(lines, item)
	}
	if !order.ShippingPrice.Net.Amount.IsZero() {
		lines = append(lines, avataxapi.LineItem{
			Number:   shippingLineNumber,
			Quantity: decimal.NewFromInt(1),
			Amount:   order.ShippingPrice.Net.Amount,
			TaxCode:  conn.ShippingTaxCode,
			ItemCode: "Shipping",
		})
	}

	customerCode := order.RecipientEmail()
	if order.User != nil {
		customerCode = order.User.ID
	}
	date := order.Created
	if date.IsZero() {
		date = s.clock.Now()
	}

	client, err := s.client(conn, authData.SaleorAPIURL)
	if err != nil {
		return nil, err
	}
	tx, err := client.CreateTransaction(ctx, avataxapi.CreateTransactionModel{
		Type:         docType,
		Code:         order.ID,
		CompanyCode:  conn.Company(),
		Date:         date.UTC().Format(time.DateOnly),
		CustomerCode: customerCode,
		Addresses: avataxapi.Addresses{
			ShipFrom: shipFrom(conn),
			ShipTo:   toAddressInfo(address),
		},
		Lines:        lines,
		Commit:       conn.IsAutocommit,
		CurrencyCode: order.Total.Gross.Currency,
		Email:        order.RecipientEmail(),
	})
	if err != nil {
		return nil, err
	}

	logger.WithLogger(ctx, s.logger).Info("Recorded order in AvaTax",
		zap.String("order_id", order.ID),
		zap.String("document_type", docType),
		zap.Bool("committed", conn.IsAutocommit),
	)
	return tx, nil
}

// OrderCancelled voids the AvaTax document of the order.
func (s *Service) OrderCancelled(ctx context.Context, authData *apl.AuthData, order saleor.Order) error {
	ctx = logger.WithChannel(ctx, order.Channel.Slug)
	conn, err := s.orderConnection(ctx, authData, order)
	if err != nil {
		return err
	}
	client, err := s.client(conn, authData.SaleorAPIURL)
	if err != nil {
		return err
	}
	if _, err := client.VoidTransaction(ctx, order.ID, conn.Company()); err != nil {
		return err
	}
	logger.WithLogger(ctx, s.logger).Info("Voided AvaTax transaction", zap.String("order_id", order.ID))
	return nil
}

// orderConnection treats an unconfigured channel as nothing to do.
func (s *Service) orderConnection(ctx context.Context, authData *apl.AuthData, order saleor.Order) (*domain.Connection, error) {
	conn, err := s.channelConnection(ctx, authData, order.Channel.Slug)
	if err != nil {
		if appErr, ok := shared.AsAppError(err); ok && appErr.Code == CodeMissingConfiguration {
			return nil, shared.NewNoOpError(CodeMissingConfiguration, appErr.Message)
		}
		return nil, err
	}
	return conn, nil
}
