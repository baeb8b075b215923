package avatax

import "github.com/shopspring/decimal"

// Document types
const (
	DocumentSalesOrder   = "SalesOrder"
	DocumentSalesInvoice = "SalesInvoice"
)

// AddressInfo is an AvaTax address location.
type AddressInfo struct {
	Line1      string `json:"line1,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

// Addresses of a transaction
type Addresses struct {
	ShipFrom *AddressInfo `json:"shipFrom,omitempty"`
	ShipTo   *AddressInfo `json:"shipTo,omitempty"`
}

// LineItem is one taxable line.
type LineItem struct {
	Number      string          `json:"number,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
	TaxCode     string          `json:"taxCode,omitempty"`
	ItemCode    string          `json:"itemCode,omitempty"`
	Description string          `json:"description,omitempty"`
	TaxIncluded bool            `json:"taxIncluded"`
	Discounted  bool            `json:"discounted"`
}

// CreateTransactionModel is the body of createoradjust.
type CreateTransactionModel struct {
	Type          string          `json:"type"`
	Code          string          `json:"code,omitempty"`
	CompanyCode   string          `json:"companyCode,omitempty"`
	Date          string          `json:"date"`
	CustomerCode  string          `json:"customerCode"`
	EntityUseCode string          `json:"entityUseCode,omitempty"`
	Addresses     Addresses       `json:"addresses"`
	Lines         []LineItem      `json:"lines"`
	Commit        bool            `json:"commit"`
	CurrencyCode  string          `json:"currencyCode,omitempty"`
	Discount      decimal.Decimal `json:"discount"`
	Email         string          `json:"email,omitempty"`
}

// TransactionLineDetail carries a jurisdiction rate.
type TransactionLineDetail struct {
	Rate decimal.Decimal `json:"rate"`
	Tax  decimal.Decimal `json:"tax"`
}

// TransactionLine is a calculated line.
type TransactionLine struct {
	LineNumber    string                  `json:"lineNumber"`
	LineAmount    decimal.Decimal         `json:"lineAmount"`
	Tax           decimal.Decimal         `json:"tax"`
	TaxableAmount decimal.Decimal         `json:"taxableAmount"`
	TaxIncluded   bool                    `json:"taxIncluded"`
	Details       []TransactionLineDetail `json:"details"`
}

// Rate sums the jurisdiction rates of the line.
func (l TransactionLine) Rate() decimal.Decimal {
	rate := decimal.Zero
	for _, d := range l.Details {
		rate = rate.Add(d.Rate)
	}
	return rate
}

// Transaction is the AvaTax transaction returned by create and void.
type Transaction struct {
	ID          int64             `json:"id"`
	Code        string            `json:"code"`
	Type        string            `json:"type"`
	Status      string            `json:"status"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
	TotalTax    decimal.Decimal   `json:"totalTax"`
	Lines       []TransactionLine `json:"lines"`
}

// ValidatedAddress is a resolved address.
type ValidatedAddress struct {
	AddressInfo
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ResolutionMessage describes a resolution problem.
type ResolutionMessage struct {
	Summary  string `json:"summary"`
	Details  string `json:"details"`
	Severity string `json:"severity"`
}

// AddressResolution is the response of addresses/resolve.
type AddressResolution struct {
	ValidatedAddresses []ValidatedAddress  `json:"validatedAddresses"`
	Messages           []ResolutionMessage `json:"messages"`
}

// TaxCode is a tax code definition.
type TaxCode struct {
	ID          int64  `json:"id"`
	TaxCode     string `json:"taxCode"`
	Description string `json:"description"`
	IsActive    bool   `json:"isActive"`
}

// EntityUseCode is an exemption reason definition.
type EntityUseCode struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PingResult tells whether the credentials authenticated.
type PingResult struct {
	Version            string `json:"version"`
	Authenticated      bool   `json:"authenticated"`
	AuthenticationType string `json:"authenticationType"`
}

type fetchResult[T any] struct {
	Count int `json:"@recordsetCount"`
	Value []T `json:"value"`
}
