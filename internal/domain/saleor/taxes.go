package saleor

// TaxBase is the subject of CHECKOUT_CALCULATE_TAXES and ORDER_CALCULATE_TAXES.
type TaxBase struct {
	PricesEnteredWithTaxes bool          `json:"pricesEnteredWithTaxes"`
	Currency               string        `json:"currency"`
	Channel                Channel       `json:"channel"`
	ShippingPrice          Money         `json:"shippingPrice"`
	Address                *Address      `json:"address"`
	Discounts              []TaxDiscount `json:"discounts,omitempty"`
	Lines                  []TaxBaseLine `json:"lines"`
	SourceObject           TaxSource     `json:"sourceObject"`
}

type TaxDiscount struct {
	Amount Money  `json:"amount"`
	Type   string `json:"type,omitempty"`
}

type TaxBaseLine struct {
	SourceLine struct {
		Typename    string    `json:"__typename"`
		ID          string    `json:"id"`
		ProductSKU  string    `json:"productSku,omitempty"`
		ProductName string    `json:"productName,omitempty"`
		VariantName string    `json:"variantName,omitempty"`
		TaxClass    *TaxClass `json:"taxClass,omitempty"`
	} `json:"sourceLine"`
	Quantity    int    `json:"quantity"`
	ProductSKU  string `json:"productSku,omitempty"`
	ProductName string `json:"productName,omitempty"`
	UnitPrice   Money  `json:"unitPrice"`
	TotalPrice  Money  `json:"totalPrice"`
	ChargeTaxes *bool  `json:"chargeTaxes,omitempty"`
}

// SKU returns the SKU of the source line, falling back to the taxable line.
// Checkout lines only expose it on the taxable line.
func (l TaxBaseLine) SKU() string {
	if l.SourceLine.ProductSKU != "" {
		return l.SourceLine.ProductSKU
	}
	return l.ProductSKU
}

// Name returns the product name of the line.
func (l TaxBaseLine) Name() string {
	if l.SourceLine.ProductName != "" {
		return l.SourceLine.ProductName
	}
	return l.ProductName
}

// TaxSource is the checkout or order the taxes are calculated for.
type TaxSource struct {
	Typename         string         `json:"__typename"`
	ID               string         `json:"id"`
	UserEmail        string         `json:"email,omitempty"`
	User             *User          `json:"user,omitempty"`
	BillingAddress   *Address       `json:"billingAddress,omitempty"`
	Metadata         []MetadataItem `json:"metadata,omitempty"`
	AvataxEntityCode string         `json:"avataxEntityCode,omitempty"`
}

// CalculateTaxesEvent is the sync webhook payload.
type CalculateTaxesEvent struct {
	TaxBase TaxBase `json:"taxBase"`
}

// TaxLineResult is one line of the calculate taxes response.
type TaxLineResult struct {
	TotalGrossAmount float64 `json:"total_gross_amount"`
	TotalNetAmount   float64 `json:"total_net_amount"`
	TaxRate          float64 `json:"tax_rate"`
}

// CalculateTaxesResponse is what Saleor expects from the sync tax webhook.
type CalculateTaxesResponse struct {
	ShippingPriceGrossAmount float64         `json:"shipping_price_gross_amount"`
	ShippingPriceNetAmount   float64         `json:"shipping_price_net_amount"`
	ShippingTaxRate          float64         `json:"shipping_tax_rate"`
	Lines                    []TaxLineResult `json:"lines"`
}
