// Package saleor holds the Saleor payload shapes shared by the apps. Field
// names follow the GraphQL schema so webhook payloads decode directly.
package saleor

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Event names of the webhooks the apps subscribe to
const (
	EventOrderCreated                 = "ORDER_CREATED"
	EventOrderConfirmed               = "ORDER_CONFIRMED"
	EventOrderFulfilled               = "ORDER_FULFILLED"
	EventOrderFullyPaid               = "ORDER_FULLY_PAID"
	EventOrderCancelled               = "ORDER_CANCELLED"
	EventOrderRefunded                = "ORDER_REFUNDED"
	EventInvoiceSent                  = "INVOICE_SENT"
	EventGiftCardSent                 = "GIFT_CARD_SENT"
	EventCustomerCreated              = "CUSTOMER_CREATED"
	EventFulfillmentCreated           = "FULFILLMENT_CREATED"
	EventCheckoutCalculateTaxes       = "CHECKOUT_CALCULATE_TAXES"
	EventOrderCalculateTaxes          = "ORDER_CALCULATE_TAXES"
	EventProductCreated               = "PRODUCT_CREATED"
	EventProductUpdated               = "PRODUCT_UPDATED"
	EventProductDeleted               = "PRODUCT_DELETED"
	EventProductVariantCreated        = "PRODUCT_VARIANT_CREATED"
	EventProductVariantUpdated        = "PRODUCT_VARIANT_UPDATED"
	EventProductVariantDeleted        = "PRODUCT_VARIANT_DELETED"
	EventProductVariantBackInStock    = "PRODUCT_VARIANT_BACK_IN_STOCK"
	EventProductVariantOutOfStock     = "PRODUCT_VARIANT_OUT_OF_STOCK"
	EventTransactionInitializeSession = "TRANSACTION_INITIALIZE_SESSION"
	EventTransactionProcessSession    = "TRANSACTION_PROCESS_SESSION"
	EventTransactionChargeRequested   = "TRANSACTION_CHARGE_REQUESTED"
)

type MetadataItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MetadataValue returns the value stored under key, or "".
func MetadataValue(items []MetadataItem, key string) string {
	for _, item := range items {
		if item.Key == key {
			return item.Value
		}
	}
	return ""
}

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type TaxedMoney struct {
	Gross Money `json:"gross"`
	Net   Money `json:"net"`
}

type Channel struct {
	ID           string `json:"id"`
	Slug         string `json:"slug"`
	Name         string `json:"name,omitempty"`
	CurrencyCode string `json:"currencyCode,omitempty"`
}

type Country struct {
	Code    string `json:"code"`
	Country string `json:"country,omitempty"`
}

type Address struct {
	FirstName      string  `json:"firstName"`
	LastName       string  `json:"lastName"`
	CompanyName    string  `json:"companyName"`
	StreetAddress1 string  `json:"streetAddress1"`
	StreetAddress2 string  `json:"streetAddress2"`
	City           string  `json:"city"`
	CountryArea    string  `json:"countryArea"`
	PostalCode     string  `json:"postalCode"`
	Country        Country `json:"country"`
	Phone          string  `json:"phone"`
}

type User struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	Metadata  []MetadataItem `json:"metadata,omitempty"`
}

type OrderLine struct {
	ID           string     `json:"id"`
	ProductName  string     `json:"productName"`
	VariantName  string     `json:"variantName"`
	ProductSKU   string     `json:"productSku"`
	Quantity     int        `json:"quantity"`
	UnitPrice    TaxedMoney `json:"unitPrice"`
	TotalPrice   TaxedMoney `json:"totalPrice"`
	TaxClass     *TaxClass  `json:"taxClass,omitempty"`
	ThumbnailURL string     `json:"thumbnailUrl,omitempty"`
}

type TaxClass struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata []MetadataItem `json:"metadata,omitempty"`
}

type Order struct {
	ID              string         `json:"id"`
	Number          string         `json:"number"`
	UserEmail       string         `json:"userEmail"`
	User            *User          `json:"user"`
	Created         time.Time      `json:"created"`
	Channel         Channel        `json:"channel"`
	Status          string         `json:"status,omitempty"`
	Total           TaxedMoney     `json:"total"`
	Subtotal        TaxedMoney     `json:"subtotal"`
	ShippingPrice   TaxedMoney     `json:"shippingPrice"`
	ShippingMethod  string         `json:"shippingMethodName,omitempty"`
	Lines           []OrderLine    `json:"lines"`
	BillingAddress  *Address       `json:"billingAddress"`
	ShippingAddress *Address       `json:"shippingAddress"`
	Metadata        []MetadataItem `json:"metadata,omitempty"`
	PrivateMetadata []MetadataItem `json:"privateMetadata,omitempty"`
}

// RecipientEmail is the order email, falling back to the user account email.
func (o *Order) RecipientEmail() string {
	if o.UserEmail != "" {
		return o.UserEmail
	}
	if o.User != nil {
		return o.User.Email
	}
	return ""
}

type Image struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

type Category struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Slug     string         `json:"slug"`
	Parent   *Category      `json:"parent,omitempty"`
	Metadata []MetadataItem `json:"metadata,omitempty"`
}

type Collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type AttributeValue struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type SelectedAttribute struct {
	Attribute struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Slug string `json:"slug"`
	} `json:"attribute"`
	Values []AttributeValue `json:"values"`
}

// FirstValue returns the name of the first value, or "".
func (a SelectedAttribute) FirstValue() string {
	if len(a.Values) == 0 {
		return ""
	}
	return a.Values[0].Name
}

type ProductType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Slug           string              `json:"slug"`
	Description    json.RawMessage     `json:"description,omitempty"`
	SEODescription string              `json:"seoDescription,omitempty"`
	Thumbnail      *Image              `json:"thumbnail,omitempty"`
	Category       *Category           `json:"category,omitempty"`
	Collections    []Collection        `json:"collections,omitempty"`
	ProductType    *ProductType        `json:"productType,omitempty"`
	Attributes     []SelectedAttribute `json:"attributes,omitempty"`
	Metadata       []MetadataItem      `json:"metadata,omitempty"`
	Variants       []ProductVariant    `json:"variants,omitempty"`
	Rating         *float64            `json:"rating,omitempty"`
}

type VariantChannelListing struct {
	Channel Channel `json:"channel"`
	Price   *Money  `json:"price"`
}

type ProductVariant struct {
	ID                string                  `json:"id"`
	Name              string                  `json:"name"`
	SKU               string                  `json:"sku"`
	Product           *Product                `json:"product,omitempty"`
	ChannelListings   []VariantChannelListing `json:"channelListings,omitempty"`
	Attributes        []SelectedAttribute     `json:"attributes,omitempty"`
	Metadata          []MetadataItem          `json:"metadata,omitempty"`
	QuantityAvailable *int                    `json:"quantityAvailable,omitempty"`
	Pricing           *VariantPricing         `json:"pricing,omitempty"`
	Media             []Image                 `json:"media,omitempty"`
}

type VariantPricing struct {
	Price TaxedMoney `json:"price"`
}

// InStock treats an unknown quantity as available.
func (v *ProductVariant) InStock() bool {
	return v.QuantityAvailable == nil || *v.QuantityAvailable > 0
}

// ListingFor returns the channel listing for slug, or nil.
func (v *ProductVariant) ListingFor(slug string) *VariantChannelListing {
	for i := range v.ChannelListings {
		if v.ChannelListings[i].Channel.Slug == slug {
			return &v.ChannelListings[i]
		}
	}
	return nil
}

// AttributeValues joins the values of the attributes whose id is in ids,
// variant attributes first, then product attributes.
func AttributeValues(ids []string, attributeSets ...[]SelectedAttribute) string {
	if len(ids) == 0 {
		return ""
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var values []string
	for _, set := range attributeSets {
		for _, attr := range set {
			if _, ok := wanted[attr.Attribute.ID]; !ok {
				continue
			}
			for _, v := range attr.Values {
				if v.Name != "" {
					values = append(values, v.Name)
				}
			}
		}
		if len(values) > 0 {
			break
		}
	}
	return strings.Join(values, "/")
}
