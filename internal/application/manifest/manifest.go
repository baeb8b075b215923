// Package manifest describes each app to Saleor: permissions, webhook
// subscriptions and the URLs the dashboard and the registration flow use.
package manifest

import (
	"fmt"
	"strings"

	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/config"
)

// Routes shared by every app
const (
	PathManifest = "/api/manifest"
	PathRegister = "/api/register"
)

// Webhook routes
const (
	PathOrderCreated                 = "/api/webhooks/order-created"
	PathOrderConfirmed               = "/api/webhooks/order-confirmed"
	PathOrderFulfilled               = "/api/webhooks/order-fulfilled"
	PathOrderFullyPaid               = "/api/webhooks/order-fully-paid"
	PathOrderCancelled               = "/api/webhooks/order-cancelled"
	PathOrderRefunded                = "/api/webhooks/order-refunded"
	PathInvoiceSent                  = "/api/webhooks/invoice-sent"
	PathGiftCardSent                 = "/api/webhooks/gift-card-sent"
	PathCustomerCreated              = "/api/webhooks/customer-created"
	PathFulfillmentCreated           = "/api/webhooks/fulfillment-created"
	PathCheckoutCalculateTaxes       = "/api/webhooks/checkout-calculate-taxes"
	PathOrderCalculateTaxes          = "/api/webhooks/order-calculate-taxes"
	PathProductCreated               = "/api/webhooks/product-created"
	PathProductUpdated               = "/api/webhooks/product-updated"
	PathProductDeleted               = "/api/webhooks/product-deleted"
	PathProductVariantCreated        = "/api/webhooks/product-variant-created"
	PathProductVariantUpdated        = "/api/webhooks/product-variant-updated"
	PathProductVariantDeleted        = "/api/webhooks/product-variant-deleted"
	PathProductVariantBackInStock    = "/api/webhooks/product-variant-back-in-stock"
	PathProductVariantOutOfStock     = "/api/webhooks/product-variant-out-of-stock"
	PathTransactionInitializeSession = "/api/webhooks/transaction-initialize-session"
	PathTransactionProcessSession    = "/api/webhooks/transaction-process-session"
	PathTransactionChargeRequested   = "/api/webhooks/transaction-charge-requested"
)

// Saleor app permissions
const (
	PermissionHandlePayments         = "HANDLE_PAYMENTS"
	PermissionHandleTaxes            = "HANDLE_TAXES"
	PermissionManageOrders           = "MANAGE_ORDERS"
	PermissionManageUsers            = "MANAGE_USERS"
	PermissionManageGiftCard         = "MANAGE_GIFT_CARD"
	PermissionManageProducts         = "MANAGE_PRODUCTS"
	PermissionManageProductTypesAttr = "MANAGE_PRODUCT_TYPES_AND_ATTRIBUTES"
)

// Webhook is one subscription in the manifest
type Webhook struct {
	Name        string   `json:"name"`
	AsyncEvents []string `json:"asyncEvents,omitempty"`
	SyncEvents  []string `json:"syncEvents,omitempty"`
	Query       string   `json:"query"`
	TargetURL   string   `json:"targetUrl"`
	IsActive    bool     `json:"isActive"`
}

// Manifest is the document Saleor fetches when the app is installed
type Manifest struct {
	ID                    string    `json:"id"`
	Version               string    `json:"version"`
	Name                  string    `json:"name"`
	About                 string    `json:"about,omitempty"`
	Permissions           []string  `json:"permissions"`
	AppURL                string    `json:"appUrl"`
	TokenTargetURL        string    `json:"tokenTargetUrl"`
	Author                string    `json:"author,omitempty"`
	HomepageURL           string    `json:"homepageUrl,omitempty"`
	SupportURL            string    `json:"supportUrl,omitempty"`
	DataPrivacyURL        string    `json:"dataPrivacyUrl,omitempty"`
	RequiredSaleorVersion string    `json:"requiredSaleorVersion,omitempty"`
	Webhooks              []Webhook `json:"webhooks"`
	Extensions            []any     `json:"extensions"`
}

// Definition describes one webhook an app handles
type Definition struct {
	Name  string
	Event string
	Path  string
	Sync  bool
	Query string
}

type app struct {
	id          string
	name        string
	about       string
	permissions []string
	webhooks    []Definition
}

func orderWebhook(name, event, path, typename string) Definition {
	return Definition{Name: name, Event: event, Path: path, Query: orderSubscription(typename, typename)}
}

func productWebhook(name, event, path, typename string) Definition {
	return Definition{Name: name, Event: event, Path: path, Query: productSubscription(typename, typename)}
}

func variantWebhook(name, event, path, typename string) Definition {
	return Definition{Name: name, Event: event, Path: path, Query: variantSubscription(typename, typename)}
}

var apps = map[string]app{
	config.AppSMTP: {
		id:          "saleor.app.smtp",
		name:        "SMTP",
		about:       "Sends transactional emails for Saleor events through your own SMTP server.",
		permissions: []string{PermissionManageOrders, PermissionManageUsers, PermissionManageGiftCard},
		webhooks: []Definition{
			orderWebhook("Order Created in Saleor", saleor.EventOrderCreated, PathOrderCreated, "OrderCreated"),
			orderWebhook("Order Confirmed in Saleor", saleor.EventOrderConfirmed, PathOrderConfirmed, "OrderConfirmed"),
			orderWebhook("Order Fulfilled in Saleor", saleor.EventOrderFulfilled, PathOrderFulfilled, "OrderFulfilled"),
			orderWebhook("Order Fully Paid in Saleor", saleor.EventOrderFullyPaid, PathOrderFullyPaid, "OrderFullyPaid"),
			orderWebhook("Order Cancelled in Saleor", saleor.EventOrderCancelled, PathOrderCancelled, "OrderCancelled"),
			orderWebhook("Order Refunded in Saleor", saleor.EventOrderRefunded, PathOrderRefunded, "OrderRefunded"),
			{Name: "Invoice sent in Saleor", Event: saleor.EventInvoiceSent, Path: PathInvoiceSent, Query: invoiceSentSubscription},
			{Name: "Gift card sent in Saleor", Event: saleor.EventGiftCardSent, Path: PathGiftCardSent, Query: giftCardSentSubscription},
		},
	},
	config.AppAvatax: {
		id:          "saleor.app.avatax",
		name:        "AvaTax",
		about:       "Calculates taxes with Avalara AvaTax and commits them when orders are confirmed.",
		permissions: []string{PermissionHandleTaxes, PermissionManageOrders},
		webhooks: []Definition{
			{Name: "CheckoutCalculateTaxes", Event: saleor.EventCheckoutCalculateTaxes, Path: PathCheckoutCalculateTaxes, Sync: true,
				Query: calculateTaxesSubscription("CalculateTaxes", "CalculateTaxes")},
			{Name: "OrderCalculateTaxes", Event: saleor.EventOrderCalculateTaxes, Path: PathOrderCalculateTaxes, Sync: true,
				Query: calculateTaxesSubscription("CalculateTaxes", "CalculateTaxes")},
			orderWebhook("OrderConfirmed", saleor.EventOrderConfirmed, PathOrderConfirmed, "OrderConfirmed"),
			orderWebhook("OrderCancelled", saleor.EventOrderCancelled, PathOrderCancelled, "OrderCancelled"),
		},
	},
	config.AppKlaviyo: {
		id:          "saleor.app.klaviyo",
		name:        "Klaviyo",
		about:       "Tracks customer and order events in Klaviyo.",
		permissions: []string{PermissionManageUsers, PermissionManageOrders},
		webhooks: []Definition{
			orderWebhook("Order Created", saleor.EventOrderCreated, PathOrderCreated, "OrderCreated"),
			orderWebhook("Order Fully Paid", saleor.EventOrderFullyPaid, PathOrderFullyPaid, "OrderFullyPaid"),
			{Name: "Customer Created", Event: saleor.EventCustomerCreated, Path: PathCustomerCreated, Query: customerCreatedSubscription},
			{Name: "Fulfillment Created", Event: saleor.EventFulfillmentCreated, Path: PathFulfillmentCreated, Query: fulfillmentCreatedSubscription},
		},
	},
	config.AppSearch: {
		id:          "saleor.app.search",
		name:        "Search",
		about:       "Keeps Algolia indices in sync with Saleor products.",
		permissions: []string{PermissionManageProducts, PermissionManageProductTypesAttr},
		webhooks: []Definition{
			productWebhook("ProductCreated", saleor.EventProductCreated, PathProductCreated, "ProductCreated"),
			productWebhook("ProductUpdated", saleor.EventProductUpdated, PathProductUpdated, "ProductUpdated"),
			productWebhook("ProductDeleted", saleor.EventProductDeleted, PathProductDeleted, "ProductDeleted"),
			variantWebhook("ProductVariantCreated", saleor.EventProductVariantCreated, PathProductVariantCreated, "ProductVariantCreated"),
			variantWebhook("ProductVariantUpdated", saleor.EventProductVariantUpdated, PathProductVariantUpdated, "ProductVariantUpdated"),
			variantWebhook("ProductVariantDeleted", saleor.EventProductVariantDeleted, PathProductVariantDeleted, "ProductVariantDeleted"),
			variantWebhook("ProductVariantBackInStock", saleor.EventProductVariantBackInStock, PathProductVariantBackInStock, "ProductVariantBackInStock"),
			variantWebhook("ProductVariantOutOfStock", saleor.EventProductVariantOutOfStock, PathProductVariantOutOfStock, "ProductVariantOutOfStock"),
		},
	},
	config.AppStripe: {
		id:          "saleor.app.payment.stripe",
		name:        "Stripe",
		about:       "Accepts payments with Stripe through Saleor transactions.",
		permissions: []string{PermissionHandlePayments},
		webhooks: []Definition{
			{Name: "TransactionInitializeSession", Event: saleor.EventTransactionInitializeSession, Path: PathTransactionInitializeSession, Sync: true,
				Query: transactionSessionSubscription("TransactionInitializeSession", "TransactionInitializeSession")},
			{Name: "TransactionProcessSession", Event: saleor.EventTransactionProcessSession, Path: PathTransactionProcessSession, Sync: true,
				Query: transactionSessionSubscription("TransactionProcessSession", "TransactionProcessSession")},
			{Name: "TransactionChargeRequested", Event: saleor.EventTransactionChargeRequested, Path: PathTransactionChargeRequested, Sync: true,
				Query: transactionChargeRequestedSubscription},
		},
	},
	config.AppProductsFeed: {
		id:          "saleor.app.products-feed",
		name:        "Products Feed",
		about:       "Generates Google Merchant Center product feeds.",
		permissions: []string{PermissionManageProducts},
	},
}

// Options carries the deployment specific parts of a manifest
type Options struct {
	AppName               string
	Version               string
	APIBaseURL            string
	IframeBaseURL         string
	RequiredSaleorVersion string
}

// Webhooks returns the webhooks of an app kind.
func Webhooks(kind string) ([]Definition, error) {
	a, ok := apps[kind]
	if !ok {
		return nil, fmt.Errorf("manifest: unknown app kind %q", kind)
	}
	return a.webhooks, nil
}

// Build returns the manifest of an app kind. Webhook targets point at the
// API base URL, the dashboard iframe at the iframe base URL.
func Build(kind string, opts Options) (*Manifest, error) {
	a, ok := apps[kind]
	if !ok {
		return nil, fmt.Errorf("manifest: unknown app kind %q", kind)
	}
	apiBase := strings.TrimRight(opts.APIBaseURL, "/")
	if apiBase == "" {
		return nil, fmt.Errorf("manifest: API base URL is required")
	}
	iframeBase := strings.TrimRight(opts.IframeBaseURL, "/")
	if iframeBase == "" {
		iframeBase = apiBase
	}
	name := opts.AppName
	if name == "" {
		name = a.name
	}

	webhooks := make([]Webhook, 0, len(a.webhooks))
	for _, d := range a.webhooks {
		w := Webhook{
			Name:      d.Name,
			Query:     strings.TrimSpace(d.Query),
			TargetURL: apiBase + d.Path,
			IsActive:  true,
		}
		if d.Sync {
			w.SyncEvents = []string{d.Event}
		} else {
			w.AsyncEvents = []string{d.Event}
		}
		webhooks = append(webhooks, w)
	}

	return &Manifest{
		ID:                    a.id,
		Version:               opts.Version,
		Name:                  name,
		About:                 a.about,
		Permissions:           a.permissions,
		AppURL:                iframeBase + "/",
		TokenTargetURL:        apiBase + PathRegister,
		Author:                "trieb.work",
		HomepageURL:           "https://github.com/trieb-work/saleor-apps",
		SupportURL:            "https://github.com/trieb-work/saleor-apps/issues",
		RequiredSaleorVersion: opts.RequiredSaleorVersion,
		Webhooks:              webhooks,
		Extensions:            []any{},
	}, nil
}
