package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/trieb-work/saleor-apps/internal/application/manifest"
	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/config"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/handler"

	_ "github.com/trieb-work/saleor-apps/docs"
)

// Public routes outside the manifest
const (
	PathHealthz       = "/healthz"
	PathReadyz        = "/readyz"
	PathStripeWebhook = "/api/webhooks/stripe"
	PathFeed          = "/api/feed/:saleorApiUrl/:channel/google.xml"
	PathSwagger       = "/swagger/*any"
)

// Middlewares are the chains mounted in front of each kind of route
type Middlewares struct {
	// Webhook resolves the installation and verifies the Saleor signature.
	Webhook []gin.HandlerFunc
	// Dashboard resolves the installation and verifies the dashboard token.
	Dashboard []gin.HandlerFunc
	// Vendor resolves the installation from the query string of a vendor callback.
	Vendor []gin.HandlerFunc
}

// AppRoutes mounts the manifest, registration and health endpoints.
func AppRoutes(h *handler.AppHandler) *RouteGroup {
	return NewRouteGroup("app", "").
		GET(manifest.PathManifest, h.Manifest).
		POST(manifest.PathRegister, h.Register).
		GET(PathHealthz, h.Healthz).
		GET(PathReadyz, h.Readyz)
}

// DocsRoutes serves Swagger UI and the OpenAPI document of the dashboard API.
func DocsRoutes(mw ...gin.HandlerFunc) *RouteGroup {
	return NewRouteGroup("docs", "").Use(mw...).
		GET(PathSwagger, ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// webhookGroup mounts one POST route per manifest webhook of kind. Events
// handle returns nil for are left unmounted.
func webhookGroup(kind string, mw []gin.HandlerFunc, handle func(event string) gin.HandlerFunc) *RouteGroup {
	g := NewRouteGroup(kind+"-webhooks", "").Use(mw...)
	defs, _ := manifest.Webhooks(kind)
	for _, d := range defs {
		if hf := handle(d.Event); hf != nil {
			g.POST(d.Path, hf)
		}
	}
	return g
}

// SMTPRoutes mounts the SMTP app.
func SMTPRoutes(h *handler.SMTPHandler, mw Middlewares) []RouteRegistrar {
	configs := NewRouteGroup("smtp", "/api/smtp").Use(mw.Dashboard...)
	configs.GET("/configurations", h.ListConfigurations).
		POST("/configurations", h.CreateConfiguration).
		GET("/configurations/:id", h.GetConfiguration).
		PUT("/configurations/:id", h.UpdateConfiguration).
		DELETE("/configurations/:id", h.DeleteConfiguration).
		PUT("/configurations/:id/events/:event", h.UpdateEventConfig).
		POST("/preview", h.Preview)

	return []RouteRegistrar{
		webhookGroup(config.AppSMTP, mw.Webhook, h.Webhook),
		configs,
	}
}

// AvataxRoutes mounts the AvaTax app.
func AvataxRoutes(h *handler.AvataxHandler, mw Middlewares) []RouteRegistrar {
	webhooks := webhookGroup(config.AppAvatax, mw.Webhook, func(event string) gin.HandlerFunc {
		switch event {
		case saleor.EventCheckoutCalculateTaxes, saleor.EventOrderCalculateTaxes:
			return h.CalculateTaxes
		case saleor.EventOrderConfirmed:
			return h.OrderConfirmed
		case saleor.EventOrderCancelled:
			return h.OrderCancelled
		}
		return nil
	})

	configs := NewRouteGroup("avatax", "/api/avatax").Use(mw.Dashboard...)
	configs.GET("/connections", h.ListConnections).
		POST("/connections", h.CreateConnection).
		PUT("/connections/:id", h.UpdateConnection).
		DELETE("/connections/:id", h.DeleteConnection).
		POST("/connections/:id/address-validation", h.ValidateAddress).
		GET("/connections/:id/tax-codes", h.SearchTaxCodes).
		GET("/connections/:id/entity-use-codes/:code", h.LookupEntityUseCode).
		PUT("/channels/:slug", h.BindChannel).
		POST("/credentials/check", h.CheckCredentials)

	return []RouteRegistrar{webhooks, configs}
}

// KlaviyoRoutes mounts the Klaviyo app.
func KlaviyoRoutes(h *handler.KlaviyoHandler, mw Middlewares) []RouteRegistrar {
	configs := NewRouteGroup("klaviyo", "/api/klaviyo").Use(mw.Dashboard...)
	configs.GET("/config", h.GetConfig).
		PUT("/config", h.SetConfig)

	return []RouteRegistrar{
		webhookGroup(config.AppKlaviyo, mw.Webhook, h.Webhook),
		configs,
	}
}

// SearchRoutes mounts the search app.
func SearchRoutes(h *handler.SearchHandler, mw Middlewares) []RouteRegistrar {
	configs := NewRouteGroup("search", "/api/search").Use(mw.Dashboard...)
	configs.GET("/config", h.GetConfig).
		PUT("/config", h.SetConfig)

	return []RouteRegistrar{
		webhookGroup(config.AppSearch, mw.Webhook, h.Webhook),
		configs,
	}
}

// StripeRoutes mounts the Stripe app.
func StripeRoutes(h *handler.StripeHandler, mw Middlewares) []RouteRegistrar {
	webhooks := webhookGroup(config.AppStripe, mw.Webhook, func(event string) gin.HandlerFunc {
		switch event {
		case saleor.EventTransactionInitializeSession:
			return h.TransactionInitializeSession
		case saleor.EventTransactionProcessSession:
			return h.TransactionProcessSession
		case saleor.EventTransactionChargeRequested:
			return h.TransactionChargeRequested
		}
		return nil
	})

	vendor := NewRouteGroup("stripe-vendor", "").Use(mw.Vendor...)
	vendor.POST(PathStripeWebhook, h.StripeWebhook)

	configs := NewRouteGroup("stripe", "/api/stripe").Use(mw.Dashboard...)
	configs.GET("/configs", h.ListConfigs).
		POST("/configs", h.CreateConfig).
		DELETE("/configs/:id", h.DeleteConfig).
		PUT("/channels/:channelId", h.BindChannel)

	return []RouteRegistrar{webhooks, vendor, configs}
}

// ProductsFeedRoutes mounts the products feed app. The feed itself is public.
func ProductsFeedRoutes(h *handler.ProductsFeedHandler, mw Middlewares) []RouteRegistrar {
	public := NewRouteGroup("products-feed-public", "")
	public.GET(PathFeed, h.GetFeed)

	configs := NewRouteGroup("products-feed", "/api/products-feed").Use(mw.Dashboard...)
	configs.GET("/config", h.GetConfig).
		PUT("/s3", h.SetS3).
		PUT("/attribute-mapping", h.SetAttributeMapping).
		PUT("/channels/:slug", h.SetChannelUrls).
		PUT("/image-size", h.SetImageSize).
		PUT("/title-template", h.SetTitleTemplate).
		POST("/title-template/preview", h.PreviewTitle)

	return []RouteRegistrar{public, configs}
}
