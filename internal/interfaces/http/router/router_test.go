package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trieb-work/saleor-apps/internal/application/manifest"
	"github.com/trieb-work/saleor-apps/internal/domain/apl/apltest"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/config"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/handler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	group := NewRouteGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	NewRouter(engine).Register(group).Setup()

	w := serve(engine, http.MethodGet, "/test/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestRouterWithBasePath(t *testing.T) {
	engine := gin.New()
	group := NewRouteGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	NewRouter(engine, WithBasePath("/apps/smtp")).Register(group).Setup()

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/apps/smtp/test/ping").Code)
	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/test/ping").Code)
}

func TestRouteGroup(t *testing.T) {
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }

	t.Run("name and prefix", func(t *testing.T) {
		g := NewRouteGroup("smtp", "/api/smtp")
		assert.Equal(t, "smtp", g.Name())
		assert.Equal(t, "/api/smtp", g.Prefix())
	})

	t.Run("every method", func(t *testing.T) {
		engine := gin.New()
		g := NewRouteGroup("test", "/test")
		g.GET("/a", ok).POST("/a", ok).PUT("/a/:id", ok).PATCH("/a/:id", ok).DELETE("/a/:id", ok)
		g.RegisterRoutes(&engine.RouterGroup)

		for _, tt := range []struct{ method, path string }{
			{http.MethodGet, "/test/a"},
			{http.MethodPost, "/test/a"},
			{http.MethodPut, "/test/a/1"},
			{http.MethodPatch, "/test/a/1"},
			{http.MethodDelete, "/test/a/1"},
		} {
			assert.Equal(t, http.StatusOK, serve(engine, tt.method, tt.path).Code, "%s %s", tt.method, tt.path)
		}
	})

	t.Run("middleware stays in its group", func(t *testing.T) {
		engine := gin.New()
		guarded := NewRouteGroup("guarded", "").Use(func(c *gin.Context) {
			c.AbortWithStatus(http.StatusTeapot)
		})
		guarded.GET("/guarded", ok)
		open := NewRouteGroup("open", "")
		open.GET("/open", ok)

		NewRouter(engine).Register(guarded, open).Setup()

		assert.Equal(t, http.StatusTeapot, serve(engine, http.MethodGet, "/guarded").Code)
		assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/open").Code)
	})

	t.Run("subgroups", func(t *testing.T) {
		engine := gin.New()
		g := NewRouteGroup("avatax", "/api/avatax")
		g.Group("connections", "/connections").GET("", ok)
		g.RegisterRoutes(&engine.RouterGroup)

		assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/avatax/connections").Code)
	})
}

func marker(status int) []gin.HandlerFunc {
	return []gin.HandlerFunc{func(c *gin.Context) { c.AbortWithStatus(status) }}
}

// testMiddlewares makes each chain abort with a distinct status so a
// request shows which chain guards its route.
func testMiddlewares() Middlewares {
	return Middlewares{
		Webhook:   marker(http.StatusTeapot),
		Dashboard: marker(http.StatusForbidden),
		Vendor:    marker(http.StatusPaymentRequired),
	}
}

func routeSet(engine *gin.Engine) map[string]bool {
	routes := map[string]bool{}
	for _, r := range engine.Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	return routes
}

func TestAppRoutes(t *testing.T) {
	engine := gin.New()
	h := handler.NewAppHandler(handler.AppHandlerConfig{
		Kind:     config.AppSMTP,
		Manifest: manifest.Options{APIBaseURL: "https://smtp.example.com"},
		APL:      apltest.NewMemory(),
	})
	NewRouter(engine).Register(AppRoutes(h)).Setup()

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, PathHealthz).Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, PathReadyz).Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, manifest.PathManifest).Code)
	assert.True(t, routeSet(engine)["POST "+manifest.PathRegister])
}

func TestWebhookRoutesFollowManifest(t *testing.T) {
	tests := []struct {
		kind      string
		registrar func(Middlewares) []RouteRegistrar
	}{
		{config.AppSMTP, func(mw Middlewares) []RouteRegistrar { return SMTPRoutes(handler.NewSMTPHandler(nil, nil), mw) }},
		{config.AppAvatax, func(mw Middlewares) []RouteRegistrar { return AvataxRoutes(handler.NewAvataxHandler(nil, nil), mw) }},
		{config.AppKlaviyo, func(mw Middlewares) []RouteRegistrar { return KlaviyoRoutes(handler.NewKlaviyoHandler(nil, nil), mw) }},
		{config.AppSearch, func(mw Middlewares) []RouteRegistrar { return SearchRoutes(handler.NewSearchHandler(nil, nil), mw) }},
		{config.AppStripe, func(mw Middlewares) []RouteRegistrar { return StripeRoutes(handler.NewStripeHandler(nil, nil), mw) }},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			engine := gin.New()
			NewRouter(engine).Register(tt.registrar(testMiddlewares())...).Setup()

			defs, err := manifest.Webhooks(tt.kind)
			require.NoError(t, err)
			require.NotEmpty(t, defs)
			for _, d := range defs {
				w := serve(engine, http.MethodPost, d.Path)
				assert.Equal(t, http.StatusTeapot, w.Code, "%s must be guarded by the webhook chain", d.Path)
			}
		})
	}
}

func TestDashboardRoutesAreGuarded(t *testing.T) {
	engine := gin.New()
	NewRouter(engine).
		Register(SMTPRoutes(handler.NewSMTPHandler(nil, nil), testMiddlewares())...).
		Setup()

	assert.Equal(t, http.StatusForbidden, serve(engine, http.MethodGet, "/api/smtp/configurations").Code)
	assert.Equal(t, http.StatusForbidden, serve(engine, http.MethodPut, "/api/smtp/configurations/abc/events/ORDER_CREATED").Code)
	assert.Equal(t, http.StatusForbidden, serve(engine, http.MethodPost, "/api/smtp/preview").Code)
}

func TestStripeRoutes(t *testing.T) {
	engine := gin.New()
	NewRouter(engine).
		Register(StripeRoutes(handler.NewStripeHandler(nil, nil), testMiddlewares())...).
		Setup()

	assert.Equal(t, http.StatusPaymentRequired, serve(engine, http.MethodPost, PathStripeWebhook+"?saleorApiUrl=x").Code)
	assert.Equal(t, http.StatusForbidden, serve(engine, http.MethodGet, "/api/stripe/configs").Code)
	assert.Equal(t, http.StatusForbidden, serve(engine, http.MethodPut, "/api/stripe/channels/Q2hhbm5lbDox").Code)
}

func TestProductsFeedRoutes(t *testing.T) {
	engine := gin.New()
	NewRouter(engine).
		Register(ProductsFeedRoutes(handler.NewProductsFeedHandler(nil, apltest.NewMemory(), nil), testMiddlewares())...).
		Setup()

	routes := routeSet(engine)
	assert.True(t, routes["GET "+PathFeed])
	assert.True(t, routes["PUT /api/products-feed/s3"])
	assert.True(t, routes["POST /api/products-feed/title-template/preview"])

	// The feed is public: an unknown installation reaches the handler and gets 404.
	w := serve(engine, http.MethodGet, handler.FeedURLPath("https://unknown.saleor.cloud/graphql/", "default"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, http.StatusForbidden, serve(engine, http.MethodGet, "/api/products-feed/config").Code)
}

func TestDocsRoutes(t *testing.T) {
	engine := gin.New()
	NewRouter(engine).Register(DocsRoutes()).Setup()

	w := serve(engine, http.MethodGet, "/swagger/index.html")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "swagger-ui")

	w = serve(engine, http.MethodGet, "/swagger/doc.json")
	require.Equal(t, http.StatusOK, w.Code)
	var doc struct {
		Paths map[string]map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))

	// every dashboard route of every app is documented
	apps := [][]RouteRegistrar{
		SMTPRoutes(handler.NewSMTPHandler(nil, nil), testMiddlewares()),
		AvataxRoutes(handler.NewAvataxHandler(nil, nil), testMiddlewares()),
		KlaviyoRoutes(handler.NewKlaviyoHandler(nil, nil), testMiddlewares()),
		SearchRoutes(handler.NewSearchHandler(nil, nil), testMiddlewares()),
		StripeRoutes(handler.NewStripeHandler(nil, nil), testMiddlewares()),
		ProductsFeedRoutes(handler.NewProductsFeedHandler(nil, apltest.NewMemory(), nil), testMiddlewares()),
	}
	param := regexp.MustCompile(`:(\w+)`)
	dashboard := regexp.MustCompile(`^/api/(smtp|avatax|klaviyo|search|stripe|products-feed)/`)
	documented := 0
	for _, registrars := range apps {
		app := gin.New()
		NewRouter(app).Register(registrars...).Setup()
		for _, r := range app.Routes() {
			if !dashboard.MatchString(r.Path) {
				continue
			}
			path := param.ReplaceAllString(r.Path, "{$1}")
			ops, ok := doc.Paths[path]
			if assert.True(t, ok, "%s is not documented", path) {
				assert.Contains(t, ops, strings.ToLower(r.Method), "%s %s is not documented", r.Method, path)
			}
			documented++
		}
	}
	assert.Equal(t, 31, documented)
}

func TestDocsRoutes_Protected(t *testing.T) {
	engine := gin.New()
	NewRouter(engine).Register(DocsRoutes(marker(http.StatusNotFound)...)).Setup()

	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/swagger/index.html").Code)
}
