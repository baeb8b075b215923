package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// serveLogged runs one request through GinMiddleware and returns the access
// log entry.
func serveLogged(t *testing.T, req *http.Request, status int, before ...gin.HandlerFunc) (observer.LoggedEntry, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)

	router := gin.New()
	router.Use(before...)
	router.Use(GinMiddleware(zap.New(core)))
	router.Handle(req.Method, req.URL.Path, func(c *gin.Context) { c.Status(status) })

	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := recorded.FilterMessage("HTTP Request").All()
	require.Len(t, entries, 1)
	return entries[0], recorded
}

func TestGinMiddleware_Levels(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  zapcore.Level
	}{
		{"handled webhook", http.StatusOK, zapcore.InfoLevel},
		{"rejected signature", http.StatusUnauthorized, zapcore.WarnLevel},
		{"client error", http.StatusBadRequest, zapcore.WarnLevel},
		{"vendor outage", http.StatusInternalServerError, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, _ := serveLogged(t, httptest.NewRequest(http.MethodPost, "/api/webhooks/order-confirmed", nil), tt.status)
			assert.Equal(t, tt.level, entry.Level)
			assert.EqualValues(t, tt.status, entry.ContextMap()["status"])
		})
	}
}

func TestGinMiddleware_Fields(t *testing.T) {
	t.Run("request id", func(t *testing.T) {
		setID := func(c *gin.Context) {
			c.Set("request_id", "test-req-123")
			c.Next()
		}
		entry, _ := serveLogged(t, httptest.NewRequest(http.MethodGet, "/api/manifest", nil), http.StatusOK, setID)
		assert.Equal(t, "test-req-123", entry.ContextMap()["request_id"])
	})

	t.Run("query string", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe?saleorApiUrl=x&configurationId=abc", nil)
		entry, _ := serveLogged(t, req, http.StatusOK)
		assert.Contains(t, entry.ContextMap()["query"], "configurationId=abc")
	})

	t.Run("saleor event", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/order-confirmed", nil)
		req.Header.Set("Saleor-Event", "order_confirmed")
		entry, _ := serveLogged(t, req, http.StatusOK)
		assert.Equal(t, "ORDER_CONFIRMED", entry.ContextMap()["saleor_event"])
	})

	t.Run("no saleor event on dashboard calls", func(t *testing.T) {
		entry, _ := serveLogged(t, httptest.NewRequest(http.MethodGet, "/api/smtp/configurations", nil), http.StatusOK)
		assert.NotContains(t, entry.ContextMap(), "saleor_event")
	})
}

func TestGinMiddleware_AttachesContext(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("request_id", "req-42")
		c.Next()
	})
	router.Use(GinMiddleware(zap.New(core)))
	router.POST("/api/webhooks/order-confirmed", func(c *gin.Context) {
		ctx := c.Request.Context()
		assert.Equal(t, "req-42", GetRequestID(ctx))
		assert.Equal(t, "https://shop.saleor.cloud/graphql/", GetTenant(ctx))
		L(ctx).Info("handled")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/order-confirmed", nil)
	req.Header.Set("Saleor-Api-Url", "https://shop.saleor.cloud/graphql/")
	router.ServeHTTP(httptest.NewRecorder(), req)

	logs := recorded.FilterMessage("handled").All()
	require.Len(t, logs, 1)
	fields := logs[0].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "https://shop.saleor.cloud/graphql/", fields["saleor_api_url"])
	assert.Equal(t, "/api/webhooks/order-confirmed", fields["path"])
	assert.Equal(t, http.MethodPost, fields["method"])

	httpFields := recorded.FilterMessage("HTTP Request").All()[0].ContextMap()
	assert.Contains(t, httpFields, "latency")
	assert.Contains(t, httpFields, "client_ip")
}

func TestRecovery(t *testing.T) {
	core, recorded := observer.New(zapcore.ErrorLevel)

	router := gin.New()
	router.Use(Recovery(zap.New(core)))
	router.POST("/api/webhooks/order-confirmed", func(c *gin.Context) {
		panic("template helper exploded")
	})

	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/webhooks/order-confirmed", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	logs := recorded.FilterMessage("Panic recovered").All()
	require.Len(t, logs, 1)
	assert.Equal(t, "template helper exploded", logs[0].ContextMap()["error"])
}

func TestGetGinLogger(t *testing.T) {
	t.Run("set by the middleware", func(t *testing.T) {
		core, recorded := observer.New(zapcore.InfoLevel)
		router := gin.New()
		router.Use(GinMiddleware(zap.New(core)))
		router.GET("/api/manifest", func(c *gin.Context) {
			GetGinLogger(c).Info("from handler")
			c.Status(http.StatusOK)
		})

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/manifest", nil))
		assert.Equal(t, 1, recorded.FilterMessage("from handler").Len())
	})

	t.Run("falls back to a no-op logger", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		l := GetGinLogger(c)
		require.NotNil(t, l)
		assert.NotPanics(t, func() { l.Info("dropped") })
	})
}
