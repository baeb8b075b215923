package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/domain/apl/apltest"
)

const testSaleorAPIURL = "https://demo.saleor.cloud/graphql/"

func testAuthData() apl.AuthData {
	return apl.AuthData{
		SaleorAPIURL: testSaleorAPIURL,
		Token:        "app-token",
		AppID:        "QXBwOjE=",
	}
}

func tenantRouter(store apl.APL, queryParam string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Tenant(TenantConfig{APL: store, QueryParam: queryParam}))
	router.GET("/test", func(c *gin.Context) {
		data := GetAuthData(c)
		c.JSON(http.StatusOK, gin.H{"appId": data.AppID, "url": GetSaleorAPIURL(c)})
	})
	return router
}

func TestSaleorAPIURL(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		headers    map[string]string
		target     string
		queryParam string
		expected   string
	}{
		{
			name:     "header",
			headers:  map[string]string{HeaderSaleorAPIURL: testSaleorAPIURL},
			target:   "/",
			expected: testSaleorAPIURL,
		},
		{
			name:       "query parameter",
			target:     "/?saleorApiUrl=" + testSaleorAPIURL,
			queryParam: "saleorApiUrl",
			expected:   testSaleorAPIURL,
		},
		{
			name:     "query parameter ignored when not configured",
			target:   "/?saleorApiUrl=" + testSaleorAPIURL,
			expected: "",
		},
		{
			name:     "legacy saleor-domain header",
			headers:  map[string]string{HeaderSaleorDomain: "demo.saleor.cloud"},
			target:   "/",
			expected: testSaleorAPIURL,
		},
		{
			name:     "header wins over domain",
			headers:  map[string]string{HeaderSaleorAPIURL: "https://a.example.com/graphql/", HeaderSaleorDomain: "b.example.com"},
			target:   "/",
			expected: "https://a.example.com/graphql/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, tt.target, nil)
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, SaleorAPIURL(c, tt.queryParam))
		})
	}
}

func TestTenant(t *testing.T) {
	t.Run("resolves registered instance", func(t *testing.T) {
		router := tenantRouter(apltest.NewMemory(testAuthData()), "")

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderSaleorAPIURL, testSaleorAPIURL)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"appId":"QXBwOjE="`)
		assert.Contains(t, w.Body.String(), testSaleorAPIURL)
	})

	t.Run("missing header is a bad request", func(t *testing.T) {
		router := tenantRouter(apltest.NewMemory(testAuthData()), "")

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Missing saleor-api-url header")
	})

	t.Run("unknown instance is unauthorized", func(t *testing.T) {
		router := tenantRouter(apltest.NewMemory(), "")

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderSaleorAPIURL, testSaleorAPIURL)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Can't find auth data for saleorApiUrl "+testSaleorAPIURL)
	})

	t.Run("store failure is an internal error", func(t *testing.T) {
		store := apltest.NewMemory(testAuthData())
		store.Err = errors.New("redis: connection refused")
		router := tenantRouter(store, "")

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderSaleorAPIURL, testSaleorAPIURL)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection refused")
	})

	t.Run("reads query parameter for vendor callbacks", func(t *testing.T) {
		router := tenantRouter(apltest.NewMemory(testAuthData()), "saleorApiUrl")

		req := httptest.NewRequest(http.MethodGet, "/test?saleorApiUrl="+testSaleorAPIURL, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
