package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func bodyLimitEngine(limit int64) *gin.Engine {
	engine := gin.New()
	engine.Use(BodyLimit(limit))
	engine.POST("/api/webhooks/order-confirmed", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusBadRequest, "unreadable")
			return
		}
		c.String(http.StatusOK, "ok")
	})
	engine.GET("/api/manifest", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return engine
}

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	payload := `{"order":{"number":"42"}}`

	tests := []struct {
		name          string
		limit         int64
		method        string
		path          string
		body          string
		contentLength int64
		status        int
	}{
		{"payload within the limit", 1024, http.MethodPost, "/api/webhooks/order-confirmed", payload, int64(len(payload)), http.StatusOK},
		{"declared length over the limit", 10, http.MethodPost, "/api/webhooks/order-confirmed", payload, int64(len(payload)), http.StatusRequestEntityTooLarge},
		{"chunked body over the limit", 10, http.MethodPost, "/api/webhooks/order-confirmed", payload, -1, http.StatusBadRequest},
		{"request without a body", 10, http.MethodGet, "/api/manifest", "", 0, http.StatusOK},
		{"limit disabled", 0, http.MethodPost, "/api/webhooks/order-confirmed", strings.Repeat("x", 4096), 4096, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			req.ContentLength = tt.contentLength
			w := httptest.NewRecorder()

			bodyLimitEngine(tt.limit).ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusRequestEntityTooLarge {
				assert.Contains(t, w.Body.String(), "ERR_REQUEST_TOO_LARGE")
			}
		})
	}
}
