package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trieb-work/saleor-apps/internal/interfaces/http/dto"
)

// BodyLimit rejects webhook and dashboard payloads larger than maxBytes.
// A non-positive maxBytes disables the check.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 || c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponse(
				dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size",
			))
			return
		}

		// chunked bodies fail on read once the limit is crossed
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
