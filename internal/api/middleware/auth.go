// Package middleware provides HTTP middleware for the dnstp management API:
// API key authentication and request logging.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/dnstp/internal/api/models"
)

// APIKeyHeader carries the shared secret.
const APIKeyHeader = "X-API-Key"

// RequireAPIKey enforces a shared-secret API key on every path except the
// exempt ones (matched against the route pattern). An empty expected key
// disables the check.
func RequireAPIKey(expected string, exempt ...string) gin.HandlerFunc {
	want := []byte(expected)
	return func(c *gin.Context) {
		if expected == "" || slices.Contains(exempt, c.FullPath()) {
			c.Next()
			return
		}
		got := []byte(c.GetHeader(APIKeyHeader))
		if subtle.ConstantTimeCompare(got, want) == 1 {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
	}
}
