package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xerolink/xerolink/internal/logging"
)

// APIKeyAuth returns a middleware that validates requests against the
// configured API keys. When no keys are configured the middleware allows
// all requests through, which is only intended for local development.
func APIKeyAuth(apiKeys []string, headerName string, logger *logging.Logger) gin.HandlerFunc {
	if headerName == "" {
		headerName = "X-API-Key"
	}

	keySet := make(map[string]struct{}, len(apiKeys))
	for _, key := range apiKeys {
		if key != "" {
			keySet[key] = struct{}{}
		}
	}

	if len(keySet) == 0 {
		logger.Warn("no API keys configured, authentication disabled")
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		provided := c.GetHeader(headerName)
		if provided == "" {
			logger.WarnCtx(c.Request.Context(), "request without API key",
				"path", c.Request.URL.Path,
				"remote_addr", c.ClientIP(),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "unauthorized",
				"message": "missing API key",
			})
			return
		}

		if !keyAllowed(keySet, provided) {
			logger.WarnCtx(c.Request.Context(), "request with invalid API key",
				"path", c.Request.URL.Path,
				"remote_addr", c.ClientIP(),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "unauthorized",
				"message": "invalid API key",
			})
			return
		}

		c.Next()
	}
}

func keyAllowed(keySet map[string]struct{}, provided string) bool {
	for key := range keySet {
		if subtle.ConstantTimeCompare([]byte(key), []byte(provided)) == 1 {
			return true
		}
	}
	return false
}
