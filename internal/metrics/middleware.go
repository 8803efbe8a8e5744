package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xerolink/xerolink/internal/logging"
)

// Middleware records request metrics per route. Scrapes of /metrics are
// skipped so they do not count themselves.
func Middleware(m *Metrics, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		m.IncHTTPRequestsInFlight()
		start := time.Now()
		c.Next()
		m.DecHTTPRequestsInFlight()

		// The route template keeps company ids out of the label set.
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		statusCode := c.Writer.Status()
		status := strconv.Itoa(statusCode)

		m.RecordRequestLatency(route, method, status, time.Since(start).Seconds())
		m.RecordHTTPRequest(route, method, status)
		if statusCode >= http.StatusBadRequest {
			m.RecordError(status, route, method)
		}

		if len(c.Errors) > 0 {
			logger.ErrorCtx(c.Request.Context(), "request errors", "errors", c.Errors.String())
		}
	}
}
