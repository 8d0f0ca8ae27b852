package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/batchkit/batchkit/pkg/common"
	"github.com/smartcontractkit/chainlink-common/pkg/logger"
)

// ActiveRequestsMiddleware creates a gin middleware that tracks active requests.
func ActiveRequestsMiddleware(monitoring common.EngineMonitoring, lggr logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		monitoring.Metrics().IncrementActiveRequestsCounter(c.Request.Context())

		start := time.Now()

		c.Next()

		monitoring.Metrics().DecrementActiveRequestsCounter(c.Request.Context())

		duration := time.Since(start)

		monitoring.Metrics().RecordHTTPRequestDuration(c.Request.Context(), duration, c.Request.URL.Path, c.Request.Method, c.Writer.Status())
		lggr.Debugw("Request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", duration.Milliseconds(),
		)
	}
}
