package telemetry

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// GinLogger logs each HTTP request start and finish with slog.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		slog.InfoContext(c.Request.Context(), "http: started call",
			"method", c.Request.Method,
			"path", path,
		)

		c.Next()

		slog.InfoContext(c.Request.Context(), "http: finished call",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
