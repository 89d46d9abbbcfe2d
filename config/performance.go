package config

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

func PerformanceLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		slog.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", latency)

		// A manual cycle run legitimately takes seconds; only flag the rest.
		if latency > 200*time.Millisecond && c.FullPath() != "/ops/reminders/run" {
			slog.Warn("slow request", "method", c.Request.Method, "path", c.Request.URL.Path, "latency", latency)
		}
	}
}
