package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"market-chat/internal/logger"
)

// LoggingMiddleware logs every request with its latency and caller.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		if status >= 400 {
			event = logger.Warn()
		}
		if status >= 500 {
			event = logger.Error()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Int64("user_id", c.GetInt64(UserIDKey)).
			Str("request_id", c.GetString(RequestIDKey)).
			Msg("request")
	}
}
