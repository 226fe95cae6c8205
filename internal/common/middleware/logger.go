package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"raffle-backend/internal/common/logger"
)

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		evt := logger.Info()
		if c.Writer.Status() >= 500 {
			evt = logger.Error()
		}
		evt.
			Str("request_id", getRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int64("user_id", getUserID(c)).
			Int("body_size", c.Writer.Size()).
			Msg("Request processed")
	}
}
