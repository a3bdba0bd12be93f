package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// LogEnricher adds fields to the access log line of a finished request.
type LogEnricher func(c *gin.Context, ev *zerolog.Event) *zerolog.Event

func Logger(logger zerolog.Logger, enrichers ...LogEnricher) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		if raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		ev := logger.Info().
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Int("body_size", c.Writer.Size())
		for _, enrich := range enrichers {
			ev = enrich(c, ev)
		}
		ev.Msg("Request processed")
	}
}
