package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"chatrelay/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	apiKeyHeader    = "X-API-Key"
	requestIdHeader = "X-Request-Id"

	// chatStreamScope namespaces rate gate keys for the chat route.
	chatStreamScope = "chat_stream"
)

// RequestIdMiddleware propagates X-Request-Id, generating one when absent,
// and stores a logger carrying it in the request context.
func RequestIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestId := c.GetHeader(requestIdHeader)
		if requestId == "" || len(requestId) > 128 {
			requestId = uuid.NewString()
		}
		c.Header(requestIdHeader, requestId)

		logger := log.Logger.With().Str("request_id", requestId).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Next()
	}
}

// AccessLogMiddleware writes one line per request once it has been served.
func AccessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := zerolog.InfoLevel
		if status >= http.StatusInternalServerError {
			level = zerolog.WarnLevel
		}
		zerolog.Ctx(c.Request.Context()).WithLevel(level).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Str("client_ip", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Msg("request served")
	}
}

// APIKeyMiddleware requires X-API-Key to match apiKey. An empty apiKey
// disables the check.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		provided := c.GetHeader(apiKeyHeader)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing API key"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}
		c.Next()
	}
}

// RateLimitMiddleware consults gate before the handler runs. A gate error lets
// the request through.
func RateLimitMiddleware(gate ratelimit.Gate, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ratelimit.Key(scope, c.ClientIP())
		allowed, err := gate.Allow(c.Request.Context(), key)
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Str("key", key).Msg("rate gate unavailable, allowing request")
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}
