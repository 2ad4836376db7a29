package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"chatrelay/common"

	"github.com/gin-gonic/gin"
)

const (
	corsAllowMethods = "GET,POST,OPTIONS"
	corsAllowHeaders = "Authorization,Content-Type," + apiKeyHeader + "," + requestIdHeader
	corsMaxAge       = "600"
)

// AllowedOrigins is the set of browser origins, in scheme://host[:port]
// form, that may call the chat API.
type AllowedOrigins struct {
	origins map[string]struct{}
}

// IsAllowed reports whether a request carrying this Origin header may
// proceed. Requests without an Origin (curl, server to server) always may.
func (ao *AllowedOrigins) IsAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	_, ok := ao.origins[origin]
	return ok
}

func (ao *AllowedOrigins) Len() int {
	return len(ao.origins)
}

// ParseAllowedOrigins reads a CORS_ORIGINS value. Entries are separated by
// commas and must be bare origins.
func ParseAllowedOrigins(csv string) (*AllowedOrigins, error) {
	ao := &AllowedOrigins{origins: make(map[string]struct{})}
	for _, entry := range strings.Split(csv, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		origin, err := normalizeOrigin(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid origin %q: %w", entry, err)
		}
		ao.origins[origin] = struct{}{}
	}
	return ao, nil
}

func normalizeOrigin(entry string) (string, error) {
	parsed, err := url.Parse(entry)
	switch {
	case err != nil:
		return "", err
	case parsed.Scheme == "" || parsed.Host == "":
		return "", fmt.Errorf("must have scheme and host")
	case parsed.Path != "":
		return "", fmt.Errorf("must not have path")
	case parsed.RawQuery != "":
		return "", fmt.Errorf("must not have query")
	case parsed.Fragment != "":
		return "", fmt.Errorf("must not have fragment")
	}
	return parsed.Scheme + "://" + parsed.Host, nil
}

// AllowedOriginsFromConfig parses CORS_ORIGINS. When it is empty in the
// local environment the server's own loopback origins are allowed instead.
func AllowedOriginsFromConfig(config common.Config) (*AllowedOrigins, error) {
	ao, err := ParseAllowedOrigins(config.CORSOrigins)
	if err != nil {
		return nil, err
	}
	if ao.Len() == 0 && config.IsLocal() {
		for _, host := range []string{"localhost", "127.0.0.1", "[::1]"} {
			ao.origins[fmt.Sprintf("http://%s:%d", host, config.Port)] = struct{}{}
		}
	}
	return ao, nil
}

// CORSMiddleware rejects requests from origins outside the allow-list with
// 403 and answers preflights itself, so an OPTIONS request never reaches the
// API key or rate gate.
func CORSMiddleware(allowedOrigins *AllowedOrigins) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if !allowedOrigins.IsAllowed(origin) {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Vary", "Origin")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", corsAllowMethods)
			c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
			c.Header("Access-Control-Max-Age", corsMaxAge)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
