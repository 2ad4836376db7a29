package common

import (
	"net"
	"strconv"
	"strings"
)

const defaultServerPort = 8000

// ListenAddr is the host:port the API server binds to.
func (c Config) ListenAddr() string {
	host := strings.Trim(c.Host, "[]")
	return net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// WithPort returns a copy of the config listening on port instead. Zero
// leaves the config unchanged.
func (c Config) WithPort(port int) Config {
	if port != 0 {
		c.Port = port
	}
	return c
}
