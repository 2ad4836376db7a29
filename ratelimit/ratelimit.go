package ratelimit

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultLimit  = 20
	DefaultWindow = 60 * time.Second
)

// Gate decides whether a request identified by key may proceed. An error
// means the decision could not be made; callers fail open on it.
type Gate interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Key builds the gate key for a route scope and client address, e.g.
// "rl:chat_stream:203.0.113.7".
func Key(scope, client string) string {
	if client == "" {
		client = "unknown"
	}
	return fmt.Sprintf("rl:%s:%s", scope, client)
}

type allowAll struct{}

// AllowAll is the gate used when no Redis is configured.
var AllowAll Gate = allowAll{}

func (allowAll) Allow(context.Context, string) (bool, error) {
	return true, nil
}
