package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
)

// expiryGrace keeps a window's key alive slightly past the window itself.
const expiryGrace = 5 * time.Second

// RedisGate is a sliding-window log kept in one sorted set per key. Each
// request adds a unique member scored by its arrival time in milliseconds;
// members older than the window are trimmed before counting.
type RedisGate struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisGate(client redis.Cmdable, limit int, window time.Duration) *RedisGate {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisGate{
		client: client,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records the request and reports whether the number of requests in
// the trailing window, this one included, is within the limit. Denied
// requests are recorded too, so a client that keeps hammering stays denied.
func (g *RedisGate) Allow(ctx context.Context, key string) (bool, error) {
	now := g.now()
	nowMs := now.UnixMilli()
	cutoff := nowMs - g.window.Milliseconds()
	member := strconv.FormatInt(nowMs, 10) + "-" + ksuid.New().String()

	var card *redis.IntCmd
	_, err := g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowMs), Member: member})
		pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff, 10))
		card = pipe.ZCard(ctx, key)
		pipe.Expire(ctx, key, g.window+expiryGrace)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate gate %s: %w", key, err)
	}

	count := card.Val()
	if count > int64(g.limit) {
		log.Ctx(ctx).Debug().Str("key", key).Int64("count", count).Int("limit", g.limit).Msg("rate limit exceeded")
		return false, nil
	}
	return true, nil
}

// NewRedisClient builds a client from a redis:// URL such as
// "redis://localhost:6379/0".
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return redis.NewClient(opt), nil
}

// CheckConnection pings the server.
func CheckConnection(ctx context.Context, client redis.Cmdable) error {
	return client.Ping(ctx).Err()
}

// NewGate returns the gate for redisURL together with a function releasing
// its connection. An empty URL disables rate limiting. An unreachable server
// is logged and otherwise tolerated, since Allow errors fail open.
func NewGate(ctx context.Context, redisURL string, limit int, window time.Duration) (Gate, func() error, error) {
	if redisURL == "" {
		log.Info().Msg("REDIS_URL is empty, rate limiting disabled")
		return AllowAll, func() error { return nil }, nil
	}

	client, err := NewRedisClient(redisURL)
	if err != nil {
		return nil, nil, err
	}
	if err := CheckConnection(ctx, client); err != nil {
		log.Warn().Err(err).Msg("Redis is unreachable, requests will be allowed until it recovers")
	}
	return NewRedisGate(client, limit, window), client.Close, nil
}
