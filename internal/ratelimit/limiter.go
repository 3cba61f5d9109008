package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter decides whether the caller identified by key may act now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter is a fixed-window counter: INCR per key, EXPIRE whenever the key has no TTL.
type RedisLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	prefix string
	logger *zap.Logger
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, logger *zap.Logger) *RedisLimiter {
	return &RedisLimiter{
		redis:  client,
		limit:  limit,
		window: window,
		prefix: "chat:rl:",
		logger: logger,
	}
}

// NewRedisClient connects and pings the server.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return c, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		ttl = pipe.TTL(ctx, k)
		return nil
	})
	if err != nil {
		l.logger.Error("failed to increment rate limit", zap.String("key", k), zap.Error(err))
		return false, err
	}
	count := incr.Val()

	// A key without a TTL would never reset; set the window on any hit that finds one missing.
	if ttl.Val() < 0 {
		if err := l.redis.Expire(ctx, k, l.window).Err(); err != nil {
			l.logger.Warn("failed to set rate limit window", zap.String("key", k), zap.Error(err))
		}
	}

	return count <= int64(l.limit), nil
}

type noopLimiter struct{}

// Noop allows everything. Used when no Redis address is configured.
func Noop() Limiter {
	return noopLimiter{}
}

func (noopLimiter) Allow(context.Context, string) (bool, error) {
	return true, nil
}
