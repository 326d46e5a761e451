package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/anon-relay/internal/config"
)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// KeyForCounter generates the Redis key of a lifecycle counter.
func (c *RedisCache) KeyForCounter(name string) string {
	return fmt.Sprintf("stats:%s", name)
}

// IncrCounter bumps a lifecycle counter. Counters never expire.
func (c *RedisCache) IncrCounter(ctx context.Context, name string) (int64, error) {
	return c.Client.Incr(ctx, c.KeyForCounter(name)).Result()
}

// GetCounter returns 0 for a counter that was never incremented.
func (c *RedisCache) GetCounter(ctx context.Context, name string) (int64, error) {
	val, err := c.Client.Get(ctx, c.KeyForCounter(name)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// Counters reads several counters in one round trip.
func (c *RedisCache) Counters(ctx context.Context, names ...string) (map[string]int64, error) {
	out := make(map[string]int64, len(names))
	if len(names) == 0 {
		return out, nil
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = c.KeyForCounter(n)
	}
	vals, err := c.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		out[names[i]] = 0
		s, ok := v.(string)
		if !ok {
			continue
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			out[names[i]] = n
		}
	}
	return out, nil
}
