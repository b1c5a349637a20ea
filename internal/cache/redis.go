package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache backed by Redis. The client's connection
// pool handles reconnection: a connection found closed is re-established
// before the command runs, so a dropped link surfaces as at most one
// failed operation rather than a dead cache.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// RedisCacheConfig holds configuration for the Redis cache.
type RedisCacheConfig struct {
	Addr      string // Redis address (e.g. "localhost:6379")
	Password  string // Redis password
	DB        int    // Redis database number
	KeyPrefix string // Key prefix for namespacing (default: "feedgate:")
}

// NewRedisCache creates a new Redis-backed cache with its own client.
func NewRedisCache(cfg RedisCacheConfig) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisCacheFromClient(client, cfg.KeyPrefix)
}

// NewRedisCacheFromClient creates a Redis cache sharing an existing
// client. The process-wide client should be created once at startup and
// passed in; the cache does not own it exclusively.
func NewRedisCacheFromClient(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "feedgate:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := c.client.TTL(ctx, c.key(key)).Result()
	if err != nil {
		return 0, err
	}
	return normalizeTTL(d)
}

// normalizeTTL maps go-redis TTL sentinels to the Cache contract. The
// client passes the raw Redis replies through as bare Durations: -2
// (missing key) and -1 (no expiry) arrive as nanosecond counts, not
// scaled by the command's precision.
func normalizeTTL(d time.Duration) (time.Duration, error) {
	switch {
	case d == time.Duration(-2):
		return 0, ErrNotFound
	case d < 0:
		return 0, nil
	}
	return d, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
