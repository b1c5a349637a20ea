package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript atomically refills and drains a token bucket.
//
// Keys: KEYS[1] = bucket key
// Args: ARGV[1] = max_tokens, ARGV[2] = refill_rate (tokens/sec),
//
//	ARGV[3] = requested, ARGV[4] = now (unix microseconds)
//
// Returns [allowed (0/1), remaining tokens].
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local max_tokens = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local requested = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local bucket = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(bucket[1])
local last_refill = tonumber(bucket[2])

if tokens == nil then
    tokens = max_tokens
    last_refill = now
end

local elapsed = (now - last_refill) / 1000000.0
if elapsed > 0 then
    tokens = math.min(max_tokens, tokens + elapsed * refill_rate)
end

local allowed = 0
if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
end

redis.call("HMSET", key, "tokens", tostring(tokens), "last_refill", tostring(now))
-- Expire idle buckets after twice the full-refill time.
local ttl = math.ceil(max_tokens / refill_rate * 2)
if ttl < 60 then ttl = 60 end
redis.call("EXPIRE", key, ttl)

return {allowed, math.floor(tokens)}
`)

// RedisBackend runs the token bucket in Redis so limits hold across
// multiple server instances.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client, prefix: "feedgate:rl:"}
}

func (b *RedisBackend) CheckRateLimit(ctx context.Context, key string, maxTokens int, refillRate float64, requested int) (bool, int, error) {
	bucketKey := b.prefix + key

	result, err := tokenBucketScript.Run(ctx, b.client, []string{bucketKey},
		maxTokens, refillRate, requested, redisTimeNow(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis rate limit check: %w", err)
	}
	if len(result) != 2 {
		return false, 0, fmt.Errorf("unexpected script result length: %d", len(result))
	}

	return result[0] == 1, int(result[1]), nil
}

// redisTimeNow returns the current time in microseconds for the script.
var redisTimeNow = func() int64 {
	return time.Now().UnixMicro()
}
