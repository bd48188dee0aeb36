package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

// RedisConfig holds the Redis limiter parameters.
type RedisConfig struct {
	// PerSecond is the refill rate of every bucket
	PerSecond float64
	// Burst is the bucket capacity
	Burst int
	// KeyPrefix is prepended to every bucket key
	KeyPrefix string
	// LocalFallback answers from in-process buckets while Redis is unreachable
	LocalFallback bool
}

// tokenBucketScript refills and consumes a bucket atomically. Timestamps are
// supplied by the caller in milliseconds so every replica uses one clock rule.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local requested = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(bucket[1]) or capacity
local last_refill = tonumber(bucket[2]) or now

local elapsed = math.max(0, now - last_refill)
tokens = math.min(tokens + elapsed * rate / 1000, capacity)

local allowed = 0
local wait_ms = 0
if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
else
    wait_ms = math.ceil((requested - tokens) / rate * 1000)
end

local full_ms = math.ceil((capacity - tokens) / rate * 1000)
redis.call('HSET', key, 'tokens', tostring(tokens), 'last_refill', now)
redis.call('PEXPIRE', key, full_ms + 60000)

return {allowed, math.floor(tokens), wait_ms}
`)

// RedisLimiter implements token buckets stored in Redis, so all service replicas
// share one budget per key.
type RedisLimiter struct {
	client   redis.UniversalClient
	config   RedisConfig
	fallback *LocalLimiter
	logger   logger.Logger
	now      func() time.Time
}

// NewRedisLimiter creates a Redis-backed limiter.
//
// Parameters:
//   - client: Redis client
//   - cfg: bucket parameters
//   - log: Logger instance
func NewRedisLimiter(client redis.UniversalClient, cfg RedisConfig, log logger.Logger) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.InvalidConfig("redis client is required for the redis rate limiter")
	}
	if cfg.PerSecond <= 0 {
		return nil, errors.InvalidConfig("redis rate limiter needs a positive rate")
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = constants.RateLimitKeyPrefix
	}

	rl := &RedisLimiter{
		client: client,
		config: cfg,
		logger: log.WithComponent("ratelimit"),
		now:    time.Now,
	}
	if cfg.LocalFallback {
		rl.fallback = NewLocalLimiter(cfg.PerSecond, cfg.Burst)
	}

	rl.logger.Info(context.Background(), "Redis rate limiter initialized",
		logger.Float64("per_second", cfg.PerSecond),
		logger.Int("burst", cfg.Burst),
		logger.Bool("local_fallback", cfg.LocalFallback),
	)
	return rl, nil
}

// Allow consumes one token from the bucket of key.
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	res, err := rl.Take(ctx, key, 1)
	if err != nil {
		if rl.fallback != nil {
			rl.logger.Warn(ctx, "Redis rate limiter unavailable, using local buckets",
				logger.String("key", key), logger.String("error", err.Error()))
			return rl.fallback.Allow(ctx, key)
		}
		return nil, err
	}
	return res, nil
}

// Take tries to consume n tokens from the bucket of key.
func (rl *RedisLimiter) Take(ctx context.Context, key string, n int64) (*Result, error) {
	raw, err := tokenBucketScript.Run(ctx, rl.client, []string{rl.bucketKey(key)},
		rl.config.Burst, rl.config.PerSecond, n, rl.now().UnixMilli()).Result()
	if err != nil {
		return nil, errors.Internal("rate limit script failed", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return nil, errors.Internal(fmt.Sprintf("unexpected rate limit script result %v", raw), nil)
	}
	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	waitMs, _ := values[2].(int64)

	return &Result{
		Allowed:    allowed == 1,
		Remaining:  remaining,
		RetryAfter: time.Duration(waitMs) * time.Millisecond,
	}, nil
}

// Reset deletes the bucket of key.
func (rl *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := rl.client.Del(ctx, rl.bucketKey(key)).Err(); err != nil && err != redis.Nil {
		return errors.Internal("failed to reset rate limit", err)
	}
	if rl.fallback != nil {
		rl.fallback.Reset(key)
	}
	return nil
}

func (rl *RedisLimiter) bucketKey(key string) string {
	return rl.config.KeyPrefix + key
}
