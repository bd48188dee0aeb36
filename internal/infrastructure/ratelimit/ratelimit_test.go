package ratelimit_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/credcore/internal/infrastructure/ratelimit"
	"github.com/turtacn/credcore/pkg/logger"
)

func allowed(t *testing.T, l ratelimit.Limiter, key string) bool {
	t.Helper()
	res, err := l.Allow(context.Background(), key)
	require.NoError(t, err)
	return res.Allowed
}

func TestLocalLimiter(t *testing.T) {
	l := ratelimit.NewLocalLimiter(0.01, 2)

	assert.True(t, allowed(t, l, "a"))
	assert.True(t, allowed(t, l, "a"))

	res, err := l.Allow(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	// one token every 100s
	assert.InDelta(t, 100*time.Second, res.RetryAfter, float64(time.Second))

	assert.True(t, allowed(t, l, "b"), "keys have separate buckets")
	assert.Equal(t, 2, l.Len())

	l.Reset("a")
	assert.True(t, allowed(t, l, "a"))
}

func TestLocalLimiter_DropsIdleBuckets(t *testing.T) {
	// 1000 tokens per second refill a burst of 1 in 1ms, so the idle period wins
	l := ratelimit.NewLocalLimiterWithIdle(1000, 1, 200*time.Millisecond)
	for i := 0; i < 1000; i++ {
		assert.True(t, allowed(t, l, fmt.Sprintf("junk-%d", i)))
	}
	assert.Equal(t, 1000, l.Len())

	time.Sleep(400 * time.Millisecond)
	l.Sweep()
	assert.Zero(t, l.Len())
}

func TestLocalLimiter_IdleNeverShorterThanRefill(t *testing.T) {
	// an emptied bucket needs 100s to refill; a 1ms idle period must not reset it
	l := ratelimit.NewLocalLimiterWithIdle(0.01, 1, time.Millisecond)
	assert.True(t, allowed(t, l, "a"))

	time.Sleep(10 * time.Millisecond)
	l.Sweep()
	assert.Equal(t, 1, l.Len())
	assert.False(t, allowed(t, l, "a"))
}

func newRedisLimiter(t *testing.T, cfg ratelimit.RedisConfig) (*ratelimit.RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l, err := ratelimit.NewRedisLimiter(client, cfg, logger.NewNoopLogger())
	require.NoError(t, err)
	return l, s
}

func TestRedisLimiter_BurstAndReset(t *testing.T) {
	ctx := context.Background()
	l, s := newRedisLimiter(t, ratelimit.RedisConfig{PerSecond: 0.01, Burst: 3, KeyPrefix: "rl:"})

	for i := 0; i < 3; i++ {
		assert.True(t, allowed(t, l, "app-a"), "request %d", i)
	}
	res, err := l.Allow(ctx, "app-a")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.True(t, s.Exists("rl:app-a"))

	res, err = l.Take(ctx, "app-a", 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	assert.True(t, allowed(t, l, "app-b"))

	require.NoError(t, l.Reset(ctx, "app-a"))
	assert.True(t, allowed(t, l, "app-a"))
}

func TestRedisLimiter_SharedAcrossInstances(t *testing.T) {
	s := miniredis.RunT(t)
	cfg := ratelimit.RedisConfig{PerSecond: 0.01, Burst: 2}

	newClient := func() *ratelimit.RedisLimiter {
		client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		l, err := ratelimit.NewRedisLimiter(client, cfg, logger.NewNoopLogger())
		require.NoError(t, err)
		return l
	}
	a, b := newClient(), newClient()

	assert.True(t, allowed(t, a, "app"))
	assert.True(t, allowed(t, b, "app"))
	assert.False(t, allowed(t, a, "app"), "replicas share one bucket")
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	ctx := context.Background()

	t.Run("should fall back to local buckets", func(t *testing.T) {
		l, s := newRedisLimiter(t, ratelimit.RedisConfig{PerSecond: 0.01, Burst: 1, LocalFallback: true})
		s.Close()

		assert.True(t, allowed(t, l, "app"))
		assert.False(t, allowed(t, l, "app"))
	})

	t.Run("should fail without fallback", func(t *testing.T) {
		l, s := newRedisLimiter(t, ratelimit.RedisConfig{PerSecond: 0.01, Burst: 1})
		s.Close()

		res, err := l.Allow(ctx, "app")
		assert.Error(t, err)
		assert.Nil(t, res)
	})
}

func TestNewRedisLimiter_Validation(t *testing.T) {
	_, err := ratelimit.NewRedisLimiter(nil, ratelimit.RedisConfig{PerSecond: 1}, logger.NewNoopLogger())
	assert.Error(t, err)

	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	_, err = ratelimit.NewRedisLimiter(client, ratelimit.RedisConfig{}, logger.NewNoopLogger())
	assert.Error(t, err)
}
