// Package redis provides Redis connection management and the Redis-backed key store.
// A single address yields a standalone client, several addresses a cluster client.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/credcore/internal/config"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

// RedisConnection manages Redis client lifecycle and health monitoring.
type RedisConnection struct {
	config *config.RedisConfig
	client redis.UniversalClient
	logger logger.Logger
}

// NewRedisConnection creates a new Redis connection manager instance.
//
// Parameters:
//   - cfg: Redis configuration
//   - log: Logger instance
//
// Returns:
//   - *RedisConnection: connection manager, not yet connected
func NewRedisConnection(cfg *config.RedisConfig, log logger.Logger) *RedisConnection {
	return &RedisConnection{
		config: cfg,
		logger: log.WithComponent("redis"),
	}
}

// NewRedisConnectionFromClient wraps an existing client, e.g. one pointed at miniredis.
func NewRedisConnectionFromClient(client redis.UniversalClient, log logger.Logger) *RedisConnection {
	return &RedisConnection{config: &config.RedisConfig{}, client: client, logger: log.WithComponent("redis")}
}

// Connect establishes the Redis connection and validates connectivity.
//
// Returns:
//   - error: Connection establishment error if any
func (rc *RedisConnection) Connect(ctx context.Context) error {
	if rc.client != nil {
		rc.logger.Warn(ctx, "Redis connection already initialized")
		return nil
	}
	if len(rc.config.Addresses) == 0 {
		return errors.InvalidConfig("redis addresses not configured")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        rc.config.Addresses,
		Password:     rc.config.Password,
		DB:           rc.config.DB,
		PoolSize:     rc.config.PoolSize,
		MinIdleConns: rc.config.MinIdleConns,
		DialTimeout:  rc.config.DialTimeout,
	})

	// Verify connection with ping
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		rc.logger.Error(ctx, "Redis ping failed", err, logger.Any("addresses", rc.config.Addresses))
		_ = client.Close()
		return errors.Internal("redis ping failed", err)
	}

	rc.client = client
	rc.logger.Info(ctx, "Redis connection established successfully",
		logger.Int("addresses", len(rc.config.Addresses)),
		logger.Int("pool_size", rc.config.PoolSize),
	)
	return nil
}

// GetClient returns the Redis client instance.
// It returns nil if connection is not initialized.
func (rc *RedisConnection) GetClient() redis.UniversalClient {
	return rc.client
}

// Ping checks Redis server connectivity.
func (rc *RedisConnection) Ping(ctx context.Context) error {
	if rc.client == nil {
		return errors.Internal("redis connection not initialized", nil)
	}
	if err := rc.client.Ping(ctx).Err(); err != nil {
		return errors.Internal("redis ping failed", err)
	}
	return nil
}

// Close gracefully closes Redis connection and releases resources.
func (rc *RedisConnection) Close() error {
	if rc.client == nil {
		return nil
	}
	rc.logger.Info(context.Background(), "Closing Redis connection")
	err := rc.client.Close()
	rc.client = nil
	return err
}
