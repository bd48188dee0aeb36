package main

import (
	"context"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/multierr"

	"github.com/turtacn/credcore/internal/config"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/internal/infrastructure/audit"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/kdf"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/primitive"
	"github.com/turtacn/credcore/internal/infrastructure/keystore"
	"github.com/turtacn/credcore/internal/infrastructure/kms"
	"github.com/turtacn/credcore/internal/infrastructure/monitoring"
	"github.com/turtacn/credcore/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/credcore/internal/infrastructure/persistence/redis"
	"github.com/turtacn/credcore/internal/infrastructure/ratelimit"
	"github.com/turtacn/credcore/internal/interfaces/http/handlers"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

// dependencies opens the backing services selected by the configuration and
// closes them in reverse order.
type dependencies struct {
	cfg     *config.Config
	logger  logger.Logger
	metrics *monitoring.Metrics
	random  *primitive.Provider
	deriver *kdf.Deriver

	db           *postgres.DBConnection
	redis        *redis.RedisConnection
	closers      []func() error
	healthChecks map[string]handlers.HealthCheck
}

func (d *dependencies) addCheck(name string, check handlers.HealthCheck) {
	if d.healthChecks == nil {
		d.healthChecks = make(map[string]handlers.HealthCheck)
	}
	d.healthChecks[name] = check
}

// database opens (once) the SQL connection used by the key store and audit table.
func (d *dependencies) database(ctx context.Context) (*postgres.DBConnection, error) {
	if d.db != nil {
		return d.db, nil
	}
	var (
		db  *postgres.DBConnection
		err error
	)
	if d.cfg.KeyStore.Backend == config.BackendSQLite {
		db, err = postgres.NewSQLiteConnection(d.cfg.Database.SQLitePath, d.logger)
	} else {
		db, err = postgres.NewDBConnection(ctx, &d.cfg.Database, d.logger)
	}
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, func() error { db.Close(); return nil })
	if err := db.Migrate(ctx); err != nil {
		return nil, err
	}
	d.addCheck("database", db.Ping)
	d.db = db
	return db, nil
}

// redisConnection opens (once) the Redis client shared by the key store and
// the signing rate limiter.
func (d *dependencies) redisConnection(ctx context.Context) (*redis.RedisConnection, error) {
	if d.redis != nil {
		return d.redis, nil
	}
	conn := redis.NewRedisConnection(&d.cfg.Redis, d.logger)
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	d.closers = append(d.closers, conn.Close)
	d.addCheck("redis", conn.Ping)
	d.redis = conn
	return conn, nil
}

// signLimiter builds the bucket backend of the signing rate limit. A nil
// limiter means signing is not rate limited.
func (d *dependencies) signLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	rl := d.cfg.RateLimit
	if rl.SignPerSecond <= 0 {
		return nil, nil
	}
	if rl.Backend != config.BackendRedis {
		return ratelimit.NewLocalLimiter(rl.SignPerSecond, rl.SignBurst), nil
	}
	conn, err := d.redisConnection(ctx)
	if err != nil {
		return nil, err
	}
	return ratelimit.NewRedisLimiter(conn.GetClient(), ratelimit.RedisConfig{
		PerSecond:     rl.SignPerSecond,
		Burst:         rl.SignBurst,
		LocalFallback: rl.LocalFallback,
	}, d.logger)
}

// keyStore builds the configured backend, then wraps it with sealing (when a
// master secret is set) and instrumentation.
func (d *dependencies) keyStore(ctx context.Context) (service.KeyStore, error) {
	var store service.KeyStore
	backend := d.cfg.KeyStore.Backend

	switch backend {
	case config.BackendMemory:
		store = keystore.NewMemoryStore()
	case config.BackendRedis:
		conn, err := d.redisConnection(ctx)
		if err != nil {
			return nil, err
		}
		prefix := d.cfg.Redis.KeyPrefix
		if prefix == "" {
			prefix = constants.RedisKeyPrefix
		}
		store = redis.NewKeyStore(conn, prefix)
	case config.BackendPostgres, config.BackendSQLite:
		db, err := d.database(ctx)
		if err != nil {
			return nil, err
		}
		store = postgres.NewKeyStore(db.DB())
	case config.BackendVault:
		client, err := kms.NewVaultClient(d.cfg.Vault)
		if err != nil {
			return nil, err
		}
		d.addCheck("vault", vaultHealth(client))
		store = kms.NewVaultKeyStore(d.cfg.Vault, client, d.logger)
	default:
		return nil, errors.InvalidConfig("unknown keystore backend " + backend)
	}

	if secret := d.cfg.KeyStore.MasterSecret; secret != "" {
		sealed, err := keystore.NewSealedStore(store, []byte(secret), d.deriver, d.random)
		if err != nil {
			return nil, err
		}
		store = sealed
	} else if backend != config.BackendMemory {
		d.logger.Warn(ctx, "Private keys are stored unsealed", logger.String("backend", backend))
	}
	return keystore.NewInstrumentedStore(store, backend, d.metrics), nil
}

// auditSink fans audit events out to every configured sink.
func (d *dependencies) auditSink(ctx context.Context) (service.AuditService, error) {
	if !d.cfg.Audit.Enabled {
		return audit.Discard{}, nil
	}
	var sinks []service.AuditService
	if len(d.cfg.Audit.KafkaBrokers) > 0 {
		producer := audit.NewKafkaProducer(d.cfg.Audit, d.logger)
		d.closers = append(d.closers, producer.Close)
		sinks = append(sinks, producer)
	}
	if d.cfg.Audit.Database {
		db, err := d.database(ctx)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, audit.NewGormAuditService(db.DB()))
	}
	return audit.NewFanOut(sinks...), nil
}

// Close releases every opened dependency.
func (d *dependencies) Close() error {
	var err error
	for i := len(d.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, d.closers[i]())
	}
	return err
}

func vaultHealth(client *vault.Client) handlers.HealthCheck {
	return func(ctx context.Context) error {
		_, err := client.Sys().HealthWithContext(ctx)
		return err
	}
}
