// Package postgres provides SQL database connection management and the GORM-backed
// key store. Production deployments run on PostgreSQL through a pgx connection pool;
// the same code runs on SQLite for single-node installs and tests.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/credcore/internal/config"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

// DBConnection manages the database handle lifecycle.
type DBConnection struct {
	db     *gorm.DB
	pool   *pgxpool.Pool
	logger logger.Logger
}

// NewDBConnection creates a PostgreSQL connection pool and a GORM handle over it.
// It performs an initial health check before returning.
//
// Parameters:
//   - ctx: Context for connection timeout control
//   - cfg: Database configuration including host, port, credentials, and pool settings
//   - log: Logger instance for connection lifecycle events
func NewDBConnection(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*DBConnection, error) {
	if cfg == nil {
		return nil, errors.InvalidConfig("database configuration missing")
	}
	log = log.WithComponent("database")
	log.Info(ctx, "Initializing PostgreSQL connection pool",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
		logger.String("database", cfg.Database),
		logger.Int("max_conns", cfg.MaxConns),
	)

	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, errors.InvalidConfig("failed to parse database connection string").WithCause(err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, errors.Internal("failed to create database connection pool", err)
	}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), gormConfig())
	if err != nil {
		pool.Close()
		return nil, errors.Internal("failed to open gorm over pgx pool", err)
	}

	conn := &DBConnection{db: db, pool: pool, logger: log}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	log.Info(ctx, "PostgreSQL connection pool initialized successfully",
		logger.Int("total_conns", int(pool.Stat().TotalConns())),
	)
	return conn, nil
}

// NewSQLiteConnection opens a SQLite database at path. ":memory:" gives a private
// in-memory database, used heavily by tests.
func NewSQLiteConnection(path string, log logger.Logger) (*DBConnection, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, errors.Internal("failed to open sqlite database", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Internal("failed to access sqlite handle", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return &DBConnection{db: db, logger: log.WithComponent("database")}, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// DB returns the GORM handle.
func (c *DBConnection) DB() *gorm.DB {
	return c.db
}

// Migrate creates or updates the key and audit tables.
func (c *DBConnection) Migrate(ctx context.Context) error {
	if err := c.db.WithContext(ctx).AutoMigrate(&KeyRecord{}, &models.AuditEvent{}); err != nil {
		return errors.Internal("database migration failed", err)
	}
	return nil
}

// Ping verifies database connectivity and responsiveness.
func (c *DBConnection) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	sqlDB, err := c.db.DB()
	if err != nil {
		return errors.Internal("failed to access database handle", err)
	}
	start := time.Now()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		c.logger.Error(ctx, "Database ping failed", err)
		return errors.Internal("database ping failed", err)
	}
	if latency := time.Since(start); latency > 100*time.Millisecond {
		c.logger.Warn(ctx, "High database latency detected", logger.Duration("latency", latency))
	}
	return nil
}

// Close shuts down the handle and, for PostgreSQL, the connection pool.
func (c *DBConnection) Close() {
	if sqlDB, err := c.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if c.pool != nil {
		c.pool.Close()
	}
	c.logger.Info(context.Background(), "Database connection closed")
}
