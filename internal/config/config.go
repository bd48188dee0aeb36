// Package config loads and validates the credcore service configuration and the
// application registry document.
package config

import (
	"fmt"
	"time"

	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

// Config holds the application's configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	KeyStore  KeyStoreConfig  `mapstructure:"keystore"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Crypto    CryptoConfig    `mapstructure:"crypto"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Audit     AuditConfig     `mapstructure:"audit"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction reports whether debug endpoints must be disabled.
func (c ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	Environment    string  `mapstructure:"environment"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// KeyStore backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendVault    = "vault"
)

type KeyStoreConfig struct {
	// Backend selects where key pairs are persisted.
	Backend string `mapstructure:"backend"`
	// MasterSecret enables at-rest sealing of private keys when set.
	MasterSecret string `mapstructure:"master_secret"`
}

type RedisConfig struct {
	Addresses    []string      `mapstructure:"addresses"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnTimeout     time.Duration `mapstructure:"conn_timeout"`
}

// GetDSN returns the libpq style connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type VaultConfig struct {
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	MountPath string `mapstructure:"mount_path"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type CryptoConfig struct {
	// PBKDF2MinIterations is the lowest iteration count accepted for password derivation.
	PBKDF2MinIterations int `mapstructure:"pbkdf2_min_iterations"`
}

type RegistryConfig struct {
	// File is an optional YAML document of application registrations loaded at start.
	File string `mapstructure:"file"`
	// Watch registers applications added to File while the server runs.
	Watch bool `mapstructure:"watch"`
	// HTTPRegistration mounts POST /api/v1/apps. Registrations made there are
	// insert-only either way.
	HTTPRegistration bool `mapstructure:"http_registration"`
}

type AuditConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
	Database     bool     `mapstructure:"database"`
}

type RateLimitConfig struct {
	// SignPerSecond is the sustained signing rate allowed per application.
	SignPerSecond float64 `mapstructure:"sign_per_second"`
	SignBurst     int     `mapstructure:"sign_burst"`
	// Backend keeps buckets in process ("memory") or shares them through Redis ("redis").
	Backend string `mapstructure:"backend"`
	// LocalFallback lets the redis backend answer from local buckets while Redis is down.
	LocalFallback bool `mapstructure:"local_fallback"`
}

// MinMasterSecretLength mirrors the sealing store requirement.
const MinMasterSecretLength = 32

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.InvalidConfig(fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	switch c.KeyStore.Backend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if len(c.Redis.Addresses) == 0 {
			return errors.InvalidConfig("redis.addresses is required for the redis backend")
		}
	case BackendPostgres:
		if c.Database.Host == "" || c.Database.Database == "" {
			return errors.InvalidConfig("database.host and database.database are required for the postgres backend")
		}
	case BackendVault:
		if c.Vault.Address == "" {
			return errors.InvalidConfig("vault.address is required for the vault backend")
		}
	default:
		return errors.InvalidConfig(fmt.Sprintf("unknown keystore.backend %q", c.KeyStore.Backend))
	}
	if s := c.KeyStore.MasterSecret; s != "" && len(s) < MinMasterSecretLength {
		return errors.InvalidConfig("keystore.master_secret must be at least 32 bytes")
	}
	if c.Server.IsProduction() && c.KeyStore.Backend != BackendMemory && c.KeyStore.MasterSecret == "" {
		return errors.InvalidConfig("keystore.master_secret is required in production")
	}
	if c.Crypto.PBKDF2MinIterations < constants.PBKDF2IterationFloor {
		return errors.WeakParameters(fmt.Sprintf("crypto.pbkdf2_min_iterations must be at least %d", constants.PBKDF2IterationFloor))
	}
	if c.Audit.Enabled && len(c.Audit.KafkaBrokers) == 0 && !c.Audit.Database {
		return errors.InvalidConfig("audit is enabled but neither kafka_brokers nor database is configured")
	}
	if len(c.Audit.KafkaBrokers) > 0 && c.Audit.KafkaTopic == "" {
		return errors.InvalidConfig("audit.kafka_topic is required with kafka_brokers")
	}
	if c.RateLimit.SignPerSecond < 0 || c.RateLimit.SignBurst < 0 {
		return errors.InvalidConfig("rate_limit values must not be negative")
	}
	switch c.RateLimit.Backend {
	case "", BackendMemory:
	case BackendRedis:
		if len(c.Redis.Addresses) == 0 {
			return errors.InvalidConfig("redis.addresses is required for the redis rate limit backend")
		}
	default:
		return errors.InvalidConfig(fmt.Sprintf("unknown rate_limit.backend %q", c.RateLimit.Backend))
	}
	if c.Tracing.Enabled && c.Tracing.JaegerEndpoint == "" {
		return errors.InvalidConfig("tracing.jaeger_endpoint is required when tracing is enabled")
	}
	return nil
}
