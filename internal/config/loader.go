package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

// EnvPrefix prefixes every environment override, e.g. CREDCORE_SERVER_PORT.
const EnvPrefix = "CREDCORE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.jaeger_endpoint", "")
	v.SetDefault("tracing.service_name", constants.ServiceName)
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sampling_rate", 0.1)

	v.SetDefault("keystore.backend", BackendMemory)
	v.SetDefault("keystore.master_secret", "")

	v.SetDefault("redis.addresses", []string{})
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.key_prefix", constants.RedisKeyPrefix)

	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "credcore")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.sqlite_path", "credcore.db")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.conn_timeout", 5*time.Second)

	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.mount_path", constants.DefaultVaultMountPath)
	v.SetDefault("vault.key_prefix", constants.DefaultVaultKeyPrefix)

	v.SetDefault("crypto.pbkdf2_min_iterations", 100000)

	v.SetDefault("registry.file", "")
	v.SetDefault("registry.watch", false)
	v.SetDefault("registry.http_registration", true)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.kafka_brokers", []string{})
	v.SetDefault("audit.kafka_topic", "credcore.audit")
	v.SetDefault("audit.database", false)

	v.SetDefault("rate_limit.sign_per_second", 50.0)
	v.SetDefault("rate_limit.sign_burst", 100)
	v.SetDefault("rate_limit.backend", BackendMemory)
	v.SetDefault("rate_limit.local_fallback", true)
}

// LoadConfig loads the configuration from file and environment variables. An
// explicit path must exist; without one the usual locations are searched and a
// missing file is not an error. Unknown keys in the file are rejected.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("/etc/credcore/")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, errors.InvalidConfig("failed to read config file").WithCause(err)
		}
	}

	// Load from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, errors.InvalidConfig("failed to unmarshal config").WithCause(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
