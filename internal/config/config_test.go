package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/credcore/internal/config"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeFile(t, "config.yaml", "server:\n  port: 8081\n")
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, config.BackendMemory, cfg.KeyStore.Backend)
	assert.Equal(t, 100000, cfg.Crypto.PBKDF2MinIterations)
	assert.Equal(t, "credcore:keys:", cfg.Redis.KeyPrefix)
	assert.True(t, cfg.Registry.HTTPRegistration)
	assert.False(t, cfg.Server.IsProduction())
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeFile(t, "config.yaml", "server:\n  port: 8081\n")
	t.Setenv("CREDCORE_SERVER_PORT", "9090")
	t.Setenv("CREDCORE_KEYSTORE_BACKEND", "sqlite")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, config.BackendSQLite, cfg.KeyStore.Backend)
}

func TestLoadConfig_RejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "config.yaml", "server:\n  port: 8081\n  prot: 1\n")
	_, err := config.LoadConfig(path)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestLoadConfig_WeakIterationFloor(t *testing.T) {
	path := writeFile(t, "config.yaml", "crypto:\n  pbkdf2_min_iterations: 5000\n")
	_, err := config.LoadConfig(path)
	assert.ErrorIs(t, err, errors.ErrWeakParameters)
}

func TestConfigValidate(t *testing.T) {
	base := func() *config.Config {
		return &config.Config{
			Server:   config.ServerConfig{Port: 8080},
			KeyStore: config.KeyStoreConfig{Backend: config.BackendMemory},
			Crypto:   config.CryptoConfig{PBKDF2MinIterations: 10000},
		}
	}
	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"unknown backend", func(c *config.Config) { c.KeyStore.Backend = "etcd" }},
		{"redis without addresses", func(c *config.Config) { c.KeyStore.Backend = config.BackendRedis }},
		{"postgres without host", func(c *config.Config) { c.KeyStore.Backend = config.BackendPostgres }},
		{"vault without address", func(c *config.Config) { c.KeyStore.Backend = config.BackendVault }},
		{"short master secret", func(c *config.Config) { c.KeyStore.MasterSecret = "short" }},
		{"production without sealing", func(c *config.Config) {
			c.Server.Environment = "production"
			c.KeyStore.Backend = config.BackendSQLite
		}},
		{"audit without sinks", func(c *config.Config) { c.Audit.Enabled = true }},
		{"kafka without topic", func(c *config.Config) { c.Audit.KafkaBrokers = []string{"localhost:9092"} }},
		{"negative rate", func(c *config.Config) { c.RateLimit.SignPerSecond = -1 }},
		{"unknown rate limit backend", func(c *config.Config) { c.RateLimit.Backend = "memcached" }},
		{"redis rate limit without addresses", func(c *config.Config) { c.RateLimit.Backend = config.BackendRedis }},
		{"tracing without endpoint", func(c *config.Config) { c.Tracing.Enabled = true }},
		{"bad port", func(c *config.Config) { c.Server.Port = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), errors.ErrInvalidConfig)
		})
	}

	c := base()
	c.KeyStore.MasterSecret = strings.Repeat("x", 32)
	c.Server.Environment = "production"
	c.KeyStore.Backend = config.BackendSQLite
	assert.NoError(t, c.Validate())
}

const registryDoc = `
apps:
  identity-app:
    keySize: 256
    algorithm: Ed25519
    hashAlgorithm: SHA256
    storageKey: ns-a
  trading-app:
    keySize: 256
    algorithm: secp256k1
    hashAlgorithm: SHA256
    storageKey: ns-b
`

func TestParseRegistry(t *testing.T) {
	f, err := config.ParseRegistry(strings.NewReader(registryDoc))
	require.NoError(t, err)
	assert.Equal(t, []string{"identity-app", "trading-app"}, f.AppIDs())
	assert.Equal(t, "ns-a", f.Apps["identity-app"].StorageNamespace)
}

func TestParseRegistry_RejectsUnknownFields(t *testing.T) {
	doc := strings.Replace(registryDoc, "storageKey: ns-a", "storageKey: ns-a\n    curve: p256", 1)
	_, err := config.ParseRegistry(strings.NewReader(doc))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	_, err = config.ParseRegistry(strings.NewReader("applications: {}\n"))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestParseRegistry_RejectsInvalidEntries(t *testing.T) {
	doc := strings.Replace(registryDoc, "algorithm: Ed25519", "algorithm: RSA", 1)
	_, err := config.ParseRegistry(strings.NewReader(doc))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestParseRegistry_RejectsInvalidAppIDs(t *testing.T) {
	for _, id := range []string{`"identity app"`, `"../identity-app"`, `"-identity-app"`, `"identity/app"`} {
		doc := strings.Replace(registryDoc, "identity-app:", id+":", 1)
		_, err := config.ParseRegistry(strings.NewReader(doc))
		assert.ErrorIs(t, err, errors.ErrInvalidConfig, id)
	}
}

func TestParseRegistry_Empty(t *testing.T) {
	f, err := config.ParseRegistry(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Apps)
}

func TestApplyRegistry(t *testing.T) {
	f, err := config.ParseRegistry(strings.NewReader(registryDoc))
	require.NoError(t, err)
	reg := service.NewConfigRegistry()

	added, err := config.ApplyRegistry(reg, f, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"identity-app", "trading-app"}, added)

	added, err = config.ApplyRegistry(reg, f, true)
	require.NoError(t, err)
	assert.Empty(t, added)
}

func TestApplyRegistry_DuplicateNamespace(t *testing.T) {
	doc := strings.Replace(registryDoc, "storageKey: ns-b", "storageKey: ns-a", 1)
	f, err := config.ParseRegistry(strings.NewReader(doc))
	require.NoError(t, err)

	added, err := config.ApplyRegistry(service.NewConfigRegistry(), f, false)
	assert.ErrorIs(t, err, errors.ErrDuplicateNamespace)
	assert.Equal(t, []string{"identity-app"}, added)
}

func TestRegistryWatcher_ReloadAddsOnlyNewApps(t *testing.T) {
	path := writeFile(t, "registry.yaml", registryDoc)
	reg := service.NewConfigRegistry()
	f, err := config.LoadRegistryFile(path)
	require.NoError(t, err)
	_, err = config.ApplyRegistry(reg, f, false)
	require.NoError(t, err)

	// Change an existing app and add a new one.
	updated := strings.Replace(registryDoc, "hashAlgorithm: SHA256\n    storageKey: ns-a", "hashAlgorithm: SHA512\n    storageKey: ns-a", 1) + `  audit-app:
    keySize: 384
    algorithm: ECDSA
    hashAlgorithm: SHA512
    storageKey: ns-c
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	var got []string
	w := config.NewRegistryWatcher(path, reg, logger.NewNoopLogger(), func(ids []string) { got = ids })
	w.Reload(t.Context())

	assert.Equal(t, []string{"audit-app"}, got)
	cfg, err := reg.Resolve("identity-app")
	require.NoError(t, err)
	assert.Equal(t, "SHA256", string(cfg.HashAlgorithm))
}
