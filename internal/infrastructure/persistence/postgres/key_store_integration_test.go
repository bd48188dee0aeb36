//go:build integration

package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/credcore/internal/config"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

func TestKeyStore_Postgres(t *testing.T) {
	if os.Getenv("SKIP_DOCKER_TESTS") == "true" {
		t.Skip("Skipping Docker-dependent tests")
	}
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("credcore"),
		tcpostgres.WithUsername("credcore"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	}()

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	conn, err := postgres.NewDBConnection(ctx, &config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "credcore",
		Password:        "password",
		Database:        "credcore",
		SSLMode:         "disable",
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
		ConnTimeout:     10 * time.Second,
	}, logger.NewNoopLogger())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Migrate(ctx))

	store := postgres.NewKeyStore(conn.DB())
	kp := testKeyPair()
	require.NoError(t, store.Put(ctx, "ns-a/k1", kp))

	kp.State = models.KeyStateRevoked
	require.NoError(t, store.Put(ctx, "ns-a/k1", kp))

	got, err := store.Get(ctx, "ns-a/k1")
	require.NoError(t, err)
	assert.Equal(t, models.KeyStateRevoked, got.State)
	assert.Equal(t, kp.PublicKey, got.PublicKey)

	require.NoError(t, store.Delete(ctx, "ns-a/k1"))
	_, err = store.Get(ctx, "ns-a/k1")
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)
}
