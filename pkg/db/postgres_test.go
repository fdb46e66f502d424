package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/scalarorg/xtransfer/pkg/db"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	postgresDriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestDatabaseAdapterPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		postgresContainer.Terminate(ctx)
	})

	dsn, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	client, err := gorm.Open(postgresDriver.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	adapter, err := db.NewDatabaseAdapterWithDB(client)
	require.NoError(t, err)
	defer adapter.Close()
	runStoreSuite(t, adapter)
}
