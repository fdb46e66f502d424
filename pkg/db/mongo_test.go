package db_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/scalarorg/xtransfer/pkg/db"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestMongoStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mongo container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017")
	require.NoError(t, err)

	client, err := db.NewMongoClient(ctx, fmt.Sprintf("mongodb://%s:%d", host, port.Int()))
	require.NoError(t, err)
	store, err := db.NewMongoStore(ctx, client, "xtransfer_"+uuid.NewString()[:8])
	require.NoError(t, err)
	defer store.Close()
	runStoreSuite(t, store)
}
