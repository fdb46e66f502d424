package db_test

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/scalarorg/xtransfer/config"
	"github.com/scalarorg/xtransfer/pkg/db"
	"github.com/stretchr/testify/require"
)

func TestDatabaseAdapterSqlite(t *testing.T) {
	adapter, err := db.NewDatabaseAdapter(&config.DatabaseConfig{
		Driver: "sqlite",
		URL:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	require.NoError(t, err)
	defer adapter.Close()
	runStoreSuite(t, adapter)
}

func TestDatabaseAdapterUnknownDriver(t *testing.T) {
	_, err := db.NewDatabaseAdapter(&config.DatabaseConfig{Driver: "oracle", URL: "x"})
	require.Error(t, err)
}
