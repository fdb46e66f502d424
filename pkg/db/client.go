package db

import (
	"context"
	"fmt"

	"github.com/scalarorg/xtransfer/config"
)

// NewHistoryStore opens the store selected by the database driver.
func NewHistoryStore(ctx context.Context, cfg *config.DatabaseConfig) (HistoryStore, error) {
	switch cfg.Driver {
	case "postgres", "sqlite":
		return NewDatabaseAdapter(cfg)
	case "mongo":
		client, err := NewMongoClient(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return NewMongoStore(ctx, client, cfg.Database)
	case "memory", "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %s", cfg.Driver)
	}
}
