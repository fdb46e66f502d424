package db

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/xtransfer/config"
	"github.com/scalarorg/xtransfer/pkg/db/models"
	"github.com/scalarorg/xtransfer/pkg/utils"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var _ HistoryStore = (*DatabaseAdapter)(nil)

// DatabaseAdapter is the gorm-backed HistoryStore (postgres or sqlite).
type DatabaseAdapter struct {
	Client  *gorm.DB
	keyLock *utils.KeyedMutex
	now     func() time.Time
}

func NewDatabaseAdapter(cfg *config.DatabaseConfig) (*DatabaseAdapter, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.URL)
	case "sqlite":
		dialector = sqlite.Open(cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported sql driver %s", cfg.Driver)
	}
	client, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		sqlDB, err := client.DB()
		if err != nil {
			return nil, err
		}
		//sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}
	return NewDatabaseAdapterWithDB(client)
}

func NewDatabaseAdapterWithDB(client *gorm.DB) (*DatabaseAdapter, error) {
	if err := RunMigrations(client); err != nil {
		return nil, err
	}
	log.Info().Str("dialect", client.Dialector.Name()).Msg("[DatabaseAdapter] connected")
	return &DatabaseAdapter{
		Client:  client,
		keyLock: utils.NewKeyedMutex(),
		now:     time.Now,
	}, nil
}

func RunMigrations(client *gorm.DB) error {
	err := client.AutoMigrate(
		&models.Transfer{},
		&models.TxRecord{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (db *DatabaseAdapter) Close() error {
	sqlDB, err := db.Client.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
