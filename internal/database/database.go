// Package database owns the SQLite connection and the schema migrations.
package database

import (
	"log/slog"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"sitepulse/internal/analytics"
	"sitepulse/internal/config"
	"sitepulse/internal/events"
	"sitepulse/internal/settings"
	"sitepulse/internal/users"
)

// DBManager wraps cartridge's sqlite.Manager with sitepulse's migrations.
type DBManager struct {
	*sqlite.Manager
	logger *slog.Logger
}

// NewDBManager creates a new database manager using cartridge's sqlite.Manager.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	sqliteCfg := sqlite.Config{
		Path:         cfg.DatabaseName,
		MaxOpenConns: cfg.GetMaxOpenConns(),
		MaxIdleConns: cfg.GetMaxIdleConns(),
		Logger:       logger,
		EnableWAL:    true,
		TxImmediate:  true,
		BusyTimeout:  5000,
	}

	return &DBManager{
		Manager: sqlite.NewManager(sqliteCfg),
		logger:  logger,
	}
}

// Init initializes the database connection.
func (dm *DBManager) Init() error {
	_, err := dm.Manager.Connect()
	return err
}

// Models lists every table sitepulse owns, in migration order.
func Models() []any {
	return []any{
		&cache.CacheRecord{},
		&events.PageViewEvent{},
		&analytics.ReferrerStat{},
		&analytics.DailyStat{},
		&users.User{},
		&settings.Setting{},
	}
}

// Migrate creates or updates the schema on db and seeds default settings.
func Migrate(db *gorm.DB, logger *slog.Logger) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(Models()...)
	}); err != nil {
		logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	return settings.SetupDefaultSettings(db, logger)
}

// MigrateDatabase runs the migrations on the managed connection.
func (dm *DBManager) MigrateDatabase() error {
	if err := Migrate(dm.GetConnection(), dm.logger); err != nil {
		return err
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}
