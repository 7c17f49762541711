package database

import (
	"fmt"

	"github.com/Ferretttde/ProteinTracker/internal/meals"
	"github.com/Ferretttde/ProteinTracker/internal/settings"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
// The store refuses to open when a migration step fails, so callers never
// observe a pre-migration record shape.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One connection serializes all access; this store has a single local
	// writer.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&meals.Meal{}, &settings.Settings{}, &migrationRecord{}); err != nil {
		return nil, fmt.Errorf("%w: schema migration: %v", ErrMigration, err)
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
