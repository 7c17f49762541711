package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/Ferretttde/ProteinTracker/internal/meals"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrMigration indicates a schema upgrade step failed. The store must not
// be used when this is returned.
var ErrMigration = errors.New("database: migration failed")

const migrationBackfillMealType = "2024-05-20_backfill_meal_type"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

// applyMigrations runs the forward-only migration ladder. Each step runs at
// most once; applied steps are recorded in db_migrations. Steps themselves
// are written to be idempotent so a crash between apply and record is safe
// to replay.
func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillMealType, apply: backfillMealType},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s: %v", ErrMigration, migration.name, err)
		}
		if err := migration.apply(db); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMigration, migration.name, err)
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return fmt.Errorf("%w: %s: record: %v", ErrMigration, migration.name, err)
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillMealType assigns the snack meal type to every record written
// before meal types existed. Records that already carry a meal type are
// untouched.
func backfillMealType(db *gorm.DB) error {
	return db.Model(&meals.Meal{}).
		Where("meal_type IS NULL OR meal_type = ''").
		Update("meal_type", meals.MealTypeSnack).Error
}
