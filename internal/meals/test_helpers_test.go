package meals

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ferretttde/ProteinTracker/internal/live"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type fixedGoal int

func (g fixedGoal) DailyGoal(ctx context.Context) (int, error) {
	return int(g), nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "meals.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Meal{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, goal int, dispatcher *live.Dispatcher) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		Dispatcher: dispatcher,
		Goals:      fixedGoal(goal),
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service
}

func mustAdd(t *testing.T, service *Service, input NewMeal) Meal {
	t.Helper()
	record, err := service.Add(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	return record
}

func floatPtr(value float64) *float64 {
	return &value
}
