package meals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ferretttde/ProteinTracker/internal/live"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError wraps a failure with an operation.reason code for logs and
// HTTP mapping.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "meals.service.new"
	opAddMeal       = "meals.add"
	opGetMeal       = "meals.get"
	opUpdateMeal    = "meals.update"
	opDeleteMeal    = "meals.delete"
	opListAll       = "meals.list_all"
	opMealsForDay   = "meals.for_day"
	opMealsForRange = "meals.for_range"
	opDailyStats    = "meals.daily_stats"
	opRangeTotals   = "meals.range_breakdown"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// GoalProvider supplies the configured daily protein goal in grams.
type GoalProvider interface {
	DailyGoal(ctx context.Context) (int, error)
}

// PhotoKeyProvider issues identifiers for stored photo attachments.
type PhotoKeyProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the meal store service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	Dispatcher *live.Dispatcher
	Goals      GoalProvider
	PhotoKeys  PhotoKeyProvider
	Logger     *zap.Logger
}

// Service is the persistent store and query layer for meal records.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	dispatcher *live.Dispatcher
	goals      GoalProvider
	photoKeys  PhotoKeyProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	photoKeys := cfg.PhotoKeys
	if photoKeys == nil {
		photoKeys = NewUUIDProvider()
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		dispatcher: cfg.Dispatcher,
		goals:      cfg.Goals,
		photoKeys:  photoKeys,
		logger:     logger,
	}, nil
}

// Add validates and persists a new meal record, returning it with the
// store-assigned id.
func (s *Service) Add(ctx context.Context, input NewMeal) (Meal, error) {
	if err := input.Validate(); err != nil {
		return Meal{}, newServiceError(opAddMeal, "validation_failed", err)
	}

	mealType := input.MealType
	if mealType == "" {
		mealType = MealTypeSnack
	}

	record := Meal{
		Timestamp:         input.Timestamp,
		Description:       input.Description,
		ProteinG:          input.ProteinG,
		Calories:          input.Calories,
		Source:            input.Source,
		Confidence:        input.Confidence,
		ManuallyCorrected: false,
		Barcode:           input.Barcode,
		Photo:             input.Photo,
		MealType:          mealType,
	}
	if len(record.Photo) > 0 {
		key, err := s.photoKeys.NewID()
		if err != nil {
			s.logError(opAddMeal, "photo_key_failed", err)
			return Meal{}, newServiceError(opAddMeal, "photo_key_failed", err)
		}
		record.PhotoKey = key
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opAddMeal, "insert_failed", err)
		return Meal{}, newServiceError(opAddMeal, "insert_failed", err)
	}

	s.publish(live.OpAdd, record.ID)
	return record, nil
}

// Get loads one meal by id. Missing ids yield ErrNotFound.
func (s *Service) Get(ctx context.Context, id uint) (Meal, error) {
	var record Meal
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Meal{}, newServiceError(opGetMeal, "not_found", fmt.Errorf("%w: id %d", ErrNotFound, id))
	}
	if err != nil {
		s.logError(opGetMeal, "query_failed", err, zap.Uint("meal_id", id))
		return Meal{}, newServiceError(opGetMeal, "query_failed", err)
	}
	return record, nil
}

// Update applies a partial edit to an existing meal. Any applied edit marks
// the record as manually corrected, since Update is only reachable from
// explicit user edits.
func (s *Service) Update(ctx context.Context, id uint, patch MealPatch) (Meal, error) {
	if err := patch.Validate(); err != nil {
		return Meal{}, newServiceError(opUpdateMeal, "validation_failed", err)
	}

	var updated Meal
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record Meal
		err := tx.Where("id = ?", id).Take(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opUpdateMeal, "not_found", fmt.Errorf("%w: id %d", ErrNotFound, id))
		}
		if err != nil {
			s.logError(opUpdateMeal, "select_failed", err, zap.Uint("meal_id", id))
			return newServiceError(opUpdateMeal, "select_failed", err)
		}

		if patch.IsZero() {
			updated = record
			return nil
		}

		if patch.Description != nil {
			record.Description = *patch.Description
		}
		if patch.ProteinG != nil {
			record.ProteinG = *patch.ProteinG
		}
		if patch.Calories != nil {
			record.Calories = patch.Calories
		}
		if patch.MealType != nil {
			record.MealType = *patch.MealType
		}
		record.ManuallyCorrected = true

		if err := tx.Save(&record).Error; err != nil {
			s.logError(opUpdateMeal, "save_failed", err, zap.Uint("meal_id", id))
			return newServiceError(opUpdateMeal, "save_failed", err)
		}
		updated = record
		return nil
	})
	if txErr != nil {
		return Meal{}, txErr
	}

	s.publish(live.OpUpdate, id)
	return updated, nil
}

// Delete removes a meal by id. Deleting a nonexistent id is a silent no-op.
func (s *Service) Delete(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Meal{})
	if result.Error != nil {
		s.logError(opDeleteMeal, "delete_failed", result.Error, zap.Uint("meal_id", id))
		return newServiceError(opDeleteMeal, "delete_failed", result.Error)
	}
	if result.RowsAffected > 0 {
		s.publish(live.OpDelete, id)
	}
	return nil
}

// ListAll returns every stored meal ordered by timestamp ascending.
func (s *Service) ListAll(ctx context.Context) ([]Meal, error) {
	var records []Meal
	if err := s.db.WithContext(ctx).Order("timestamp ASC, id ASC").Find(&records).Error; err != nil {
		s.logError(opListAll, "query_failed", err)
		return nil, newServiceError(opListAll, "query_failed", err)
	}
	return records, nil
}

func (s *Service) publish(op live.Op, mealID uint) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Publish(live.Event{
		Table:  live.TableMeals,
		Op:     op,
		MealID: mealID,
		At:     s.clock().UTC(),
	})
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("meal service error", attrs...)
}
