package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ferretttde/ProteinTracker/internal/live"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SingletonID is the fixed key of the one settings row per install.
const SingletonID = "user_settings"

// DefaultDailyGoal is the protein target returned before the user saves
// anything, in grams per day.
const DefaultDailyGoal = 120

var (
	errMissingDatabase = errors.New("database handle is required")
	// ErrInvalidGoal indicates a non-positive daily protein goal.
	ErrInvalidGoal = errors.New("settings: daily goal must be positive")
)

// Settings is the singleton per-install configuration row.
type Settings struct {
	ID        string `gorm:"column:id;primaryKey;size:64" json:"id"`
	DailyGoal int    `gorm:"column:daily_goal;not null" json:"daily_goal"`
	APIKey    string `gorm:"column:api_key;type:text;not null;default:''" json:"api_key"`
}

// TableName provides the explicit table binding for GORM.
func (Settings) TableName() string {
	return "settings"
}

// Patch carries partial settings updates; nil fields keep their prior value.
type Patch struct {
	DailyGoal *int
	APIKey    *string
}

// ServiceConfig describes the dependencies of the settings service.
type ServiceConfig struct {
	Database   *gorm.DB
	Dispatcher *live.Dispatcher
	Logger     *zap.Logger
}

// Service reads and writes the singleton settings row.
type Service struct {
	db         *gorm.DB
	dispatcher *live.Dispatcher
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("settings: %w", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		dispatcher: cfg.Dispatcher,
		logger:     logger,
	}, nil
}

// Get returns the stored settings, or the documented defaults when nothing
// has been saved yet. The defaults are not persisted.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	var stored Settings
	err := s.db.WithContext(ctx).Where("id = ?", SingletonID).Take(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Settings{ID: SingletonID, DailyGoal: DefaultDailyGoal, APIKey: ""}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("settings: load failed: %w", err)
	}
	return stored, nil
}

// DailyGoal returns the configured protein goal in grams per day.
func (s *Service) DailyGoal(ctx context.Context) (int, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return 0, err
	}
	return current.DailyGoal, nil
}

// APIKey returns the stored analysis API credential. Empty means not
// configured. The key never leaves the local store except toward the
// analysis API itself.
func (s *Service) APIKey(ctx context.Context) (string, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	return current.APIKey, nil
}

// Save merges the patch over the current value and writes the result back.
func (s *Service) Save(ctx context.Context, patch Patch) (Settings, error) {
	if patch.DailyGoal != nil && *patch.DailyGoal <= 0 {
		return Settings{}, fmt.Errorf("%w: %d", ErrInvalidGoal, *patch.DailyGoal)
	}

	current, err := s.Get(ctx)
	if err != nil {
		return Settings{}, err
	}
	if patch.DailyGoal != nil {
		current.DailyGoal = *patch.DailyGoal
	}
	if patch.APIKey != nil {
		current.APIKey = *patch.APIKey
	}
	current.ID = SingletonID

	if err := s.db.WithContext(ctx).Save(&current).Error; err != nil {
		s.logger.Error("settings save failed", zap.Error(err))
		return Settings{}, fmt.Errorf("settings: save failed: %w", err)
	}

	if s.dispatcher != nil {
		s.dispatcher.Publish(live.Event{Table: live.TableSettings, Op: live.OpUpdate, At: time.Now().UTC()})
	}
	return current, nil
}
