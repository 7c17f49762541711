// Package archive implements portable backup and restore of the meal set.
// JSON exports round-trip through ImportJSON; CSV export is one-way. Photo
// attachments are deliberately excluded from both formats.
package archive

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Ferretttde/ProteinTracker/internal/live"
	"github.com/Ferretttde/ProteinTracker/internal/meals"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrParse indicates an import payload is not valid JSON or not an array of
// meal-shaped objects. No records are added when this is returned.
var ErrParse = errors.New("archive: malformed import payload")

var errMissingDatabase = errors.New("database handle is required")

// timestampLayout renders exported timestamps as ISO-8601 with millisecond
// precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

var csvHeader = []string{
	"id", "timestamp", "description", "protein_g", "calories",
	"source", "meal_type", "manually_corrected", "confidence", "barcode",
}

// mealRecord is the wire shape of one exported meal. It matches the stored
// record minus the photo attachment.
type mealRecord struct {
	ID                uint     `json:"id"`
	Timestamp         string   `json:"timestamp"`
	Description       string   `json:"description"`
	ProteinG          float64  `json:"protein_g"`
	Calories          *float64 `json:"calories,omitempty"`
	Source            string   `json:"source"`
	Confidence        *float64 `json:"confidence,omitempty"`
	ManuallyCorrected bool     `json:"manually_corrected"`
	Barcode           string   `json:"barcode,omitempty"`
	MealType          string   `json:"meal_type"`
}

// ServiceConfig describes the dependencies of the archive service.
type ServiceConfig struct {
	Database   *gorm.DB
	Dispatcher *live.Dispatcher
	Logger     *zap.Logger
}

// Service serializes the meal set to portable formats and restores JSON
// backups into the store.
type Service struct {
	db         *gorm.DB
	dispatcher *live.Dispatcher
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("archive: %w", errMissingDatabase)
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

func (s *Service) listAll(ctx context.Context) ([]meals.Meal, error) {
	var records []meals.Meal
	if err := s.db.WithContext(ctx).Order("timestamp ASC, id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("archive: list meals: %w", err)
	}
	return records, nil
}

func toRecord(m meals.Meal) mealRecord {
	return mealRecord{
		ID:                m.ID,
		Timestamp:         m.Timestamp.Format(timestampLayout),
		Description:       m.Description,
		ProteinG:          m.ProteinG,
		Calories:          m.Calories,
		Source:            string(m.Source),
		Confidence:        m.Confidence,
		ManuallyCorrected: m.ManuallyCorrected,
		Barcode:           m.Barcode,
		MealType:          string(m.MealType),
	}
}

// ExportJSON writes the full meal set as a JSON array, photo stripped, ids
// retained.
func (s *Service) ExportJSON(ctx context.Context, w io.Writer) error {
	stored, err := s.listAll(ctx)
	if err != nil {
		return err
	}
	records := make([]mealRecord, 0, len(stored))
	for _, m := range stored {
		records = append(records, toRecord(m))
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(records); err != nil {
		return fmt.Errorf("archive: encode export: %w", err)
	}
	return nil
}

// ExportCSV writes one header row plus one row per meal. Optional fields
// render as empty strings; description quoting is handled by the CSV
// writer.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	stored, err := s.listAll(ctx)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("archive: write csv header: %w", err)
	}
	for _, m := range stored {
		calories := ""
		if m.Calories != nil {
			calories = strconv.FormatFloat(*m.Calories, 'f', -1, 64)
		}
		confidence := ""
		if m.Confidence != nil {
			confidence = strconv.FormatFloat(*m.Confidence, 'f', -1, 64)
		}
		row := []string{
			strconv.FormatUint(uint64(m.ID), 10),
			m.Timestamp.Format(timestampLayout),
			m.Description,
			strconv.FormatFloat(m.ProteinG, 'f', -1, 64),
			calories,
			string(m.Source),
			string(m.MealType),
			strconv.FormatBool(m.ManuallyCorrected),
			confidence,
			m.Barcode,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("archive: write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("archive: flush csv: %w", err)
	}
	return nil
}

// ImportJSON restores a JSON export into the store. Incoming ids are
// discarded and fresh ids assigned, so an import never collides with
// existing records. The import is atomic: a malformed payload or a failed
// insert adds nothing.
func (s *Service) ImportJSON(ctx context.Context, r io.Reader) (int, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("archive: read import: %w", err)
	}

	var records []mealRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrParse, err)
	}

	inserts := make([]meals.Meal, 0, len(records))
	for i, record := range records {
		timestamp, err := time.Parse(time.RFC3339, record.Timestamp)
		if err != nil {
			return 0, fmt.Errorf("%w: record %d: bad timestamp %q", ErrParse, i, record.Timestamp)
		}
		input := meals.NewMeal{
			Timestamp:   timestamp,
			Description: record.Description,
			ProteinG:    record.ProteinG,
			Calories:    record.Calories,
			Source:      meals.Source(record.Source),
			Confidence:  record.Confidence,
			Barcode:     record.Barcode,
			MealType:    meals.MealType(record.MealType),
		}
		if err := input.Validate(); err != nil {
			return 0, fmt.Errorf("%w: record %d: %v", ErrParse, i, err)
		}
		mealType := input.MealType
		if mealType == "" {
			mealType = meals.MealTypeSnack
		}
		inserts = append(inserts, meals.Meal{
			Timestamp:         input.Timestamp,
			Description:       input.Description,
			ProteinG:          input.ProteinG,
			Calories:          input.Calories,
			Source:            input.Source,
			Confidence:        input.Confidence,
			ManuallyCorrected: record.ManuallyCorrected,
			Barcode:           input.Barcode,
			MealType:          mealType,
		})
	}

	if len(inserts) == 0 {
		return 0, nil
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range inserts {
			if err := tx.Create(&inserts[i]).Error; err != nil {
				return fmt.Errorf("archive: insert record %d: %w", i, err)
			}
		}
		return nil
	})
	if txErr != nil {
		s.logger.Error("import failed", zap.Error(txErr))
		return 0, txErr
	}

	if s.dispatcher != nil {
		for _, inserted := range inserts {
			s.dispatcher.Publish(live.Event{
				Table:  live.TableMeals,
				Op:     live.OpAdd,
				MealID: inserted.ID,
				At:     time.Now().UTC(),
			})
		}
	}
	s.logger.Info("import completed", zap.Int("records", len(inserts)))
	return len(inserts), nil
}
