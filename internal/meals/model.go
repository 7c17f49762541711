package meals

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Source enumerates how a meal entry was produced.
type Source string

const (
	// SourcePhotoAI marks entries estimated from a meal photo.
	SourcePhotoAI Source = "photo_ai"
	// SourceBarcode marks entries derived from a scanned product barcode.
	SourceBarcode Source = "barcode"
	// SourceManual marks entries typed in by the user.
	SourceManual Source = "manual"
)

// MealType buckets a meal into one of the daily eating occasions.
type MealType string

const (
	MealTypeBreakfast MealType = "breakfast"
	MealTypeLunch     MealType = "lunch"
	MealTypeDinner    MealType = "dinner"
	MealTypeSnack     MealType = "snack"
)

var (
	// ErrValidation indicates a meal payload is missing required fields or
	// carries values outside their domain.
	ErrValidation = errors.New("meals: invalid meal")
	// ErrNotFound indicates the referenced meal id does not exist.
	ErrNotFound = errors.New("meals: meal not found")
)

// Meal models one logged food intake event.
type Meal struct {
	ID                uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Timestamp         time.Time `gorm:"column:timestamp;not null;index:idx_meals_timestamp" json:"timestamp"`
	Description       string    `gorm:"column:description;type:text;not null" json:"description"`
	ProteinG          float64   `gorm:"column:protein_g;not null" json:"protein_g"`
	Calories          *float64  `gorm:"column:calories" json:"calories,omitempty"`
	Source            Source    `gorm:"column:source;size:32;not null;index:idx_meals_source" json:"source"`
	Confidence        *float64  `gorm:"column:confidence" json:"confidence,omitempty"`
	ManuallyCorrected bool      `gorm:"column:manually_corrected;not null;default:false" json:"manually_corrected"`
	Barcode           string    `gorm:"column:barcode;size:64;index:idx_meals_barcode" json:"barcode,omitempty"`
	Photo             []byte    `gorm:"column:photo;type:blob" json:"-"`
	PhotoKey          string    `gorm:"column:photo_key;size:64" json:"-"`
	MealType          MealType  `gorm:"column:meal_type;size:32;not null;index:idx_meals_meal_type" json:"meal_type"`
}

// TableName provides the explicit table binding for GORM.
func (Meal) TableName() string {
	return "meals"
}

// NewMeal describes the payload accepted by Add before an id is assigned.
type NewMeal struct {
	Timestamp   time.Time
	Description string
	ProteinG    float64
	Calories    *float64
	Source      Source
	Confidence  *float64
	Barcode     string
	Photo       []byte
	MealType    MealType
}

// MealPatch carries the user-editable fields for Update. Nil fields are
// left untouched.
type MealPatch struct {
	Description *string
	ProteinG    *float64
	Calories    *float64
	MealType    *MealType
}

// IsZero reports whether the patch changes nothing.
func (p MealPatch) IsZero() bool {
	return p.Description == nil && p.ProteinG == nil && p.Calories == nil && p.MealType == nil
}

func validSource(s Source) bool {
	switch s {
	case SourcePhotoAI, SourceBarcode, SourceManual:
		return true
	}
	return false
}

func validMealType(t MealType) bool {
	switch t {
	case MealTypeBreakfast, MealTypeLunch, MealTypeDinner, MealTypeSnack:
		return true
	}
	return false
}

// Validate checks the payload against the invariants enforced at Add time.
// An empty meal type is tolerated; Add normalizes it to snack.
func (m NewMeal) Validate() error {
	if strings.TrimSpace(m.Description) == "" {
		return fmt.Errorf("%w: empty description", ErrValidation)
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrValidation)
	}
	if m.ProteinG < 0 {
		return fmt.Errorf("%w: negative protein_g %v", ErrValidation, m.ProteinG)
	}
	if m.Calories != nil && *m.Calories < 0 {
		return fmt.Errorf("%w: negative calories %v", ErrValidation, *m.Calories)
	}
	if !validSource(m.Source) {
		return fmt.Errorf("%w: unknown source %q", ErrValidation, m.Source)
	}
	if m.MealType != "" && !validMealType(m.MealType) {
		return fmt.Errorf("%w: unknown meal type %q", ErrValidation, m.MealType)
	}
	if m.Confidence != nil {
		if m.Source != SourcePhotoAI {
			return fmt.Errorf("%w: confidence only valid for source %q", ErrValidation, SourcePhotoAI)
		}
		if *m.Confidence < 0 || *m.Confidence > 1 {
			return fmt.Errorf("%w: confidence %v outside [0,1]", ErrValidation, *m.Confidence)
		}
	}
	if m.Barcode != "" && m.Source != SourceBarcode {
		return fmt.Errorf("%w: barcode only valid for source %q", ErrValidation, SourceBarcode)
	}
	return nil
}

// Validate checks the user-supplied replacement values.
func (p MealPatch) Validate() error {
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return fmt.Errorf("%w: empty description", ErrValidation)
	}
	if p.ProteinG != nil && *p.ProteinG < 0 {
		return fmt.Errorf("%w: negative protein_g %v", ErrValidation, *p.ProteinG)
	}
	if p.Calories != nil && *p.Calories < 0 {
		return fmt.Errorf("%w: negative calories %v", ErrValidation, *p.Calories)
	}
	if p.MealType != nil && !validMealType(*p.MealType) {
		return fmt.Errorf("%w: unknown meal type %q", ErrValidation, *p.MealType)
	}
	return nil
}

// DailyStats summarizes one day of logged meals against the protein goal.
type DailyStats struct {
	TotalProtein  float64 `json:"totalProtein"`
	TotalCalories float64 `json:"totalCalories"`
	MealCount     int     `json:"mealCount"`
	GoalProgress  float64 `json:"goalProgress"`
}

// DayTotals carries the per-day aggregate used by history charts.
type DayTotals struct {
	Day           time.Time `json:"day"`
	TotalProtein  float64   `json:"totalProtein"`
	TotalCalories float64   `json:"totalCalories"`
	MealCount     int       `json:"mealCount"`
}
