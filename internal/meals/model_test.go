package meals

import (
	"errors"
	"testing"
	"time"
)

func validNewMeal() NewMeal {
	return NewMeal{
		Timestamp:   time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local),
		Description: "Chicken breast",
		ProteinG:    30,
		Source:      SourceManual,
		MealType:    MealTypeLunch,
	}
}

func TestNewMealValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*NewMeal)
		expectErr bool
	}{
		{name: "valid", mutate: func(m *NewMeal) {}},
		{name: "empty-meal-type-tolerated", mutate: func(m *NewMeal) { m.MealType = "" }},
		{name: "empty-description", mutate: func(m *NewMeal) { m.Description = "   " }, expectErr: true},
		{name: "zero-timestamp", mutate: func(m *NewMeal) { m.Timestamp = time.Time{} }, expectErr: true},
		{name: "negative-protein", mutate: func(m *NewMeal) { m.ProteinG = -1 }, expectErr: true},
		{name: "negative-calories", mutate: func(m *NewMeal) { m.Calories = floatPtr(-10) }, expectErr: true},
		{name: "unknown-source", mutate: func(m *NewMeal) { m.Source = "guesswork" }, expectErr: true},
		{name: "unknown-meal-type", mutate: func(m *NewMeal) { m.MealType = "brunch" }, expectErr: true},
		{
			name: "confidence-on-manual",
			mutate: func(m *NewMeal) {
				m.Confidence = floatPtr(0.8)
			},
			expectErr: true,
		},
		{
			name: "confidence-out-of-range",
			mutate: func(m *NewMeal) {
				m.Source = SourcePhotoAI
				m.Confidence = floatPtr(1.2)
			},
			expectErr: true,
		},
		{
			name: "confidence-on-photo-ai",
			mutate: func(m *NewMeal) {
				m.Source = SourcePhotoAI
				m.Confidence = floatPtr(0.9)
			},
		},
		{
			name: "barcode-on-manual",
			mutate: func(m *NewMeal) {
				m.Barcode = "4000417025005"
			},
			expectErr: true,
		},
		{
			name: "barcode-on-barcode-source",
			mutate: func(m *NewMeal) {
				m.Source = SourceBarcode
				m.Barcode = "4000417025005"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validNewMeal()
			tt.mutate(&input)
			err := input.Validate()
			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected validation error")
				}
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestMealPatchValidate(t *testing.T) {
	badType := MealType("brunch")
	goodType := MealTypeDinner
	empty := "  "

	if err := (MealPatch{}).Validate(); err != nil {
		t.Fatalf("empty patch should validate: %v", err)
	}
	if err := (MealPatch{Description: &empty}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank description, got %v", err)
	}
	if err := (MealPatch{ProteinG: floatPtr(-5)}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for negative protein, got %v", err)
	}
	if err := (MealPatch{MealType: &badType}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown meal type, got %v", err)
	}
	if err := (MealPatch{MealType: &goodType, ProteinG: floatPtr(12)}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMealPatchIsZero(t *testing.T) {
	if !(MealPatch{}).IsZero() {
		t.Fatalf("empty patch should be zero")
	}
	if (MealPatch{ProteinG: floatPtr(1)}).IsZero() {
		t.Fatalf("patch with protein should not be zero")
	}
}
