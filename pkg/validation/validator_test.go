package validation

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/dd0wney/cluso-waternet/pkg/fault"
)

type segmentRequest struct {
	ID         string  `json:"id" validate:"required,assetid"`
	From       string  `json:"a" validate:"required,assetid"`
	To         string  `json:"b" validate:"required,assetid"`
	Material   string  `json:"material" validate:"required,oneof=PVC HDPE DuctileIron"`
	DiameterMM float64 `json:"diameter_mm" validate:"gt=0,finite"`
}

func TestStruct(t *testing.T) {
	valid := segmentRequest{ID: "P1", From: "R1", To: "V1", Material: "PVC", DiameterMM: 150}

	tests := []struct {
		name       string
		mutate     func(r *segmentRequest)
		expectErr  bool
		errorField string
	}{
		{name: "valid", mutate: func(*segmentRequest) {}},
		{name: "missing id", mutate: func(r *segmentRequest) { r.ID = "" }, expectErr: true, errorField: "id"},
		{name: "bad id", mutate: func(r *segmentRequest) { r.From = "R 1" }, expectErr: true, errorField: "a"},
		{name: "unknown material", mutate: func(r *segmentRequest) { r.Material = "Clay" }, expectErr: true, errorField: "material"},
		{name: "zero diameter", mutate: func(r *segmentRequest) { r.DiameterMM = 0 }, expectErr: true, errorField: "diameter_mm"},
		{name: "nan diameter", mutate: func(r *segmentRequest) { r.DiameterMM = math.NaN() }, expectErr: true, errorField: "diameter_mm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := Struct(&req)
			if (err != nil) != tt.expectErr {
				t.Fatalf("Struct() error = %v, expectErr %v", err, tt.expectErr)
			}
			if err == nil {
				return
			}
			var ve *Error
			if !errors.As(err, &ve) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if ve.Field != tt.errorField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.errorField)
			}
			if !fault.IsValidation(err) {
				t.Error("validation errors should classify as validation")
			}
		})
	}
}

func TestValidateAssetID(t *testing.T) {
	tests := []struct {
		id        string
		expectErr bool
	}{
		{"PS-01", false},
		{"Zone-A", false},
		{"V1.2", false},
		{"dma:north", false},
		{"", true},
		{"-leading", true},
		{"has space", true},
		{strings.Repeat("a", 65), true},
	}
	for _, tt := range tests {
		if err := ValidateAssetID(tt.id); (err != nil) != tt.expectErr {
			t.Errorf("ValidateAssetID(%q) error = %v, expectErr %v", tt.id, err, tt.expectErr)
		}
	}
}

func TestValidateBatchSize(t *testing.T) {
	tests := []struct {
		size      int
		expectErr bool
	}{
		{0, true},
		{1, false},
		{MaxBatchSize, false},
		{MaxBatchSize + 1, true},
	}
	for _, tt := range tests {
		if err := ValidateBatchSize(tt.size); (err != nil) != tt.expectErr {
			t.Errorf("ValidateBatchSize(%d) error = %v, expectErr %v", tt.size, err, tt.expectErr)
		}
	}
}

func TestStruct_Nil(t *testing.T) {
	if err := Struct(nil); err == nil {
		t.Error("Struct(nil) should fail")
	}
}
