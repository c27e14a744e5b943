package validation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dd0wney/cluso-waternet/pkg/fault"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	MaxIDLength    = 64
	MaxDescription = 2000
	MaxBatchSize   = 1000
	MinBatchSize   = 1

	// asset ids are what operators type on the field: PS-01, Zone-A, V1.2
	idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// report json names so messages match the request body, yaml names
	// for config sections
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "yaml"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return ""
	})
	mustRegister("assetid", func(fl validator.FieldLevel) bool {
		return ValidateAssetID(fl.Field().String()) == nil
	})
	mustRegister("finite", func(fl validator.FieldLevel) bool {
		switch fl.Field().Kind() {
		case reflect.Float32, reflect.Float64:
			v := fl.Field().Float()
			return !math.IsNaN(v) && !math.IsInf(v, 0)
		default:
			return true
		}
	})
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tag, err))
	}
}

// Error is a request validation failure. It matches fault.ErrInvalidValue.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Unwrap classifies the failure as a validation error
func (e *Error) Unwrap() error { return fault.ErrInvalidValue }

// Struct validates a request struct against its validate tags
func Struct(v any) error {
	if v == nil {
		return &Error{Message: "request cannot be nil"}
	}
	if err := validate.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ValidateAssetID checks a node, segment or zone identifier
func ValidateAssetID(id string) error {
	if id == "" {
		return &Error{Field: "id", Message: "field is required"}
	}
	if len(id) > MaxIDLength {
		return &Error{Field: "id", Message: fmt.Sprintf("must not exceed %d characters", MaxIDLength)}
	}
	if !idPattern.MatchString(id) {
		return &Error{Field: "id", Message: fmt.Sprintf("%q contains invalid characters (letters, digits, '-', '_', '.', ':' allowed)", id)}
	}
	return nil
}

// ValidateBatchSize validates the size of a batch request
func ValidateBatchSize(size int) error {
	if size < MinBatchSize {
		return &Error{Field: "batch", Message: fmt.Sprintf("size must be at least %d, got %d", MinBatchSize, size)}
	}
	if size > MaxBatchSize {
		return &Error{Field: "batch", Message: fmt.Sprintf("size must not exceed %d, got %d", MaxBatchSize, size)}
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &Error{Message: err.Error()}
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := e.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		param := e.Param()

		switch e.Tag() {
		case "required":
			return &Error{Field: field, Message: "field is required"}
		case "min", "gte":
			return &Error{Field: field, Message: "must be at least " + param}
		case "max", "lte":
			return &Error{Field: field, Message: "must not exceed " + param}
		case "gt":
			return &Error{Field: field, Message: "must be greater than " + param}
		case "oneof":
			return &Error{Field: field, Message: "must be one of " + param}
		case "assetid":
			return &Error{Field: field, Message: fmt.Sprintf("%q is not a valid asset id", e.Value())}
		case "finite":
			return &Error{Field: field, Message: "must be a finite number"}
		default:
			return &Error{Field: field, Message: fmt.Sprintf("validation failed (%s)", e.Tag())}
		}
	}
	return &Error{Message: err.Error()}
}
