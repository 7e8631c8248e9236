package validation

import (
	"io"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	apperrors "github.com/lorrc/region-sync/internal/core/errors"
)

// MaxBodyBytes bounds request bodies read by DecodeJSON.
const MaxBodyBytes = 64 << 10

// Validator validates request data
type Validator struct {
	errors *apperrors.ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: apperrors.NewValidationErrors(),
	}
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return v.errors.HasErrors()
}

// Errors returns the validation errors
func (v *Validator) Errors() *apperrors.ValidationErrors {
	return v.errors
}

// Err returns the collected errors, or nil when there are none.
func (v *Validator) Err() error {
	if v.HasErrors() {
		return v.errors
	}
	return nil
}

// Required validates that a string is not empty
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.errors.Add(field, "This field is required")
	}
	return v
}

// MaxLength validates maximum string length
func (v *Validator) MaxLength(field, value string, max int) *Validator {
	if len(value) > max {
		v.errors.Add(field, "Must be at most "+strconv.Itoa(max)+" characters")
	}
	return v
}

// Email validates email format
func (v *Validator) Email(field, value string) *Validator {
	if value == "" {
		return v
	}
	if addr, err := mail.ParseAddress(value); err != nil || addr.Address != value {
		v.errors.Add(field, "Must be a valid email address")
	}
	return v
}

// UUID validates UUID format and returns the parsed value. An empty value
// yields uuid.Nil without an error; pair with Required.
func (v *Validator) UUID(field, value string) uuid.UUID {
	if value == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		v.errors.Add(field, "Must be a valid UUID")
		return uuid.Nil
	}
	return id
}

// Custom adds a custom validation
func (v *Validator) Custom(field string, valid bool, message string) *Validator {
	if !valid {
		v.errors.Add(field, message)
	}
	return v
}

// NotNil validates that a pointer is not nil
func NotNil[T any](v *Validator, field string, value *T) *Validator {
	if value == nil {
		v.errors.Add(field, "This field is required")
	}
	return v
}

// DecodeJSON decodes a JSON request body of at most MaxBodyBytes.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request) (*T, error) {
	var req T

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		return nil, apperrors.NewBadRequestError(err, "Request body too large or unreadable")
	}
	if err := sonic.ConfigStd.Unmarshal(body, &req); err != nil {
		return nil, apperrors.NewBadRequestError(err, "Invalid request body")
	}

	return &req, nil
}

// ParseUint32Param parses a non-zero unsigned 32-bit path or query value.
func ParseUint32Param(field, value string) (uint32, error) {
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil || n == 0 {
		errs := apperrors.NewValidationErrors()
		errs.Add(field, "Must be a positive 32-bit integer")
		return 0, errs
	}
	return uint32(n), nil
}

// ParseBoolQueryParam safely parses a boolean query parameter
func ParseBoolQueryParam(r *http.Request, key string, defaultValue bool) bool {
	valueStr := r.URL.Query().Get(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
