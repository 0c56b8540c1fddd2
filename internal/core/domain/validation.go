package domain

import (
	"net/url"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator with Authly-specific validators.
type Validator struct {
	validator *validator.Validate
}

// NewValidator creates a validation instance with the custom validators the
// configuration layer relies on.
func NewValidator() *Validator {
	validate := validator.New()

	_ = validate.RegisterValidation("authly_url", validateAuthlyURL)
	_ = validate.RegisterValidation("entity_id", validateEntityID)
	_ = validate.RegisterValidation("file_exists", validateFileExists)
	_ = validate.RegisterValidation("duration", validateDuration)

	return &Validator{validator: validate}
}

// Validate validates a struct against its validation tags.
func (v *Validator) Validate(s any) error {
	return v.validator.Struct(s)
}

// ValidateVar validates a single value against the given tag.
func (v *Validator) ValidateVar(field any, tag string) error {
	return v.validator.Var(field, tag)
}

// validateAuthlyURL accepts only absolute https URLs with a host. Transport
// encryption is unconditional, so plain http never validates.
func validateAuthlyURL(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true // empty handled by the required tag
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && u.Host != ""
}

func validateEntityID(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := ParseEntityID(value)
	return err == nil
}

func validateFileExists(fl validator.FieldLevel) bool {
	path := fl.Field().String()
	if path == "" {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func validateDuration(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	d, err := time.ParseDuration(value)
	return err == nil && d > 0
}
