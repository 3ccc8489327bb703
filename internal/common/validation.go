package common

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/skills-audit/constants"
)

// ValidationError is one rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// ValidationRule inspects a value and returns a message when it is unacceptable.
type ValidationRule func(value any) (msg string, ok bool)

// Validator collects every failing field instead of stopping at the first.
type Validator struct {
	errors []ValidationError
}

func NewValidator() *Validator {
	return &Validator{}
}

// Field applies rules to value in order, recording at most one failure per field.
func (v *Validator) Field(name string, value any, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if msg, ok := rule(value); !ok {
			v.errors = append(v.errors, ValidationError{Field: name, Message: msg})
			break
		}
	}
	return v
}

func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// Err returns an INVALID_INPUT AppError listing every failure, or nil.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	msgs := make([]string, 0, len(v.errors))
	for _, e := range v.errors {
		msgs = append(msgs, e.Error())
	}
	return JobError(ErrInvalidInput, "validation failed: "+strings.Join(msgs, "; "), nil)
}

// Required rejects empty or whitespace-only strings.
func Required(value any) (string, bool) {
	if value == nil {
		return "is required", false
	}
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return "is required", false
	}
	return "", true
}

// MaxLength rejects strings longer than max runes.
func MaxLength(max int) ValidationRule {
	return func(value any) (string, bool) {
		if s, ok := value.(string); ok && utf8.RuneCountInString(s) > max {
			return fmt.Sprintf("must be at most %d characters", max), false
		}
		return "", true
	}
}

// NonNegative rejects ints below zero.
func NonNegative(value any) (string, bool) {
	if n, ok := value.(int); ok && n < 0 {
		return fmt.Sprintf("must be >= 0 (got %d)", n), false
	}
	return "", true
}

// Positive rejects ints below one.
func Positive(value any) (string, bool) {
	if n, ok := value.(int); ok && n <= 0 {
		return fmt.Sprintf("must be > 0 (got %d)", n), false
	}
	return "", true
}

// OneOf accepts strings equal (case-insensitively) to one of allowed.
func OneOf(allowed ...string) ValidationRule {
	return func(value any) (string, bool) {
		s, _ := value.(string)
		for _, a := range allowed {
			if strings.EqualFold(s, a) {
				return "", true
			}
		}
		return fmt.Sprintf("must be one of %s (got %q)", strings.Join(allowed, ", "), s), false
	}
}

// LevelCodes accepts a []string whose entries are all CEFR level codes.
func LevelCodes(value any) (string, bool) {
	raw, _ := value.([]string)
	if _, bad, ok := constants.ParseLevels(raw); !ok {
		return fmt.Sprintf("has unknown level %q", bad), false
	}
	return "", true
}
