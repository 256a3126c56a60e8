package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationResult collects configuration problems. It is valid exactly when
// no error has been added; warnings never change validity.
type ValidationResult struct {
	errors   []string
	warnings []string
}

// NewValidationResult returns an empty, valid result.
func NewValidationResult() ValidationResult {
	return ValidationResult{
		errors:   []string{},
		warnings: []string{},
	}
}

// AddError records a problem that makes the configuration unusable.
func (v *ValidationResult) AddError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

// AddWarning records a suspicious but usable setting.
func (v *ValidationResult) AddWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

// Valid reports whether no errors were recorded.
func (v ValidationResult) Valid() bool {
	return len(v.errors) == 0
}

// Errors returns the recorded errors in insertion order.
func (v ValidationResult) Errors() []string {
	return append([]string{}, v.errors...)
}

// Warnings returns the recorded warnings in insertion order.
func (v ValidationResult) Warnings() []string {
	return append([]string{}, v.warnings...)
}

// Err converts an invalid result into a KindInvalidConfig error. It returns
// nil for a valid result.
func (v ValidationResult) Err(backend string) error {
	if v.Valid() {
		return nil
	}

	return Errorf(KindInvalidConfig, backend, "invalid configuration: %s", strings.Join(v.errors, ", "))
}

type validationJSON struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Valid    bool     `json:"valid"`
}

// MarshalJSON renders the result as {valid, errors, warnings}.
func (v ValidationResult) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(validationJSON{
		Valid:    v.Valid(),
		Errors:   v.Errors(),
		Warnings: v.Warnings(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal validation result: %w", err)
	}

	return data, nil
}
