// internal/utils/validation.go
package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var fieldNameSanitizePattern = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// ValidationError represents a structured validation error
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", e.Field, e.Message)
}

// ValidationResult represents the result of a validation operation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// AddError adds a validation error to the result
func (vr *ValidationResult) AddError(field, value, message, code string) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Code:    code,
	})
}

// HasErrors returns true if there are validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// FirstError returns the first validation error if any
func (vr *ValidationResult) FirstError() *ValidationError {
	if len(vr.Errors) > 0 {
		return &vr.Errors[0]
	}
	return nil
}

// ValidateTargetURL checks that a scrape target is an absolute http(s) URL.
func ValidateTargetURL(raw string) *ValidationError {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return &ValidationError{
			Field:   "url",
			Message: "URL is required",
			Code:    "REQUIRED",
		}
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return &ValidationError{
			Field:   "url",
			Value:   trimmed,
			Message: fmt.Sprintf("invalid URL format: %v", err),
			Code:    "INVALID_FORMAT",
		}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &ValidationError{
			Field:   "url",
			Value:   trimmed,
			Message: "scheme must be one of: http, https",
			Code:    "INVALID_SCHEME",
		}
	}
	if parsed.Host == "" {
		return &ValidationError{
			Field:   "url",
			Value:   trimmed,
			Message: "URL has no host",
			Code:    "INVALID_HOST",
		}
	}
	return nil
}

// IsValidSelectorKind checks if a selector kind is supported.
func IsValidSelectorKind(kind string) bool {
	switch kind {
	case "", "css", "xpath":
		return true
	}
	return false
}

// IsValidValueKind checks if a field value kind is supported.
func IsValidValueKind(kind string) bool {
	switch kind {
	case "", "text", "html", "link", "attribute":
		return true
	}
	return false
}

// IsValidOutputFormat checks if an output format is supported.
func IsValidOutputFormat(format string) bool {
	validFormats := map[string]bool{
		"json":       true,
		"csv":        true,
		"yaml":       true,
		"excel":      true,
		"sqlite":     true,
		"mysql":      true,
		"postgresql": true,
		"mongodb":    true,
	}
	return validFormats[format]
}

// SanitizeFieldName ensures field names are safe for use in outputs
func SanitizeFieldName(name string) string {
	clean := fieldNameSanitizePattern.ReplaceAllString(name, "_")

	// Ensure it doesn't start with a number
	if len(clean) > 0 && clean[0] >= '0' && clean[0] <= '9' {
		clean = "field_" + clean
	}

	if clean == "" {
		clean = "unnamed_field"
	}
	return clean
}
