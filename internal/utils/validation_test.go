package utils

import (
	"testing"
)

// TestValidateTargetURL tests scrape target URL validation
func TestValidateTargetURL(t *testing.T) {
	testCases := []struct {
		name     string
		url      string
		wantCode string
	}{
		{"valid https", "https://example.com/lawyers", ""},
		{"valid http", "http://example.com", ""},
		{"valid with query", "https://example.com/search?page=2", ""},
		{"empty", "", "REQUIRED"},
		{"whitespace only", "   ", "REQUIRED"},
		{"relative path", "/lawyers/page/2", "INVALID_SCHEME"},
		{"ftp scheme", "ftp://example.com/file", "INVALID_SCHEME"},
		{"scheme only", "https://", "INVALID_HOST"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTargetURL(tc.url)
			if tc.wantCode == "" {
				if err != nil {
					t.Errorf("ValidateTargetURL(%q) = %v, want nil", tc.url, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateTargetURL(%q) = nil, want code %s", tc.url, tc.wantCode)
			}
			if err.Code != tc.wantCode {
				t.Errorf("ValidateTargetURL(%q) code = %s, want %s", tc.url, err.Code, tc.wantCode)
			}
		})
	}
}

// TestIsValidSelectorKind tests selector kind validation
func TestIsValidSelectorKind(t *testing.T) {
	testCases := []struct {
		kind     string
		expected bool
	}{
		{"", true},
		{"css", true},
		{"xpath", true},
		{"CSS", false},
		{"jquery", false},
	}

	for _, tc := range testCases {
		t.Run(tc.kind, func(t *testing.T) {
			result := IsValidSelectorKind(tc.kind)
			if result != tc.expected {
				t.Errorf("IsValidSelectorKind(%q) = %v, want %v", tc.kind, result, tc.expected)
			}
		})
	}
}

// TestIsValidValueKind tests field value kind validation
func TestIsValidValueKind(t *testing.T) {
	testCases := []struct {
		kind     string
		expected bool
	}{
		{"", true},
		{"text", true},
		{"html", true},
		{"link", true},
		{"attribute", true},
		{"attr", false},
		{"innerText", false},
	}

	for _, tc := range testCases {
		t.Run(tc.kind, func(t *testing.T) {
			result := IsValidValueKind(tc.kind)
			if result != tc.expected {
				t.Errorf("IsValidValueKind(%q) = %v, want %v", tc.kind, result, tc.expected)
			}
		})
	}
}

// TestIsValidOutputFormat tests output format validation
func TestIsValidOutputFormat(t *testing.T) {
	testCases := []struct {
		format   string
		expected bool
	}{
		{"json", true},
		{"csv", true},
		{"yaml", true},
		{"excel", true},
		{"sqlite", true},
		{"mysql", true},
		{"postgresql", true},
		{"mongodb", true},
		{"", false},
		{"xlsx", false},
		{"parquet", false},
	}

	for _, tc := range testCases {
		t.Run(tc.format, func(t *testing.T) {
			result := IsValidOutputFormat(tc.format)
			if result != tc.expected {
				t.Errorf("IsValidOutputFormat(%q) = %v, want %v", tc.format, result, tc.expected)
			}
		})
	}
}

// TestSanitizeFieldName tests field name sanitization for output safety
func TestSanitizeFieldName(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"name", "name"},
		{"practice areas", "practice_areas"},
		{"bar-number", "bar_number"},
		{"2024_admissions", "field_2024_admissions"},
		{"", "unnamed_field"},
		{"already_clean", "already_clean"},
		{"email@work", "email_work"},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			result := SanitizeFieldName(tc.input)
			if result != tc.expected {
				t.Errorf("SanitizeFieldName(%q) = %q, want %q", tc.input, result, tc.expected)
			}
		})
	}
}

// TestValidationResult tests error aggregation behavior
func TestValidationResult(t *testing.T) {
	vr := &ValidationResult{Valid: true}

	if vr.HasErrors() {
		t.Error("new ValidationResult should have no errors")
	}
	if vr.FirstError() != nil {
		t.Error("FirstError on empty result should be nil")
	}

	vr.AddError("selector", ".missing {", "unparseable selector", "INVALID_SYNTAX")
	vr.AddError("url", "", "URL is required", "REQUIRED")

	if vr.Valid {
		t.Error("result should not be valid after AddError")
	}
	if !vr.HasErrors() {
		t.Error("HasErrors should be true after AddError")
	}
	if got := vr.FirstError(); got == nil || got.Code != "INVALID_SYNTAX" {
		t.Errorf("FirstError = %v, want INVALID_SYNTAX error", got)
	}
	if len(vr.Errors) != 2 {
		t.Errorf("len(Errors) = %d, want 2", len(vr.Errors))
	}
}
