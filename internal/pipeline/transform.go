// internal/pipeline/transform.go
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/valpere/DeepScrapexter/internal/template"
)

var (
	spacesPattern   = regexp.MustCompile(`\s+`)
	htmlTagPattern  = regexp.MustCompile(`<[^>]*>`)
	numberPattern   = regexp.MustCompile(`\d+\.?\d*`)
	titleCaser      = cases.Title(language.English)
)

// ApplyTransforms applies all transformation rules in sequence to the input
// string.
func ApplyTransforms(ctx context.Context, rules []template.TransformSpec, input string) (string, error) {
	result := input
	for i, rule := range rules {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		var err error
		result, err = applyRule(rule, result)
		if err != nil {
			return "", fmt.Errorf("transform rule %d (%s) failed: %w", i, rule.Type, err)
		}
	}
	return result, nil
}

// applyRule applies a single transformation rule to the input string
func applyRule(tr template.TransformSpec, input string) (string, error) {
	switch tr.Type {
	case "trim":
		return strings.TrimSpace(input), nil

	case "normalize_spaces":
		return spacesPattern.ReplaceAllString(strings.TrimSpace(input), " "), nil

	case "lowercase":
		return strings.ToLower(input), nil

	case "uppercase":
		return strings.ToUpper(input), nil

	case "title":
		return titleCaser.String(input), nil

	case "remove_html":
		return htmlTagPattern.ReplaceAllString(input, ""), nil

	case "extract_number":
		match := numberPattern.FindString(input)
		if match == "" {
			return "0", nil
		}
		return match, nil

	case "parse_float":
		val, err := ParseFloat(input)
		if err != nil {
			return "", fmt.Errorf("parse_float failed: %w", err)
		}
		return strconv.FormatFloat(val, 'f', -1, 64), nil

	case "parse_int":
		val, err := ParseInt(input)
		if err != nil {
			return "", fmt.Errorf("parse_int failed: %w", err)
		}
		return strconv.Itoa(val), nil

	case "regex":
		if tr.Pattern == "" {
			return "", fmt.Errorf("regex pattern is required")
		}
		re, err := regexp.Compile(tr.Pattern)
		if err != nil {
			return "", fmt.Errorf("invalid regex pattern: %w", err)
		}
		return re.ReplaceAllString(input, tr.Replacement), nil

	case "parse_date":
		format := tr.Format
		if format == "" {
			format = "2006-01-02"
		}
		parsed, err := time.Parse(format, strings.TrimSpace(input))
		if err != nil {
			return "", fmt.Errorf("parse_date failed: %w", err)
		}
		if out, ok := tr.Params["outputFormat"].(string); ok && out != "" {
			return parsed.Format(out), nil
		}
		return strings.TrimSpace(input), nil

	case "prefix":
		if tr.Params == nil || tr.Params["value"] == nil {
			return "", fmt.Errorf("prefix requires value parameter")
		}
		return fmt.Sprintf("%v", tr.Params["value"]) + input, nil

	case "suffix":
		if tr.Params == nil || tr.Params["value"] == nil {
			return "", fmt.Errorf("suffix requires value parameter")
		}
		return input + fmt.Sprintf("%v", tr.Params["value"]), nil

	case "replace":
		if tr.Params == nil || tr.Params["old"] == nil || tr.Params["new"] == nil {
			return "", fmt.Errorf("replace requires old and new parameters")
		}
		oldStr := fmt.Sprintf("%v", tr.Params["old"])
		newStr := fmt.Sprintf("%v", tr.Params["new"])
		return strings.ReplaceAll(input, oldStr, newStr), nil

	default:
		return "", fmt.Errorf("unknown transform type: %s", tr.Type)
	}
}

// ValidateTransformRules validates transformation rule configuration
func ValidateTransformRules(rules []template.TransformSpec) error {
	for i, rule := range rules {
		switch rule.Type {
		case "trim", "normalize_spaces", "lowercase", "uppercase", "title",
			"remove_html", "extract_number", "parse_float", "parse_int":
		case "regex":
			if rule.Pattern == "" {
				return fmt.Errorf("rule %d: regex pattern is required", i)
			}
			if _, err := regexp.Compile(rule.Pattern); err != nil {
				return fmt.Errorf("rule %d: invalid regex pattern: %w", i, err)
			}
		case "parse_date":
		case "prefix", "suffix":
			if rule.Params == nil || rule.Params["value"] == nil {
				return fmt.Errorf("rule %d: %s requires value parameter", i, rule.Type)
			}
		case "replace":
			if rule.Params == nil || rule.Params["old"] == nil || rule.Params["new"] == nil {
				return fmt.Errorf("rule %d: replace requires old and new parameters", i)
			}
		default:
			return fmt.Errorf("rule %d: unknown transform type: %s", i, rule.Type)
		}
	}
	return nil
}

// ParseInt converts a string with thousands separators to an integer
func ParseInt(s string) (int, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	return strconv.Atoi(cleaned)
}

// ParseFloat converts a string with thousands separators to a float64
func ParseFloat(s string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	return strconv.ParseFloat(cleaned, 64)
}
