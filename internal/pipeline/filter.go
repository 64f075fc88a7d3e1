// internal/pipeline/filter.go
package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/valpere/DeepScrapexter/internal/template"
)

// ApplyFilters keeps only the records that pass every filter rule. Records
// missing the filtered field fail equals/contains/matches rules and pass
// their negated forms.
func ApplyFilters[R ~map[string]interface{}](records []R, rules []template.FilterRule) []R {
	if len(rules) == 0 {
		return records
	}

	out := make([]R, 0, len(records))
	for _, record := range records {
		if recordPasses(record, rules) {
			out = append(out, record)
		}
	}
	return out
}

func recordPasses[R ~map[string]interface{}](record R, rules []template.FilterRule) bool {
	for _, rule := range rules {
		if !matchesRule(record, rule) {
			return false
		}
	}
	return true
}

func matchesRule[R ~map[string]interface{}](record R, rule template.FilterRule) bool {
	value, exists := record[rule.Field]

	switch rule.Op {
	case template.FilterOpNotEmpty:
		return exists && !isEmptyValue(value)

	case template.FilterOpEquals:
		return exists && anyValueString(value, func(s string) bool {
			return strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(rule.Value))
		})

	case template.FilterOpNotEquals:
		if !exists {
			return true
		}
		return !anyValueString(value, func(s string) bool {
			return strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(rule.Value))
		})

	case template.FilterOpContains:
		return exists && anyValueString(value, func(s string) bool {
			return strings.Contains(strings.ToLower(s), strings.ToLower(rule.Value))
		})

	case template.FilterOpNotContains:
		if !exists {
			return true
		}
		return !anyValueString(value, func(s string) bool {
			return strings.Contains(strings.ToLower(s), strings.ToLower(rule.Value))
		})

	case template.FilterOpMatches:
		re, err := regexp.Compile(rule.Value)
		if err != nil {
			return false
		}
		return exists && anyValueString(value, re.MatchString)

	default:
		return false
	}
}

// anyValueString applies the predicate to a scalar value or to each element
// of a list value, returning true on the first hit.
func anyValueString(value interface{}, pred func(string) bool) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return pred(v)
	case []string:
		for _, s := range v {
			if pred(s) {
				return true
			}
		}
		return false
	case []interface{}:
		for _, item := range v {
			if anyValueString(item, pred) {
				return true
			}
		}
		return false
	default:
		return pred(fmt.Sprintf("%v", v))
	}
}

func isEmptyValue(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []string:
		return len(v) == 0
	case []interface{}:
		return len(v) == 0
	default:
		return false
	}
}
