// internal/template/validate.go
package template

import (
	"fmt"
	"strings"

	"github.com/valpere/DeepScrapexter/internal/dom"
	"github.com/valpere/DeepScrapexter/internal/scrapererr"
	"github.com/valpere/DeepScrapexter/internal/utils"
)

// Validate checks the template for structural problems. It returns a
// TemplateError carrying the first problem, with the full list available
// through ValidateDetailed.
func (t *Template) Validate() error {
	result := t.ValidateDetailed()
	if !result.HasErrors() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return &scrapererr.TemplateError{Err: fmt.Errorf("%s", strings.Join(msgs, "; "))}
}

// ValidateDetailed collects every validation problem in the template.
func (t *Template) ValidateDetailed() *utils.ValidationResult {
	result := &utils.ValidationResult{Valid: true}

	if t.Container == nil && len(t.Fields) == 0 {
		result.AddError("template", "", "template must define a container or top-level fields", "NO_FIELDS")
	}

	if t.URL != "" {
		if verr := utils.ValidateTargetURL(t.URL); verr != nil {
			result.AddError("url", t.URL, verr.Message, verr.Code)
		}
	}

	if t.Container != nil {
		validateContainer(t.Container, result)
	}
	for i := range t.Fields {
		validateField(&t.Fields[i], fmt.Sprintf("fields[%d]", i), result)
	}

	if t.Pagination != nil {
		validatePagination(t.Pagination, result)
	}

	for i, rule := range t.Filters {
		path := fmt.Sprintf("filters[%d]", i)
		if rule.Field == "" {
			result.AddError(path, "", "filter rule missing field", "REQUIRED")
		}
		switch rule.Op {
		case FilterOpEquals, FilterOpNotEquals, FilterOpContains, FilterOpNotContains, FilterOpMatches, FilterOpNotEmpty:
		default:
			result.AddError(path, rule.Op, "unknown filter operator", "INVALID_VALUE")
		}
	}

	if t.Output != nil && t.Output.Format != "" && !utils.IsValidOutputFormat(t.Output.Format) {
		result.AddError("output.format", t.Output.Format, "unsupported output format", "INVALID_VALUE")
	}

	if t.SubpageOnlyThreshold < 0 || t.SubpageOnlyThreshold > 1 {
		result.AddError("subpageOnlyThreshold", fmt.Sprintf("%v", t.SubpageOnlyThreshold),
			"threshold must be between 0 and 1", "INVALID_VALUE")
	}

	return result
}

func validateContainer(c *ContainerSpec, result *utils.ValidationResult) {
	if strings.TrimSpace(c.Selector) == "" {
		result.AddError("container.selector", "", "container selector is required", "REQUIRED")
	} else if err := checkSelector(c.Selector, c.SelectorKind); err != nil {
		result.AddError("container.selector", c.Selector, err.Error(), "INVALID_SYNTAX")
	}
	if !utils.IsValidSelectorKind(c.SelectorKind) {
		result.AddError("container.selectorKind", c.SelectorKind, "selector kind must be css or xpath", "INVALID_VALUE")
	}
	if len(c.SubFields) == 0 {
		result.AddError("container.subFields", "", "container must define at least one field", "NO_FIELDS")
	}
	for i := range c.SubFields {
		validateField(&c.SubFields[i], fmt.Sprintf("container.subFields[%d]", i), result)
	}
	for i := range c.SubpageFields {
		validateField(&c.SubpageFields[i], fmt.Sprintf("container.subpageFields[%d]", i), result)
	}
}

func validateField(f *FieldSpec, path string, result *utils.ValidationResult) {
	if strings.TrimSpace(f.Label) == "" {
		result.AddError(path+".label", "", "field label is required", "REQUIRED")
	}
	if strings.TrimSpace(f.Selector) == "" {
		result.AddError(path+".selector", "", "field selector is required", "REQUIRED")
	} else if err := checkSelector(f.Selector, f.SelectorKind); err != nil {
		result.AddError(path+".selector", f.Selector, err.Error(), "INVALID_SYNTAX")
	}
	if !utils.IsValidSelectorKind(f.SelectorKind) {
		result.AddError(path+".selectorKind", f.SelectorKind, "selector kind must be css or xpath", "INVALID_VALUE")
	}
	if !utils.IsValidValueKind(f.ValueKind) {
		result.AddError(path+".valueKind", f.ValueKind, "value kind must be text, html, link, or attribute", "INVALID_VALUE")
	}
	if f.ValueKind == "attribute" && strings.TrimSpace(f.AttributeName) == "" {
		result.AddError(path+".attributeName", "", "attribute value kind requires attributeName", "REQUIRED")
	}
}

func validatePagination(p *PaginationSpec, result *utils.ValidationResult) {
	switch p.Kind {
	case "", PaginationNone, PaginationButton, PaginationLoadMore, PaginationURLPattern, PaginationURLOffset, PaginationInfiniteScroll:
	default:
		result.AddError("pagination.kind", p.Kind, "unknown pagination kind", "INVALID_VALUE")
	}

	if p.Kind == PaginationURLPattern || (p.Kind == "" && p.URLPattern != "") {
		if !strings.Contains(p.URLPattern, "{page}") {
			result.AddError("pagination.urlPattern", p.URLPattern, "urlPattern must contain {page}", "INVALID_VALUE")
		}
	}
	if p.Kind == PaginationButton && p.NextSelector == "" {
		result.AddError("pagination.nextSelector", "", "button pagination requires nextSelector", "REQUIRED")
	}
	if p.Kind == PaginationLoadMore && p.LoadMoreSelector == "" {
		result.AddError("pagination.loadMoreSelector", "", "loadMore pagination requires loadMoreSelector", "REQUIRED")
	}
	if p.MaxPages < 0 {
		result.AddError("pagination.maxPages", fmt.Sprintf("%d", p.MaxPages), "maxPages cannot be negative", "INVALID_VALUE")
	}
	if p.ScrollPauseSeconds < 0 {
		result.AddError("pagination.scrollPauseSeconds", fmt.Sprintf("%d", p.ScrollPauseSeconds), "scrollPauseSeconds cannot be negative", "INVALID_VALUE")
	}

	selectorFields := map[string]string{
		"pagination.nextSelector":         p.NextSelector,
		"pagination.loadMoreSelector":     p.LoadMoreSelector,
		"pagination.endConditionSelector": p.EndConditionSelector,
	}
	for path, sel := range selectorFields {
		if sel == "" {
			continue
		}
		if err := checkSelector(sel, "css"); err != nil {
			result.AddError(path, sel, err.Error(), "INVALID_SYNTAX")
		}
	}
	for _, sel := range p.ItemCountSelectors {
		if err := checkSelector(sel, "css"); err != nil {
			result.AddError("pagination.itemCountSelectors", sel, err.Error(), "INVALID_SYNTAX")
		}
	}
}

// checkSelector runs the structural check, then compiles every fallback
// alternative with the engine that will run it, so a template cannot pass
// validation and still blow up on its first query.
func checkSelector(selector, kind string) error {
	if err := CheckSelectorSyntax(selector); err != nil {
		return err
	}
	for _, alt := range SplitAlternatives(selector) {
		if err := dom.CompileSelector(alt, dom.KindOf(kind)); err != nil {
			return err
		}
	}
	return nil
}

// CheckSelectorSyntax rejects selectors that are structurally broken, such as
// unbalanced quotes or brackets. Selectors that merely fail to match are not
// errors here; runtime fallback resolution deals with those.
func CheckSelectorSyntax(selector string) error {
	s := strings.TrimSpace(selector)
	if s == "" {
		return fmt.Errorf("selector is empty")
	}
	if strings.ContainsAny(s, "{};`") {
		return fmt.Errorf("selector contains invalid characters")
	}

	var parens, brackets int
	var inSingle, inDouble bool
	for _, r := range s {
		switch r {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case '(':
			if !inSingle && !inDouble {
				parens++
			}
		case ')':
			if !inSingle && !inDouble {
				parens--
				if parens < 0 {
					return fmt.Errorf("unbalanced parentheses")
				}
			}
		case '[':
			if !inSingle && !inDouble {
				brackets++
			}
		case ']':
			if !inSingle && !inDouble {
				brackets--
				if brackets < 0 {
					return fmt.Errorf("unbalanced brackets")
				}
			}
		}
	}
	if inSingle || inDouble {
		return fmt.Errorf("unbalanced quotes")
	}
	if parens != 0 {
		return fmt.Errorf("unbalanced parentheses")
	}
	if brackets != 0 {
		return fmt.Errorf("unbalanced brackets")
	}
	return nil
}

// SplitAlternatives splits a selector string on top-level commas, so each
// alternative can be tried in declaration order. Commas inside parentheses,
// brackets, or quotes do not split.
func SplitAlternatives(selector string) []string {
	var out []string
	var depth int
	var inSingle, inDouble bool
	var current strings.Builder

	for _, r := range selector {
		switch r {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
			current.WriteRune(r)
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
			current.WriteRune(r)
		case '(', '[':
			if !inSingle && !inDouble {
				depth++
			}
			current.WriteRune(r)
		case ')', ']':
			if !inSingle && !inDouble {
				depth--
			}
			current.WriteRune(r)
		case ',':
			if depth == 0 && !inSingle && !inDouble {
				if part := strings.TrimSpace(current.String()); part != "" {
					out = append(out, part)
				}
				current.Reset()
				continue
			}
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	if part := strings.TrimSpace(current.String()); part != "" {
		out = append(out, part)
	}
	return out
}
