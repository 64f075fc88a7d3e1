// internal/extractor/extractor.go

// Package extractor turns resolved elements into record values. It owns the
// value kinds, required-field policy, and the container loop that produces
// one record per listing row.
package extractor

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/valpere/DeepScrapexter/internal/dom"
	"github.com/valpere/DeepScrapexter/internal/monitoring"
	"github.com/valpere/DeepScrapexter/internal/pipeline"
	"github.com/valpere/DeepScrapexter/internal/resolver"
	"github.com/valpere/DeepScrapexter/internal/scrapererr"
	"github.com/valpere/DeepScrapexter/internal/template"
	"github.com/valpere/DeepScrapexter/internal/utils"
)

// Record is one extracted record. Keys are field labels; meta keys start
// with an underscore and never reach the output writers.
type Record map[string]interface{}

// Meta keys carried on records for the subpage and merge passes.
const (
	MetaContainerIndex = "_containerIndex"
	MetaProfileLink    = "_profileLink"
)

// IsMetaKey reports whether a record key is internal bookkeeping.
func IsMetaKey(key string) bool {
	return strings.HasPrefix(key, "_")
}

// Extractor extracts fields and containers from parsed pages.
type Extractor struct {
	resolver *resolver.Resolver
	allow    resolver.AllowList
	logger   zerolog.Logger
}

// New creates an extractor around a resolver with the default required-field
// allow-list.
func New(r *resolver.Resolver) *Extractor {
	return NewWithAllowList(r, resolver.DefaultAllowList())
}

// NewWithAllowList creates an extractor with a caller-supplied allow-list for
// required fields that may resolve empty.
func NewWithAllowList(r *resolver.Resolver, allow resolver.AllowList) *Extractor {
	if r == nil {
		r = resolver.New()
	}
	return &Extractor{
		resolver: r,
		allow:    allow,
		logger:   utils.NewComponentLogger("extractor"),
	}
}

// ExtractFields extracts page-level fields into one record. A required
// field that resolves empty aborts the remaining fields and reports a
// RequiredFieldError, unless the field is expected absent, in which case it
// extracts as nil. Other fields that resolve empty extract as nil.
func (e *Extractor) ExtractFields(ctx context.Context, fields []template.FieldSpec, page dom.Page, rctx resolver.Context) (Record, []error) {
	record := Record{}
	var errs []error

	for i := range fields {
		field := &fields[i]
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			return record, errs
		}

		value, err := e.extractField(ctx, field, page, page, rctx)
		if err != nil {
			errs = append(errs, err)
			return record, errs
		}
		record[field.Label] = value
	}

	return record, errs
}

// extractField resolves one field within a scope and extracts its value.
// The only error it returns is a required field with no acceptable
// fallback; everything else degrades to nil.
func (e *Extractor) extractField(ctx context.Context, field *template.FieldSpec, scope dom.Scope, page dom.Page, rctx resolver.Context) (interface{}, error) {
	res := e.resolver.Resolve(field, scope, rctx)
	if len(res.Elements) == 0 {
		if field.Required {
			monitoring.Default().RecordRequiredFieldMiss(field.Label)
			if e.allow.ExpectedAbsent(field) {
				e.logger.Warn().Str("field", field.Label).
					Msg("location-specific required field absent, continuing")
				return nil, nil
			}
			return nil, &scrapererr.RequiredFieldError{
				Field:    field.Label,
				Selector: field.Selector,
				URL:      page.URL(),
			}
		}
		return nil, nil
	}
	monitoring.Default().RecordStrategyHit(res.Tier.String())

	if field.Multiple {
		values := make([]string, 0, len(res.Elements))
		for _, el := range res.Elements {
			values = append(values, e.transform(ctx, field, e.extractValue(el, field, page)))
		}
		return values, nil
	}
	return e.transform(ctx, field, e.extractValue(res.Elements[0], field, page)), nil
}

// extractValue pulls the raw value from a matched element per the field's
// value kind.
func (e *Extractor) extractValue(el dom.Element, field *template.FieldSpec, page dom.Page) string {
	switch field.EffectiveValueKind() {
	case template.ValueKindLink:
		href, _ := el.Attribute("href")
		if href == "" {
			return ""
		}
		return page.URLJoin(href)
	case template.ValueKindAttribute:
		name := field.AttributeName
		if name == "" {
			name = "value"
		}
		value, _ := el.Attribute(name)
		return value
	case template.ValueKindHTML:
		return el.HTML()
	default:
		return strings.TrimSpace(el.Text())
	}
}

// transform applies the field's transform rules. A failing rule keeps the
// raw value rather than losing the field.
func (e *Extractor) transform(ctx context.Context, field *template.FieldSpec, raw string) string {
	if len(field.Transforms) == 0 {
		return raw
	}
	out, err := pipeline.ApplyTransforms(ctx, field.Transforms, raw)
	if err != nil {
		e.logger.Warn().Str("field", field.Label).Err(err).
			Msg("transform failed, keeping raw value")
		return raw
	}
	return out
}
