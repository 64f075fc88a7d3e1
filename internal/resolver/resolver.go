// internal/resolver/resolver.go

// Package resolver finds the elements a field spec points at, surviving the
// markup drift that breaks literal selectors. Resolution walks a fixed chain
// of strategies from the declared selector down to content-pattern matching,
// and every strategy fails soft so a broken selector costs one tier, never
// the extraction.
package resolver

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/valpere/DeepScrapexter/internal/dom"
	"github.com/valpere/DeepScrapexter/internal/template"
	"github.com/valpere/DeepScrapexter/internal/utils"
)

// Context tells label-driven fallbacks which page shape they are matching
// against. Directory pages favor compact card markup, profile pages favor
// headings and detail sections.
type Context string

const (
	ContextDirectory Context = "directory"
	ContextProfile   Context = "profile"
)

// Tier identifies which strategy produced a resolution.
type Tier int

const (
	TierNone Tier = iota
	TierVerbatim
	TierSemantic
	TierContent
	TierStructural
	TierOriginal
	TierClassToken
)

func (t Tier) String() string {
	switch t {
	case TierVerbatim:
		return "verbatim"
	case TierSemantic:
		return "semantic"
	case TierContent:
		return "content"
	case TierStructural:
		return "structural"
	case TierOriginal:
		return "original"
	case TierClassToken:
		return "classToken"
	default:
		return "none"
	}
}

// Resolution is the outcome of a resolve call. Empty Elements with TierNone
// means every strategy came up dry.
type Resolution struct {
	Elements []dom.Element
	Tier     Tier

	// Selector is the selector string that finally matched
	Selector string
}

// Resolver runs the fallback chain. Safe for concurrent use.
type Resolver struct {
	logger zerolog.Logger
}

// New creates a resolver.
func New() *Resolver {
	return &Resolver{logger: utils.NewComponentLogger("resolver")}
}

// Resolve finds elements for a field within a scope. Strategies run in
// fixed order until one yields matches:
//
//  1. the field's selector, enhanced when generic, evaluated verbatim
//  2. label-driven semantic alternates
//  3. content-pattern matching over element text, scored and ranked
//  4. a structural CSS-to-XPath rewrite with positional constraints removed
//  5. the original selector untouched, as a final sanity pass
//
// Comma-separated alternatives within a selector are tried in order inside
// each strategy. A field no strategy can satisfy resolves empty; required
// handling is the caller's concern.
func (r *Resolver) Resolve(field *template.FieldSpec, scope dom.Scope, rctx Context) Resolution {
	selector, kind := field.EffectiveSelector()
	enhanced := EnhanceSelector(field, rctx)

	strategies := []struct {
		tier Tier
		run  func() ([]dom.Element, string)
	}{
		{TierVerbatim, func() ([]dom.Element, string) {
			if kind == "xpath" {
				return r.tryAlternatives(scope, selector, dom.KindXPath)
			}
			return r.tryAlternatives(scope, enhanced, dom.KindCSS)
		}},
		{TierSemantic, func() ([]dom.Element, string) {
			return r.trySemantic(scope, field.Label, rctx)
		}},
		{TierContent, func() ([]dom.Element, string) {
			return r.tryContent(scope, field)
		}},
		{TierStructural, func() ([]dom.Element, string) {
			return r.tryStructural(scope, selector, kind)
		}},
		{TierOriginal, func() ([]dom.Element, string) {
			return r.tryAlternatives(scope, selector, dom.KindOf(kind))
		}},
	}

	for _, s := range strategies {
		elements, matched := s.run()
		if len(elements) > 0 {
			r.logger.Debug().
				Str("field", field.Label).
				Str("tier", s.tier.String()).
				Str("selector", matched).
				Int("matches", len(elements)).
				Msg("field resolved")
			return Resolution{Elements: elements, Tier: s.tier, Selector: matched}
		}
	}

	return Resolution{}
}

// ResolveContainer finds the repeating record containers on a listing page.
// It runs the field chain first, then container-specific class fallbacks
// that survive sites appending state classes at render time.
func (r *Resolver) ResolveContainer(spec *template.ContainerSpec, scope dom.Scope) Resolution {
	field := &template.FieldSpec{
		Label:        "container",
		Selector:     spec.Selector,
		SelectorKind: spec.SelectorKind,
	}
	if res := r.Resolve(field, scope, ContextDirectory); len(res.Elements) > 0 {
		return res
	}

	selector, kind := field.EffectiveSelector()
	if kind != "css" {
		return Resolution{}
	}
	for _, candidate := range classTokenCandidates(selector) {
		elements, matched := r.tryAlternatives(scope, candidate.selector, candidate.kind)
		if len(elements) > 0 {
			r.logger.Debug().
				Str("selector", matched).
				Int("matches", len(elements)).
				Msg("container resolved by class tokens")
			return Resolution{Elements: elements, Tier: TierClassToken, Selector: matched}
		}
	}
	return Resolution{}
}

// Query evaluates one selector string against a scope, trying comma
// alternatives in order and swallowing compile errors. It is the verbatim
// strategy exposed for callers that manage their own fallbacks, such as
// pagination link probing.
func (r *Resolver) Query(scope dom.Scope, selector, kind string) []dom.Element {
	normalized, effectiveKind := template.NormalizeSelector(selector, kind)
	elements, _ := r.tryAlternatives(scope, normalized, dom.KindOf(effectiveKind))
	return elements
}

// tryAlternatives evaluates each comma-separated alternative until one
// matches. Compile errors are logged and skipped.
func (r *Resolver) tryAlternatives(scope dom.Scope, selector string, kind dom.Kind) ([]dom.Element, string) {
	if strings.TrimSpace(selector) == "" {
		return nil, ""
	}
	for _, alt := range template.SplitAlternatives(selector) {
		elements, err := scope.QuerySelectorAll(alt, kind)
		if err != nil {
			r.logger.Debug().Str("selector", alt).Err(err).Msg("selector failed to compile")
			continue
		}
		if len(elements) > 0 {
			return elements, alt
		}
	}
	return nil, ""
}

// tryCandidates evaluates prepared selector candidates in order.
func (r *Resolver) tryCandidates(scope dom.Scope, candidates []candidate) ([]dom.Element, string) {
	for _, c := range candidates {
		elements, matched := r.tryAlternatives(scope, c.selector, c.kind)
		if len(elements) > 0 {
			return elements, matched
		}
	}
	return nil, ""
}

// candidate pairs a selector with its engine.
type candidate struct {
	selector string
	kind     dom.Kind
}

// AllowList names required fields that may legitimately resolve empty.
// Labels match as case-insensitive substrings of the field label, selector
// hints as literal substrings of the raw selector.
type AllowList struct {
	Labels        []string `yaml:"labels,omitempty"`
	SelectorHints []string `yaml:"selectorHints,omitempty"`
}

// DefaultAllowList covers location-style fields. Office locations exist only
// on some profiles, and a hand-tuned selector naming a city is
// office-specific, so both resolve to null rather than a failed record.
func DefaultAllowList() AllowList {
	return AllowList{
		Labels:        []string{"location", "city"},
		SelectorHints: []string{"normalize-space", "Riyadh", "Dubai", "London", "New York"},
	}
}

// ExpectedAbsent reports whether a required field is allowed to resolve
// empty under this allow-list.
func (a AllowList) ExpectedAbsent(field *template.FieldSpec) bool {
	label := strings.ToLower(field.Label)
	for _, want := range a.Labels {
		if want != "" && strings.Contains(label, strings.ToLower(want)) {
			return true
		}
	}
	for _, hint := range a.SelectorHints {
		if hint != "" && strings.Contains(field.Selector, hint) {
			return true
		}
	}
	return false
}

// ExpectedAbsent applies the default allow-list.
func ExpectedAbsent(field *template.FieldSpec) bool {
	return DefaultAllowList().ExpectedAbsent(field)
}
