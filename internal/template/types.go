// internal/template/types.go

// Package template defines the scraping template model for DeepScrapexter.
// A template describes what to extract from a listing page: the repeating
// container, the fields inside it, optional subpage fields reached through
// profile links, pagination, and output destinations.
package template

import (
	"strings"
)

// Template is the root document loaded from a YAML or JSON template file.
type Template struct {
	// Name identifies this template
	Name string `yaml:"name" json:"name"`

	// Description provides human-readable information about this template
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// URL is the starting listing URL. The CLI may override it per run.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// UserAgent overrides the default browser identity
	UserAgent string `yaml:"userAgent,omitempty" json:"userAgent,omitempty"`

	// Headless selects browser rendering instead of plain HTTP fetching
	Headless bool `yaml:"headless" json:"headless"`

	// WaitTimeoutSeconds bounds waiting for dynamic content after load
	WaitTimeoutSeconds int `yaml:"waitTimeoutSeconds,omitempty" json:"waitTimeoutSeconds,omitempty"`

	// PageLoadTimeoutSeconds bounds a full page navigation
	PageLoadTimeoutSeconds int `yaml:"pageLoadTimeoutSeconds,omitempty" json:"pageLoadTimeoutSeconds,omitempty"`

	// Cookies are set on the browser context before navigation
	Cookies []Cookie `yaml:"cookies,omitempty" json:"cookies,omitempty"`

	// RandomDelays jitters the politeness delay between page fetches
	RandomDelays bool `yaml:"randomDelays,omitempty" json:"randomDelays,omitempty"`

	// MaxSubpages caps how many profile pages a run may fetch. Zero means
	// no cap beyond the global backstop.
	MaxSubpages int `yaml:"maxSubpages,omitempty" json:"maxSubpages,omitempty"`

	// SubpageURLPattern restricts which discovered links count as profile
	// links. Substring match, empty accepts all.
	SubpageURLPattern string `yaml:"subpageURLPattern,omitempty" json:"subpageURLPattern,omitempty"`

	// SubpageOnlyThreshold is the share of fields that must be subpage-bound
	// before the listing pass is skipped entirely. Defaults to 0.7.
	SubpageOnlyThreshold float64 `yaml:"subpageOnlyThreshold,omitempty" json:"subpageOnlyThreshold,omitempty"`

	// Container describes the repeating record element on the listing page
	Container *ContainerSpec `yaml:"container,omitempty" json:"container,omitempty"`

	// Fields extracted once per page, used for single-record pages
	Fields []FieldSpec `yaml:"fields,omitempty" json:"fields,omitempty"`

	// Pagination settings for multi-page listings
	Pagination *PaginationSpec `yaml:"pagination,omitempty" json:"pagination,omitempty"`

	// Filters drop records after extraction
	Filters []FilterRule `yaml:"filters,omitempty" json:"filters,omitempty"`

	// Output configuration
	Output *OutputSpec `yaml:"output,omitempty" json:"output,omitempty"`
}

// Cookie is a single cookie set before navigation.
type Cookie struct {
	Name   string `yaml:"name" json:"name"`
	Value  string `yaml:"value" json:"value"`
	Domain string `yaml:"domain,omitempty" json:"domain,omitempty"`
	Path   string `yaml:"path,omitempty" json:"path,omitempty"`
}

// FieldSpec defines how to extract a single field.
type FieldSpec struct {
	// Label names the field in extracted records
	Label string `yaml:"label" json:"label"`

	// Selector locates the field. Comma-separated alternatives are tried
	// in order. An "xpath:" prefix forces XPath regardless of SelectorKind.
	Selector string `yaml:"selector" json:"selector"`

	// SelectorKind is "css" or "xpath". Empty means css.
	SelectorKind string `yaml:"selectorKind,omitempty" json:"selectorKind,omitempty"`

	// ValueKind selects what to take from the matched element:
	// text (default), html, link, or attribute.
	ValueKind string `yaml:"valueKind,omitempty" json:"valueKind,omitempty"`

	// AttributeName names the attribute when ValueKind is attribute
	AttributeName string `yaml:"attributeName,omitempty" json:"attributeName,omitempty"`

	// Multiple collects every match as a list instead of the first
	Multiple bool `yaml:"multiple,omitempty" json:"multiple,omitempty"`

	// Required makes a missing value an error instead of a null
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`

	// Transforms applied to the raw value in order
	Transforms []TransformSpec `yaml:"transforms,omitempty" json:"transforms,omitempty"`
}

// Value kinds.
const (
	ValueKindText      = "text"
	ValueKindHTML      = "html"
	ValueKindLink      = "link"
	ValueKindAttribute = "attribute"
)

// TransformSpec defines a transformation to apply to an extracted value.
type TransformSpec struct {
	// Type of transformation
	Type string `yaml:"type" json:"type"`

	// Pattern for regex transforms
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`

	// Replacement for regex transforms
	Replacement string `yaml:"replacement,omitempty" json:"replacement,omitempty"`

	// Format for date transforms, in Go reference time layout
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// Params for transforms that need extra values
	Params map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
}

// ContainerSpec defines the repeating record element on a listing page.
type ContainerSpec struct {
	// Selector locates every record container
	Selector string `yaml:"selector" json:"selector"`

	// SelectorKind is "css" or "xpath". Empty means css.
	SelectorKind string `yaml:"selectorKind,omitempty" json:"selectorKind,omitempty"`

	// SubFields extracted inside each container
	SubFields []FieldSpec `yaml:"subFields" json:"subFields"`

	// FollowLinks enables the subpage pass over discovered profile links
	FollowLinks bool `yaml:"followLinks,omitempty" json:"followLinks,omitempty"`

	// SubpageFields extracted on each followed profile page
	SubpageFields []FieldSpec `yaml:"subpageFields,omitempty" json:"subpageFields,omitempty"`
}

// Pagination kinds. Empty kind auto-detects from the populated fields.
const (
	PaginationNone           = "none"
	PaginationButton         = "button"
	PaginationLoadMore       = "loadMore"
	PaginationURLPattern     = "urlPattern"
	PaginationURLOffset      = "urlOffset"
	PaginationInfiniteScroll = "infiniteScroll"
)

// PaginationSpec defines pagination settings for multi-page listings.
type PaginationSpec struct {
	// Kind selects the strategy: none, button, loadMore, urlPattern,
	// urlOffset, or infiniteScroll. Empty auto-detects from the other
	// fields.
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`

	// NextSelector locates the next-page control for the button strategy.
	// Comma-separated alternatives are tried in order.
	NextSelector string `yaml:"nextSelector,omitempty" json:"nextSelector,omitempty"`

	// LoadMoreSelector locates the load-more control for the loadMore
	// strategy
	LoadMoreSelector string `yaml:"loadMoreSelector,omitempty" json:"loadMoreSelector,omitempty"`

	// EndConditionSelector stops infinite scrolling once it matches
	EndConditionSelector string `yaml:"endConditionSelector,omitempty" json:"endConditionSelector,omitempty"`

	// ScrollPauseSeconds is the pause between scroll or click triggers and
	// the politeness delay between page fetches. Defaults to 2.
	ScrollPauseSeconds int `yaml:"scrollPauseSeconds,omitempty" json:"scrollPauseSeconds,omitempty"`

	// URLPattern builds page URLs with a {page} placeholder
	URLPattern string `yaml:"urlPattern,omitempty" json:"urlPattern,omitempty"`

	// StartPage is the first page number for urlPattern. Defaults to 1.
	StartPage int `yaml:"startPage,omitempty" json:"startPage,omitempty"`

	// MaxPages caps pagination. Zero means the global backstop applies.
	MaxPages int `yaml:"maxPages,omitempty" json:"maxPages,omitempty"`

	// ItemCountSelectors count records per page when probing URL-parameter
	// pagination or measuring scroll growth. Defaults to the container
	// selector.
	ItemCountSelectors []string `yaml:"itemCountSelectors,omitempty" json:"itemCountSelectors,omitempty"`
}

// Filter operators.
const (
	FilterOpEquals      = "equals"
	FilterOpNotEquals   = "notEquals"
	FilterOpContains    = "contains"
	FilterOpNotContains = "notContains"
	FilterOpMatches     = "matches"
	FilterOpNotEmpty    = "notEmpty"
)

// FilterRule drops records whose field value fails the comparison.
type FilterRule struct {
	// Field names the record key to test
	Field string `yaml:"field" json:"field"`

	// Op is the comparison operator
	Op string `yaml:"op" json:"op"`

	// Value to compare against. Unused for notEmpty.
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
}

// OutputSpec defines where results are written.
type OutputSpec struct {
	// Format of the output: json, csv, yaml, excel, sqlite, mysql,
	// postgresql, or mongodb
	Format string `yaml:"format" json:"format"`

	// Path for file formats, or the database file for sqlite
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// DSN for database formats. Supports ${ENV} expansion.
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty"`

	// Table name for relational databases
	Table string `yaml:"table,omitempty" json:"table,omitempty"`

	// Database and Collection for mongodb
	Database   string `yaml:"database,omitempty" json:"database,omitempty"`
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`

	// Conflict picks the duplicate-row strategy for database formats:
	// ignore, replace, or error. Defaults to ignore so re-runs against a
	// uniquely indexed table stay idempotent.
	Conflict string `yaml:"conflict,omitempty" json:"conflict,omitempty"`
}

// NormalizeSelector strips the optional "xpath:" prefix and reports the
// effective selector kind. A declared kind wins over the prefix heuristics.
func NormalizeSelector(selector, declaredKind string) (string, string) {
	s := strings.TrimSpace(selector)

	if rest, ok := strings.CutPrefix(s, "xpath:"); ok {
		return strings.TrimSpace(rest), "xpath"
	}
	if declaredKind != "" {
		return s, declaredKind
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(") || strings.HasPrefix(s, "./") {
		return s, "xpath"
	}
	return s, "css"
}

// EffectiveSelector resolves the field's selector and kind together.
func (f *FieldSpec) EffectiveSelector() (string, string) {
	return NormalizeSelector(f.Selector, f.SelectorKind)
}

// EffectiveValueKind resolves the default value kind.
func (f *FieldSpec) EffectiveValueKind() string {
	if f.ValueKind == "" {
		return ValueKindText
	}
	return f.ValueKind
}

// SubpageShare returns the fraction of all extracted fields that live on
// subpages. The session uses it to decide whether the listing pass can be
// skipped.
func (t *Template) SubpageShare() float64 {
	if t.Container == nil {
		return 0
	}
	listing := len(t.Container.SubFields)
	sub := len(t.Container.SubpageFields)
	total := listing + sub
	if total == 0 {
		return 0
	}
	return float64(sub) / float64(total)
}

// EffectiveKind resolves the pagination strategy, auto-detecting from the
// populated fields when Kind is empty.
func (p *PaginationSpec) EffectiveKind() string {
	if p == nil {
		return PaginationNone
	}
	if p.Kind != "" {
		return p.Kind
	}
	if p.URLPattern != "" {
		return PaginationURLPattern
	}
	if p.NextSelector != "" {
		return PaginationButton
	}
	if p.LoadMoreSelector != "" {
		return PaginationLoadMore
	}
	if p.EndConditionSelector != "" {
		return PaginationInfiniteScroll
	}
	return PaginationNone
}
