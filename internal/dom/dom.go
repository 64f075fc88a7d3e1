// internal/dom/dom.go

// Package dom wraps a parsed HTML document behind selector-kind-agnostic
// queries. Extraction code asks a Scope for matches by CSS or XPath without
// caring which engine answers, so fallback tiers can swap selector kinds
// freely over the same parse tree.
package dom

// Kind selects the query engine for a selector.
type Kind string

const (
	KindCSS   Kind = "css"
	KindXPath Kind = "xpath"
)

// KindOf converts the template-level selector kind string.
func KindOf(s string) Kind {
	if s == "xpath" {
		return KindXPath
	}
	return KindCSS
}

// Scope is anything that can be queried for elements: a whole page or a
// single container element.
type Scope interface {
	// QuerySelectorAll returns every match in document order. A selector
	// that fails to compile returns an error; a selector that matches
	// nothing returns an empty slice and no error.
	QuerySelectorAll(selector string, kind Kind) ([]Element, error)
}

// Element is a single matched node.
type Element interface {
	Scope

	// Text returns the element's visible text, whitespace-collapsed.
	Text() string

	// Attribute returns the named attribute and whether it is present.
	Attribute(name string) (string, bool)

	// HTML returns the element's outer HTML.
	HTML() string
}

// Page is a fetched, parsed document.
type Page interface {
	Scope

	// URL returns the page's final URL after redirects.
	URL() string

	// URLJoin resolves href against the page URL. Absolute URLs pass
	// through unchanged.
	URLJoin(href string) string
}
