// internal/scrapererr/errors.go - Typed errors shared across the extraction engine
package scrapererr

import (
	"errors"
	"fmt"
)

// ErrPaginationLimit signals that pagination stopped because a page budget was
// reached, not because the site ran out of content. Callers treat it as a
// normal stop with partial results.
var ErrPaginationLimit = errors.New("pagination page limit reached")

// ErrNoDocument signals that a fetch produced no parseable document.
var ErrNoDocument = errors.New("no document returned")

// SelectorSyntaxError reports a selector that failed to compile. The engine
// raises it at template load for clearly broken selectors and downgrades it to
// a warning during extraction, where fallback resolution takes over.
type SelectorSyntaxError struct {
	Field    string
	Selector string
	Kind     string // "css" or "xpath"
	Err      error
}

func (e *SelectorSyntaxError) Error() string {
	return fmt.Sprintf("field %q: invalid %s selector %q: %v", e.Field, e.Kind, e.Selector, e.Err)
}

func (e *SelectorSyntaxError) Unwrap() error {
	return e.Err
}

// RequiredFieldError reports that a field marked required produced no value
// after every resolution tier was exhausted.
type RequiredFieldError struct {
	Field    string
	Selector string
	URL      string
}

func (e *RequiredFieldError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("required field %q not found on %s (selector %q)", e.Field, e.URL, e.Selector)
	}
	return fmt.Sprintf("required field %q not found (selector %q)", e.Field, e.Selector)
}

// FetchError reports a page retrieval failure after retries were exhausted.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: HTTP %d after %d attempts", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// TemplateError reports a template that could not be loaded or validated.
type TemplateError struct {
	Path string
	Err  error
}

func (e *TemplateError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("template %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("template: %v", e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

// OutputError reports a failure writing results to a destination.
type OutputError struct {
	Format      string
	Destination string
	Err         error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("output %s to %s: %v", e.Format, e.Destination, e.Err)
}

func (e *OutputError) Unwrap() error {
	return e.Err
}
