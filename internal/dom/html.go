// internal/dom/html.go
package dom

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// HTMLPage is the Page implementation over a parsed HTML tree. The same tree
// backs both the goquery document for CSS queries and the htmlquery queries
// for XPath, so the two engines always see identical content.
type HTMLPage struct {
	root    *html.Node
	doc     *goquery.Document
	pageURL string
	base    *url.URL
}

// Parse reads and parses an HTML document. pageURL is the document's final
// URL, used to resolve relative links.
func Parse(r io.Reader, pageURL string) (*HTMLPage, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return FromNode(root, pageURL), nil
}

// ParseString parses an HTML document held in a string.
func ParseString(content, pageURL string) (*HTMLPage, error) {
	return Parse(strings.NewReader(content), pageURL)
}

// FromNode wraps an already-parsed tree.
func FromNode(root *html.Node, pageURL string) *HTMLPage {
	p := &HTMLPage{
		root:    root,
		doc:     goquery.NewDocumentFromNode(root),
		pageURL: pageURL,
	}
	if base, err := url.Parse(pageURL); err == nil {
		p.base = base
	}
	return p
}

// URL returns the page's final URL.
func (p *HTMLPage) URL() string {
	return p.pageURL
}

// URLJoin resolves href against the page URL.
func (p *HTMLPage) URLJoin(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || p.base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return p.base.ResolveReference(ref).String()
}

// QuerySelectorAll implements Scope over the whole document.
func (p *HTMLPage) QuerySelectorAll(selector string, kind Kind) ([]Element, error) {
	return queryNodes(p, p.root, selector, kind, false)
}

// Title returns the document title, empty when absent.
func (p *HTMLPage) Title() string {
	return strings.TrimSpace(p.doc.Find("title").First().Text())
}

type htmlElement struct {
	page *HTMLPage
	node *html.Node
	sel  *goquery.Selection
}

func (e *htmlElement) QuerySelectorAll(selector string, kind Kind) ([]Element, error) {
	return queryNodes(e.page, e.node, selector, kind, true)
}

func (e *htmlElement) Text() string {
	return whitespacePattern.ReplaceAllString(strings.TrimSpace(e.sel.Text()), " ")
}

func (e *htmlElement) Attribute(name string) (string, bool) {
	return e.sel.Attr(name)
}

func (e *htmlElement) HTML() string {
	out, err := goquery.OuterHtml(e.sel)
	if err != nil {
		return ""
	}
	return out
}

// CompileSelector checks that a selector parses under its query engine
// without running it, so broken expressions can be rejected at template
// load instead of on the first page. Uses the same compilers the query
// path uses.
func CompileSelector(selector string, kind Kind) error {
	switch kind {
	case KindXPath:
		if _, err := xpath.Compile(selector); err != nil {
			return fmt.Errorf("xpath %q: %w", selector, err)
		}
	default:
		if _, err := cascadia.Compile(selector); err != nil {
			return fmt.Errorf("css %q: %w", selector, err)
		}
	}
	return nil
}

// queryNodes runs one selector against a scope node. CSS goes through
// cascadia so compile failures surface as errors instead of panics; XPath
// goes through htmlquery. Scoped absolute XPath is re-anchored to the scope
// node, otherwise // expressions would escape the container.
func queryNodes(page *HTMLPage, scope *html.Node, selector string, kind Kind, scoped bool) ([]Element, error) {
	switch kind {
	case KindXPath:
		expr := selector
		if scoped && strings.HasPrefix(expr, "//") {
			expr = "." + expr
		}
		nodes, err := htmlquery.QueryAll(scope, expr)
		if err != nil {
			return nil, fmt.Errorf("xpath %q: %w", selector, err)
		}
		return wrapNodes(page, nodes), nil

	default:
		matcher, err := cascadia.Compile(selector)
		if err != nil {
			return nil, fmt.Errorf("css %q: %w", selector, err)
		}
		return wrapNodes(page, matcher.MatchAll(scope)), nil
	}
}

func wrapNodes(page *HTMLPage, nodes []*html.Node) []Element {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &htmlElement{
			page: page,
			node: n,
			sel:  page.doc.FindNodes(n),
		})
	}
	return out
}
