package dom

import (
	"strings"
	"testing"
)

const listingHTML = `<!DOCTYPE html>
<html>
<head><title>Our People</title></head>
<body>
  <div class="people-grid">
    <article class="person-card" data-id="101">
      <h3 class="person-name">Jane <b>Cooper</b></h3>
      <span class="person-role">Senior   Partner</span>
      <a class="person-link" href="/lawyers/jane-cooper">View profile</a>
    </article>
    <article class="person-card" data-id="102">
      <h3 class="person-name">Tom Hale</h3>
      <span class="person-role">Associate</span>
      <a class="person-link" href="https://other.example.org/tom">View profile</a>
    </article>
  </div>
  <nav class="pagination"><a class="next" href="?page=2">Next</a></nav>
</body>
</html>`

func mustParse(t *testing.T, content, url string) *HTMLPage {
	t.Helper()
	page, err := ParseString(content, url)
	if err != nil {
		t.Fatalf("ParseString error: %v", err)
	}
	return page
}

// TestQuerySelectorAllCSS tests CSS queries at page scope
func TestQuerySelectorAllCSS(t *testing.T) {
	page := mustParse(t, listingHTML, "https://example.com/our-people")

	cards, err := page.QuerySelectorAll("article.person-card", KindCSS)
	if err != nil {
		t.Fatalf("QuerySelectorAll error: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("len(cards) = %d, want 2", len(cards))
	}

	if got, ok := cards[0].Attribute("data-id"); !ok || got != "101" {
		t.Errorf("cards[0] data-id = %q, %v, want 101, true", got, ok)
	}
	if _, ok := cards[0].Attribute("missing"); ok {
		t.Error("missing attribute should report false")
	}
}

// TestQuerySelectorAllXPath tests XPath queries over the same tree
func TestQuerySelectorAllXPath(t *testing.T) {
	page := mustParse(t, listingHTML, "https://example.com/our-people")

	names, err := page.QuerySelectorAll("//article[contains(@class,'person-card')]//h3", KindXPath)
	if err != nil {
		t.Fatalf("QuerySelectorAll xpath error: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("len(names) = %d, want 2", len(names))
	}
	if got := names[0].Text(); got != "Jane Cooper" {
		t.Errorf("names[0].Text() = %q, want Jane Cooper", got)
	}
}

// TestScopedQueries tests element-relative CSS and XPath
func TestScopedQueries(t *testing.T) {
	page := mustParse(t, listingHTML, "https://example.com/our-people")

	cards, err := page.QuerySelectorAll(".person-card", KindCSS)
	if err != nil {
		t.Fatal(err)
	}

	// CSS inside the second card only
	roles, err := cards[1].QuerySelectorAll(".person-role", KindCSS)
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 1 || roles[0].Text() != "Associate" {
		t.Errorf("scoped css = %v, want single Associate", roles)
	}

	// Absolute xpath gets re-anchored to the card instead of escaping to
	// the whole document
	links, err := cards[0].QuerySelectorAll("//a", KindXPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 {
		t.Fatalf("scoped xpath matched %d links, want 1", len(links))
	}
	if href, _ := links[0].Attribute("href"); href != "/lawyers/jane-cooper" {
		t.Errorf("scoped xpath href = %q, want /lawyers/jane-cooper", href)
	}
}

// TestTextCollapsesWhitespace tests whitespace normalization
func TestTextCollapsesWhitespace(t *testing.T) {
	page := mustParse(t, listingHTML, "https://example.com")

	roles, err := page.QuerySelectorAll(".person-role", KindCSS)
	if err != nil {
		t.Fatal(err)
	}
	if got := roles[0].Text(); got != "Senior Partner" {
		t.Errorf("Text() = %q, want collapsed Senior Partner", got)
	}
}

// TestHTMLReturnsOuterHTML tests raw HTML extraction
func TestHTMLReturnsOuterHTML(t *testing.T) {
	page := mustParse(t, listingHTML, "https://example.com")

	names, err := page.QuerySelectorAll("h3.person-name", KindCSS)
	if err != nil {
		t.Fatal(err)
	}
	html := names[0].HTML()
	if !strings.Contains(html, "<h3") || !strings.Contains(html, "<b>Cooper</b>") {
		t.Errorf("HTML() = %q, want outer html with nested markup", html)
	}
}

// TestInvalidSelectorsReturnErrors tests fail-soft compile errors
func TestInvalidSelectorsReturnErrors(t *testing.T) {
	page := mustParse(t, listingHTML, "https://example.com")

	if _, err := page.QuerySelectorAll("div..broken", KindCSS); err == nil {
		t.Error("invalid CSS should return an error")
	}
	if _, err := page.QuerySelectorAll("//div[unclosed", KindXPath); err == nil {
		t.Error("invalid XPath should return an error")
	}

	// A valid selector with no matches is not an error
	got, err := page.QuerySelectorAll(".does-not-exist", KindCSS)
	if err != nil {
		t.Errorf("non-matching selector returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("non-matching selector returned %d elements", len(got))
	}
}

// TestCompileSelector tests load-time selector compilation per engine
func TestCompileSelector(t *testing.T) {
	testCases := []struct {
		name     string
		selector string
		kind     Kind
		wantErr  bool
	}{
		{"valid css", "article.person-card > h3", KindCSS, false},
		{"valid css pseudo", "li:nth-child(2) a", KindCSS, false},
		{"broken css", "h1..name", KindCSS, true},
		{"valid xpath", "//article[contains(@class,'card')]//h3", KindXPath, false},
		{"broken xpath", "//div[", KindXPath, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := CompileSelector(tc.selector, tc.kind)
			if (err != nil) != tc.wantErr {
				t.Errorf("CompileSelector(%q, %v) error = %v, wantErr %v", tc.selector, tc.kind, err, tc.wantErr)
			}
		})
	}
}

// TestURLJoin tests relative link resolution
func TestURLJoin(t *testing.T) {
	page := mustParse(t, listingHTML, "https://example.com/our-people?page=1")

	testCases := []struct {
		href     string
		expected string
	}{
		{"/lawyers/jane-cooper", "https://example.com/lawyers/jane-cooper"},
		{"jane-cooper", "https://example.com/jane-cooper"},
		{"?page=2", "https://example.com/our-people?page=2"},
		{"https://other.example.org/tom", "https://other.example.org/tom"},
		{"  /spaced  ", "https://example.com/spaced"},
		{"", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.href, func(t *testing.T) {
			if got := page.URLJoin(tc.href); got != tc.expected {
				t.Errorf("URLJoin(%q) = %q, want %q", tc.href, got, tc.expected)
			}
		})
	}
}

// TestKindOf tests selector kind mapping
func TestKindOf(t *testing.T) {
	if KindOf("xpath") != KindXPath {
		t.Error("KindOf(xpath) should be KindXPath")
	}
	if KindOf("css") != KindCSS || KindOf("") != KindCSS {
		t.Error("KindOf css and empty should be KindCSS")
	}
}

// TestTitle tests document title extraction
func TestTitle(t *testing.T) {
	page := mustParse(t, listingHTML, "https://example.com")
	if got := page.Title(); got != "Our People" {
		t.Errorf("Title() = %q, want Our People", got)
	}
}
