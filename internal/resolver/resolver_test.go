// internal/resolver/resolver_test.go

package resolver

import (
	"strings"
	"testing"

	"github.com/valpere/DeepScrapexter/internal/dom"
	"github.com/valpere/DeepScrapexter/internal/template"
)

const directoryHTML = `<!DOCTYPE html>
<html>
<head><title>Our Team</title></head>
<body>
  <div class="team-grid">
    <div class="person-card">
      <h3 class="name">Jane Cooper</h3>
      <p class="title"><span>Partner</span><span>Corporate</span></p>
      <p class="contact-details">
        <a href="mailto:jane.cooper@example.com">Email</a>
        <a href="tel:+12125550184">Call</a>
      </p>
      <a href="/people/jane-cooper">View profile</a>
    </div>
    <div class="person-card">
      <h3 class="name">Tom Hale</h3>
      <p class="title"><span>Associate</span><span>Litigation</span></p>
      <p class="contact-details">
        <a href="mailto:tom.hale@example.com">Email</a>
      </p>
      <a href="/people/tom-hale">View profile</a>
    </div>
  </div>
</body>
</html>`

const profileHTML = `<!DOCTYPE html>
<html>
<body>
  <article>
    <h1 class="entry-title">Jane Cooper</h1>
    <p>Jane advises listed companies on governance and takeovers. Her practice
    spans two decades of corporate work across three jurisdictions, and she
    writes regularly on listing-rule reform for industry journals and panels.</p>
    <ul class="is-style-no-bullets">
      <li>New York - Bar Association</li>
      <li>England and Wales - Supreme Court admission</li>
    </ul>
    <ul>
      <li>Harvard Law School, JD</li>
    </ul>
  </article>
</body>
</html>`

func mustParse(t *testing.T, html, url string) *dom.HTMLPage {
	t.Helper()
	page, err := dom.ParseString(html, url)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	return page
}

// recordingScope wraps a scope and records every selector it is asked to
// evaluate, in order.
type recordingScope struct {
	inner dom.Scope
	calls []string
}

func (s *recordingScope) QuerySelectorAll(selector string, kind dom.Kind) ([]dom.Element, error) {
	s.calls = append(s.calls, selector)
	return s.inner.QuerySelectorAll(selector, kind)
}

func TestResolveVerbatim(t *testing.T) {
	page := mustParse(t, directoryHTML, "https://example.com/team")
	r := New()

	field := &template.FieldSpec{Label: "name", Selector: "h3.name"}
	res := r.Resolve(field, page, ContextDirectory)

	if res.Tier != TierVerbatim {
		t.Fatalf("Resolve() tier = %v, want %v", res.Tier, TierVerbatim)
	}
	if len(res.Elements) != 2 {
		t.Fatalf("Resolve() matched %d elements, want 2", len(res.Elements))
	}
	if got := res.Elements[0].Text(); got != "Jane Cooper" {
		t.Errorf("first match text = %q, want %q", got, "Jane Cooper")
	}
}

func TestResolveTriesDeclaredSelectorFirst(t *testing.T) {
	page := mustParse(t, directoryHTML, "https://example.com/team")
	scope := &recordingScope{inner: page}
	r := New()

	field := &template.FieldSpec{Label: "email", Selector: ".legacy-email-cell"}
	res := r.Resolve(field, scope, ContextDirectory)

	if len(scope.calls) == 0 {
		t.Fatal("Resolve() never queried the scope")
	}
	if scope.calls[0] != ".legacy-email-cell" {
		t.Errorf("first query = %q, want the declared selector", scope.calls[0])
	}
	if res.Tier != TierSemantic {
		t.Errorf("Resolve() tier = %v, want %v", res.Tier, TierSemantic)
	}
}

func TestResolveMatchingSelectorQueriesOnce(t *testing.T) {
	page := mustParse(t, directoryHTML, "https://example.com/team")
	scope := &recordingScope{inner: page}
	r := New()

	field := &template.FieldSpec{Label: "card", Selector: ".person-card"}
	res := r.Resolve(field, scope, ContextDirectory)

	if res.Tier != TierVerbatim {
		t.Fatalf("Resolve() tier = %v, want %v", res.Tier, TierVerbatim)
	}
	if len(scope.calls) != 1 {
		t.Errorf("Resolve() made %d queries, want 1: %v", len(scope.calls), scope.calls)
	}
}

func TestResolveSemanticFallback(t *testing.T) {
	page := mustParse(t, directoryHTML, "https://example.com/team")
	r := New()

	// The declared selector is specific enough to skip enhancement and
	// matches nothing; the label still identifies the role.
	field := &template.FieldSpec{Label: "email", Selector: ".contact-cell .email-link"}
	res := r.Resolve(field, page, ContextDirectory)

	if res.Tier != TierSemantic {
		t.Fatalf("Resolve() tier = %v, want %v", res.Tier, TierSemantic)
	}
	href, _ := res.Elements[0].Attribute("href")
	if !strings.HasPrefix(href, "mailto:") {
		t.Errorf("semantic match href = %q, want mailto link", href)
	}
}

func TestResolveAlternativesWithinTier(t *testing.T) {
	page := mustParse(t, directoryHTML, "https://example.com/team")
	r := New()

	field := &template.FieldSpec{Label: "card", Selector: ".gone-missing, div..broken, .person-card"}
	res := r.Resolve(field, page, ContextDirectory)

	if res.Tier != TierVerbatim {
		t.Fatalf("Resolve() tier = %v, want %v", res.Tier, TierVerbatim)
	}
	if res.Selector != ".person-card" {
		t.Errorf("Resolve() matched selector %q, want %q", res.Selector, ".person-card")
	}
	if len(res.Elements) != 2 {
		t.Errorf("Resolve() matched %d elements, want 2", len(res.Elements))
	}
}

func TestResolveContentCredentials(t *testing.T) {
	page := mustParse(t, profileHTML, "https://example.com/people/jane-cooper")
	r := New()

	field := &template.FieldSpec{Label: "creds", Selector: ".admissions-panel .entry"}
	res := r.Resolve(field, page, ContextProfile)

	if res.Tier != TierContent {
		t.Fatalf("Resolve() tier = %v, want %v", res.Tier, TierContent)
	}
	if len(res.Elements) == 0 {
		t.Fatal("Resolve() matched no credential elements")
	}
	for _, el := range res.Elements {
		text := strings.ToLower(el.Text())
		if !strings.Contains(text, "bar") && !strings.Contains(text, "court") {
			t.Errorf("credential match %q lacks credential keywords", el.Text())
		}
		if len(el.Text()) > 200 {
			t.Errorf("credential match is a paragraph, not a credential line: %q", el.Text())
		}
	}
}

func TestResolveStructuralFallback(t *testing.T) {
	// The template expects bio lines as direct children, but the site
	// wrapped them in an extra div since.
	html := `<html><body>
	  <div class="staff-list">
	    <div class="wrapper"><p class="bio-line">Corporate team</p></div>
	  </div>
	</body></html>`
	page := mustParse(t, html, "https://example.com")
	r := New()

	field := &template.FieldSpec{Label: "summary", Selector: "div.staff-list > p.bio-line"}
	res := r.Resolve(field, page, ContextDirectory)

	if res.Tier != TierStructural {
		t.Fatalf("Resolve() tier = %v, want %v", res.Tier, TierStructural)
	}
	if got := res.Elements[0].Text(); got != "Corporate team" {
		t.Errorf("structural match text = %q, want %q", got, "Corporate team")
	}
}

func TestResolveOriginalSelectorLastResort(t *testing.T) {
	// Enhancement replaces the generic selector, every fallback misses,
	// and the raw selector uses a CSS feature the XPath rewrite cannot
	// express. Only the final pass can match.
	html := `<html><body><div><p>Jane Cooper</p><p>Partner</p></div></body></html>`
	page := mustParse(t, html, "https://example.com")
	r := New()

	field := &template.FieldSpec{Label: "name", Selector: "p:first-of-type"}
	res := r.Resolve(field, page, ContextDirectory)

	if res.Tier != TierOriginal {
		t.Fatalf("Resolve() tier = %v, want %v", res.Tier, TierOriginal)
	}
	if got := res.Elements[0].Text(); got != "Jane Cooper" {
		t.Errorf("final pass match text = %q, want %q", got, "Jane Cooper")
	}
}

func TestResolveEmptyWhenNothingMatches(t *testing.T) {
	page := mustParse(t, "<html><body><div>nothing here</div></body></html>", "https://example.com")
	r := New()

	field := &template.FieldSpec{Label: "widget", Selector: ".widget-panel .widget"}
	res := r.Resolve(field, page, ContextDirectory)

	if res.Tier != TierNone || len(res.Elements) != 0 {
		t.Errorf("Resolve() = tier %v with %d elements, want none", res.Tier, len(res.Elements))
	}
}

func TestResolveContainer(t *testing.T) {
	page := mustParse(t, directoryHTML, "https://example.com/team")
	r := New()

	spec := &template.ContainerSpec{Selector: ".person-card"}
	res := r.ResolveContainer(spec, page)

	if res.Tier != TierVerbatim {
		t.Fatalf("ResolveContainer() tier = %v, want %v", res.Tier, TierVerbatim)
	}
	if len(res.Elements) != 2 {
		t.Errorf("ResolveContainer() matched %d containers, want 2", len(res.Elements))
	}
}

func TestResolveContainerClassTokens(t *testing.T) {
	// The template says ".people .loading" but the rendered page carries
	// both names on one element with suffixed classes.
	html := `<html><body>
	  <div class="people-wrap loading">
	    <div>Jane Cooper</div>
	  </div>
	</body></html>`
	page := mustParse(t, html, "https://example.com")
	r := New()

	spec := &template.ContainerSpec{Selector: ".people .loading"}
	res := r.ResolveContainer(spec, page)

	if res.Tier != TierClassToken {
		t.Fatalf("ResolveContainer() tier = %v, want %v", res.Tier, TierClassToken)
	}
	if len(res.Elements) != 1 {
		t.Errorf("ResolveContainer() matched %d containers, want 1", len(res.Elements))
	}
}

func TestResolveScopedToContainer(t *testing.T) {
	page := mustParse(t, directoryHTML, "https://example.com/team")
	r := New()

	containers := r.ResolveContainer(&template.ContainerSpec{Selector: ".person-card"}, page)
	if len(containers.Elements) != 2 {
		t.Fatalf("got %d containers, want 2", len(containers.Elements))
	}

	field := &template.FieldSpec{Label: "email", Selector: ".broken-email-selector"}
	res := r.Resolve(field, containers.Elements[1], ContextDirectory)

	if len(res.Elements) != 1 {
		t.Fatalf("Resolve() in second container matched %d elements, want 1", len(res.Elements))
	}
	href, _ := res.Elements[0].Attribute("href")
	if href != "mailto:tom.hale@example.com" {
		t.Errorf("scoped match href = %q, want Tom's mailto", href)
	}
}

func TestQuery(t *testing.T) {
	page := mustParse(t, directoryHTML, "https://example.com/team")
	r := New()

	testCases := []struct {
		name     string
		selector string
		kind     string
		want     int
	}{
		{"simple css", ".person-card", "", 2},
		{"second alternative", ".missing, .person-card", "", 2},
		{"broken first alternative", "div..broken, h3.name", "", 2},
		{"xpath", "//h3[contains(@class, 'name')]", "xpath", 2},
		{"no match", ".absent", "", 0},
		{"empty selector", "", "", 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := r.Query(page, tc.selector, tc.kind)
			if len(got) != tc.want {
				t.Errorf("Query(%q) matched %d elements, want %d",
					tc.selector, len(got), tc.want)
			}
		})
	}
}

func TestEnhanceSelector(t *testing.T) {
	testCases := []struct {
		name  string
		field template.FieldSpec
		rctx  Context
		want  string
	}{
		{
			"xpath passes through",
			template.FieldSpec{Label: "name", Selector: "xpath://h1/text()"},
			ContextDirectory,
			"//h1/text()",
		},
		{
			"specific selector passes through",
			template.FieldSpec{Label: "name", Selector: ".lawyer-card strong"},
			ContextDirectory,
			".lawyer-card strong",
		},
		{
			"generic name selector maps by label",
			template.FieldSpec{Label: "name", Selector: "strong"},
			ContextDirectory,
			"strong, p.name strong, h3, h2, .name, [class*='name'] strong, strong:first-of-type",
		},
		{
			"profile context uses heading forms",
			template.FieldSpec{Label: "name", Selector: "strong"},
			ContextProfile,
			"h1, h2, .entry-title, .page-title, .lawyer-name, .attorney-name",
		},
		{
			"generic email selector maps by label",
			template.FieldSpec{Label: "email", Selector: "a"},
			ContextDirectory,
			"a[href^='mailto:'], p.contact-details a[href^='mailto:'], .email, [class*='email'], a[href*='@']",
		},
		{
			"unknown label keeps original",
			template.FieldSpec{Label: "blurb", Selector: "div"},
			ContextDirectory,
			"div",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := EnhanceSelector(&tc.field, tc.rctx)
			if got != tc.want {
				t.Errorf("EnhanceSelector() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCSSToXPath(t *testing.T) {
	testCases := []struct {
		css  string
		want string
	}{
		{".card", "//*[contains(@class, 'card')]"},
		{"div.card", "//div[contains(@class, 'card')]"},
		{"#main", "//*[@id='main']"},
		{"div > p", "//div/p"},
		{"ul li", "//ul//li"},
		{"li:nth-child(3)", "//li"},
		{"div.list > span.item", "//div[contains(@class, 'list')]/span[contains(@class, 'item')]"},
		{".a .b", "//*[contains(@class, 'a')]//*[contains(@class, 'b')]"},
	}

	for _, tc := range testCases {
		t.Run(tc.css, func(t *testing.T) {
			got := CSSToXPath(tc.css)
			if got != tc.want {
				t.Errorf("CSSToXPath(%q) = %q, want %q", tc.css, got, tc.want)
			}
		})
	}
}

func TestStripPositional(t *testing.T) {
	testCases := []struct {
		selector string
		want     string
	}{
		{"tr:nth-child(2) td", "tr td"},
		{"li:nth-child(10)", "li"},
		{"div.card", "div.card"},
		{"div >", "div"},
		{":nth-child(1)", ":nth-child(1)"},
	}

	for _, tc := range testCases {
		t.Run(tc.selector, func(t *testing.T) {
			got := StripPositional(tc.selector)
			if got != tc.want {
				t.Errorf("StripPositional(%q) = %q, want %q", tc.selector, got, tc.want)
			}
		})
	}
}

func TestScoreCredential(t *testing.T) {
	testCases := []struct {
		name string
		text string
		want int
	}{
		{"region bar line", "New York - Bar Association", 6},
		{"court admission", "Supreme Court admission", 5},
		{"license only", "Professional License", 2},
		{"unrelated", "Partner since 2005", 0},
		{"long paragraph with keyword", strings.Repeat("background ", 20) + "bar", 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := scoreCredential(tc.text)
			if got != tc.want {
				t.Errorf("scoreCredential(%q) = %d, want %d", tc.text, got, tc.want)
			}
		})
	}
}

func TestExpectedAbsent(t *testing.T) {
	testCases := []struct {
		name  string
		field template.FieldSpec
		want  bool
	}{
		{"location label", template.FieldSpec{Label: "Location", Selector: ".loc"}, true},
		{"city label", template.FieldSpec{Label: "Office City", Selector: ".city"}, true},
		{"normalize-space selector", template.FieldSpec{Label: "office", Selector: "//div[normalize-space(text())='Paris']"}, true},
		{"city name in selector", template.FieldSpec{Label: "office", Selector: "//span[contains(text(), 'Riyadh')]"}, true},
		{"ordinary field", template.FieldSpec{Label: "name", Selector: ".name"}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExpectedAbsent(&tc.field)
			if got != tc.want {
				t.Errorf("ExpectedAbsent(%s) = %v, want %v", tc.field.Label, got, tc.want)
			}
		})
	}
}

func TestClassTokenCandidates(t *testing.T) {
	candidates := classTokenCandidates(".people .loading")

	if len(candidates) == 0 {
		t.Fatal("classTokenCandidates() returned nothing")
	}
	if candidates[0].selector != `[class*="people"][class*="loading"]` {
		t.Errorf("first candidate = %q, want tokenized class selector", candidates[0].selector)
	}

	if got := classTokenCandidates("div[data-x='1']"); got != nil {
		t.Errorf("classTokenCandidates() on attribute selector = %v, want nil", got)
	}
}
