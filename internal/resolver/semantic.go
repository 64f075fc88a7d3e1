// internal/resolver/semantic.go

package resolver

import (
	"strings"

	"github.com/valpere/DeepScrapexter/internal/dom"
	"github.com/valpere/DeepScrapexter/internal/template"
)

// EnhanceSelector upgrades generic selectors like "strong" or "a" into
// label-driven alternative lists. Specific selectors pass through: XPath is
// position-tuned already, and anything carrying classes, ids, or attributes
// was chosen deliberately.
func EnhanceSelector(field *template.FieldSpec, rctx Context) string {
	selector, kind := field.EffectiveSelector()
	if kind == "xpath" {
		return selector
	}
	if len(selector) > 10 && strings.ContainsAny(selector, ".#[") {
		return selector
	}
	if mapped := labelCSS(field.Label, rctx); mapped != "" {
		return mapped
	}
	return selector
}

// labelCSS maps a field label to alternate CSS selectors for its semantic
// role. Returns "" for labels with no known role.
func labelCSS(label string, rctx Context) string {
	l := strings.ToLower(label)

	switch {
	case strings.Contains(l, "name"):
		if rctx == ContextProfile {
			return "h1, h2, .entry-title, .page-title, .lawyer-name, .attorney-name"
		}
		return "strong, p.name strong, h3, h2, .name, [class*='name'] strong, strong:first-of-type"

	case containsAny(l, "title", "position", "job"):
		if rctx == ContextProfile {
			return ".position, .title, .job-title, h2 + p, h1 + p"
		}
		return ".title, .position, .job-title, [class*='title'], [class*='position'], p.title span:first-child, span[class*='position']"

	case containsAny(l, "email", "mail"):
		return "a[href^='mailto:'], p.contact-details a[href^='mailto:'], .email, [class*='email'], a[href*='@']"

	case strings.Contains(l, "phone"):
		return "a[href^='tel:'], .phone, [class*='phone'], a[href*='tel']"

	case containsAny(l, "sector", "practice", "area"):
		if rctx == ContextProfile {
			return ".practice-area, .capabilities, .focus-areas, a[href*='/practice/']"
		}
		return ".practice-area, .sector, [class*='practice'], [class*='sector'], p.contact-details span:not([class*='position']), p.title span:last-child, span[class*='practice']"

	case containsAny(l, "link", "profile", "url"):
		return "a[href*='/lawyer/'], a[href*='/attorney/'], a[href*='/people/'], a[href*='/team/'], a"

	case strings.Contains(l, "education"):
		// Numbered education fields take later entries so first/rest pairs
		// do not duplicate.
		if strings.Contains(l, "education2") {
			return ".education li:nth-of-type(n+2), ul[class*='education'] li:nth-of-type(n+2)"
		}
		return ".education li:first-child, .education li:first-of-type, ul[class*='education'] li:first-child"

	case containsAny(l, "cred", "admission", "bar"):
		if strings.Contains(l, "creds2") {
			return ".admissions li:nth-of-type(n+2), .bar li:nth-of-type(n+2), .credentials li:nth-of-type(n+2)"
		}
		return ".admissions li:first-child, .bar li:first-child, .credentials li:first-child"
	}

	return ""
}

// labelXPaths returns semantic XPath alternates for a label's role.
func labelXPaths(label string) []string {
	l := strings.ToLower(label)

	switch {
	case strings.Contains(l, "name"):
		return []string{
			"//h1[contains(@class, 'name')]",
			"//h2[contains(@class, 'name')]",
			"//span[contains(@class, 'name')]",
			"//*[contains(@id, 'name')]",
			"//strong[position()=1]",
			"//*[contains(@class, 'person-name') or contains(@class, 'lawyer-name')]",
		}
	case containsAny(l, "email", "mail"):
		return []string{
			"//a[contains(@href, 'mailto:')]",
			"//*[contains(@class, 'email')]",
			"//*[contains(text(), '@') and contains(text(), '.')]",
		}
	case strings.Contains(l, "phone"):
		return []string{
			"//a[contains(@href, 'tel:')]",
			"//*[contains(@class, 'phone')]",
			"//*[contains(text(), '(') and contains(text(), ')')]",
		}
	case containsAny(l, "title", "position"):
		return []string{
			"//*[contains(@class, 'title')]",
			"//*[contains(@class, 'position')]",
			"//*[contains(@class, 'job-title')]",
		}
	case containsAny(l, "link", "url"):
		return []string{"//a[@href]"}
	}

	return nil
}

// trySemantic runs the label-driven alternates: CSS lists first, then
// XPath forms.
func (r *Resolver) trySemantic(scope dom.Scope, label string, rctx Context) ([]dom.Element, string) {
	var candidates []candidate
	if css := labelCSS(label, rctx); css != "" {
		candidates = append(candidates, candidate{css, dom.KindCSS})
	}
	for _, xp := range labelXPaths(label) {
		candidates = append(candidates, candidate{xp, dom.KindXPath})
	}
	return r.tryCandidates(scope, candidates)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
