// internal/resolver/content.go

package resolver

import (
	"regexp"
	"sort"
	"strings"

	"github.com/valpere/DeepScrapexter/internal/dom"
	"github.com/valpere/DeepScrapexter/internal/template"
)

// Content-pattern matching keys off the text people actually publish, so a
// page whose classes all changed can still give up its credentials or
// contact lines.

var (
	credentialKeywords = []string{"bar", "court", "license", "admission", "attorney", "solicitor", "barrister"}
	educationKeywords  = []string{"university", "college", "school", "degree", "bachelor", "master", "phd", "law school"}
	positionKeywords   = []string{"partner", "associate", "counsel", "director", "manager", "attorney", "lawyer"}

	// Regions that anchor "State - Bar" style credential lines
	credentialRegions = []string{"california", "new york", "texas", "florida", "egypt", "england"}

	credentialPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\w+\s*-\s*\w*Bar\w*`),
		regexp.MustCompile(`(?i)\w+\s*Bar\s*\w*`),
		regexp.MustCompile(`(?i)\w+\s*Court\s*\w*`),
		regexp.MustCompile(`(?i)\w+\s*License\w*`),
		regexp.MustCompile(`(?i)\w+\s*Admission\w*`),
	}

	selectorContainsRe = regexp.MustCompile(`contains\([^,]+,\s*['"]([^'"]+)['"]\)`)
	selectorClassRe    = regexp.MustCompile(`@class\s*=\s*['"]([^'"]+)['"]`)
	selectorIDRe       = regexp.MustCompile(`@id\s*=\s*['"]([^'"]+)['"]`)
)

// Result caps keep noisy strategies from flooding a record.
const (
	maxCredentialMatches = 5
	maxEducationMatches  = 10
	maxPositionMatches   = 5
	maxContactMatches    = 3
	maxGenericMatches    = 5
)

// tryContent dispatches on the field label to the matching content finder.
func (r *Resolver) tryContent(scope dom.Scope, field *template.FieldSpec) ([]dom.Element, string) {
	label := strings.ToLower(field.Label)

	switch {
	case containsAny(label, "cred", "admission", "bar", "license"):
		return r.findCredentials(scope)
	case strings.Contains(label, "education"):
		return r.findEducation(scope)
	case containsAny(label, "position", "title", "role"):
		return r.findPositions(scope)
	case containsAny(label, "email", "phone", "contact"):
		return r.findContacts(scope, label)
	default:
		return r.findBySelectorKeywords(scope, field.Selector)
	}
}

// findCredentials locates bar admissions and licenses. Every strategy's
// matches are rescored so only specific credential lines survive.
func (r *Resolver) findCredentials(scope dom.Scope) ([]dom.Element, string) {
	strategies := []candidate{
		{"//*[contains(text(), 'Bar') or contains(text(), 'bar')]", dom.KindXPath},
		{"//*[contains(text(), ' - ') and (contains(text(), 'Bar') or contains(text(), 'Court') or contains(text(), 'License'))]", dom.KindXPath},
		{".admissions *, .credentials *, .bar *, .license *", dom.KindCSS},
		{"//li[contains(text(), 'Bar') or contains(text(), 'Court') or contains(text(), 'License') or contains(text(), 'Admission')]", dom.KindXPath},
	}

	for _, c := range strategies {
		elements, matched := r.tryAlternatives(scope, c.selector, c.kind)
		if filtered := rankCredentials(elements); len(filtered) > 0 {
			return filtered, matched
		}
	}

	if filtered := rankCredentials(matchTextPatterns(scope, credentialPatterns)); len(filtered) > 0 {
		return filtered, "credential-patterns"
	}

	elements, _ := r.tryAlternatives(scope, ".bio *, .profile *, .details *", dom.KindCSS)
	var keyworded []dom.Element
	for _, el := range elements {
		if containsAny(strings.ToLower(el.Text()), credentialKeywords...) {
			keyworded = append(keyworded, el)
		}
	}
	if filtered := rankCredentials(keyworded); len(filtered) > 0 {
		return filtered, "credential-keywords"
	}
	return nil, ""
}

// scoreCredential rates how much a text reads like one credential line.
func scoreCredential(text string) int {
	t := strings.ToLower(text)
	score := 0
	if strings.Contains(t, "bar") {
		score += 3
	}
	if strings.Contains(t, "court") {
		score += 3
	}
	if strings.Contains(t, "license") {
		score += 2
	}
	if strings.Contains(t, "admission") {
		score += 2
	}
	if strings.Contains(t, " - ") {
		score += 2
	}
	if containsAny(t, credentialRegions...) {
		score++
	}
	// Long text is a bio paragraph, not a credential line.
	if len(text) > 200 {
		score -= 2
	}
	return score
}

// rankCredentials keeps the highest scoring matches, dropping anything that
// scores zero or below.
func rankCredentials(elements []dom.Element) []dom.Element {
	type scored struct {
		score   int
		element dom.Element
	}
	var ranked []scored
	for _, el := range elements {
		text := el.Text()
		if text == "" {
			continue
		}
		ranked = append(ranked, scored{scoreCredential(text), el})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	var out []dom.Element
	for _, s := range ranked {
		if s.score <= 0 || len(out) >= maxCredentialMatches {
			break
		}
		out = append(out, s.element)
	}
	return out
}

func (r *Resolver) findEducation(scope dom.Scope) ([]dom.Element, string) {
	strategies := []candidate{
		{".education li, .education p, .education div", dom.KindCSS},
		{".is-style-no-bullets li", dom.KindCSS},
		{"//li[contains(text(), 'University') or contains(text(), 'College') or contains(text(), 'School')]", dom.KindXPath},
	}
	if elements, matched := r.tryCandidates(scope, strategies); len(elements) > 0 {
		return capElements(elements, maxEducationMatches), matched
	}
	if elements := filterByKeywords(scope, educationKeywords); len(elements) > 0 {
		return capElements(elements, maxEducationMatches), "education-keywords"
	}
	return nil, ""
}

func (r *Resolver) findPositions(scope dom.Scope) ([]dom.Element, string) {
	strategies := []candidate{
		{".title, .position, .role, .designation", dom.KindCSS},
		{"//span[contains(@class, 'title') or contains(@class, 'position')]", dom.KindXPath},
	}
	if elements, matched := r.tryCandidates(scope, strategies); len(elements) > 0 {
		return capElements(elements, maxPositionMatches), matched
	}
	if elements := filterByKeywords(scope, positionKeywords); len(elements) > 0 {
		return capElements(elements, maxPositionMatches), "position-keywords"
	}
	return nil, ""
}

func (r *Resolver) findContacts(scope dom.Scope, label string) ([]dom.Element, string) {
	var strategies []candidate
	switch {
	case strings.Contains(label, "email"):
		strategies = []candidate{
			{"a[href^='mailto:']", dom.KindCSS},
			{".email, .contact-email", dom.KindCSS},
			{"//*[contains(@href, '@') or contains(text(), '@')]", dom.KindXPath},
		}
	case strings.Contains(label, "phone"):
		strategies = []candidate{
			{"a[href^='tel:']", dom.KindCSS},
			{".phone, .contact-phone", dom.KindCSS},
			{"//*[contains(@href, 'tel:') or contains(text(), '+') or contains(text(), '(')]", dom.KindXPath},
		}
	default:
		return nil, ""
	}

	if elements, matched := r.tryCandidates(scope, strategies); len(elements) > 0 {
		return capElements(elements, maxContactMatches), matched
	}
	return nil, ""
}

// findBySelectorKeywords mines the failed selector itself for text worth
// matching, covering hand-written XPath like contains(text(), 'Partner').
func (r *Resolver) findBySelectorKeywords(scope dom.Scope, selector string) ([]dom.Element, string) {
	for _, keyword := range selectorKeywords(selector) {
		xp := "//*[contains(text(), '" + keyword + "')]"
		elements, err := scope.QuerySelectorAll(xp, dom.KindXPath)
		if err != nil {
			continue
		}
		if len(elements) > 0 {
			return capElements(elements, maxGenericMatches), xp
		}
	}
	return nil, ""
}

// selectorKeywords pulls contains() arguments and class/id values out of a
// selector string.
func selectorKeywords(selector string) []string {
	var keywords []string
	for _, re := range []*regexp.Regexp{selectorContainsRe, selectorClassRe, selectorIDRe} {
		for _, m := range re.FindAllStringSubmatch(selector, -1) {
			if len(m[1]) > 2 {
				keywords = append(keywords, m[1])
			}
		}
	}
	return keywords
}

// matchTextPatterns scans every element in scope for regex matches.
func matchTextPatterns(scope dom.Scope, patterns []*regexp.Regexp) []dom.Element {
	all, err := scope.QuerySelectorAll("*", dom.KindCSS)
	if err != nil {
		return nil
	}
	var out []dom.Element
	for _, el := range all {
		text := strings.TrimSpace(el.Text())
		if text == "" {
			continue
		}
		for _, re := range patterns {
			if re.MatchString(text) {
				out = append(out, el)
				break
			}
		}
	}
	return out
}

// filterByKeywords scans every element in scope for keyword mentions.
func filterByKeywords(scope dom.Scope, keywords []string) []dom.Element {
	all, err := scope.QuerySelectorAll("*", dom.KindCSS)
	if err != nil {
		return nil
	}
	var out []dom.Element
	for _, el := range all {
		if containsAny(strings.ToLower(el.Text()), keywords...) {
			out = append(out, el)
		}
	}
	return out
}

func capElements(elements []dom.Element, limit int) []dom.Element {
	if len(elements) > limit {
		return elements[:limit]
	}
	return elements
}
