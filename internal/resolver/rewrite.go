// internal/resolver/rewrite.go

package resolver

import (
	"regexp"
	"strings"

	"github.com/valpere/DeepScrapexter/internal/dom"
)

var (
	nthChildRe    = regexp.MustCompile(`:nth-child\(\d+\)`)
	trailingGTRe  = regexp.MustCompile(`\s*>\s*$`)
	multiSpaceRe  = regexp.MustCompile(`\s+`)
	cssClassRe    = regexp.MustCompile(`\.([a-zA-Z0-9_-]+)`)
	cssIDRe       = regexp.MustCompile(`#([a-zA-Z0-9_-]+)`)
	gtSpacingRe   = regexp.MustCompile(`\s*>\s*`)
	classTokenRe  = regexp.MustCompile(`[a-zA-Z0-9_-]+`)
	pureClassesRe = regexp.MustCompile(`^[.a-zA-Z0-9_\s>-]+$`)
)

// StripPositional removes :nth-child constraints so a selector written
// against one row matches every sibling row again.
func StripPositional(selector string) string {
	generic := nthChildRe.ReplaceAllString(selector, "")
	generic = trailingGTRe.ReplaceAllString(generic, "")
	generic = multiSpaceRe.ReplaceAllString(generic, " ")
	generic = strings.TrimSpace(generic)
	if generic == "" {
		return selector
	}
	return generic
}

// CSSToXPath rewrites a simple CSS selector into an equivalent XPath.
// Classes become contains(@class) predicates, so elements that gained extra
// classes since the template was written still match. Combinators convert
// before classes expand, because the expansion introduces spaces of its own.
func CSSToXPath(cssSelector string) string {
	xpath := StripPositional(cssSelector)
	xpath = gtSpacingRe.ReplaceAllString(xpath, ">")
	xpath = strings.ReplaceAll(xpath, " ", "//")
	xpath = strings.ReplaceAll(xpath, ">", "/")
	xpath = cssClassRe.ReplaceAllString(xpath, `[contains(@class, '$1')]`)
	xpath = cssIDRe.ReplaceAllString(xpath, `[@id='$1']`)

	if !strings.HasPrefix(xpath, "/") {
		xpath = "//" + xpath
	}
	// A predicate with no node test needs the wildcard spelled out.
	xpath = strings.ReplaceAll(xpath, "//[", "//*[")
	xpath = strings.ReplaceAll(xpath, "/[", "/*[")
	return xpath
}

// tryStructural recovers from reordering and class churn: first the
// selector with positional constraints stripped, then its XPath rewrite,
// then loosened ancestor/descendant forms of child combinators.
func (r *Resolver) tryStructural(scope dom.Scope, selector, kind string) ([]dom.Element, string) {
	if kind != "css" {
		return nil, ""
	}

	var candidates []candidate
	if generic := StripPositional(selector); generic != selector {
		candidates = append(candidates, candidate{generic, dom.KindCSS})
	}
	candidates = append(candidates, candidate{CSSToXPath(selector), dom.KindXPath})
	candidates = append(candidates, hierarchicalCandidates(selector)...)

	return r.tryCandidates(scope, candidates)
}

// hierarchicalCandidates loosens the last child combinator of a selector
// into an ancestor/descendant XPath, tolerating wrapper elements inserted
// between parent and child.
func hierarchicalCandidates(selector string) []candidate {
	if !strings.Contains(selector, ">") {
		return nil
	}
	parts := strings.Split(selector, ">")
	if len(parts) < 2 {
		return nil
	}
	parent := partToXPath(strings.TrimSpace(parts[len(parts)-2]))
	child := partToXPath(strings.TrimSpace(parts[len(parts)-1]))
	if parent == "" || child == "" {
		return nil
	}
	return []candidate{{"//" + parent + "//" + child, dom.KindXPath}}
}

// partToXPath converts one compound like "div.card" or ".card" to a node
// test with class predicates.
func partToXPath(part string) string {
	part = StripPositional(part)
	if part == "" {
		return ""
	}
	tag := "*"
	rest := part
	if !strings.HasPrefix(part, ".") && !strings.HasPrefix(part, "#") {
		if i := strings.IndexAny(part, ".#"); i >= 0 {
			tag, rest = part[:i], part[i:]
		} else {
			return part
		}
	}
	out := tag
	for _, m := range cssClassRe.FindAllStringSubmatch(rest, -1) {
		out += "[contains(@class, '" + m[1] + "')]"
	}
	for _, m := range cssIDRe.FindAllStringSubmatch(rest, -1) {
		out += "[@id='" + m[1] + "']"
	}
	return out
}

// classTokenCandidates loosens a class-based container selector three ways:
// every class token as a class-substring match, a single leading class as a
// substring match, and the tokens joined into one contains(@class) probe.
// Sites that append state classes at render time defeat exact selectors but
// not these.
func classTokenCandidates(selector string) []candidate {
	if !strings.Contains(selector, ".") || !pureClassesRe.MatchString(selector) {
		return nil
	}

	var candidates []candidate

	tokens := classTokenRe.FindAllString(selector, -1)
	if len(tokens) > 1 {
		var b strings.Builder
		for _, tok := range tokens {
			b.WriteString(`[class*="` + tok + `"]`)
		}
		candidates = append(candidates, candidate{b.String(), dom.KindCSS})
	}

	if strings.HasPrefix(selector, ".") && len(tokens) == 1 {
		candidates = append(candidates, candidate{`[class*="` + tokens[0] + `"]`, dom.KindCSS})
	}

	joined := strings.NewReplacer(".", "", " ", "").Replace(selector)
	if joined != "" {
		candidates = append(candidates,
			candidate{"//*[contains(@class, '" + joined + "')]", dom.KindXPath})
	}

	return candidates
}
