// internal/template/analyze.go
package template

import (
	"fmt"
	"strings"
)

// Report summarizes a template's shape and the risks in its selectors. The
// validate CLI command prints it so template authors can gauge how well a
// template will survive site redesigns.
type Report struct {
	Name              string   `json:"name"`
	ListingFields     int      `json:"listing_fields"`
	SubpageFields     int      `json:"subpage_fields"`
	RequiredFields    int      `json:"required_fields"`
	SubpageShare      float64  `json:"subpage_share"`
	SubpageOnly       bool     `json:"subpage_only"`
	Directory         bool     `json:"directory"`
	PaginationKind    string   `json:"pagination_kind"`
	SemanticCoverage  int      `json:"semantic_coverage"`
	FragileSelectors  []string `json:"fragile_selectors,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
}

// Labels with these keywords can be recovered by semantic fallback when the
// configured selector stops matching. Coverage counts them.
var semanticLabelHints = []string{
	"name", "title", "position", "email", "phone", "telephone", "location",
	"city", "office", "practice", "area", "sector", "education", "experience",
	"bar", "admission", "court", "license", "language", "photo", "image",
	"link", "profile", "url", "description", "bio",
}

// Analyze inspects a template and reports field counts, fallback coverage,
// and selectors likely to break on the next site redesign.
func Analyze(t *Template) *Report {
	r := &Report{
		Name:           t.Name,
		PaginationKind: t.Pagination.EffectiveKind(),
		SubpageShare:   t.SubpageShare(),
	}

	var all []FieldSpec
	if t.Container != nil {
		all = append(all, t.Container.SubFields...)
		r.ListingFields = len(t.Container.SubFields)
		r.SubpageFields = len(t.Container.SubpageFields)
		all = append(all, t.Container.SubpageFields...)
	}
	all = append(all, t.Fields...)
	if t.Container == nil {
		r.ListingFields = len(t.Fields)
	}

	for i := range all {
		f := &all[i]
		if f.Required {
			r.RequiredFields++
		}
		if labelHasSemanticHint(f.Label) {
			r.SemanticCoverage++
		}
		sel, kind := f.EffectiveSelector()
		if reason := fragileReason(sel, kind); reason != "" {
			r.FragileSelectors = append(r.FragileSelectors,
				fmt.Sprintf("%s: %s (%s)", f.Label, sel, reason))
		}
	}

	r.SubpageOnly = t.SubpageShare() >= t.SubpageOnlyThreshold && r.SubpageFields > 0
	r.Directory = LooksLikeDirectory(t)

	if t.Container != nil && t.Container.FollowLinks && r.SubpageFields == 0 {
		r.Warnings = append(r.Warnings, "followLinks is set but no subpageFields are defined")
	}
	if r.Directory && !t.Container.FollowLinks {
		r.Warnings = append(r.Warnings, "template looks like a directory listing but does not follow profile links")
	}
	if t.Container != nil && !t.Container.FollowLinks && IsSubpageContainer(t.Container) {
		r.Warnings = append(r.Warnings, "container fields look subpage-bound; set followLinks and declare them as subpageFields")
	}
	if r.SubpageFields > 0 && t.MaxSubpages == 0 {
		r.Warnings = append(r.Warnings, "subpage extraction without maxSubpages; large listings will fetch every profile")
	}
	if t.Pagination != nil && t.Pagination.EffectiveKind() != PaginationNone && t.Pagination.MaxPages == 0 {
		r.Warnings = append(r.Warnings, "pagination without maxPages; the global page backstop applies")
	}
	if r.RequiredFields > 0 && r.SemanticCoverage == 0 {
		r.Warnings = append(r.Warnings, "required fields have no semantically recognizable labels; fallback recovery will be limited")
	}

	return r
}

func labelHasSemanticHint(label string) bool {
	l := strings.ToLower(label)
	for _, hint := range semanticLabelHints {
		if strings.Contains(l, hint) {
			return true
		}
	}
	return false
}

// fragileReason flags selector constructs that commonly break when markup
// shifts: positional child indexing and long descendant chains.
func fragileReason(selector, kind string) string {
	if strings.Contains(selector, ":nth-child") || strings.Contains(selector, ":nth-of-type") {
		return "positional indexing"
	}
	if kind == "xpath" && strings.Contains(selector, "]/") && strings.Count(selector, "/") > 6 {
		return "deep positional path"
	}
	if kind == "css" && strings.Count(selector, ">") > 3 {
		return "deep child chain"
	}
	return ""
}

// identityLabels are the sub-labels that identify an entity card in a
// directory listing.
var identityLabels = []string{"name", "title", "position", "email", "phone"}

// directorySelectorHints mark container selectors that commonly carry
// directory-style listings of people or organizations.
var directorySelectorHints = []string{
	"people", "person", "member", "staff", "team", "attorney", "lawyer",
	"profile", "card", "result", "listing", "directory", "grid", "list",
}

// subpageLabelHints mark fields whose values usually live on a profile
// subpage rather than on the listing card.
var subpageLabelHints = []string{
	"subpage", "sublink", "education", "credential", "experience", "bio", "profile",
}

// LooksLikeDirectory reports whether a template targets a directory-style
// listing: a repeating container of entity cards carrying at least two
// identity fields, recognized either by the container selector or by a
// profile-link field. Directory templates usually want followLinks so
// records can be completed from each profile page.
func LooksLikeDirectory(t *Template) bool {
	c := t.Container
	if c == nil || len(c.SubFields) < 2 {
		return false
	}

	selector := strings.ToLower(c.Selector)
	selectorHit := false
	for _, hint := range directorySelectorHints {
		if strings.Contains(selector, hint) {
			selectorHit = true
			break
		}
	}

	identity := 0
	profileLink := false
	for i := range c.SubFields {
		f := &c.SubFields[i]
		label := strings.ToLower(f.Label)
		for _, id := range identityLabels {
			if strings.Contains(label, id) {
				identity++
				break
			}
		}
		if strings.Contains(label, "link") || strings.Contains(label, "profile") ||
			f.EffectiveValueKind() == ValueKindLink {
			profileLink = true
		}
	}

	return identity >= 2 && (selectorHit || profileLink)
}

// IsSubpageContainer reports whether a container's fields look subpage-bound.
// A container that already declares followLinks with subpageFields is one by
// definition; otherwise at least half the sub-field labels must carry
// subpage keywords. Planning uses the explicit subpageFields split; this
// heuristic only backs analyzer warnings.
func IsSubpageContainer(c *ContainerSpec) bool {
	if c == nil {
		return false
	}
	if c.FollowLinks && len(c.SubpageFields) > 0 {
		return true
	}

	hits := 0
	for i := range c.SubFields {
		label := strings.ToLower(c.SubFields[i].Label)
		for _, hint := range subpageLabelHints {
			if strings.Contains(label, hint) {
				hits++
				break
			}
		}
	}
	return hits > 0 && hits*2 >= len(c.SubFields)
}
