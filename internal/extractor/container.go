// internal/extractor/container.go

package extractor

import (
	"context"
	"strings"

	"github.com/valpere/DeepScrapexter/internal/dom"
	"github.com/valpere/DeepScrapexter/internal/resolver"
	"github.com/valpere/DeepScrapexter/internal/template"
	"github.com/valpere/DeepScrapexter/internal/utils"
)

// DefaultSubpageOnlyThreshold is the empty-share above which a container's
// directory data is considered absent by design.
const DefaultSubpageOnlyThreshold = 0.7

// profileLinkSelectors find profile links when no sub-field captured one.
const profileLinkSelectors = "a[href*='/lawyer/'], a[href*='/attorney/'], a[href*='/people/'], a[href*='/team/']"

// ContainerOptions tunes container extraction.
type ContainerOptions struct {
	// SubpageURLPattern restricts auto-discovered profile links by
	// substring. Empty accepts any absolute link.
	SubpageURLPattern string

	// SubpageOnlyThreshold overrides DefaultSubpageOnlyThreshold when > 0
	SubpageOnlyThreshold float64
}

// ContainerResult is the outcome of one listing page's container pass.
type ContainerResult struct {
	Records []Record

	// Errors lists records dropped for a missing required field
	Errors []error

	// SubpageOnly reports that the configured sub-field selectors came
	// back overwhelmingly empty on the directory page. The caller should
	// source these fields from profile pages instead.
	SubpageOnly bool

	// EmptyShare is the observed share of empty sub-field values
	EmptyShare float64
}

// ExtractContainer resolves the repeating containers on a listing page and
// extracts one record per container. Each record carries its container
// index, and the first sub-field value that looks like an absolute URL
// becomes the record's profile link. A record missing a required sub-field
// is dropped and reported; the rest of the page still extracts.
func (e *Extractor) ExtractContainer(ctx context.Context, spec *template.ContainerSpec, page dom.Page, opts ContainerOptions) ContainerResult {
	var result ContainerResult

	containers := e.resolver.ResolveContainer(spec, page)
	if len(containers.Elements) == 0 {
		e.logger.Warn().Str("selector", spec.Selector).Str("url", page.URL()).
			Msg("no containers found")
		return result
	}
	e.logger.Debug().
		Int("count", len(containers.Elements)).
		Str("tier", containers.Tier.String()).
		Msg("containers resolved")

	needsProfileLink := spec.FollowLinks && len(spec.SubpageFields) > 0

	for i, containerEl := range containers.Elements {
		if ctx.Err() != nil {
			break
		}

		record, profileLink, err := e.extractContainerRecord(ctx, spec, containerEl, page)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}

		if needsProfileLink && profileLink == "" {
			profileLink = e.autoProfileLink(containerEl, page, opts.SubpageURLPattern)
		}

		// A container that yielded nothing at all still contributes a
		// sample of its text, so sparse templates produce something
		// inspectable without carrying whole pages around.
		if allEmpty(record) {
			record["text"] = utils.TruncateString(strings.TrimSpace(containerEl.Text()), 500)
		}

		record[MetaContainerIndex] = i
		if profileLink != "" {
			record[MetaProfileLink] = profileLink
		}
		result.Records = append(result.Records, record)
	}

	result.EmptyShare = emptyShare(result.Records, spec.SubFields)
	threshold := opts.SubpageOnlyThreshold
	if threshold <= 0 {
		threshold = DefaultSubpageOnlyThreshold
	}
	result.SubpageOnly = needsProfileLink && result.EmptyShare > threshold
	if result.SubpageOnly {
		e.logger.Info().Float64("emptyShare", result.EmptyShare).
			Msg("container classified subpage-only, directory selectors defer to profile pages")
	}

	return result
}

// extractContainerRecord extracts every sub-field of one container element.
func (e *Extractor) extractContainerRecord(ctx context.Context, spec *template.ContainerSpec, containerEl dom.Element, page dom.Page) (Record, string, error) {
	record := Record{}
	profileLink := ""

	for fi := range spec.SubFields {
		field := &spec.SubFields[fi]

		var value interface{}
		if strings.TrimSpace(field.Selector) == "" {
			// An empty selector extracts from the container element itself.
			value = e.transform(ctx, field, e.extractValue(containerEl, field, page))
		} else {
			var err error
			value, err = e.extractField(ctx, field, containerEl, page, resolver.ContextDirectory)
			if err != nil {
				return nil, "", err
			}
		}
		record[field.Label] = value

		if profileLink == "" {
			if s := firstString(value); utils.IsAbsoluteHTTPURL(s) {
				profileLink = s
			}
		}
	}

	return record, profileLink, nil
}

// autoProfileLink scans a container for a plausible profile link: known
// profile path shapes first, then any anchor resolving to an absolute URL.
func (e *Extractor) autoProfileLink(containerEl dom.Element, page dom.Page, urlPattern string) string {
	links := e.resolver.Query(containerEl, profileLinkSelectors, "css")
	if len(links) == 0 {
		links = e.resolver.Query(containerEl, "a", "css")
	}

	for _, link := range links {
		href, _ := link.Attribute("href")
		if href == "" {
			continue
		}
		full := page.URLJoin(href)
		if !utils.IsAbsoluteHTTPURL(full) {
			continue
		}
		if urlPattern != "" && !strings.Contains(full, urlPattern) {
			continue
		}
		return full
	}
	return ""
}

// emptyShare measures how many configured sub-field values came back empty
// across all records.
func emptyShare(records []Record, fields []template.FieldSpec) float64 {
	if len(records) == 0 || len(fields) == 0 {
		return 0
	}
	var empty, total int
	for _, record := range records {
		for i := range fields {
			total++
			if isEmpty(record[fields[i].Label]) {
				empty++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(empty) / float64(total)
}

func isEmpty(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []string:
		return len(v) == 0
	default:
		return false
	}
}

func allEmpty(record Record) bool {
	for _, v := range record {
		if !isEmpty(v) {
			return false
		}
	}
	return true
}

// firstString returns value as a string, taking the first entry of lists.
func firstString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}
