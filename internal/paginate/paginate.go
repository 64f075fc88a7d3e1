// internal/paginate/paginate.go

// Package paginate drives the page-acquisition loop. A controller fetches
// listing pages one at a time, hands each to the caller's extraction step,
// and decides from the template's pagination strategy whether another page
// exists. Records are aggregated across pages with duplicate suppression,
// and hard page budgets bound every strategy against sites that never
// signal an end.
package paginate

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/valpere/DeepScrapexter/internal/dom"
	"github.com/valpere/DeepScrapexter/internal/extractor"
	"github.com/valpere/DeepScrapexter/internal/fetch"
	"github.com/valpere/DeepScrapexter/internal/resolver"
	"github.com/valpere/DeepScrapexter/internal/scrapererr"
	"github.com/valpere/DeepScrapexter/internal/template"
	"github.com/valpere/DeepScrapexter/internal/utils"
)

const (
	// GlobalMaxPages caps any run regardless of strategy. A template
	// maxPages below this lowers the budget, never raises it.
	GlobalMaxPages = 100

	// offsetPageCap bounds the URL-parameter iteration specifically.
	offsetPageCap = 200

	// emptyPageLimit stops a run after this many consecutive pages with no
	// previously-unseen records.
	emptyPageLimit = 3

	defaultPause = 2 * time.Second
)

// DefaultItemCountSelectors probe how many content items a page carries when
// the template gives no container selector to count.
var DefaultItemCountSelectors = []string{
	".directory-item",
	"[class*=\"card\"]",
	"[class*=\"item\"]",
	"[class*=\"result\"]",
	"article",
}

// ExtractFunc turns one fetched page into records. The controller stays
// agnostic of container versus page-level extraction; the session wires in
// whichever applies.
type ExtractFunc func(ctx context.Context, page dom.Page) ([]extractor.Record, []error)

// Config carries the per-run settings.
type Config struct {
	// Spec is the template's pagination block. Nil or unusable means a
	// single-page run.
	Spec *template.PaginationSpec

	// ContainerSelector is counted first when probing page content size
	ContainerSelector string

	// FetchOptions are the base options for every page fetch
	FetchOptions fetch.Options

	// The session can override the package limits. Zero keeps the default.
	MaxPages       int
	EmptyPageLimit int
	OffsetPageCap  int
	ScrollAttempts int
	StableProbes   int

	// Jitter adds up to a second of random extra delay between page loads
	// so request timing does not look mechanical.
	Jitter bool
}

// Result aggregates a finished run.
type Result struct {
	Records      []extractor.Record
	Errors       []error
	PagesFetched int
	Strategy     string
	LimitReached bool
}

// Controller runs the pagination state machine over one listing URL.
type Controller struct {
	fetcher  fetch.Fetcher
	resolver *resolver.Resolver
	extract  ExtractFunc
	config   Config
	logger   zerolog.Logger
}

// NewController wires a controller for one run.
func NewController(fetcher fetch.Fetcher, extract ExtractFunc, config Config) *Controller {
	return &Controller{
		fetcher:  fetcher,
		resolver: resolver.New(),
		extract:  extract,
		config:   config,
		logger:   utils.NewComponentLogger("paginate"),
	}
}

// Run fetches pages starting at startURL until the strategy reports no more
// content, a budget is hit, or the context ends. A failed first fetch is an
// error; later fetch failures end the run with what was collected.
func (c *Controller) Run(ctx context.Context, startURL string) (*Result, error) {
	strategy := c.config.Spec.EffectiveKind()
	result := &Result{Strategy: strategy}
	agg := newAggregator()

	var err error
	switch strategy {
	case template.PaginationButton:
		err = c.runClickThrough(ctx, startURL, c.config.Spec.NextSelector, agg, result)
	case template.PaginationLoadMore:
		err = c.runClickThrough(ctx, startURL, c.config.Spec.LoadMoreSelector, agg, result)
	case template.PaginationURLPattern:
		err = c.runURLPattern(ctx, agg, result)
	case template.PaginationURLOffset:
		err = c.runURLOffset(ctx, startURL, agg, result)
	case template.PaginationInfiniteScroll:
		err = c.runInfiniteScroll(ctx, startURL, agg, result)
	default:
		err = c.runSinglePage(ctx, startURL, agg, result)
	}

	if err != nil {
		// The page budget is a normal way for a run to end.
		if !errors.Is(err, scrapererr.ErrPaginationLimit) {
			return nil, err
		}
		result.LimitReached = true
	}

	result.Records = agg.records
	result.Errors = agg.errs
	c.logger.Info().
		Str("strategy", strategy).
		Int("pages", result.PagesFetched).
		Int("records", len(result.Records)).
		Bool("limitReached", result.LimitReached).
		Msg("pagination run complete")
	return result, nil
}

// consume extracts one page into the aggregate and reports how many of its
// records were new.
func (c *Controller) consume(ctx context.Context, page dom.Page, agg *aggregator) int {
	records, errs := c.extract(ctx, page)
	agg.errs = append(agg.errs, errs...)
	added := agg.add(records)
	c.logger.Debug().
		Str("url", page.URL()).
		Int("records", len(records)).
		Int("new", added).
		Msg("page extracted")
	return added
}

func (c *Controller) fetchPage(ctx context.Context, pageURL string, opts fetch.Options) (dom.Page, error) {
	c.logger.Debug().Str("url", pageURL).Msg("fetching page")
	return c.fetcher.Fetch(ctx, pageURL, opts)
}

// pageBudget resolves the hard page cap for this run. The template can lower
// the configured budget, never raise it.
func (c *Controller) pageBudget() int {
	budget := GlobalMaxPages
	if c.config.MaxPages > 0 {
		budget = c.config.MaxPages
	}
	if c.config.Spec != nil && c.config.Spec.MaxPages > 0 && c.config.Spec.MaxPages < budget {
		budget = c.config.Spec.MaxPages
	}
	return budget
}

// emptyLimit resolves how many consecutive record-free pages end a run.
func (c *Controller) emptyLimit() int {
	if c.config.EmptyPageLimit > 0 {
		return c.config.EmptyPageLimit
	}
	return emptyPageLimit
}

// offsetCap resolves the extra bound on URL-parameter iteration.
func (c *Controller) offsetCap() int {
	if c.config.OffsetPageCap > 0 {
		return c.config.OffsetPageCap
	}
	return offsetPageCap
}

// pause is the politeness delay between page loads. The template loader
// defaults ScrollPauseSeconds to 2, so a zero here is a deliberate opt-out.
func (c *Controller) pause() time.Duration {
	d := defaultPause
	if c.config.Spec != nil {
		if c.config.Spec.ScrollPauseSeconds <= 0 {
			return 0
		}
		d = time.Duration(c.config.Spec.ScrollPauseSeconds) * time.Second
	}
	if c.config.Jitter {
		d += time.Duration(rand.Intn(1000)) * time.Millisecond
	}
	return d
}

// itemCountSelectors resolves the probe selectors for content counting.
func (c *Controller) itemCountSelectors() []string {
	if c.config.Spec != nil && len(c.config.Spec.ItemCountSelectors) > 0 {
		return c.config.Spec.ItemCountSelectors
	}
	if c.config.ContainerSelector != "" {
		return append([]string{c.config.ContainerSelector}, DefaultItemCountSelectors...)
	}
	return DefaultItemCountSelectors
}

// contentCount measures a page as the largest match count across the probe
// selectors.
func (c *Controller) contentCount(page dom.Page) int {
	best := 0
	for _, sel := range c.itemCountSelectors() {
		if n := len(c.resolver.Query(page, sel, "")); n > best {
			best = n
		}
	}
	return best
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// aggregator collects records across pages, dropping exact duplicates.
type aggregator struct {
	records []extractor.Record
	seen    map[string]struct{}
	errs    []error
}

func newAggregator() *aggregator {
	return &aggregator{seen: make(map[string]struct{})}
}

// add appends records not seen before and reports how many were new.
func (a *aggregator) add(records []extractor.Record) int {
	added := 0
	for _, record := range records {
		fp := utils.RecordFingerprint(record)
		if _, dup := a.seen[fp]; dup {
			continue
		}
		a.seen[fp] = struct{}{}
		a.records = append(a.records, record)
		added++
	}
	return added
}

// MergeFieldRecords folds the per-page records of a fields-only template
// into one: scalar values keep the first page's value, list values
// concatenate with duplicates dropped.
func MergeFieldRecords(records []extractor.Record) extractor.Record {
	merged := extractor.Record{}
	for _, record := range records {
		for key, value := range record {
			list, isList := value.([]string)
			if !isList {
				if _, exists := merged[key]; !exists {
					merged[key] = value
				}
				continue
			}
			existing, _ := merged[key].([]string)
			merged[key] = appendMissing(existing, list)
		}
	}
	return merged
}

func appendMissing(dst, src []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range src {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}
