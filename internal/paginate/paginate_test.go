// internal/paginate/paginate_test.go

package paginate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/valpere/DeepScrapexter/internal/dom"
	"github.com/valpere/DeepScrapexter/internal/extractor"
	"github.com/valpere/DeepScrapexter/internal/fetch"
	"github.com/valpere/DeepScrapexter/internal/scrapererr"
	"github.com/valpere/DeepScrapexter/internal/template"
)

// pageMap serves fixed HTML per URL and records every fetch.
type pageMap struct {
	pages   map[string]string
	calls   []string
	actions int
}

func (f *pageMap) Fetch(ctx context.Context, pageURL string, opts fetch.Options) (dom.Page, error) {
	f.calls = append(f.calls, pageURL)
	if opts.PageAction != nil {
		f.actions++
	}
	html, ok := f.pages[pageURL]
	if !ok {
		return nil, &scrapererr.FetchError{URL: pageURL, Attempts: 1, Err: errors.New("no such page")}
	}
	return dom.ParseString(html, pageURL)
}

// pageSequence serves HTML in fetch order regardless of URL, repeating the
// last page once exhausted. It stands in for click-driven listings whose
// content changes under a fixed URL.
type pageSequence struct {
	pages   []string
	calls   []string
	actions int
}

func (f *pageSequence) Fetch(ctx context.Context, pageURL string, opts fetch.Options) (dom.Page, error) {
	f.calls = append(f.calls, pageURL)
	if opts.PageAction != nil {
		f.actions++
	}
	i := len(f.calls) - 1
	if i >= len(f.pages) {
		i = len(f.pages) - 1
	}
	return dom.ParseString(f.pages[i], pageURL)
}

// cardsPage builds a listing fixture with one .card per name.
func cardsPage(withNext bool, names ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><div class=\"list\">")
	for _, name := range names {
		fmt.Fprintf(&b, "<div class=\"card\"><h3>%s</h3></div>", name)
	}
	b.WriteString("</div>")
	if withNext {
		b.WriteString("<a class=\"next\" href=\"#\">Next</a>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

// cardNames extracts one record per .card with its heading text.
func cardNames(ctx context.Context, page dom.Page) ([]extractor.Record, []error) {
	elements, err := page.QuerySelectorAll(".card h3", dom.KindCSS)
	if err != nil {
		return nil, []error{err}
	}
	records := make([]extractor.Record, 0, len(elements))
	for _, el := range elements {
		records = append(records, extractor.Record{"name": el.Text()})
	}
	return records, nil
}

func names(records []extractor.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		if s, ok := r["name"].(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func TestRunSinglePage(t *testing.T) {
	fetcher := &pageMap{pages: map[string]string{
		"https://example.com/people": cardsPage(false, "Jane Cooper", "Tom Hale"),
	}}
	c := NewController(fetcher, cardNames, Config{})

	result, err := c.Run(context.Background(), "https://example.com/people")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Strategy != template.PaginationNone {
		t.Errorf("Strategy = %q, want none", result.Strategy)
	}
	if result.PagesFetched != 1 {
		t.Errorf("PagesFetched = %d, want 1", result.PagesFetched)
	}
	if len(result.Records) != 2 {
		t.Errorf("Records = %v, want 2 records", names(result.Records))
	}
}

func TestRunSinglePageFetchFailure(t *testing.T) {
	fetcher := &pageMap{pages: map[string]string{}}
	c := NewController(fetcher, cardNames, Config{})

	if _, err := c.Run(context.Background(), "https://example.com/missing"); err == nil {
		t.Fatal("Run() on an unfetchable start URL should fail")
	}
}

func TestRunButtonStopsWhenControlAbsent(t *testing.T) {
	fetcher := &pageSequence{pages: []string{
		cardsPage(true, "Jane Cooper", "Tom Hale"),
		cardsPage(false, "Ana Ruiz", "Ken Obi"),
	}}
	spec := &template.PaginationSpec{Kind: template.PaginationButton, NextSelector: "a.next"}
	c := NewController(fetcher, cardNames, Config{Spec: spec, ContainerSelector: ".card"})

	result, err := c.Run(context.Background(), "https://example.com/people")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.PagesFetched != 2 {
		t.Errorf("PagesFetched = %d, want 2", result.PagesFetched)
	}
	if got := names(result.Records); len(got) != 4 {
		t.Errorf("Records = %v, want 4 names across both pages", got)
	}
	if fetcher.actions != 1 {
		t.Errorf("click actions = %d, want 1 (only the re-fetch clicks)", fetcher.actions)
	}
	for _, u := range fetcher.calls {
		if u != "https://example.com/people" {
			t.Errorf("fetched %q, want every fetch on the listing URL", u)
		}
	}
}

func TestRunButtonHonorsMaxPages(t *testing.T) {
	// Every page shows the next control and fresh content; only the page
	// budget can stop the run.
	pages := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		pages = append(pages, cardsPage(true, fmt.Sprintf("Person %d", i)))
	}
	fetcher := &pageSequence{pages: pages}
	spec := &template.PaginationSpec{Kind: template.PaginationButton, NextSelector: "a.next", MaxPages: 3}
	c := NewController(fetcher, cardNames, Config{Spec: spec})

	result, err := c.Run(context.Background(), "https://example.com/people")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.PagesFetched != 3 || len(fetcher.calls) != 3 {
		t.Errorf("PagesFetched = %d (calls %d), want exactly 3", result.PagesFetched, len(fetcher.calls))
	}
	if !result.LimitReached {
		t.Error("LimitReached = false, want true at the page budget")
	}
	if len(result.Records) != 3 {
		t.Errorf("Records = %v, want one per fetched page", names(result.Records))
	}
}

func TestRunButtonStopsOnStaleContent(t *testing.T) {
	// The control never disappears but the content stops changing; the run
	// must end after three loads with nothing new.
	same := cardsPage(true, "Jane Cooper")
	fetcher := &pageSequence{pages: []string{same, same, same, same, same, same}}
	spec := &template.PaginationSpec{Kind: template.PaginationButton, NextSelector: "a.next"}
	c := NewController(fetcher, cardNames, Config{Spec: spec})

	result, err := c.Run(context.Background(), "https://example.com/people")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.PagesFetched != 4 {
		t.Errorf("PagesFetched = %d, want 4 (first load plus three stale loads)", result.PagesFetched)
	}
	if len(result.Records) != 1 {
		t.Errorf("Records = %v, want the single deduplicated record", names(result.Records))
	}
}

func TestRunURLPattern(t *testing.T) {
	fetcher := &pageMap{pages: map[string]string{
		"https://example.com/people/page/1": cardsPage(false, "Jane Cooper"),
		"https://example.com/people/page/2": cardsPage(false, "Tom Hale"),
		"https://example.com/people/page/3": cardsPage(false, "Ana Ruiz"),
	}}
	spec := &template.PaginationSpec{
		Kind:       template.PaginationURLPattern,
		URLPattern: "https://example.com/people/page/{page}",
		StartPage:  1,
		MaxPages:   2,
	}
	c := NewController(fetcher, cardNames, Config{Spec: spec})

	result, err := c.Run(context.Background(), "https://example.com/people")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.PagesFetched != 2 || !result.LimitReached {
		t.Errorf("PagesFetched = %d (limit %v), want 2 with the limit reached", result.PagesFetched, result.LimitReached)
	}
	want := []string{"https://example.com/people/page/1", "https://example.com/people/page/2"}
	if len(fetcher.calls) != 2 || fetcher.calls[0] != want[0] || fetcher.calls[1] != want[1] {
		t.Errorf("calls = %v, want %v", fetcher.calls, want)
	}
}

func TestRunURLPatternStopsOnFetchFailure(t *testing.T) {
	fetcher := &pageMap{pages: map[string]string{
		"https://example.com/people/page/1": cardsPage(false, "Jane Cooper"),
	}}
	spec := &template.PaginationSpec{
		Kind:       template.PaginationURLPattern,
		URLPattern: "https://example.com/people/page/{page}",
	}
	c := NewController(fetcher, cardNames, Config{Spec: spec})

	result, err := c.Run(context.Background(), "https://example.com/people")
	if err != nil {
		t.Fatalf("Run() error = %v, want mid-run failures absorbed", err)
	}
	if result.PagesFetched != 1 {
		t.Errorf("PagesFetched = %d, want 1", result.PagesFetched)
	}
	if len(result.Errors) != 1 {
		t.Errorf("Errors = %v, want the failed page recorded", result.Errors)
	}
	if len(result.Records) != 1 {
		t.Errorf("Records = %v, want the first page kept", names(result.Records))
	}
}

func TestRunURLOffset(t *testing.T) {
	fetcher := &pageMap{pages: map[string]string{
		"https://example.com/people":           cardsPage(false, "Jane Cooper", "Tom Hale", "Ana Ruiz"),
		"https://example.com/people?offset=20": cardsPage(false, "Ken Obi", "Mia Wong"),
	}}
	spec := &template.PaginationSpec{Kind: template.PaginationURLOffset}
	c := NewController(fetcher, cardNames, Config{Spec: spec, ContainerSelector: ".card"})

	result, err := c.Run(context.Background(), "https://example.com/people")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Base page, the adopted trial, the first offset page, then the failed
	// offset=40 fetch ends the run. Trial pages count toward the budget but
	// are not extracted, so the offset=20 records appear exactly once.
	if got := names(result.Records); len(got) != 5 {
		t.Errorf("Records = %v, want 5 unique names", got)
	}
	if result.PagesFetched != 3 {
		t.Errorf("PagesFetched = %d, want 3 (base, trial, first offset page)", result.PagesFetched)
	}
	if fetcher.calls[1] != "https://example.com/people?offset=20" {
		t.Errorf("first probe = %q, want the offset candidate", fetcher.calls[1])
	}
	last := fetcher.calls[len(fetcher.calls)-1]
	if last != "https://example.com/people?offset=40" {
		t.Errorf("last fetch = %q, want offset=40", last)
	}
	if len(result.Errors) != 1 {
		t.Errorf("Errors = %v, want the final failed fetch recorded", result.Errors)
	}
}

func TestRunURLOffsetNoWorkingParam(t *testing.T) {
	// Every candidate either fails or shows the same count as the base, so
	// only the base page is extracted.
	fetcher := &pageMap{pages: map[string]string{
		"https://example.com/people":        cardsPage(false, "Jane Cooper", "Tom Hale"),
		"https://example.com/people?page=1": cardsPage(false, "Jane Cooper", "Tom Hale"),
	}}
	spec := &template.PaginationSpec{Kind: template.PaginationURLOffset}
	c := NewController(fetcher, cardNames, Config{Spec: spec, ContainerSelector: ".card"})

	result, err := c.Run(context.Background(), "https://example.com/people")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Records) != 2 {
		t.Errorf("Records = %v, want just the base page", names(result.Records))
	}
}

func TestProbeOffsetParamIdempotent(t *testing.T) {
	fetcher := &pageMap{pages: map[string]string{
		"https://example.com/people?skip=20": cardsPage(false, "Ken Obi", "Mia Wong"),
	}}
	spec := &template.PaginationSpec{Kind: template.PaginationURLOffset}
	c := NewController(fetcher, cardNames, Config{Spec: spec, ContainerSelector: ".card"})

	first, ok := c.probeOffsetParam(context.Background(), "https://example.com/people", 3, GlobalMaxPages, &Result{})
	if !ok {
		t.Fatal("probe should adopt the skip parameter")
	}
	second, ok := c.probeOffsetParam(context.Background(), "https://example.com/people", 3, GlobalMaxPages, &Result{})
	if !ok || first.name != second.name {
		t.Errorf("probe adopted %q then %q, want the same parameter both times", first.name, second.name)
	}
	if first.name != "skip" {
		t.Errorf("adopted param = %q, want skip", first.name)
	}
}

func TestRunInfiniteScrollFetchesOnce(t *testing.T) {
	fetcher := &pageMap{pages: map[string]string{
		"https://example.com/people": cardsPage(false, "Jane Cooper", "Tom Hale"),
	}}
	spec := &template.PaginationSpec{Kind: template.PaginationInfiniteScroll}
	c := NewController(fetcher, cardNames, Config{Spec: spec, ContainerSelector: ".card"})

	result, err := c.Run(context.Background(), "https://example.com/people")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.PagesFetched != 1 {
		t.Errorf("PagesFetched = %d, want 1", result.PagesFetched)
	}
	if fetcher.actions != 1 {
		t.Errorf("page actions = %d, want the scroll action attached", fetcher.actions)
	}
	if len(result.Records) != 2 {
		t.Errorf("Records = %v, want both cards", names(result.Records))
	}
}

func TestPageBudget(t *testing.T) {
	testCases := []struct {
		name     string
		maxPages int
		want     int
	}{
		{"unset uses global cap", 0, GlobalMaxPages},
		{"small template cap wins", 5, 5},
		{"large template cap is clamped", 500, GlobalMaxPages},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewController(nil, nil, Config{Spec: &template.PaginationSpec{MaxPages: tc.maxPages}})
			if got := c.pageBudget(); got != tc.want {
				t.Errorf("pageBudget() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestContentCount(t *testing.T) {
	page, err := dom.ParseString(cardsPage(false, "A", "B", "C"), "https://example.com")
	if err != nil {
		t.Fatal(err)
	}

	c := NewController(nil, nil, Config{ContainerSelector: ".card"})
	if got := c.contentCount(page); got != 3 {
		t.Errorf("contentCount() = %d, want 3 via the container selector", got)
	}

	// Without a container selector the defaults still find class*="card".
	c2 := NewController(nil, nil, Config{})
	if got := c2.contentCount(page); got != 3 {
		t.Errorf("contentCount() = %d, want 3 via default probes", got)
	}
}

func TestSetQueryParam(t *testing.T) {
	testCases := []struct {
		name  string
		url   string
		param string
		value int
		want  string
	}{
		{"adds param", "https://e.com/people", "offset", 20, "https://e.com/people?offset=20"},
		{"replaces param", "https://e.com/people?offset=20", "offset", 40, "https://e.com/people?offset=40"},
		{"keeps other params", "https://e.com/people?q=law", "page", 2, "https://e.com/people?page=2&q=law"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := setQueryParam(tc.url, tc.param, tc.value)
			if err != nil {
				t.Fatalf("setQueryParam() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("setQueryParam() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAggregatorDeduplicates(t *testing.T) {
	agg := newAggregator()

	first := agg.add([]extractor.Record{{"name": "Jane"}, {"name": "Tom"}})
	if first != 2 {
		t.Errorf("first add = %d new, want 2", first)
	}
	second := agg.add([]extractor.Record{{"name": "Tom"}, {"name": "Ana"}})
	if second != 1 {
		t.Errorf("second add = %d new, want 1", second)
	}
	if len(agg.records) != 3 {
		t.Errorf("records = %d, want 3", len(agg.records))
	}
}

func TestMergeFieldRecords(t *testing.T) {
	merged := MergeFieldRecords([]extractor.Record{
		{"title": "Our People", "tags": []string{"corporate", "tax"}},
		{"title": "Our People - Page 2", "tags": []string{"tax", "litigation"}},
	})

	if merged["title"] != "Our People" {
		t.Errorf("title = %v, want the first page's value", merged["title"])
	}
	tags, _ := merged["tags"].([]string)
	want := []string{"corporate", "tax", "litigation"}
	if len(tags) != len(want) {
		t.Fatalf("tags = %v, want %v", tags, want)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Errorf("tags[%d] = %q, want %q", i, tags[i], want[i])
		}
	}
}
