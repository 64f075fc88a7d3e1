// internal/session/session.go

// Package session wires one template through fetching, pagination, container
// extraction, the subpage pass, and filtering into a final record list. The
// session owns the run envelope and the component plumbing; it extracts
// nothing itself.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/valpere/DeepScrapexter/internal/browser"
	"github.com/valpere/DeepScrapexter/internal/dom"
	"github.com/valpere/DeepScrapexter/internal/extractor"
	"github.com/valpere/DeepScrapexter/internal/fetch"
	"github.com/valpere/DeepScrapexter/internal/monitoring"
	"github.com/valpere/DeepScrapexter/internal/paginate"
	"github.com/valpere/DeepScrapexter/internal/pipeline"
	"github.com/valpere/DeepScrapexter/internal/resolver"
	"github.com/valpere/DeepScrapexter/internal/scrapererr"
	"github.com/valpere/DeepScrapexter/internal/subpage"
	"github.com/valpere/DeepScrapexter/internal/template"
	"github.com/valpere/DeepScrapexter/internal/utils"
)

// Metadata describes one finished run.
type Metadata struct {
	SessionID       string    `json:"sessionId"`
	TemplateName    string    `json:"templateName"`
	URL             string    `json:"url"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
	PagesFetched    int       `json:"pagesFetched"`
	SubpagesFetched int       `json:"subpagesFetched"`
	RecordCount     int       `json:"recordCount"`
}

// Result is the envelope a run returns. Errors are per-record and per-page
// failures that did not stop the run; records carry whatever extracted
// cleanly.
type Result struct {
	Records  []extractor.Record `json:"records"`
	Errors   []string           `json:"errors,omitempty"`
	Metadata Metadata           `json:"metadata"`
}

// Session runs one template. Construct with New or NewWithFetcher, reuse
// for any number of runs, and Close when done.
type Session struct {
	id        string
	tpl       *template.Template
	config    Config
	fetcher   fetch.Fetcher
	extractor *extractor.Extractor
	closer    interface{ Close() error }
	logger    zerolog.Logger
}

// New builds a session for a template. Headless templates get a browser
// pool sized to the configured concurrency; the rest fetch over plain HTTP.
func New(tpl *template.Template, config Config) (*Session, error) {
	if tpl == nil {
		return nil, &scrapererr.TemplateError{Err: fmt.Errorf("template cannot be nil")}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := newSession(tpl, config)
	if tpl.Headless {
		pool := browser.NewPool(s.browserConfig(), config.MaxConcurrency)
		s.fetcher = pool
		s.closer = pool
	} else {
		s.fetcher = fetch.NewStaticFetcher(fetch.StaticConfig{
			Timeout:    s.pageTimeout(),
			UserAgents: config.UserAgents,
			RateLimit:  config.RatePerSecond,
		})
	}
	return s, nil
}

// NewWithFetcher builds a session around a caller-owned fetcher. The
// session will not close it.
func NewWithFetcher(tpl *template.Template, config Config, fetcher fetch.Fetcher) (*Session, error) {
	if tpl == nil {
		return nil, &scrapererr.TemplateError{Err: fmt.Errorf("template cannot be nil")}
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := newSession(tpl, config)
	s.fetcher = fetcher
	return s, nil
}

func newSession(tpl *template.Template, config Config) *Session {
	id := uuid.NewString()
	return &Session{
		id:        id,
		tpl:       tpl,
		config:    config,
		extractor: extractor.NewWithAllowList(resolver.New(), config.AllowList()),
		logger:    utils.NewComponentLogger("session").With().Str("session", id).Logger(),
	}
}

// ID returns the session's identifier, present on every envelope and log
// line the session produces.
func (s *Session) ID() string {
	return s.id
}

// Run executes the template against its own URL.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	return s.run(ctx, s.tpl.URL)
}

// RunURL executes the template against one listing URL, overriding the
// template's own.
func (s *Session) RunURL(ctx context.Context, url string) (*Result, error) {
	return s.run(ctx, url)
}

// RunBatch executes the template against several listing URLs in order,
// waiting BatchDelay between them. Every URL gets its own envelope; a URL
// whose run fails contributes an error envelope instead of aborting the
// batch.
func (s *Session) RunBatch(ctx context.Context, urls []string) ([]*Result, error) {
	results := make([]*Result, 0, len(urls))
	for i, u := range urls {
		if i > 0 {
			if err := sleep(ctx, s.config.BatchDelay); err != nil {
				return results, err
			}
		}

		started := time.Now()
		result, err := s.run(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			s.logger.Error().Str("url", u).Err(err).Msg("batch entry failed")
			result = &Result{
				Errors: []string{err.Error()},
				Metadata: Metadata{
					SessionID:    s.id,
					TemplateName: s.tpl.Name,
					URL:          u,
					StartedAt:    started,
					FinishedAt:   time.Now(),
				},
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// Close releases the fetcher when the session owns it.
func (s *Session) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// runState carries what the per-page extraction learns back to the subpage
// pass. Pagination is sequential, so no locking.
type runState struct {
	subpageOnly bool
}

func (s *Session) run(ctx context.Context, startURL string) (*Result, error) {
	if startURL == "" {
		return nil, &scrapererr.TemplateError{Err: fmt.Errorf("template has no url and none was given")}
	}

	started := time.Now()
	s.logger.Info().Str("template", s.tpl.Name).Str("url", startURL).Msg("run started")

	monitoring.Default().SessionStarted()
	defer func() { monitoring.Default().SessionFinished(time.Since(started)) }()

	state := &runState{}
	controller := paginate.NewController(s.fetcher, s.extractFunc(state), paginate.Config{
		Spec:              s.tpl.Pagination,
		ContainerSelector: s.containerSelector(),
		FetchOptions:      s.fetchOptions(),
		MaxPages:          s.config.MaxPages,
		EmptyPageLimit:    s.config.ConsecutiveEmptyPages,
		OffsetPageCap:     s.config.OffsetPageCap,
		ScrollAttempts:    s.config.ScrollAttempts,
		StableProbes:      s.config.StableProbes,
		Jitter:            s.tpl.RandomDelays,
	})

	pr, err := controller.Run(ctx, startURL)
	if err != nil {
		return nil, err
	}

	stopReason := monitoring.StopReasonExhausted
	if pr.LimitReached {
		stopReason = monitoring.StopReasonLimit
	}
	monitoring.Default().RecordPaginationStop(stopReason)

	records := pr.Records
	errs := pr.Errors

	subpagesFetched := 0
	if s.followsSubpages() {
		var subErrs []error
		records, subpagesFetched, subErrs = s.subpagePass(ctx, records, state)
		errs = append(errs, subErrs...)
	}

	// A fields-only template yields one record per page; fold the pages
	// into a single document.
	if s.tpl.Container == nil && len(records) > 1 {
		records = []extractor.Record{paginate.MergeFieldRecords(records)}
	}

	records = pipeline.ApplyFilters(records, s.tpl.Filters)
	monitoring.Default().RecordRecordsExtracted(s.tpl.Name, len(records))

	result := &Result{
		Records: records,
		Errors:  errorStrings(errs),
		Metadata: Metadata{
			SessionID:       s.id,
			TemplateName:    s.tpl.Name,
			URL:             startURL,
			StartedAt:       started,
			FinishedAt:      time.Now(),
			PagesFetched:    pr.PagesFetched,
			SubpagesFetched: subpagesFetched,
			RecordCount:     len(records),
		},
	}

	s.logger.Info().
		Str("template", s.tpl.Name).
		Int("records", result.Metadata.RecordCount).
		Int("pages", result.Metadata.PagesFetched).
		Int("subpages", result.Metadata.SubpagesFetched).
		Int("errors", len(result.Errors)).
		Dur("took", result.Metadata.FinishedAt.Sub(result.Metadata.StartedAt)).
		Msg("run finished")
	return result, nil
}

// extractFunc builds the per-page extraction step the pagination controller
// drives. Container templates run the container pass; bare field lists
// extract the page as one record.
func (s *Session) extractFunc(state *runState) paginate.ExtractFunc {
	if spec := s.tpl.Container; spec != nil {
		opts := extractor.ContainerOptions{
			SubpageURLPattern:    s.tpl.SubpageURLPattern,
			SubpageOnlyThreshold: s.threshold(),
		}
		return func(ctx context.Context, page dom.Page) ([]extractor.Record, []error) {
			res := s.extractor.ExtractContainer(ctx, spec, page, opts)
			if res.SubpageOnly {
				state.subpageOnly = true
			}
			return res.Records, res.Errors
		}
	}

	fields := s.tpl.Fields
	return func(ctx context.Context, page dom.Page) ([]extractor.Record, []error) {
		record, errs := s.extractor.ExtractFields(ctx, fields, page, resolver.ContextDirectory)
		if len(record) == 0 {
			return nil, errs
		}
		return []extractor.Record{record}, errs
	}
}

// subpagePass fetches the profile pages behind the directory records and
// merges what they yield. Failed tasks surface as errors, not lost records.
func (s *Session) subpagePass(ctx context.Context, records []extractor.Record, state *runState) ([]extractor.Record, int, []error) {
	tasks := subpage.BuildTasks(records, s.tpl.MaxSubpages, s.tpl.SubpageURLPattern)
	if len(tasks) == 0 {
		if state.subpageOnly || s.staticSubpageOnly() {
			// Every field was deferred to profile pages, and there are no
			// profile links to follow.
			s.logger.Warn().Str("template", s.tpl.Name).Msg("subpage-only container yielded no profile links")
			return records, 0, []error{fmt.Errorf("subpage-only container yielded no profile links, subpage fields are unrecoverable")}
		}
		return records, 0, nil
	}

	scheduler := subpage.NewScheduler(s.fetcher, subpage.Config{
		MaxConcurrency: s.config.MaxConcurrency,
		TaskTimeout:    s.config.SubpageTaskTimeout,
		RequestDelay:   s.config.RequestDelay,
		FetchOptions:   s.fetchOptions(),
		Extractor:      s.extractor,
	})
	results := scheduler.Run(ctx, tasks, s.subpageFields(state))
	records = subpage.Merge(records, results, tasks)

	fetched := 0
	var errs []error
	for _, task := range tasks {
		switch task.Status {
		case subpage.StatusCompleted:
			fetched++
		case subpage.StatusFailed:
			errs = append(errs, fmt.Errorf("subpage %s: %s", task.URL, task.Err))
		}
	}
	return records, fetched, errs
}

// subpageFields is the field set extracted on each profile page. When the
// container is subpage-only the directory sub-fields move there too, since
// the listing page had nothing to give them.
func (s *Session) subpageFields(state *runState) []template.FieldSpec {
	spec := s.tpl.Container
	fields := spec.SubpageFields
	if !state.subpageOnly && !s.staticSubpageOnly() {
		return fields
	}

	combined := make([]template.FieldSpec, 0, len(fields)+len(spec.SubFields))
	combined = append(combined, fields...)
	for _, f := range spec.SubFields {
		if !hasLabel(combined, f.Label) {
			combined = append(combined, f)
		}
	}
	return combined
}

// staticSubpageOnly classifies the template by shape alone: when most of
// its fields live on subpages, the directory pass is a link harvest.
func (s *Session) staticSubpageOnly() bool {
	spec := s.tpl.Container
	if spec == nil || len(spec.SubpageFields) == 0 {
		return false
	}
	return s.tpl.SubpageShare() >= s.threshold()
}

func (s *Session) followsSubpages() bool {
	spec := s.tpl.Container
	return spec != nil && spec.FollowLinks && len(spec.SubpageFields) > 0
}

func (s *Session) threshold() float64 {
	if s.tpl.SubpageOnlyThreshold > 0 {
		return s.tpl.SubpageOnlyThreshold
	}
	return s.config.SubpageOnlyThreshold
}

func (s *Session) containerSelector() string {
	if s.tpl.Container == nil {
		return ""
	}
	return s.tpl.Container.Selector
}

func (s *Session) pageTimeout() time.Duration {
	if s.tpl.PageLoadTimeoutSeconds > 0 {
		return time.Duration(s.tpl.PageLoadTimeoutSeconds) * time.Second
	}
	return 0
}

func (s *Session) fetchOptions() fetch.Options {
	return fetch.Options{
		Headless:  s.tpl.Headless,
		Timeout:   s.pageTimeout(),
		UserAgent: s.tpl.UserAgent,
		Cookies:   s.tpl.Cookies,
	}
}

func (s *Session) browserConfig() *browser.Config {
	config := browser.DefaultConfig()
	config.UserAgent = s.tpl.UserAgent
	if t := s.pageTimeout(); t > 0 {
		config.NavigationTimeout = t
	}
	return config
}

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}

func hasLabel(fields []template.FieldSpec, label string) bool {
	for i := range fields {
		if fields[i].Label == label {
			return true
		}
	}
	return false
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
