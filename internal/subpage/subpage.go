// internal/subpage/subpage.go

// Package subpage fetches the pages behind directory profile links and
// extracts the fields the listing page could not provide. Fetches run on a
// bounded worker pool; every task is independent, so one failure never
// affects its siblings.
package subpage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/valpere/DeepScrapexter/internal/extractor"
	"github.com/valpere/DeepScrapexter/internal/fetch"
	"github.com/valpere/DeepScrapexter/internal/monitoring"
	"github.com/valpere/DeepScrapexter/internal/resolver"
	"github.com/valpere/DeepScrapexter/internal/template"
	"github.com/valpere/DeepScrapexter/internal/utils"
)

// Scheduler defaults.
const (
	DefaultMaxConcurrency = 5
	DefaultTaskTimeout    = 30 * time.Second
	DefaultRequestDelay   = time.Second
)

// Task states.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Task is one profile page visit tied back to the directory row it came
// from. A task leaves pending exactly once and is never reopened.
type Task struct {
	URL            string
	ContainerIndex int
	Status         string
	Data           extractor.Record
	Err            string
}

func (t *Task) complete(data extractor.Record) {
	if t.Status != StatusPending {
		return
	}
	t.Status = StatusCompleted
	t.Data = data
}

func (t *Task) fail(reason string) {
	if t.Status != StatusPending {
		return
	}
	t.Status = StatusFailed
	t.Err = reason
}

// Config tunes one subpage pass. Zero MaxConcurrency and TaskTimeout fall
// back to the defaults; a zero RequestDelay means no delay, since callers
// that want politeness set it explicitly.
type Config struct {
	MaxConcurrency int
	TaskTimeout    time.Duration
	RequestDelay   time.Duration
	FetchOptions   fetch.Options

	// Extractor, when set, replaces the scheduler's own so the caller can
	// share a configured resolver and allow-list with the directory pass.
	Extractor *extractor.Extractor
}

// BuildTasks turns directory records into the subpage work list: one task
// per distinct profile link, in record order. Links that are not absolute
// HTTP URLs are skipped, pattern (when set) must appear in the URL, and
// maxSubpages caps the list. Duplicate links collapse onto the first record
// that carried them.
func BuildTasks(records []extractor.Record, maxSubpages int, pattern string) []*Task {
	tasks := make([]*Task, 0, len(records))
	seen := make(map[string]struct{}, len(records))

	for i, record := range records {
		link, _ := record[extractor.MetaProfileLink].(string)
		if !utils.IsAbsoluteHTTPURL(link) {
			continue
		}
		if pattern != "" && !strings.Contains(link, pattern) {
			continue
		}
		key := normalizedKey(link)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		index := i
		if v, ok := record[extractor.MetaContainerIndex].(int); ok {
			index = v
		}
		tasks = append(tasks, &Task{URL: link, ContainerIndex: index, Status: StatusPending})
		if maxSubpages > 0 && len(tasks) >= maxSubpages {
			break
		}
	}
	return tasks
}

// Scheduler runs subpage tasks against a fetcher with bounded concurrency.
type Scheduler struct {
	fetcher   fetch.Fetcher
	extractor *extractor.Extractor
	config    Config
	logger    zerolog.Logger
}

// NewScheduler creates a scheduler. Without a configured extractor it builds
// its own around a fresh resolver.
func NewScheduler(fetcher fetch.Fetcher, config Config) *Scheduler {
	ex := config.Extractor
	if ex == nil {
		ex = extractor.New(resolver.New())
	}
	return &Scheduler{
		fetcher:   fetcher,
		extractor: ex,
		config:    config,
		logger:    utils.NewComponentLogger("subpage"),
	}
}

// Run fetches every task's page and extracts fields from it, returning a
// map from normalized task URL to the fields that page yielded. Failed
// tasks are absent from the map. Run mutates task status in place; tasks it
// never reached before cancellation are marked failed.
func (s *Scheduler) Run(ctx context.Context, tasks []*Task, fields []template.FieldSpec) map[string]extractor.Record {
	results := make(map[string]extractor.Record, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	workers := s.workerCount(len(tasks))
	s.logger.Info().Int("tasks", len(tasks)).Int("workers", workers).Msg("subpage pass starting")

	if workers <= 1 {
		s.runSequential(ctx, tasks, fields, results)
	} else {
		s.runPool(ctx, workers, tasks, fields, results)
	}

	completed, abandoned := 0, 0
	for _, task := range tasks {
		if task.Status == StatusPending {
			task.fail("abandoned before completion")
			abandoned++
		}
		if task.Status == StatusCompleted {
			completed++
		}
		monitoring.Default().RecordSubpageTask(task.Status)
	}
	s.logger.Info().
		Int("completed", completed).
		Int("failed", len(tasks)-completed).
		Int("abandoned", abandoned).
		Msg("subpage pass complete")
	return results
}

// runSequential visits tasks one by one with the politeness delay between
// requests.
func (s *Scheduler) runSequential(ctx context.Context, tasks []*Task, fields []template.FieldSpec, results map[string]extractor.Record) {
	for i, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		if i > 0 {
			if err := sleep(ctx, s.config.RequestDelay); err != nil {
				return
			}
		}
		if record, ok := s.runTask(ctx, task, fields); ok {
			results[normalizedKey(task.URL)] = record
		}
	}
}

// runPool fans tasks out to workers. Distinct tasks carry distinct
// normalized URLs, so workers never write the same key; the mutex only
// guards map growth.
func (s *Scheduler) runPool(ctx context.Context, workers int, tasks []*Task, fields []template.FieldSpec, results map[string]extractor.Record) {
	jobs := make(chan *Task, len(tasks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range jobs {
				if ctx.Err() != nil {
					continue
				}
				if record, ok := s.runTask(ctx, task, fields); ok {
					mu.Lock()
					results[normalizedKey(task.URL)] = record
					mu.Unlock()
				}
			}
		}()
	}

	for _, task := range tasks {
		jobs <- task
	}
	close(jobs)
	wg.Wait()
}

// runTask fetches one profile page and extracts its fields. The record is
// kept only when at least one field yielded a value.
func (s *Scheduler) runTask(ctx context.Context, task *Task, fields []template.FieldSpec) (extractor.Record, bool) {
	taskCtx, cancel := context.WithTimeout(ctx, s.taskTimeout())
	defer cancel()

	page, err := s.fetcher.Fetch(taskCtx, task.URL, s.config.FetchOptions)
	if err != nil {
		task.fail(err.Error())
		s.logger.Warn().Err(err).Str("url", task.URL).Msg("subpage fetch failed")
		return nil, false
	}

	record, errs := s.extractor.ExtractFields(taskCtx, fields, page, resolver.ContextProfile)
	for _, extractErr := range errs {
		s.logger.Debug().Err(extractErr).Str("url", task.URL).Msg("subpage field skipped")
	}

	dropEmpty(record)
	if !hasFields(record) {
		task.fail("no data extracted")
		return nil, false
	}

	record[extractor.MetaProfileLink] = task.URL
	record[extractor.MetaContainerIndex] = task.ContainerIndex
	task.complete(record)
	return record, true
}

func (s *Scheduler) workerCount(taskCount int) int {
	workers := s.config.MaxConcurrency
	if workers <= 0 {
		workers = DefaultMaxConcurrency
	}
	if taskCount < workers {
		workers = taskCount
	}
	return workers
}

func (s *Scheduler) taskTimeout() time.Duration {
	if s.config.TaskTimeout > 0 {
		return s.config.TaskTimeout
	}
	return DefaultTaskTimeout
}

// dropEmpty removes fields the page did not actually yield so merging can
// never blank out a directory value.
func dropEmpty(record extractor.Record) {
	for key, value := range record {
		if extractor.IsMetaKey(key) {
			continue
		}
		switch v := value.(type) {
		case nil:
			delete(record, key)
		case string:
			if v == "" {
				delete(record, key)
			}
		case []string:
			if len(v) == 0 {
				delete(record, key)
			}
		}
	}
}

func hasFields(record extractor.Record) bool {
	for key := range record {
		if !extractor.IsMetaKey(key) {
			return true
		}
	}
	return false
}

// normalizedKey is the dedupe key for a profile link: hashed canonical form,
// so query-heavy URLs do not bloat the seen set.
func normalizedKey(rawURL string) string {
	if normal, err := utils.NormalizeURL(rawURL); err == nil {
		return utils.HashURL(normal)
	}
	return utils.HashURL(rawURL)
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
