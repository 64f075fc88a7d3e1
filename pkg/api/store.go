// pkg/api/store.go
package api

import (
	"sync"

	"github.com/valpere/DeepScrapexter/internal/session"
)

// maxStoredJobs caps the job history. Once over the cap the oldest
// finished jobs and their records are dropped; pending and running jobs
// are never dropped.
const maxStoredJobs = 200

// Store is the in-memory job registry. Reads hand out snapshots so
// handlers never see a job mid-mutation.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	order   []string
	results map[string]*session.Result
}

// NewStore creates an empty job store.
func NewStore() *Store {
	return &Store{
		jobs:    make(map[string]*Job),
		results: make(map[string]*session.Result),
	}
}

// Add registers a new job.
func (s *Store) Add(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	s.prune()
}

// Get returns a snapshot of one job.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns snapshots of all stored jobs, newest first.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]Job, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if job, ok := s.jobs[s.order[i]]; ok {
			jobs = append(jobs, *job)
		}
	}
	return jobs
}

// Update mutates one job under the write lock.
func (s *Store) Update(id string, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		fn(job)
	}
}

// SetResult stores a completed run's envelope.
func (s *Store) SetResult(id string, result *session.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; ok {
		s.results[id] = result
	}
}

// Result returns a job's run envelope, if the run has completed.
func (s *Store) Result(id string) (*session.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[id]
	return result, ok
}

func (s *Store) prune() {
	over := len(s.order) - maxStoredJobs
	if over <= 0 {
		return
	}
	kept := s.order[:0]
	for _, id := range s.order {
		job := s.jobs[id]
		if over > 0 && job != nil && job.Status.Terminal() {
			delete(s.jobs, id)
			delete(s.results, id)
			over--
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}
