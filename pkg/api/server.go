// pkg/api/server.go

// Package api exposes scraping runs over HTTP. Submitted templates
// become jobs that run asynchronously; the store keeps their state and
// records for polling. One Server owns the store, the health manager,
// and the run slots.
package api

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/valpere/DeepScrapexter/internal/extractor"
	"github.com/valpere/DeepScrapexter/internal/monitoring"
	"github.com/valpere/DeepScrapexter/internal/session"
	"github.com/valpere/DeepScrapexter/internal/template"
	"github.com/valpere/DeepScrapexter/internal/utils"
)

// maxTemplateBytes bounds request bodies on the template endpoints.
const maxTemplateBytes = 1 << 20

// Config tunes the API server.
type Config struct {
	// Session is the base configuration every job runs with.
	Session session.Config

	// APIKey guards the API when set. Health and metrics stay open so
	// probes keep working.
	APIKey string

	// RatePerSecond caps request throughput when positive.
	RatePerSecond float64
	Burst         int

	// MaxConcurrentJobs bounds parallel runs; submissions beyond it
	// queue as pending.
	MaxConcurrentJobs int

	// TemplateDir holds named templates for submission by name. Empty
	// disables the template listing and by-name submission.
	TemplateDir string
}

// Server is the HTTP API around the scraping engine.
type Server struct {
	config  Config
	store   *Store
	health  *monitoring.HealthManager
	logger  zerolog.Logger
	limiter *rate.Limiter
	slots   chan struct{}

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer builds a server. The zero Config is usable; jobs then run
// with the session defaults, two at a time, unauthenticated.
func NewServer(config Config) (*Server, error) {
	if err := config.Session.Validate(); err != nil {
		return nil, err
	}
	if config.MaxConcurrentJobs <= 0 {
		config.MaxConcurrentJobs = 2
	}
	if config.Burst <= 0 {
		config.Burst = 20
	}

	s := &Server{
		config:  config,
		store:   NewStore(),
		health:  monitoring.NewHealthManager(),
		logger:  utils.NewComponentLogger("api"),
		slots:   make(chan struct{}, config.MaxConcurrentJobs),
		cancels: make(map[string]context.CancelFunc),
	}
	if config.RatePerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), config.Burst)
	}
	return s, nil
}

// Health exposes the health manager so callers can register checks.
func (s *Server) Health() *monitoring.HealthManager {
	return s.health
}

// Store exposes the job store.
func (s *Server) Store() *Store {
	return s.store
}

// Router builds the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.health.Handler()).Methods("GET")
	r.Handle("/metrics", monitoring.Handler()).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/jobs", s.handleSubmitJob).Methods("POST")
	v1.HandleFunc("/jobs", s.handleListJobs).Methods("GET")
	v1.HandleFunc("/jobs/{id}", s.handleGetJob).Methods("GET")
	v1.HandleFunc("/jobs/{id}", s.handleCancelJob).Methods("DELETE")
	v1.HandleFunc("/jobs/{id}/records", s.handleJobRecords).Methods("GET")
	v1.HandleFunc("/templates", s.handleListTemplates).Methods("GET")
	v1.HandleFunc("/templates/validate", s.handleValidateTemplate).Methods("POST")

	var handler http.Handler = r
	if s.limiter != nil {
		handler = s.rateLimitMiddleware(handler)
	}
	if s.config.APIKey != "" {
		handler = s.authMiddleware(handler)
	}
	return s.logMiddleware(handler)
}

// Wait blocks until every started job has finished. Call after the HTTP
// server has shut down.
func (s *Server) Wait() {
	s.wg.Wait()
}

// CancelAll cancels every job still holding a cancel func.
func (s *Server) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.cancels {
		cancel()
	}
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var tpl *template.Template

	if name := r.URL.Query().Get("template"); name != "" {
		loaded, err := s.loadNamedTemplate(name)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		tpl = loaded
	} else {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxTemplateBytes))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read request body: %w", err))
			return
		}
		loaded, err := template.LoadFromBytes(body)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		tpl = loaded
	}

	if u := r.URL.Query().Get("url"); u != "" {
		tpl.URL = u
	}
	if tpl.URL == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("template has no listing URL; set url in the template or pass ?url="))
		return
	}
	if !utils.IsValidURL(tpl.URL) {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("listing URL %q is not a valid URL", tpl.URL))
		return
	}

	job := &Job{
		ID:           uuid.NewString(),
		TemplateName: tpl.Name,
		URL:          tpl.URL,
		Status:       JobPending,
		SubmittedAt:  time.Now().UTC(),
	}
	s.store.Add(job)
	s.startJob(job.ID, tpl)

	s.logger.Info().Str("job", job.ID).Str("template", tpl.Name).Msg("job submitted")

	snapshot, _ := s.store.Get(job.ID)
	s.writeJSON(w, http.StatusCreated, snapshot)
}

// loadNamedTemplate resolves a template by bare name inside the configured
// template directory. Names with path separators are rejected so callers
// cannot read outside the directory.
func (s *Server) loadNamedTemplate(name string) (*template.Template, error) {
	if s.config.TemplateDir == "" {
		return nil, fmt.Errorf("server has no template directory configured")
	}
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("invalid template name %q", name)
	}

	for _, ext := range []string{".yaml", ".yml", ".json"} {
		path := filepath.Join(s.config.TemplateDir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return template.LoadFromFile(path)
		}
	}
	return nil, fmt.Errorf("template %q not found", name)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	if s.config.TemplateDir == "" {
		s.writeJSON(w, http.StatusOK, TemplateList{Templates: []TemplateInfo{}})
		return
	}

	entries, err := os.ReadDir(s.config.TemplateDir)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to read template directory: %w", err))
		return
	}

	infos := []TemplateInfo{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}

		info := TemplateInfo{
			Name: strings.TrimSuffix(entry.Name(), ext),
			File: entry.Name(),
		}
		if tpl, err := template.LoadFromFile(filepath.Join(s.config.TemplateDir, entry.Name())); err == nil {
			info.Valid = true
			info.Description = tpl.Description
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	s.writeJSON(w, http.StatusOK, TemplateList{Templates: infos, Total: len(infos)})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.store.List()
	s.writeJSON(w, http.StatusOK, JobList{Jobs: jobs, Total: len(jobs)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.store.Get(mux.Vars(r)["id"])
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("job not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, ok := s.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("job not found"))
		return
	}
	if job.Status.Terminal() {
		s.writeError(w, http.StatusConflict, fmt.Errorf("job already %s", job.Status))
		return
	}

	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}

	s.logger.Info().Str("job", id).Msg("job cancelled")
	job, _ = s.store.Get(id)
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleJobRecords(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, ok := s.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("job not found"))
		return
	}

	resp := RecordsResponse{JobID: job.ID, Status: job.Status, Records: []extractor.Record{}}
	if result, ok := s.store.Result(id); ok {
		resp.Records = result.Records
		resp.Errors = result.Errors
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleValidateTemplate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTemplateBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read request body: %w", err))
		return
	}

	tpl, err := template.ParseBytes(body)
	if err != nil {
		s.writeJSON(w, http.StatusOK, ValidateResponse{
			Valid:  false,
			Errors: []utils.ValidationError{{Field: "template", Message: err.Error(), Code: "parse"}},
		})
		return
	}

	result := tpl.ValidateDetailed()
	resp := ValidateResponse{Valid: result.Valid, Errors: result.Errors}
	if result.Valid {
		resp.Report = template.Analyze(tpl)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// startJob runs a job asynchronously. The job waits for a run slot, so
// a burst of submissions queues rather than fanning out unbounded.
func (s *Server) startJob(id string, tpl *template.Template) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[id] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.cancels, id)
			s.mu.Unlock()
			cancel()
		}()

		select {
		case s.slots <- struct{}{}:
		case <-ctx.Done():
			s.finishJob(id, nil, ctx.Err())
			return
		}
		defer func() { <-s.slots }()

		started := time.Now().UTC()
		s.store.Update(id, func(j *Job) {
			j.Status = JobRunning
			j.StartedAt = &started
		})

		sess, err := session.New(tpl, s.config.Session)
		if err != nil {
			s.finishJob(id, nil, err)
			return
		}
		defer sess.Close()
		s.logger.Debug().Str("job", id).Str("session", sess.ID()).Msg("session created")

		result, err := sess.Run(ctx)
		if err != nil && ctx.Err() != nil {
			// Cancellation surfaces as whatever call was in flight;
			// report it as the cancel it was.
			err = context.Canceled
		}
		s.finishJob(id, result, err)
	}()
}

func (s *Server) finishJob(id string, result *session.Result, err error) {
	finished := time.Now().UTC()
	s.store.Update(id, func(j *Job) {
		j.FinishedAt = &finished
		switch {
		case err != nil && errors.Is(err, context.Canceled):
			j.Status = JobCancelled
		case err != nil:
			j.Status = JobFailed
			j.Error = err.Error()
		default:
			j.Status = JobCompleted
			j.Metadata = &result.Metadata
		}
	})
	if err == nil && result != nil {
		s.store.SetResult(id, result)
	}

	job, _ := s.store.Get(id)
	s.logger.Info().
		Str("job", id).
		Str("status", string(job.Status)).
		Msg("job finished")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Probes stay open.
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		// Constant-time compare so key verification does not leak a prefix
		// match through response timing.
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.config.APIKey)) != 1 {
			s.writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid or missing API key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.writeError(w, http.StatusTooManyRequests, fmt.Errorf("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// GenerateKey returns a random URL-safe API key with the given number of
// random bytes behind it.
func GenerateKey(randomBytes int) (string, error) {
	if randomBytes <= 0 {
		return "", fmt.Errorf("key length must be positive")
	}

	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}

	return base64.URLEncoding.EncodeToString(buf), nil
}
