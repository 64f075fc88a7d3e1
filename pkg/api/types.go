// pkg/api/types.go
package api

import (
	"time"

	"github.com/valpere/DeepScrapexter/internal/extractor"
	"github.com/valpere/DeepScrapexter/internal/session"
	"github.com/valpere/DeepScrapexter/internal/template"
	"github.com/valpere/DeepScrapexter/internal/utils"
)

// JobStatus is the lifecycle state of a submitted job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Job is the public view of one submitted run. Metadata appears once the
// run completes.
type Job struct {
	ID           string            `json:"id"`
	TemplateName string            `json:"templateName"`
	URL          string            `json:"url"`
	Status       JobStatus         `json:"status"`
	SubmittedAt  time.Time         `json:"submittedAt"`
	StartedAt    *time.Time        `json:"startedAt,omitempty"`
	FinishedAt   *time.Time        `json:"finishedAt,omitempty"`
	Error        string            `json:"error,omitempty"`
	Metadata     *session.Metadata `json:"metadata,omitempty"`
}

// JobList is the response of the list endpoint, newest first.
type JobList struct {
	Jobs  []Job `json:"jobs"`
	Total int   `json:"total"`
}

// TemplateInfo describes one template in the server's template directory.
// Valid is false when the file does not parse or fails validation.
type TemplateInfo struct {
	Name        string `json:"name"`
	File        string `json:"file"`
	Description string `json:"description,omitempty"`
	Valid       bool   `json:"valid"`
}

// TemplateList is the response of the template listing endpoint.
type TemplateList struct {
	Templates []TemplateInfo `json:"templates"`
	Total     int            `json:"total"`
}

// RecordsResponse carries a job's extracted records. Records stay empty
// until the run completes; Errors are the run's per-record failures.
type RecordsResponse struct {
	JobID   string             `json:"jobId"`
	Status  JobStatus          `json:"status"`
	Records []extractor.Record `json:"records"`
	Errors  []string           `json:"errors,omitempty"`
}

// ValidateResponse is the response of the template validation endpoint.
// The analysis report is only produced for templates that validate.
type ValidateResponse struct {
	Valid  bool                    `json:"valid"`
	Errors []utils.ValidationError `json:"errors,omitempty"`
	Report *template.Report        `json:"report,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
