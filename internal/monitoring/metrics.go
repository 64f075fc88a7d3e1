// internal/monitoring/metrics.go
package monitoring

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deepscrapexter"

// Fetch mode labels for page fetch metrics.
const (
	FetchModeStatic  = "static"
	FetchModeBrowser = "browser"
)

// Pagination stop reason labels.
const (
	StopReasonLimit     = "limit"
	StopReasonExhausted = "exhausted"
)

// Metrics holds the Prometheus instruments for a scraping process. All
// components share one instance; see Default.
type Metrics struct {
	pagesFetched        *prometheus.CounterVec
	fetchDuration       *prometheus.HistogramVec
	recordsExtracted    *prometheus.CounterVec
	strategyHits        *prometheus.CounterVec
	requiredFieldMisses *prometheus.CounterVec
	subpageTasks        *prometheus.CounterVec
	paginationStops     *prometheus.CounterVec
	sessionsActive      prometheus.Gauge
	sessionDuration     prometheus.Histogram
	recordsWritten      *prometheus.CounterVec
	outputErrors        *prometheus.CounterVec
}

// New creates a Metrics registered with reg. Passing a fresh
// prometheus.NewRegistry keeps tests isolated from the default registry;
// a nil reg yields instruments that are not registered anywhere.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		pagesFetched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_fetched_total",
				Help:      "Pages fetched, by fetch mode and result",
			},
			[]string{"mode", "result"},
		),
		fetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Page fetch latency, by fetch mode",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
			},
			[]string{"mode"},
		),
		recordsExtracted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_extracted_total",
				Help:      "Records extracted, by template name",
			},
			[]string{"template"},
		),
		strategyHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolver_strategy_hits_total",
				Help:      "Selector resolutions, by winning strategy",
			},
			[]string{"strategy"},
		),
		requiredFieldMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "required_field_misses_total",
				Help:      "Required fields that resolved to nothing, by field label",
			},
			[]string{"field"},
		),
		subpageTasks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subpage_tasks_total",
				Help:      "Subpage fetch tasks, by final status",
			},
			[]string{"status"},
		),
		paginationStops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pagination_stops_total",
				Help:      "Pagination runs, by stop reason",
			},
			[]string{"reason"},
		),
		sessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Scraping sessions currently running",
			},
		),
		sessionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "End-to-end scraping session duration",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),
		recordsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_written_total",
				Help:      "Records written to outputs, by format",
			},
			[]string{"format"},
		),
		outputErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "output_errors_total",
				Help:      "Output write failures, by format",
			},
			[]string{"format"},
		),
	}
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default returns the process-wide Metrics, registered with the default
// Prometheus registry. The first caller creates it.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// RecordPageFetch records one page fetch attempt and its latency.
func (m *Metrics) RecordPageFetch(mode string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.pagesFetched.WithLabelValues(mode, result).Inc()
	m.fetchDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordRecordsExtracted adds count extracted records for a template.
func (m *Metrics) RecordRecordsExtracted(template string, count int) {
	if count <= 0 {
		return
	}
	m.recordsExtracted.WithLabelValues(template).Add(float64(count))
}

// RecordStrategyHit records which resolution strategy produced a value.
func (m *Metrics) RecordStrategyHit(strategy string) {
	m.strategyHits.WithLabelValues(strategy).Inc()
}

// RecordRequiredFieldMiss records a required field that yielded nothing.
func (m *Metrics) RecordRequiredFieldMiss(field string) {
	m.requiredFieldMisses.WithLabelValues(field).Inc()
}

// RecordSubpageTask records the final status of one subpage task.
func (m *Metrics) RecordSubpageTask(status string) {
	m.subpageTasks.WithLabelValues(status).Inc()
}

// RecordPaginationStop records why a pagination run ended.
func (m *Metrics) RecordPaginationStop(reason string) {
	m.paginationStops.WithLabelValues(reason).Inc()
}

// SessionStarted marks a session as running.
func (m *Metrics) SessionStarted() {
	m.sessionsActive.Inc()
}

// SessionFinished marks a session as done and records its duration.
func (m *Metrics) SessionFinished(duration time.Duration) {
	m.sessionsActive.Dec()
	m.sessionDuration.Observe(duration.Seconds())
}

// RecordRecordsWritten adds count records written in the given format.
func (m *Metrics) RecordRecordsWritten(format string, count int) {
	if count <= 0 {
		return
	}
	m.recordsWritten.WithLabelValues(format).Add(float64(count))
}

// RecordOutputError records a failed write in the given format.
func (m *Metrics) RecordOutputError(format string) {
	m.outputErrors.WithLabelValues(format).Inc()
}

// Handler exposes the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartServer serves the metrics endpoint on address until ctx is done.
func StartServer(ctx context.Context, address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	server := &http.Server{
		Addr:    address,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
