// internal/monitoring/health.go
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"
)

// HealthStatus grades a component or the whole process.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// Check probes one dependency or resource. Func runs under a context
// bounded by Timeout each time the report endpoint is hit.
type Check struct {
	Name     string
	Critical bool
	Timeout  time.Duration
	Func     func(ctx context.Context) CheckResult
}

// CheckResult is what a check's Func reports back.
type CheckResult struct {
	Status  HealthStatus
	Message string
	Err     error
}

// CheckStatus is the serialized outcome of one check run.
type CheckStatus struct {
	Name     string        `json:"name"`
	Status   HealthStatus  `json:"status"`
	Message  string        `json:"message,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Critical bool          `json:"critical"`
}

// Report is the full health snapshot served at the health endpoint.
type Report struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    time.Duration `json:"uptime"`
	Checks    []CheckStatus `json:"checks,omitempty"`
	Runtime   RuntimeStats  `json:"runtime"`
}

// RuntimeStats carries process-level numbers alongside the checks.
type RuntimeStats struct {
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heapAllocBytes"`
	HeapSys    uint64 `json:"heapSysBytes"`
	NumGC      uint32 `json:"numGC"`
}

// HealthManager runs registered checks on demand. Checks execute
// concurrently, each under its own timeout, every time Health is called;
// there is no background ticker to manage.
type HealthManager struct {
	mu     sync.RWMutex
	checks []Check
}

const defaultCheckTimeout = 5 * time.Second

// NewHealthManager creates an empty manager.
func NewHealthManager() *HealthManager {
	return &HealthManager{}
}

// Register adds a check. A zero Timeout gets the default.
func (hm *HealthManager) Register(check Check) {
	if check.Timeout == 0 {
		check.Timeout = defaultCheckTimeout
	}

	hm.mu.Lock()
	hm.checks = append(hm.checks, check)
	hm.mu.Unlock()
}

// Health runs every registered check and folds the results into one
// report. A critical failure makes the whole report unhealthy; any other
// failure only degrades it.
func (hm *HealthManager) Health(ctx context.Context) Report {
	hm.mu.RLock()
	checks := make([]Check, len(hm.checks))
	copy(checks, hm.checks)
	hm.mu.RUnlock()

	statuses := make([]CheckStatus, len(checks))

	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, c Check) {
			defer wg.Done()
			statuses[i] = runCheck(ctx, c)
		}(i, check)
	}
	wg.Wait()

	overall := HealthStatusHealthy
	for _, st := range statuses {
		switch st.Status {
		case HealthStatusUnhealthy:
			if st.Critical {
				overall = HealthStatusUnhealthy
			} else if overall == HealthStatusHealthy {
				overall = HealthStatusDegraded
			}
		case HealthStatusDegraded:
			if overall == HealthStatusHealthy {
				overall = HealthStatusDegraded
			}
		}
	}

	return Report{
		Status:    overall,
		Timestamp: time.Now(),
		Uptime:    time.Since(startTime),
		Checks:    statuses,
		Runtime:   readRuntimeStats(),
	}
}

func runCheck(ctx context.Context, check Check) CheckStatus {
	checkCtx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	start := time.Now()
	result := check.Func(checkCtx)
	duration := time.Since(start)

	status := CheckStatus{
		Name:     check.Name,
		Status:   result.Status,
		Message:  result.Message,
		Duration: duration,
		Critical: check.Critical,
	}
	if result.Err != nil {
		status.Error = result.Err.Error()
	}
	return status
}

func readRuntimeStats() RuntimeStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return RuntimeStats{
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  m.HeapAlloc,
		HeapSys:    m.HeapSys,
		NumGC:      m.NumGC,
	}
}

// Handler serves the health report as JSON. Only an unhealthy report
// gets a 503; a degraded process still serves traffic.
func (hm *HealthManager) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := hm.Health(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if report.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	}
}

var startTime = time.Now()

// DatabaseCheck probes a storage backend through its ping function.
// Database-backed output sinks stop working without it, so it is critical.
func DatabaseCheck(name string, ping func(ctx context.Context) error) Check {
	return Check{
		Name:     name,
		Critical: true,
		Func: func(ctx context.Context) CheckResult {
			if err := ping(ctx); err != nil {
				return CheckResult{
					Status:  HealthStatusUnhealthy,
					Message: "connection failed",
					Err:     err,
				}
			}
			return CheckResult{Status: HealthStatusHealthy, Message: "connected"}
		},
	}
}

// MemoryCheck degrades the report when heap allocation crosses maxBytes.
func MemoryCheck(maxBytes uint64) Check {
	return Check{
		Name: "memory",
		Func: func(ctx context.Context) CheckResult {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			if m.HeapAlloc > maxBytes {
				return CheckResult{
					Status:  HealthStatusDegraded,
					Message: fmt.Sprintf("heap at %d bytes, limit %d", m.HeapAlloc, maxBytes),
				}
			}
			return CheckResult{
				Status:  HealthStatusHealthy,
				Message: fmt.Sprintf("heap at %d bytes", m.HeapAlloc),
			}
		},
	}
}

// GoroutineCheck degrades the report when the goroutine count crosses
// max. Runaway counts usually mean stuck fetches or an abandoned pool.
func GoroutineCheck(max int) Check {
	return Check{
		Name: "goroutines",
		Func: func(ctx context.Context) CheckResult {
			count := runtime.NumGoroutine()
			if count > max {
				return CheckResult{
					Status:  HealthStatusDegraded,
					Message: fmt.Sprintf("%d goroutines, limit %d", count, max),
				}
			}
			return CheckResult{
				Status:  HealthStatusHealthy,
				Message: fmt.Sprintf("%d goroutines", count),
			}
		},
	}
}

// TemplateDirCheck verifies the server's template directory is present
// and readable. Jobs submitted by name cannot load without it; inline
// templates still work, so the failure is not critical.
func TemplateDirCheck(dir string) Check {
	return Check{
		Name: "templates",
		Func: func(ctx context.Context) CheckResult {
			info, err := os.Stat(dir)
			if err != nil {
				return CheckResult{
					Status:  HealthStatusUnhealthy,
					Message: "template directory unavailable",
					Err:     err,
				}
			}
			if !info.IsDir() {
				return CheckResult{
					Status:  HealthStatusUnhealthy,
					Message: fmt.Sprintf("%s is not a directory", dir),
				}
			}
			return CheckResult{Status: HealthStatusHealthy, Message: dir}
		},
	}
}
