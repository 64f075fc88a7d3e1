// internal/monitoring/health_test.go
package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func stubCheck(name string, critical bool, status HealthStatus) Check {
	return Check{
		Name:     name,
		Critical: critical,
		Func: func(ctx context.Context) CheckResult {
			return CheckResult{Status: status}
		},
	}
}

func TestHealthOverallStatus(t *testing.T) {
	testCases := []struct {
		name   string
		checks []Check
		want   HealthStatus
	}{
		{
			name: "all healthy",
			checks: []Check{
				stubCheck("a", false, HealthStatusHealthy),
				stubCheck("b", true, HealthStatusHealthy),
			},
			want: HealthStatusHealthy,
		},
		{
			name: "non-critical failure degrades",
			checks: []Check{
				stubCheck("a", false, HealthStatusUnhealthy),
				stubCheck("b", true, HealthStatusHealthy),
			},
			want: HealthStatusDegraded,
		},
		{
			name: "critical failure is unhealthy",
			checks: []Check{
				stubCheck("a", false, HealthStatusHealthy),
				stubCheck("b", true, HealthStatusUnhealthy),
			},
			want: HealthStatusUnhealthy,
		},
		{
			name: "degraded check degrades",
			checks: []Check{
				stubCheck("a", true, HealthStatusDegraded),
			},
			want: HealthStatusDegraded,
		},
		{
			name:   "no checks",
			checks: nil,
			want:   HealthStatusHealthy,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			hm := NewHealthManager()
			for _, check := range tc.checks {
				hm.Register(check)
			}

			report := hm.Health(context.Background())
			if report.Status != tc.want {
				t.Errorf("Health() status = %v, want %v", report.Status, tc.want)
			}
			if len(report.Checks) != len(tc.checks) {
				t.Errorf("Health() ran %d checks, want %d", len(report.Checks), len(tc.checks))
			}
		})
	}
}

func TestHealthCheckTimeout(t *testing.T) {
	hm := NewHealthManager()
	hm.Register(Check{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		Func: func(ctx context.Context) CheckResult {
			<-ctx.Done()
			return CheckResult{Status: HealthStatusUnhealthy, Err: ctx.Err()}
		},
	})

	report := hm.Health(context.Background())
	if len(report.Checks) != 1 {
		t.Fatalf("Health() ran %d checks, want 1", len(report.Checks))
	}
	if !strings.Contains(report.Checks[0].Error, "deadline") {
		t.Errorf("check error = %q, want deadline exceeded", report.Checks[0].Error)
	}
}

func TestHealthReportRuntime(t *testing.T) {
	report := NewHealthManager().Health(context.Background())

	if report.Runtime.Goroutines <= 0 {
		t.Errorf("runtime goroutines = %d, want > 0", report.Runtime.Goroutines)
	}
	if report.Runtime.HeapAlloc == 0 {
		t.Error("runtime heap alloc is zero")
	}
	if report.Uptime <= 0 {
		t.Errorf("uptime = %v, want > 0", report.Uptime)
	}
}

func TestHealthHandlerStatusCodes(t *testing.T) {
	testCases := []struct {
		name     string
		check    Check
		wantCode int
	}{
		{"healthy", stubCheck("ok", true, HealthStatusHealthy), http.StatusOK},
		{"degraded still serves", stubCheck("soft", false, HealthStatusUnhealthy), http.StatusOK},
		{"unhealthy", stubCheck("hard", true, HealthStatusUnhealthy), http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			hm := NewHealthManager()
			hm.Register(tc.check)

			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			rec := httptest.NewRecorder()
			hm.Handler().ServeHTTP(rec, req)

			if rec.Code != tc.wantCode {
				t.Errorf("handler status = %d, want %d", rec.Code, tc.wantCode)
			}

			var report Report
			if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
				t.Fatalf("decoding report: %v", err)
			}
			if len(report.Checks) != 1 {
				t.Errorf("report has %d checks, want 1", len(report.Checks))
			}
		})
	}
}

func TestDatabaseCheck(t *testing.T) {
	ok := DatabaseCheck("sqlite", func(ctx context.Context) error { return nil })
	if got := ok.Func(context.Background()); got.Status != HealthStatusHealthy {
		t.Errorf("passing ping status = %v, want healthy", got.Status)
	}
	if !ok.Critical {
		t.Error("database check should be critical")
	}

	bad := DatabaseCheck("sqlite", func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	got := bad.Func(context.Background())
	if got.Status != HealthStatusUnhealthy {
		t.Errorf("failing ping status = %v, want unhealthy", got.Status)
	}
	if got.Err == nil {
		t.Error("failing ping should carry the error")
	}
}

func TestMemoryCheck(t *testing.T) {
	if got := MemoryCheck(1).Func(context.Background()); got.Status != HealthStatusDegraded {
		t.Errorf("tiny limit status = %v, want degraded", got.Status)
	}
	if got := MemoryCheck(math.MaxUint64).Func(context.Background()); got.Status != HealthStatusHealthy {
		t.Errorf("huge limit status = %v, want healthy", got.Status)
	}
}

func TestGoroutineCheck(t *testing.T) {
	if got := GoroutineCheck(1).Func(context.Background()); got.Status != HealthStatusDegraded {
		t.Errorf("tiny limit status = %v, want degraded", got.Status)
	}
	if got := GoroutineCheck(1 << 20).Func(context.Background()); got.Status != HealthStatusHealthy {
		t.Errorf("huge limit status = %v, want healthy", got.Status)
	}
}

func TestTemplateDirCheck(t *testing.T) {
	dir := t.TempDir()

	if got := TemplateDirCheck(dir).Func(context.Background()); got.Status != HealthStatusHealthy {
		t.Errorf("existing dir status = %v, want healthy", got.Status)
	}

	missing := filepath.Join(dir, "missing")
	if got := TemplateDirCheck(missing).Func(context.Background()); got.Status != HealthStatusUnhealthy {
		t.Errorf("missing dir status = %v, want unhealthy", got.Status)
	}

	file := filepath.Join(dir, "plain.yaml")
	if err := os.WriteFile(file, []byte("url: https://example.com\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := TemplateDirCheck(file).Func(context.Background())
	if got.Status != HealthStatusUnhealthy {
		t.Errorf("file path status = %v, want unhealthy", got.Status)
	}
	if !strings.Contains(got.Message, "not a directory") {
		t.Errorf("file path message = %q, want not-a-directory note", got.Message)
	}
}
