// internal/browser/browser_test.go

package browser

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/valpere/DeepScrapexter/internal/scrapererr"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if !config.Headless {
		t.Error("DefaultConfig() Headless = false, want true")
	}
	if !config.DisableImages {
		t.Error("DefaultConfig() DisableImages = false, want true")
	}
	if config.ViewportWidth != 1920 || config.ViewportHeight != 1080 {
		t.Errorf("DefaultConfig() viewport = %dx%d, want 1920x1080",
			config.ViewportWidth, config.ViewportHeight)
	}
	if config.NavigationTimeout != 60*time.Second {
		t.Errorf("DefaultConfig() NavigationTimeout = %v, want 60s",
			config.NavigationTimeout)
	}
}

func TestBuildAllocatorOptions(t *testing.T) {
	base := len(buildAllocatorOptions(&Config{}))

	testCases := []struct {
		name   string
		config *Config
		extra  int
	}{
		{"empty config", &Config{}, 0},
		{"headless", &Config{Headless: true}, 1},
		{"user agent", &Config{UserAgent: "TestBot/1.0"}, 1},
		{"images disabled", &Config{DisableImages: true}, 1},
		{"viewport", &Config{ViewportWidth: 800, ViewportHeight: 600}, 1},
		{"viewport missing height", &Config{ViewportWidth: 800}, 0},
		{
			"all options",
			&Config{
				Headless:       true,
				UserAgent:      "TestBot/1.0",
				UserDataDir:    "/tmp/profile",
				DisableImages:  true,
				ViewportWidth:  800,
				ViewportHeight: 600,
			},
			5,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := len(buildAllocatorOptions(tc.config))
			if got != base+tc.extra {
				t.Errorf("buildAllocatorOptions() returned %d options, want %d",
					got, base+tc.extra)
			}
		})
	}
}

func TestRetryPolicy(t *testing.T) {
	shared := scrapererr.DefaultRetryConfig()

	b := &Browser{config: &Config{}}
	if got := b.retryPolicy(); got != shared {
		t.Errorf("retryPolicy() with zero config = %+v, want shared defaults %+v", got, shared)
	}

	b = &Browser{config: &Config{RetryAttempts: 5, RetryDelay: 250 * time.Millisecond}}
	got := b.retryPolicy()
	if got.MaxRetries != 5 {
		t.Errorf("retryPolicy() MaxRetries = %d, want 5", got.MaxRetries)
	}
	if got.BaseDelay != 250*time.Millisecond {
		t.Errorf("retryPolicy() BaseDelay = %v, want 250ms", got.BaseDelay)
	}
	if got.BackoffFactor != shared.BackoffFactor || got.MaxDelay != shared.MaxDelay {
		t.Errorf("retryPolicy() backoff shape = (%v, %v), want shared (%v, %v)",
			got.BackoffFactor, got.MaxDelay, shared.BackoffFactor, shared.MaxDelay)
	}
}

// jsQuoted returns the selector as it appears inside a marshaled JS array.
func jsQuoted(t *testing.T, selector string) string {
	t.Helper()
	quoted, err := json.Marshal(selector)
	if err != nil {
		t.Fatalf("marshal %q: %v", selector, err)
	}
	return string(quoted)
}

func TestCountExpression(t *testing.T) {
	if expr := countExpression(nil); expr != "document.body.scrollHeight" {
		t.Errorf("countExpression(nil) = %q, want scroll height probe", expr)
	}

	expr := countExpression([]string{".person-card", `[data-role="item"]`})
	if !strings.Contains(expr, "Math.max") {
		t.Errorf("countExpression() = %q, want a max over selectors", expr)
	}
	for _, sel := range []string{".person-card", `[data-role="item"]`} {
		if !strings.Contains(expr, jsQuoted(t, sel)) {
			t.Errorf("countExpression() missing selector %q", sel)
		}
	}
}

func TestMatchExpression(t *testing.T) {
	expr := matchExpression(".no-more-results")
	if !strings.Contains(expr, `querySelector(".no-more-results")`) {
		t.Errorf("matchExpression() = %q, want a querySelector probe", expr)
	}
}

func TestClickExpression(t *testing.T) {
	expr := clickExpression()

	for _, sel := range loadMoreSelectors {
		if !strings.Contains(expr, jsQuoted(t, sel)) {
			t.Errorf("clickExpression() missing load-more selector %q", sel)
		}
	}
	for _, sel := range nextLinkSelectors {
		if !strings.Contains(expr, jsQuoted(t, sel)) {
			t.Errorf("clickExpression() missing next-link selector %q", sel)
		}
	}
	if !strings.Contains(expr, "javascript:") {
		t.Error("clickExpression() should skip links with real hrefs")
	}
}

func TestClickTargetsExpression(t *testing.T) {
	expr := clickTargetsExpression([]string{"a.next-page", "li.pagination-next a"})

	for _, sel := range []string{"a.next-page", "li.pagination-next a"} {
		if !strings.Contains(expr, jsQuoted(t, sel)) {
			t.Errorf("clickTargetsExpression() missing selector %q", sel)
		}
	}
	if !strings.Contains(expr, "offsetParent") {
		t.Error("clickTargetsExpression() should only click visible elements")
	}
}

func TestPoolBookkeeping(t *testing.T) {
	pool := NewPool(nil, 3)

	if pool.Cap() != 3 {
		t.Errorf("Cap() = %d, want 3", pool.Cap())
	}
	if pool.Size() != 0 {
		t.Errorf("Size() = %d before any Get, want 0", pool.Size())
	}

	// Returning nil must be a no-op.
	pool.Put(nil)
	if pool.Size() != 0 {
		t.Errorf("Size() = %d after Put(nil), want 0", pool.Size())
	}
}

func TestPoolDefaultSize(t *testing.T) {
	pool := NewPool(nil, 0)
	if pool.Cap() != DefaultPoolSize {
		t.Errorf("Cap() = %d, want default %d", pool.Cap(), DefaultPoolSize)
	}
}

func TestPoolClose(t *testing.T) {
	pool := NewPool(nil, 2)

	if err := pool.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}

	if _, err := pool.Get(context.Background()); err == nil {
		t.Error("Get() after Close() should fail")
	}
}
