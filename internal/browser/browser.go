// internal/browser/browser.go

// Package browser renders JavaScript-backed pages through headless Chrome
// and exposes them as parsed documents. One Browser owns a Chrome process;
// each fetch runs in its own tab so concurrent subpage fetches stay isolated.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/valpere/DeepScrapexter/internal/dom"
	"github.com/valpere/DeepScrapexter/internal/fetch"
	"github.com/valpere/DeepScrapexter/internal/monitoring"
	"github.com/valpere/DeepScrapexter/internal/scrapererr"
	"github.com/valpere/DeepScrapexter/internal/template"
	"github.com/valpere/DeepScrapexter/internal/utils"
)

// Config defines browser behavior.
type Config struct {
	Headless       bool
	UserAgent      string
	UserDataDir    string
	DisableImages  bool
	ViewportWidth  int
	ViewportHeight int

	// NavigationTimeout bounds one full page load
	NavigationTimeout time.Duration

	// WaitDelay is an extra settle pause after the document is ready, for
	// pages that hydrate content just after load
	WaitDelay time.Duration

	// RetryAttempts and RetryDelay shape the re-navigation policy for
	// transient render failures. Zero keeps the shared defaults.
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultConfig returns browser defaults sized for listing pages.
func DefaultConfig() *Config {
	return &Config{
		Headless:          true,
		DisableImages:     true,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		NavigationTimeout: 60 * time.Second,
	}
}

// Browser wraps a headless Chrome process as a fetch.Fetcher.
type Browser struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	config      *Config
	logger      zerolog.Logger
}

// New launches a Chrome process with the given configuration.
func New(config *Config) (*Browser, error) {
	if config == nil {
		config = DefaultConfig()
	}

	opts := buildAllocatorOptions(config)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	b := &Browser{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      cancel,
		config:      config,
		logger:      utils.NewComponentLogger("browser"),
	}

	// Launch eagerly so a missing Chrome binary fails here, not mid-run.
	if err := chromedp.Run(browserCtx); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return b, nil
}

// buildAllocatorOptions translates Config into chromedp allocator options.
func buildAllocatorOptions(config *Config) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox, // container environments
	}
	if config.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if config.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(config.UserDataDir))
	}
	if config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(config.UserAgent))
	}
	if config.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if config.ViewportWidth > 0 && config.ViewportHeight > 0 {
		opts = append(opts,
			chromedp.WindowSize(config.ViewportWidth, config.ViewportHeight))
	}
	return opts
}

// Fetch implements fetch.Fetcher. Transient render failures are retried
// with the shared backoff policy; each attempt runs in a fresh tab.
func (b *Browser) Fetch(ctx context.Context, targetURL string, opts fetch.Options) (dom.Page, error) {
	start := time.Now()
	page, err := b.fetch(ctx, targetURL, opts)
	monitoring.Default().RecordPageFetch(monitoring.FetchModeBrowser, time.Since(start), err)
	return page, err
}

func (b *Browser) fetch(ctx context.Context, targetURL string, opts fetch.Options) (dom.Page, error) {
	if verr := utils.ValidateTargetURL(targetURL); verr != nil {
		return nil, &scrapererr.FetchError{URL: targetURL, Attempts: 0, Err: verr}
	}

	var page dom.Page
	attempts := 0
	err := scrapererr.Retry(ctx, b.retryPolicy(), "render", func() error {
		attempts++
		p, err := b.renderOnce(ctx, targetURL, opts)
		if err != nil {
			b.logger.Debug().
				Str("url", targetURL).
				Int("attempt", attempts).
				Err(err).
				Msg("render attempt failed")
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, &scrapererr.FetchError{URL: targetURL, Attempts: attempts, Err: err}
	}
	return page, nil
}

func (b *Browser) retryPolicy() scrapererr.RetryConfig {
	policy := scrapererr.DefaultRetryConfig()
	if b.config.RetryAttempts > 0 {
		policy.MaxRetries = b.config.RetryAttempts
	}
	if b.config.RetryDelay > 0 {
		policy.BaseDelay = b.config.RetryDelay
	}
	return policy
}

// renderOnce navigates a fresh tab, runs the optional page action after the
// document is ready, and captures the rendered DOM.
func (b *Browser) renderOnce(ctx context.Context, targetURL string, opts fetch.Options) (dom.Page, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = b.config.NavigationTimeout
	}

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()

	// Stop the tab if the caller's context dies first.
	go func() {
		select {
		case <-ctx.Done():
			cancelTab()
		case <-tabCtx.Done():
		}
	}()

	start := time.Now()

	tasks := []chromedp.Action{
		prepareAction(targetURL, opts),
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body"),
	}
	if b.config.WaitDelay > 0 {
		tasks = append(tasks, chromedp.Sleep(b.config.WaitDelay))
	}

	if err := chromedp.Run(tabCtx, tasks...); err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	if opts.PageAction != nil {
		if err := opts.PageAction(tabCtx); err != nil {
			return nil, fmt.Errorf("page action failed: %w", err)
		}
	}

	var rendered, finalURL string
	if err := chromedp.Run(tabCtx,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &rendered),
	); err != nil {
		return nil, fmt.Errorf("failed to capture rendered page: %w", err)
	}
	if finalURL == "" {
		finalURL = targetURL
	}

	b.logger.Debug().
		Str("url", targetURL).
		Dur("load_time", time.Since(start)).
		Msg("page rendered")

	return dom.ParseString(rendered, finalURL)
}

// prepareAction sets per-navigation cookies and user agent override before
// the tab leaves about:blank.
func prepareAction(targetURL string, opts fetch.Options) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if opts.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(opts.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("user agent override: %w", err)
			}
		}
		for _, c := range opts.Cookies {
			if err := setCookie(ctx, targetURL, c); err != nil {
				return fmt.Errorf("setting cookie %s: %w", c.Name, err)
			}
		}
		return nil
	})
}

func setCookie(ctx context.Context, targetURL string, c template.Cookie) error {
	params := network.SetCookie(c.Name, c.Value)
	if c.Domain != "" {
		params = params.WithDomain(c.Domain)
	} else {
		params = params.WithURL(targetURL)
	}
	if c.Path != "" {
		params = params.WithPath(c.Path)
	}
	return params.Do(ctx)
}

// Close shuts down the Chrome process.
func (b *Browser) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	return nil
}
