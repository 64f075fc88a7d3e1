// internal/fetch/static.go
package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/valpere/DeepScrapexter/internal/dom"
	"github.com/valpere/DeepScrapexter/internal/monitoring"
	"github.com/valpere/DeepScrapexter/internal/scrapererr"
	"github.com/valpere/DeepScrapexter/internal/utils"
)

// StaticConfig defines configuration options for the static HTTP fetcher
type StaticConfig struct {
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	UserAgents    []string
	Headers       map[string]string
	RateLimit     float64 // requests per second
	RateBurst     int
}

// StaticFetcher fetches pages over plain HTTP with rate limiting, user agent
// rotation, and retry with backoff. It is the default engine for sites that
// render server-side.
type StaticFetcher struct {
	httpClient    *http.Client
	userAgents    []string
	currentUA     int
	uaMutex       sync.Mutex
	rateLimiter   *rate.Limiter
	retryAttempts int
	retryDelay    time.Duration
	headers       map[string]string
	logger        zerolog.Logger
}

// NewStaticFetcher creates a static HTTP fetcher with the specified
// configuration.
func NewStaticFetcher(config StaticConfig) *StaticFetcher {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 1.0
	}
	if config.RateBurst == 0 {
		config.RateBurst = 5
	}
	if len(config.UserAgents) == 0 {
		config.UserAgents = defaultUserAgents()
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &StaticFetcher{
		httpClient:    httpClient,
		userAgents:    config.UserAgents,
		rateLimiter:   rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		retryAttempts: config.RetryAttempts,
		retryDelay:    config.RetryDelay,
		headers:       config.Headers,
		logger:        utils.NewComponentLogger("fetch"),
	}
}

// Fetch implements Fetcher. The response body is decoded to UTF-8 based on
// the Content-Type charset before parsing.
func (f *StaticFetcher) Fetch(ctx context.Context, targetURL string, opts Options) (dom.Page, error) {
	start := time.Now()
	page, err := f.fetch(ctx, targetURL, opts)
	monitoring.Default().RecordPageFetch(monitoring.FetchModeStatic, time.Since(start), err)
	return page, err
}

func (f *StaticFetcher) fetch(ctx context.Context, targetURL string, opts Options) (dom.Page, error) {
	if verr := utils.ValidateTargetURL(targetURL); verr != nil {
		return nil, &scrapererr.FetchError{URL: targetURL, Attempts: 0, Err: verr}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var lastErr error
	var lastStatus int
	tried := 0

	for attempt := 0; attempt <= f.retryAttempts; attempt++ {
		if err := f.rateLimiter.Wait(ctx); err != nil {
			return nil, &scrapererr.FetchError{URL: targetURL, Attempts: tried, Err: err}
		}

		tried++
		page, status, err := f.fetchOnce(ctx, targetURL, opts)
		if err == nil {
			return page, nil
		}
		lastErr = err
		lastStatus = status

		f.logger.Debug().
			Str("url", targetURL).
			Int("attempt", tried).
			Int("status", status).
			Err(err).
			Msg("fetch attempt failed")

		if status > 0 && !retryableStatus(status) {
			break
		}
		if attempt < f.retryAttempts {
			if err := f.waitForRetry(ctx, attempt); err != nil {
				return nil, &scrapererr.FetchError{URL: targetURL, Attempts: tried, Err: err}
			}
		}
	}

	return nil, &scrapererr.FetchError{
		URL:        targetURL,
		StatusCode: lastStatus,
		Attempts:   tried,
		Err:        lastErr,
	}
}

func (f *StaticFetcher) fetchOnce(ctx context.Context, targetURL string, opts Options) (dom.Page, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	f.setRequestHeaders(req, opts)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !utils.IsTextContent(contentType) {
		return nil, resp.StatusCode, fmt.Errorf("unsupported content type %q", utils.ParseContentType(contentType))
	}

	// Sites outside the UTF-8 world still exist; decode by declared charset.
	body, err := charset.NewReader(resp.Body, contentType)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("charset detection: %w", err)
	}

	finalURL := targetURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	page, err := dom.Parse(body, finalURL)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return page, resp.StatusCode, nil
}

// setRequestHeaders configures request headers including user agent rotation.
// Accept-Encoding is left to the transport so gzip decompression stays
// automatic.
func (f *StaticFetcher) setRequestHeaders(req *http.Request, opts Options) {
	ua := opts.UserAgent
	if ua == "" {
		ua = f.nextUserAgent()
	}
	req.Header.Set("User-Agent", ua)

	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	for key, value := range f.headers {
		req.Header.Set(key, value)
	}

	for _, c := range opts.Cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value, Path: c.Path, Domain: c.Domain})
	}
}

// nextUserAgent returns the next user agent in rotation
func (f *StaticFetcher) nextUserAgent() string {
	f.uaMutex.Lock()
	defer f.uaMutex.Unlock()

	if len(f.userAgents) == 0 {
		return "DeepScrapexter/1.0"
	}
	ua := f.userAgents[f.currentUA]
	f.currentUA = (f.currentUA + 1) % len(f.userAgents)
	return ua
}

// waitForRetry implements exponential backoff with jitter
func (f *StaticFetcher) waitForRetry(ctx context.Context, attempt int) error {
	backoff := f.retryDelay * time.Duration(1<<uint(attempt))
	jitter := time.Duration(rand.Int63n(int64(backoff/2) + 1))
	delay := backoff + jitter
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// retryableStatus determines if a status code warrants a retry
func retryableStatus(statusCode int) bool {
	switch statusCode {
	case 429, 500, 502, 503, 504, 520, 521, 522, 523, 524:
		return true
	}
	return false
}

// SetRateLimit updates the rate limiting configuration
func (f *StaticFetcher) SetRateLimit(requestsPerSecond float64, burst int) {
	f.rateLimiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// defaultUserAgents returns a set of realistic user agent strings
func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/119.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:109.0) Gecko/20100101 Firefox/119.0",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/119.0",
	}
}
