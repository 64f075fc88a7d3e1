// internal/fetch/fetch.go

// Package fetch retrieves pages and hands them to extraction as parsed
// documents. The static fetcher speaks plain HTTP; the browser fetcher in
// internal/browser renders JavaScript first. Both satisfy Fetcher so the
// session can switch on the template's headless flag.
package fetch

import (
	"context"
	"time"

	"github.com/valpere/DeepScrapexter/internal/dom"
	"github.com/valpere/DeepScrapexter/internal/template"
)

// PageAction runs extra steps inside the browser after navigation, such as
// infinite scrolling or clicking load-more buttons. The context carries the
// browser tab. Static fetchers ignore it.
type PageAction func(ctx context.Context) error

// Options adjusts a single fetch.
type Options struct {
	// Headless requests browser rendering. The session picks the fetcher;
	// this flag travels along for implementations that serve both modes.
	Headless bool

	// Timeout bounds the whole fetch including navigation. Zero uses the
	// fetcher's default.
	Timeout time.Duration

	// UserAgent overrides the fetcher's user agent rotation.
	UserAgent string

	// Cookies are set before the request or navigation.
	Cookies []template.Cookie

	// PageAction runs in the browser after load. Ignored by static fetchers.
	PageAction PageAction
}

// Fetcher retrieves a URL as a parsed page.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts Options) (dom.Page, error)
}
