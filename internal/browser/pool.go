// internal/browser/pool.go

package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/valpere/DeepScrapexter/internal/dom"
	"github.com/valpere/DeepScrapexter/internal/fetch"
	"github.com/valpere/DeepScrapexter/internal/utils"
)

const (
	// DefaultPoolSize matches the subpage worker count.
	DefaultPoolSize = 5

	poolWaitTimeout = 30 * time.Second
)

// Pool maintains a bounded set of Chrome processes for concurrent fetches.
// Browsers are created lazily up to the pool cap and reused afterwards.
// Pool implements fetch.Fetcher, so callers that fan out across workers can
// hold a Pool where a single Browser would otherwise go.
type Pool struct {
	mu       sync.Mutex
	browsers chan *Browser
	config   *Config
	maxSize  int
	size     int
	closed   bool
	logger   zerolog.Logger
}

// NewPool creates a browser pool. No Chrome process starts until the first
// Get.
func NewPool(config *Config, maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = DefaultPoolSize
	}
	if config == nil {
		config = DefaultConfig()
	}
	return &Pool{
		browsers: make(chan *Browser, maxSize),
		config:   config,
		maxSize:  maxSize,
		logger:   utils.NewComponentLogger("browser-pool"),
	}
}

// Get returns an idle browser, creating one while under the cap. When the
// pool is exhausted it waits for a return, bounded by the context and a
// fixed timeout.
func (p *Pool) Get(ctx context.Context) (*Browser, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("browser pool is closed")
	}

	select {
	case b := <-p.browsers:
		p.mu.Unlock()
		return b, nil
	default:
	}

	if p.size < p.maxSize {
		p.size++
		p.mu.Unlock()

		b, err := New(p.config)
		if err != nil {
			p.mu.Lock()
			p.size--
			p.mu.Unlock()
			return nil, fmt.Errorf("failed to create pooled browser: %w", err)
		}
		p.logger.Debug().Int("pool_size", p.Size()).Msg("browser created")
		return b, nil
	}
	p.mu.Unlock()

	select {
	case b := <-p.browsers:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(poolWaitTimeout):
		return nil, fmt.Errorf("timeout waiting for available browser")
	}
}

// Put returns a browser to the pool. Browsers that no longer fit, or arrive
// after Close, are shut down instead.
func (p *Pool) Put(b *Browser) {
	if b == nil {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.size--
		p.mu.Unlock()
		b.Close()
		return
	}

	select {
	case p.browsers <- b:
		p.mu.Unlock()
	default:
		p.size--
		p.mu.Unlock()
		b.Close()
	}
}

// Fetch implements fetch.Fetcher using a pooled browser.
func (p *Pool) Fetch(ctx context.Context, targetURL string, opts fetch.Options) (dom.Page, error) {
	b, err := p.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Put(b)
	return b.Fetch(ctx, targetURL, opts)
}

// Size reports how many browsers the pool has created and not destroyed.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Cap reports the maximum number of concurrent browsers.
func (p *Pool) Cap() int {
	return p.maxSize
}

// Close shuts down every idle browser and rejects further use. Browsers
// checked out at close time are shut down when returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for {
		select {
		case b := <-p.browsers:
			p.size--
			b.Close()
		default:
			return nil
		}
	}
}
