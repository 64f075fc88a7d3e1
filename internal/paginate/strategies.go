// internal/paginate/strategies.go

package paginate

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/valpere/DeepScrapexter/internal/browser"
	"github.com/valpere/DeepScrapexter/internal/scrapererr"
)

// offsetParam is one URL-parameter candidate for the urlOffset probe.
type offsetParam struct {
	name  string
	step  int
	start int
}

// offsetParams are probed in order. The trial page sets the parameter to the
// step value; a content count that differs from the base page adopts it.
var offsetParams = []offsetParam{
	{"offset", 20, 0},
	{"page", 1, 1},
	{"skip", 20, 0},
	{"start", 20, 0},
	{"from", 20, 0},
}

func (c *Controller) runSinglePage(ctx context.Context, startURL string, agg *aggregator, result *Result) error {
	page, err := c.fetchPage(ctx, startURL, c.config.FetchOptions)
	if err != nil {
		return err
	}
	result.PagesFetched = 1
	c.consume(ctx, page, agg)
	return nil
}

// runClickThrough drives button and loadMore pagination: as long as the
// control is present on the current page, the listing URL is fetched again
// with a page action that clicks it, so sites that swap content in place
// keep yielding new records under the same URL.
func (c *Controller) runClickThrough(ctx context.Context, startURL, selector string, agg *aggregator, result *Result) error {
	budget := c.pageBudget()

	page, err := c.fetchPage(ctx, startURL, c.config.FetchOptions)
	if err != nil {
		return err
	}

	emptyStreak := 0
	for {
		result.PagesFetched++
		if c.consume(ctx, page, agg) > 0 {
			emptyStreak = 0
		} else {
			emptyStreak++
		}

		if result.PagesFetched >= budget {
			return scrapererr.ErrPaginationLimit
		}
		if emptyStreak >= c.emptyLimit() {
			c.logger.Info().Int("pages", result.PagesFetched).Msg("no new records after repeated loads, stopping")
			return nil
		}

		if len(c.resolver.Query(page, selector, "")) == 0 {
			c.logger.Debug().Str("selector", selector).Msg("pagination control absent, done")
			return nil
		}

		pause := c.pause()
		if err := sleep(ctx, pause); err != nil {
			return err
		}

		opts := c.config.FetchOptions
		opts.PageAction = browser.Click(selector, pause)
		next, err := c.fetchPage(ctx, startURL, opts)
		if err != nil {
			agg.errs = append(agg.errs, err)
			c.logger.Warn().Err(err).Msg("page fetch failed, treating as end of pagination")
			return nil
		}
		page = next
	}
}

func (c *Controller) runURLPattern(ctx context.Context, agg *aggregator, result *Result) error {
	spec := c.config.Spec
	budget := c.pageBudget()

	pageNum := spec.StartPage
	if pageNum <= 0 {
		pageNum = 1
	}

	emptyStreak := 0
	for {
		pageURL := strings.ReplaceAll(spec.URLPattern, "{page}", strconv.Itoa(pageNum))
		page, err := c.fetchPage(ctx, pageURL, c.config.FetchOptions)
		if err != nil {
			if result.PagesFetched == 0 {
				return err
			}
			agg.errs = append(agg.errs, err)
			c.logger.Warn().Err(err).Msg("page fetch failed, treating as end of pagination")
			return nil
		}

		result.PagesFetched++
		if c.consume(ctx, page, agg) > 0 {
			emptyStreak = 0
		} else {
			emptyStreak++
		}

		if result.PagesFetched >= budget {
			return scrapererr.ErrPaginationLimit
		}
		if emptyStreak >= c.emptyLimit() {
			c.logger.Info().Int("pages", result.PagesFetched).Msg("no new records, stopping")
			return nil
		}

		pageNum++
		if err := sleep(ctx, c.pause()); err != nil {
			return err
		}
	}
}

// runURLOffset probes common pagination query parameters against the base
// page, then walks the first one whose trial page carries a different number
// of content elements.
func (c *Controller) runURLOffset(ctx context.Context, startURL string, agg *aggregator, result *Result) error {
	budget := c.pageBudget()
	if limit := c.offsetCap(); budget > limit {
		budget = limit
	}

	base, err := c.fetchPage(ctx, startURL, c.config.FetchOptions)
	if err != nil {
		return err
	}
	result.PagesFetched = 1
	c.consume(ctx, base, agg)
	baseCount := c.contentCount(base)
	if baseCount == 0 {
		c.logger.Info().Msg("no countable content on base page, skipping offset probing")
		return nil
	}

	param, ok := c.probeOffsetParam(ctx, startURL, baseCount, budget, result)
	if !ok {
		c.logger.Info().Msg("no working pagination parameter detected")
		return nil
	}

	value := param.start + param.step
	emptyStreak := 0
	for result.PagesFetched < budget {
		if err := sleep(ctx, c.pause()); err != nil {
			return err
		}

		pageURL, err := setQueryParam(startURL, param.name, value)
		if err != nil {
			return err
		}
		page, err := c.fetchPage(ctx, pageURL, c.config.FetchOptions)
		if err != nil {
			agg.errs = append(agg.errs, err)
			c.logger.Warn().Err(err).Msg("page fetch failed, treating as end of pagination")
			return nil
		}

		result.PagesFetched++
		if c.consume(ctx, page, agg) > 0 {
			emptyStreak = 0
		} else {
			emptyStreak++
		}
		if emptyStreak >= c.emptyLimit() {
			c.logger.Info().Int("pages", result.PagesFetched).Msg("no new records, stopping")
			return nil
		}

		value += param.step
	}
	return scrapererr.ErrPaginationLimit
}

// probeOffsetParam fetches one trial page per candidate parameter and adopts
// the first whose content count differs from the base page.
func (c *Controller) probeOffsetParam(ctx context.Context, baseURL string, baseCount, budget int, result *Result) (offsetParam, bool) {
	for _, param := range offsetParams {
		if ctx.Err() != nil || result.PagesFetched >= budget {
			break
		}

		trialURL, err := setQueryParam(baseURL, param.name, param.step)
		if err != nil {
			break
		}
		page, err := c.fetchPage(ctx, trialURL, c.config.FetchOptions)
		if err != nil {
			continue
		}
		result.PagesFetched++

		count := c.contentCount(page)
		if count > 0 && count != baseCount {
			c.logger.Info().
				Str("param", param.name).
				Int("trialCount", count).
				Int("baseCount", baseCount).
				Msg("pagination parameter detected")
			return param, true
		}
	}
	return offsetParam{}, false
}

// runInfiniteScroll fetches the listing once with a page action that keeps
// triggering content until growth stops; extraction then sees the fully
// loaded page.
func (c *Controller) runInfiniteScroll(ctx context.Context, startURL string, agg *aggregator, result *Result) error {
	opts := c.config.FetchOptions
	opts.PageAction = browser.InfiniteScroll(browser.ScrollOptions{
		ItemSelectors: c.itemCountSelectors(),
		EndSelector:   c.config.Spec.EndConditionSelector,
		Pause:         c.pause(),
		MaxScrolls:    c.config.ScrollAttempts,
		StableRounds:  c.config.StableProbes,
	})

	page, err := c.fetchPage(ctx, startURL, opts)
	if err != nil {
		return err
	}
	result.PagesFetched = 1
	c.consume(ctx, page, agg)
	return nil
}

func setQueryParam(rawURL, name string, value int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(name, strconv.Itoa(value))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
