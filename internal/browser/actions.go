// internal/browser/actions.go

package browser

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/valpere/DeepScrapexter/internal/fetch"
	"github.com/valpere/DeepScrapexter/internal/template"
)

// Scroll loop defaults. Listing pages that keep loading past these bounds
// are cut off rather than scrolled forever.
const (
	DefaultScrollPause  = 2 * time.Second
	DefaultMaxScrolls   = 20
	DefaultStableRounds = 3
)

// loadMoreSelectors are tried in order on every scroll round. Sites name
// their load buttons inconsistently, so matching stays deliberately loose.
var loadMoreSelectors = []string{
	"button[class*=\"load\"]",
	"button[class*=\"more\"]",
	"a[class*=\"load\"]",
	"[class*=\"load-more\"]",
	"[class*=\"show-more\"]",
	".load-more",
	".show-more",
	".view-more",
	"[data-load-more]",
}

// nextLinkSelectors cover AJAX paginators that dress up as pagination links.
// Only links without a real href are clicked so the tab never navigates away.
var nextLinkSelectors = []string{
	"a[rel=\"next\"]",
	".pagination a.next",
	"a.next",
}

// ScrollOptions tunes the infinite scroll loop.
type ScrollOptions struct {
	// ItemSelectors are the CSS selectors counted to detect growth; the
	// largest match count wins. When empty the document scroll height is
	// used instead.
	ItemSelectors []string

	// EndSelector stops the loop as soon as it matches anything, for pages
	// that render an explicit end-of-results marker.
	EndSelector string

	Pause        time.Duration
	MaxScrolls   int
	StableRounds int
}

// InfiniteScroll returns a page action that repeatedly clicks load-more
// controls and scrolls to the bottom until the item count stops growing.
func InfiniteScroll(opts ScrollOptions) fetch.PageAction {
	if opts.Pause <= 0 {
		opts.Pause = DefaultScrollPause
	}
	if opts.MaxScrolls <= 0 {
		opts.MaxScrolls = DefaultMaxScrolls
	}
	if opts.StableRounds <= 0 {
		opts.StableRounds = DefaultStableRounds
	}

	countExpr := countExpression(opts.ItemSelectors)
	clickExpr := clickExpression()
	endExpr := ""
	if opts.EndSelector != "" {
		endExpr = matchExpression(opts.EndSelector)
	}

	return func(ctx context.Context) error {
		var lastCount, stable int
		for attempt := 0; attempt < opts.MaxScrolls; attempt++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			// A failed click is not fatal; most pages have no button at all.
			var clicked bool
			_ = chromedp.Run(ctx, chromedp.Evaluate(clickExpr, &clicked))

			if err := chromedp.Run(ctx,
				chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight)", nil),
				chromedp.Sleep(opts.Pause),
			); err != nil {
				return err
			}

			if endExpr != "" {
				var ended bool
				if err := chromedp.Run(ctx, chromedp.Evaluate(endExpr, &ended)); err == nil && ended {
					break
				}
			}

			var count int
			if err := chromedp.Run(ctx, chromedp.Evaluate(countExpr, &count)); err != nil {
				return err
			}

			if count == lastCount {
				stable++
				if stable >= opts.StableRounds {
					break
				}
			} else {
				stable = 0
				lastCount = count
			}
		}
		return nil
	}
}

// Click returns a page action that clicks the first visible element matching
// any of the comma-separated selector alternatives, then waits for the page
// to settle. A missing control is not an error; the page simply stays as it
// was and the caller's no-new-content check ends the run.
func Click(selector string, settle time.Duration) fetch.PageAction {
	if settle <= 0 {
		settle = DefaultScrollPause
	}
	expr := clickTargetsExpression(template.SplitAlternatives(selector))

	return func(ctx context.Context) error {
		var clicked bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &clicked)); err != nil {
			return err
		}
		if !clicked {
			return nil
		}
		return chromedp.Run(ctx, chromedp.Sleep(settle))
	}
}

// countExpression builds the JS expression that measures page growth as the
// largest match count across the probe selectors.
func countExpression(itemSelectors []string) string {
	if len(itemSelectors) == 0 {
		return "document.body.scrollHeight"
	}
	selectors, _ := json.Marshal(itemSelectors)
	return `(() => {
		let max = 0;
		for (const s of ` + string(selectors) + `) {
			try { max = Math.max(max, document.querySelectorAll(s).length); }
			catch (e) {}
		}
		return max;
	})()`
}

// matchExpression builds the JS expression that reports whether a selector
// matches anything.
func matchExpression(selector string) string {
	return `(() => {
		try { return document.querySelector(` + strconv.Quote(selector) + `) !== null; }
		catch (e) { return false; }
	})()`
}

// clickTargetsExpression builds the JS expression that clicks the first
// visible element among the given selectors.
func clickTargetsExpression(selectors []string) string {
	targets, _ := json.Marshal(selectors)
	return `(() => {
		const visible = (el) => el && el.offsetParent !== null && !el.disabled;
		for (const s of ` + string(targets) + `) {
			let el;
			try { el = document.querySelector(s); } catch (e) { continue; }
			if (visible(el)) { el.click(); return true; }
		}
		return false;
	})()`
}

// clickExpression builds the JS expression that clicks the first visible
// load-more control, falling back to href-less next links.
func clickExpression() string {
	loadMore, _ := json.Marshal(loadMoreSelectors)
	nextLinks, _ := json.Marshal(nextLinkSelectors)
	return `(() => {
		const visible = (el) => el && el.offsetParent !== null && !el.disabled;
		for (const s of ` + string(loadMore) + `) {
			let el;
			try { el = document.querySelector(s); } catch (e) { continue; }
			if (visible(el)) { el.click(); return true; }
		}
		for (const s of ` + string(nextLinks) + `) {
			let el;
			try { el = document.querySelector(s); } catch (e) { continue; }
			if (!visible(el)) continue;
			const href = el.getAttribute("href") || "";
			if (href === "" || href === "#" || href.startsWith("javascript:")) {
				el.click();
				return true;
			}
		}
		return false;
	})()`
}
