// Package scraper consumes scrape jobs from the work channel, fetches and
// processes pages, and feeds newly discovered links back into the job
// catalog.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pagemill/crawl-ingest-service/common/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// FetchResult is one retrieved page.
type FetchResult struct {
	HTML       string
	StatusCode int
}

// Fetcher retrieves a page over the wire. A non-2xx/3xx response is an
// error, not a result.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// NewFetcher builds the configured fetcher variant. The rod renderer is for
// JS-heavy pages; plain HTTP is the default.
func NewFetcher(cfg config.CrawlConfig) (Fetcher, error) {
	switch cfg.Renderer {
	case "", "http":
		return NewHTTPFetcher(cfg.FetchTimeout), nil
	case "rod":
		return NewRodFetcher(cfg.FetchTimeout)
	default:
		return nil, fmt.Errorf("unknown fetch renderer %q", cfg.Renderer)
	}
}

// HTTPFetcher fetches pages with a plain HTTP client.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher with the given per-request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch retrieves the page body. HTTP status >= 400 is a fetch failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return FetchResult{}, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{}, fmt.Errorf("reading %s: %w", url, err)
	}

	return FetchResult{HTML: string(body), StatusCode: resp.StatusCode}, nil
}

// RodFetcher renders pages in a headless browser before capturing the HTML.
type RodFetcher struct {
	browser *rod.Browser
	timeout time.Duration
}

// NewRodFetcher connects to the browser once; pages are created per fetch.
func NewRodFetcher(timeout time.Duration) (*RodFetcher, error) {
	browser := rod.New()
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connecting browser: %w", err)
	}
	return &RodFetcher{browser: browser, timeout: timeout}, nil
}

// Fetch navigates to the URL, waits for the page to settle and returns the
// rendered HTML. The renderer cannot observe the HTTP status, so a page
// that loads reports 200.
func (f *RodFetcher) Fetch(ctx context.Context, url string) (FetchResult, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	incognito, err := f.browser.Incognito()
	if err != nil {
		return FetchResult{}, fmt.Errorf("creating incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return FetchResult{}, fmt.Errorf("creating page: %w", err)
	}
	defer page.Close()

	rp := page.Context(fetchCtx)
	if err := rp.Navigate(url); err != nil {
		return FetchResult{}, fmt.Errorf("navigating to %s: %w", url, err)
	}
	if err := rp.WaitLoad(); err != nil {
		return FetchResult{}, fmt.Errorf("waiting for %s: %w", url, err)
	}

	html, err := rp.HTML()
	if err != nil {
		return FetchResult{}, fmt.Errorf("reading html of %s: %w", url, err)
	}

	return FetchResult{HTML: html, StatusCode: http.StatusOK}, nil
}

// Close shuts the underlying browser down.
func (f *RodFetcher) Close() error {
	return f.browser.Close()
}
