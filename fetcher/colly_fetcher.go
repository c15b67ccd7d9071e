package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"ads-scraper/config"
	"ads-scraper/logger"
	"ads-scraper/models"
	"ads-scraper/pagination"
)

const pageIndexKey = "page_index"

// CollyFetcher implements the Fetcher interface using colly
type CollyFetcher struct {
	cfg config.FetchConfig
	log *zap.SugaredLogger
}

// NewCollyFetcher creates a new CollyFetcher instance
func NewCollyFetcher(cfg config.FetchConfig, log *zap.SugaredLogger) *CollyFetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = config.DefaultUserAgent
	}
	return &CollyFetcher{
		cfg: cfg,
		log: logger.OrNop(log),
	}
}

// Close implements the Fetcher interface; colly holds nothing between runs
func (cf *CollyFetcher) Close() error {
	return nil
}

// Fetch implements the Fetcher interface
func (cf *CollyFetcher) Fetch(ctx context.Context, urls []pagination.PageURL) ([]models.Page, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	// A fresh collector per run keeps callbacks from leaking between runs
	c := colly.NewCollector(
		colly.UserAgent(cf.cfg.UserAgent),
		colly.Async(true),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	if cf.cfg.Timeout > 0 {
		c.SetRequestTimeout(cf.cfg.Timeout)
	}
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: parallelism(cf.cfg.Parallelism, len(urls)),
	}); err != nil {
		return nil, fmt.Errorf("failed to set limit rule: %w", err)
	}

	pages := make([]models.Page, len(urls))

	var mu sync.Mutex
	var firstErr error
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	c.OnRequest(func(r *colly.Request) {
		// One failed page fails the run, so skip what has not been sent yet
		if failed() {
			r.Abort()
			return
		}
		if cf.cfg.Accept != "" {
			r.Headers.Set("Accept", cf.cfg.Accept)
		}
		idx, _ := r.Ctx.GetAny(pageIndexKey).(int)
		cf.log.Infof("Parse %s: %s", pagination.PageLabel(urls[idx].Number, len(urls)), r.URL)
	})

	c.OnResponse(func(r *colly.Response) {
		idx, ok := r.Ctx.GetAny(pageIndexKey).(int)
		if !ok {
			fail(fmt.Errorf("response without page index: %s", r.Request.URL))
			return
		}
		if r.StatusCode != http.StatusOK {
			fail(fmt.Errorf("%w %d for %s", ErrUnexpectedStatus, r.StatusCode, r.Request.URL))
			return
		}

		pages[idx] = models.Page{
			Number:      urls[idx].Number,
			URL:         urls[idx].URL,
			Body:        r.Body,
			ContentType: r.Headers.Get("Content-Type"),
		}
		cf.log.Debugw("Fetched page", "page", urls[idx].Number, "url", urls[idx].URL, "bytes", len(r.Body))
	})

	c.OnError(func(r *colly.Response, err error) {
		if r.StatusCode != 0 {
			fail(fmt.Errorf("%w %d for %s", ErrUnexpectedStatus, r.StatusCode, r.Request.URL))
			return
		}
		fail(fmt.Errorf("failed to fetch %s: %w", r.Request.URL, err))
	})

	for i, u := range urls {
		reqCtx := colly.NewContext()
		reqCtx.Put(pageIndexKey, i)
		if err := c.Request(http.MethodGet, u.URL, nil, reqCtx, nil); err != nil {
			fail(fmt.Errorf("failed to visit URL %s: %w", u.URL, err))
			break
		}
	}

	// Wait for all requests to complete
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}

	cf.log.Infof("Fetching completed. Total pages fetched: %d", len(pages))
	return pages, nil
}
