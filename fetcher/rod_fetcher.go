package fetcher

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ads-scraper/config"
	"ads-scraper/logger"
	"ads-scraper/models"
	"ads-scraper/pagination"
)

// How long a rendered page may keep changing before its HTML is taken
const (
	stableWindow  = 500 * time.Millisecond
	stableTimeout = 10 * time.Second
)

// RodFetcher implements the Fetcher interface using rod (headless browser)
type RodFetcher struct {
	browser *rod.Browser
	cfg     config.FetchConfig
	log     *zap.SugaredLogger
}

// NewRodFetcher launches a headless browser and creates a new RodFetcher instance
func NewRodFetcher(cfg config.FetchConfig, log *zap.SugaredLogger) (*RodFetcher, error) {
	log = logger.OrNop(log)
	if cfg.UserAgent == "" {
		cfg.UserAgent = config.DefaultUserAgent
	}

	// Keep the profile on disk instead of memory when a data dir is mounted
	userDataDir := os.Getenv("ADS_SCRAPER_BROWSER_DIR")
	if userDataDir == "" {
		userDataDir = os.TempDir() + "/ads-scraper-browser"
	}
	if err := os.MkdirAll(userDataDir, 0o755); err != nil {
		log.Warnf("Failed to create browser data directory %s: %v", userDataDir, err)
		userDataDir = ""
	}

	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled").
		NoSandbox(true).
		Leakless(false).
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-extensions").
		Set("mute-audio")
	if userDataDir != "" {
		l = l.UserDataDir(userDataDir)
	}

	// Prefer a system Chrome/Chromium, otherwise rod downloads one
	if path, found := launcher.LookPath(); found {
		l = l.Bin(path)
	}

	browserURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(browserURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return &RodFetcher{
		browser: browser,
		cfg:     cfg,
		log:     log,
	}, nil
}

// Close closes the browser
func (rf *RodFetcher) Close() error {
	if rf.browser != nil {
		return rf.browser.Close()
	}
	return nil
}

// Fetch implements the Fetcher interface
func (rf *RodFetcher) Fetch(ctx context.Context, urls []pagination.PageURL) ([]models.Page, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	pages := make([]models.Page, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism(rf.cfg.Parallelism, len(urls)))
	for i, u := range urls {
		g.Go(func() error {
			rf.log.Infof("Parse %s: %s", pagination.PageLabel(u.Number, len(urls)), u.URL)
			page, err := rf.fetchPage(gctx, u)
			if err != nil {
				return fmt.Errorf("failed to fetch %s: %w", u.URL, err)
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rf.log.Infof("Fetching completed. Total pages fetched: %d", len(pages))
	return pages, nil
}

// fetchPage renders a single page in its own tab
func (rf *RodFetcher) fetchPage(ctx context.Context, u pagination.PageURL) (models.Page, error) {
	b := rf.browser.Context(ctx)
	if rf.cfg.Timeout > 0 {
		b = b.Timeout(rf.cfg.Timeout)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return models.Page{}, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: rf.cfg.UserAgent}); err != nil {
		return models.Page{}, fmt.Errorf("failed to set user agent: %w", err)
	}

	if err := page.Navigate(u.URL); err != nil {
		return models.Page{}, fmt.Errorf("failed to navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return models.Page{}, fmt.Errorf("failed to wait for load: %w", err)
	}

	if err := page.Timeout(stableTimeout).WaitStable(stableWindow); err != nil {
		rf.log.Warnf("Page %d did not stabilize within timeout, continuing anyway: %v", u.Number, err)
	}

	html, err := page.HTML()
	if err != nil {
		return models.Page{}, fmt.Errorf("failed to get HTML: %w", err)
	}

	return models.Page{
		Number:      u.Number,
		URL:         u.URL,
		Body:        []byte(html),
		ContentType: "text/html; charset=utf-8",
	}, nil
}
