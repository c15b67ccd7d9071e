package scraper

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ads-scraper/config"
	"ads-scraper/fetcher"
	"ads-scraper/logger"
	"ads-scraper/models"
	"ads-scraper/output"
	"ads-scraper/pagination"
	"ads-scraper/parser"
)

// Job describes a single scraping run
type Job struct {
	URLTemplate string
	Pages       int
	// Discover reads the page count from the first page; Pages then caps it
	Discover bool
	Output   string
	Options  output.Options
}

// Result holds the outcome of a run
type Result struct {
	RunID   string
	Ads     []models.Ad
	Pages   int
	Output  string
	Written int
}

// Scraper runs the fetch, parse and write pipeline
type Scraper struct {
	fetcher fetcher.Fetcher
	parser  *parser.Parser
	log     *zap.SugaredLogger
}

// NewScraper creates a new Scraper instance
func NewScraper(f fetcher.Fetcher, p *parser.Parser, log *zap.SugaredLogger) *Scraper {
	if p == nil {
		p = parser.NewParser()
	}
	return &Scraper{
		fetcher: f,
		parser:  p,
		log:     logger.OrNop(log),
	}
}

// Run collects every ad and writes them to job.Output
func (s *Scraper) Run(ctx context.Context, job Job) (*Result, error) {
	if job.Output == "" {
		return nil, fmt.Errorf("output file is required")
	}

	res, err := s.Collect(ctx, job.URLTemplate, job.Pages, job.Discover)
	if err != nil {
		return nil, err
	}

	written, err := output.WriteAds(job.Output, res.Ads, job.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to save ads: %w", err)
	}
	if written != len(res.Ads) {
		return nil, fmt.Errorf("wrote %d of %d ads", written, len(res.Ads))
	}

	res.Output = job.Output
	res.Written = written
	s.log.Infow("Saved ads", "run_id", res.RunID, "file", job.Output, "ads", written)
	return res, nil
}

// Collect fetches and parses every page without writing anything.
// Ads keep page order, then row order within each page.
func (s *Scraper) Collect(ctx context.Context, template string, pages int, discover bool) (*Result, error) {
	if pages == 0 {
		return nil, config.ErrZeroPages
	}

	runID := uuid.NewString()
	log := s.log.With("run_id", runID)

	if discover {
		discovered, err := s.discoverPages(ctx, template)
		if err != nil {
			return nil, err
		}
		log.Infof("Discovered %d page(s)", discovered)
		if discovered < pages {
			pages = discovered
		}
	}

	urls, err := pagination.BuildPageURLs(template, pages)
	if err != nil {
		return nil, err
	}

	fetched, err := s.fetcher.Fetch(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("scraping failed: %w", err)
	}

	var ads []models.Ad
	for _, page := range fetched {
		pageAds, err := s.parser.ParseAds(page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ads: %w", err)
		}
		log.Debugw("Parsed page", "page", page.Number, "ads", len(pageAds))
		ads = append(ads, pageAds...)
	}

	log.Infof("Got %d ad(s) from %d page(s)", len(ads), len(fetched))
	return &Result{
		RunID: runID,
		Ads:   ads,
		Pages: len(fetched),
	}, nil
}

// discoverPages fetches the first page and reads its pagination block
func (s *Scraper) discoverPages(ctx context.Context, template string) (int, error) {
	first, err := pagination.BuildPageURLs(template, 1)
	if err != nil {
		return 0, err
	}

	fetched, err := s.fetcher.Fetch(ctx, first)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch first page: %w", err)
	}
	if len(fetched) == 0 {
		return 0, fmt.Errorf("first page returned no content")
	}

	count, err := s.parser.CountPages(fetched[0])
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return count, nil
}
