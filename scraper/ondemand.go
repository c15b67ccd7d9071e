package scraper

import (
	"context"

	"go.uber.org/zap"

	"ads-scraper/config"
	"ads-scraper/fetcher"
	"ads-scraper/logger"
	"ads-scraper/parser"
)

// OnDemand creates a fresh fetcher for every run and closes it afterwards,
// so a headless browser only lives while a request is being processed.
type OnDemand struct {
	cfg    config.FetchConfig
	parser *parser.Parser
	log    *zap.SugaredLogger
}

// NewOnDemand creates a runner for the given fetch settings
func NewOnDemand(cfg config.FetchConfig, log *zap.SugaredLogger) *OnDemand {
	return &OnDemand{
		cfg:    cfg,
		parser: parser.NewParser(),
		log:    logger.OrNop(log),
	}
}

// Run executes job with a fetcher created just for it
func (o *OnDemand) Run(ctx context.Context, job Job) (*Result, error) {
	f, err := fetcher.New(o.cfg, o.log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			o.log.Warnf("Failed to close fetcher: %v", err)
		}
	}()

	return NewScraper(f, o.parser, o.log).Run(ctx, job)
}
