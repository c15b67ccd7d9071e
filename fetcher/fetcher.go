package fetcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ads-scraper/config"
	"ads-scraper/models"
	"ads-scraper/pagination"
)

// ErrUnexpectedStatus is returned when a listing page does not answer 200 OK
var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

// Fetcher defines the contract for fetching implementations
type Fetcher interface {
	// Fetch retrieves every page concurrently and returns them in input order.
	// The first failed page aborts the whole fetch.
	Fetch(ctx context.Context, urls []pagination.PageURL) ([]models.Page, error)
	// Close releases resources held by the fetcher
	Close() error
}

// New creates the fetcher selected by cfg.Engine
func New(cfg config.FetchConfig, log *zap.SugaredLogger) (Fetcher, error) {
	switch cfg.Engine {
	case config.EngineHTTP, "":
		return NewCollyFetcher(cfg, log), nil
	case config.EngineBrowser:
		return NewRodFetcher(cfg, log)
	default:
		return nil, fmt.Errorf("unknown fetch engine %q", cfg.Engine)
	}
}

// parallelism returns how many pages may be in flight at once
func parallelism(configured, pages int) int {
	if configured <= 0 || configured > pages {
		return pages
	}
	return configured
}
