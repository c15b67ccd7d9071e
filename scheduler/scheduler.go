package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"ads-scraper/db"
	"ads-scraper/logger"
	"ads-scraper/models"
	"ads-scraper/output"
	"ads-scraper/scraper"
	"ads-scraper/sheets"
)

// Store is the subset of the database the scheduler works with
type Store interface {
	ClaimNextRequest(ctx context.Context) (*db.Request, error)
	SaveAds(ctx context.Context, requestID int, ads []models.Ad) error
	CompleteRequest(ctx context.Context, requestID int, runID string, adsCount, pagesCount int, outputPath string) error
	FailRequest(ctx context.Context, requestID int, reason string) error
	UpdateRequestSheetName(ctx context.Context, requestID int, sheetName string) error
}

// Notifier delivers status updates to the user who queued a request
type Notifier interface {
	SendText(chatID int64, replyTo int, text string) error
	SendDocument(chatID int64, replyTo int, path, caption string) error
}

// Runner executes a scraping job
type Runner interface {
	Run(ctx context.Context, job scraper.Job) (*scraper.Result, error)
}

// Exporter copies finished runs to a spreadsheet
type Exporter interface {
	CreateSheetAndWriteAds(ctx context.Context, sheetName string, ads []models.Ad, sourceURL string) (string, int64, error)
}

// Options configures the scheduler
type Options struct {
	Interval       time.Duration
	OutputDir      string
	Output         output.Options
	SpreadsheetURL string
}

// Scheduler processes scraping requests from the database
type Scheduler struct {
	store    Store
	runner   Runner
	notifier Notifier
	exporter Exporter // nil disables the Sheets export
	opts     Options
	log      *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new scheduler
func NewScheduler(store Store, runner Runner, notifier Notifier, exporter Exporter, opts Options, log *zap.SugaredLogger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Output.Delimiter == 0 {
		opts.Output.Delimiter = output.DefaultDelimiter
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		store:    store,
		runner:   runner,
		notifier: notifier,
		exporter: exporter,
		opts:     opts,
		log:      logger.OrNop(log),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the scheduler in a goroutine
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
}

// Stop stops the scheduler and waits for the request in progress to finish
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.log.Info("Scheduler stopped")
}

// run is the main scheduler loop
func (s *Scheduler) run() {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			// Drain the queue before waiting for the next tick
			for s.ctx.Err() == nil && s.processNextRequest(s.ctx) {
			}
		}
	}
}

// processNextRequest claims and processes one queued request.
// It reports whether a request was found.
func (s *Scheduler) processNextRequest(ctx context.Context) bool {
	req, err := s.store.ClaimNextRequest(ctx)
	if err != nil {
		s.log.Errorf("Error getting next request: %v", err)
		return false
	}
	if req == nil {
		return false
	}

	log := s.log.With("request_id", req.ID, "user_id", req.UserID)
	log.Infof("Processing request for %s (%d page(s))", req.URL, req.Pages)
	s.sendStatusUpdate(req, fmt.Sprintf("🔄 Processing request... Scraping %d page(s)", req.Pages))

	if err := os.MkdirAll(s.opts.OutputDir, 0o755); err != nil {
		s.handleRequestError(ctx, req, fmt.Errorf("failed to create output directory: %w", err))
		return true
	}
	outputPath := OutputPath(s.opts.OutputDir, req.ID)

	res, err := s.runner.Run(ctx, scraper.Job{
		URLTemplate: req.URL,
		Pages:       req.Pages,
		Output:      outputPath,
		Options:     s.opts.Output,
	})
	if err != nil {
		log.Errorf("Error scraping: %v", err)
		s.handleRequestError(ctx, req, err)
		return true
	}
	log = log.With("run_id", res.RunID)

	if err := s.store.SaveAds(ctx, req.ID, res.Ads); err != nil {
		log.Errorf("Error saving ads: %v", err)
		s.handleRequestError(ctx, req, err)
		return true
	}

	var sheetURL string
	if s.exporter != nil {
		sheetName := fmt.Sprintf("Request_%d_%s", req.ID, time.Now().Format("20060102_150405"))
		createdSheetName, sheetID, err := s.exporter.CreateSheetAndWriteAds(ctx, sheetName, res.Ads, req.URL)
		if err != nil {
			log.Errorf("Error writing to Google Sheets: %v", err)
			s.handleRequestError(ctx, req, err)
			return true
		}
		if err := s.store.UpdateRequestSheetName(ctx, req.ID, createdSheetName); err != nil {
			log.Warnf("Failed to update sheet name: %v", err)
		}
		sheetURL = sheets.SheetURL(s.opts.SpreadsheetURL, sheetID)
	}

	if err := s.store.CompleteRequest(ctx, req.ID, res.RunID, res.Written, res.Pages, outputPath); err != nil {
		log.Errorf("Error updating request status to done: %v", err)
		return true
	}

	caption := fmt.Sprintf("✅ Got %d ad(s) from %d page(s)", res.Written, res.Pages)
	if sheetURL != "" {
		caption += "\n\nView spreadsheet: " + sheetURL
	}
	if err := s.notifier.SendDocument(req.UserID, req.TelegramMessageID, outputPath, caption); err != nil {
		log.Warnf("Failed to send file, falling back to text: %v", err)
		s.sendStatusUpdate(req, caption)
	}
	log.Infof("Request done: %d ad(s)", res.Written)
	return true
}

// handleRequestError marks the request failed and tells the user why
func (s *Scheduler) handleRequestError(ctx context.Context, req *db.Request, err error) {
	// The run context may already be cancelled during shutdown
	ctx = context.WithoutCancel(ctx)
	if updateErr := s.store.FailRequest(ctx, req.ID, err.Error()); updateErr != nil {
		s.log.Errorf("Error updating request status to failed: %v", updateErr)
	}
	s.sendStatusUpdate(req, fmt.Sprintf("❌ Error processing request: %v", err))
}

// sendStatusUpdate sends a status message as a reply to the original request
func (s *Scheduler) sendStatusUpdate(req *db.Request, text string) {
	if err := s.notifier.SendText(req.UserID, req.TelegramMessageID, text); err != nil {
		s.log.Warnf("Error sending status update: %v", err)
	}
}

// OutputPath returns the file a request's ads are written to
func OutputPath(dir string, requestID int) string {
	return filepath.Join(dir, fmt.Sprintf("ads_%d.csv", requestID))
}
