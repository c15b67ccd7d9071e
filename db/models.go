package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ads-scraper/models"
)

// Request statuses
const (
	StatusCreated    = "created"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// UserConfig represents user-specific configuration
type UserConfig struct {
	UserID    int64
	Pages     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Request represents a queued scraping request
type Request struct {
	ID                int
	UserID            int64
	TelegramMessageID int
	URL               string
	Pages             int
	Status            string // "created", "in_progress", "done", "failed"
	AdsCount          int
	PagesCount        int
	OutputPath        sql.NullString
	SheetName         sql.NullString
	RunID             sql.NullString
	LastError         sql.NullString
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

const requestColumns = `id, user_id, telegram_message_id, url, pages, status, ads_count, pages_count,
	output_path, sheet_name, run_id, last_error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var req Request
	err := row.Scan(
		&req.ID, &req.UserID, &req.TelegramMessageID, &req.URL, &req.Pages, &req.Status,
		&req.AdsCount, &req.PagesCount, &req.OutputPath, &req.SheetName, &req.RunID,
		&req.LastError, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetUserConfig retrieves user configuration, creating it with defaultPages if not exists
func (db *DB) GetUserConfig(ctx context.Context, userID int64, defaultPages int) (*UserConfig, error) {
	var cfg UserConfig
	err := db.conn.QueryRowContext(ctx, `
		SELECT user_id, pages, created_at, updated_at
		FROM user_configs
		WHERE user_id = $1
	`, userID).Scan(&cfg.UserID, &cfg.Pages, &cfg.CreatedAt, &cfg.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		err = db.conn.QueryRowContext(ctx, `
			INSERT INTO user_configs (user_id, pages)
			VALUES ($1, $2)
			RETURNING user_id, pages, created_at, updated_at
		`, userID, defaultPages).Scan(&cfg.UserID, &cfg.Pages, &cfg.CreatedAt, &cfg.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to create user config: %w", err)
		}
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user config: %w", err)
	}

	return &cfg, nil
}

// UpdateUserPages sets the number of pages scraped for a user's requests
func (db *DB) UpdateUserPages(ctx context.Context, userID int64, pages int) error {
	if pages <= 0 {
		return fmt.Errorf("pages must be positive, got %d", pages)
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO user_configs (user_id, pages)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET pages = EXCLUDED.pages, updated_at = CURRENT_TIMESTAMP
	`, userID, pages)
	if err != nil {
		return fmt.Errorf("failed to update user pages: %w", err)
	}
	return nil
}

// CreateRequest queues a new scraping request
func (db *DB) CreateRequest(ctx context.Context, userID int64, telegramMessageID int, url string, pages int) (*Request, error) {
	row := db.conn.QueryRowContext(ctx, `
		INSERT INTO requests (user_id, telegram_message_id, url, pages, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+requestColumns,
		userID, telegramMessageID, url, pages, StatusCreated)

	req, err := scanRequest(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return req, nil
}

// ClaimNextRequest moves the oldest created request to in_progress and returns it.
// It returns nil when the queue is empty.
func (db *DB) ClaimNextRequest(ctx context.Context) (*Request, error) {
	row := db.conn.QueryRowContext(ctx, `
		UPDATE requests
		SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = (
			SELECT id FROM requests
			WHERE status = $2
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+requestColumns,
		StatusInProgress, StatusCreated)

	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim request: %w", err)
	}
	return req, nil
}

// GetRequestByID retrieves a request by ID
func (db *DB) GetRequestByID(ctx context.Context, requestID int) (*Request, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, requestID)
	req, err := scanRequest(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get request %d: %w", requestID, err)
	}
	return req, nil
}

// FailRequest marks a request failed and records the error text
func (db *DB) FailRequest(ctx context.Context, requestID int, reason string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE requests SET status = $1, last_error = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $3
	`, StatusFailed, reason, requestID)
	if err != nil {
		return fmt.Errorf("failed to mark request failed: %w", err)
	}
	return nil
}

// CompleteRequest marks a request done with its run results
func (db *DB) CompleteRequest(ctx context.Context, requestID int, runID string, adsCount, pagesCount int, outputPath string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE requests
		SET status = $1, run_id = $2, ads_count = $3, pages_count = $4, output_path = $5,
			last_error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = $6
	`, StatusDone, runID, adsCount, pagesCount, outputPath, requestID)
	if err != nil {
		return fmt.Errorf("failed to complete request: %w", err)
	}
	return nil
}

// UpdateRequestSheetName records the Google Sheets tab a request was exported to
func (db *DB) UpdateRequestSheetName(ctx context.Context, requestID int, sheetName string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE requests SET sheet_name = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2
	`, sheetName, requestID)
	if err != nil {
		return fmt.Errorf("failed to update sheet name: %w", err)
	}
	return nil
}

// SaveAds stores every ad of a request in one transaction, keeping their order
func (db *DB) SaveAds(ctx context.Context, requestID int, ads []models.Ad) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, ad := range ads {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ads (request_id, position, title, link, short_description, country, city, price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, requestID, i+1, ad.Title, ad.Link, ad.ShortDescription, ad.Country, ad.City, ad.Price)
		if err != nil {
			return fmt.Errorf("failed to save ad %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ads: %w", err)
	}
	return nil
}
