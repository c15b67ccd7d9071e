package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"ads-scraper/logger"
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
	log  *zap.SugaredLogger
}

// NewDB opens a Postgres connection and makes sure the schema exists
func NewDB(ctx context.Context, connStr string, log *zap.SugaredLogger) (*DB, error) {
	if connStr == "" {
		return nil, fmt.Errorf("database url is empty: set database.url or DATABASE_URL")
	}

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := New(conn, log)
	if err := db.initSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// New wraps an already opened connection
func New(conn *sql.DB, log *zap.SugaredLogger) *DB {
	return &DB{conn: conn, log: logger.OrNop(log)}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// schema is applied in order on startup; every statement is idempotent
var schema = []string{
	`CREATE TABLE IF NOT EXISTS user_configs (
		user_id BIGINT PRIMARY KEY,
		pages INTEGER NOT NULL DEFAULT 2,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS requests (
		id SERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		telegram_message_id INTEGER NOT NULL,
		url TEXT NOT NULL,
		pages INTEGER NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'created',
		ads_count INTEGER NOT NULL DEFAULT 0,
		pages_count INTEGER NOT NULL DEFAULT 0,
		output_path TEXT,
		sheet_name VARCHAR(255),
		run_id VARCHAR(36),
		last_error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT valid_status CHECK (status IN ('created', 'in_progress', 'done', 'failed')),
		CONSTRAINT positive_pages CHECK (pages > 0)
	)`,
	`CREATE TABLE IF NOT EXISTS ads (
		id SERIAL PRIMARY KEY,
		request_id INTEGER NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		title TEXT NOT NULL,
		link TEXT NOT NULL,
		short_description TEXT NOT NULL,
		country TEXT NOT NULL,
		city TEXT NOT NULL,
		price TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_user_id ON requests(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ads_request_id ON ads(request_id, position)`,
}

// initSchema creates the necessary tables if they don't exist
func (db *DB) initSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	db.log.Info("Database schema initialized successfully")
	return nil
}
