package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// DefaultUserAgent is the desktop browser signature sent with every page request
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/83.0.4103.61 Safari/537.36"

// Fetch engines
const (
	EngineHTTP    = "http"
	EngineBrowser = "browser"
)

// ErrZeroPages is returned when a run is configured with a page count of zero
var ErrZeroPages = errors.New("pages can't be zero")

// SiteConfig describes the listing pages to scrape
type SiteConfig struct {
	URL   string `yaml:"url"`
	Pages int    `yaml:"pages"`
}

// OutputConfig describes the delimited file written after a run
type OutputConfig struct {
	File      string `yaml:"file"`
	Delimiter string `yaml:"delimiter"`
	BOM       bool   `yaml:"bom"`
	Open      bool   `yaml:"open"`
}

// FetchConfig controls how listing pages are requested
type FetchConfig struct {
	Engine      string        `yaml:"engine"`
	UserAgent   string        `yaml:"user_agent"`
	Accept      string        `yaml:"accept"`
	Parallelism int           `yaml:"parallelism"` // 0 means one request per page at once
	Timeout     time.Duration `yaml:"timeout"`
}

// DatabaseConfig holds the Postgres connection string
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// SheetsConfig holds the Google Sheets export target
type SheetsConfig struct {
	SpreadsheetURL  string `yaml:"spreadsheet_url"`
	CredentialsPath string `yaml:"credentials_path"`
}

// TelegramConfig holds bot access settings
type TelegramConfig struct {
	AllowedUsers []int64 `yaml:"allowed_users"`
}

// SchedulerConfig controls the bot-mode request queue
type SchedulerConfig struct {
	Interval  time.Duration `yaml:"interval"`
	OutputDir string        `yaml:"output_dir"`
}

// LogConfig controls the logger
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Config represents the full scraper configuration
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Output    OutputConfig    `yaml:"output"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Database  DatabaseConfig  `yaml:"database"`
	Sheets    SheetsConfig    `yaml:"sheets"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

// LoadConfig loads configuration from a YAML file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := GetDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// GetDefaultConfig returns a default configuration
func GetDefaultConfig() *Config {
	cfg := &Config{
		Site: SiteConfig{
			URL:   "https://avitoua.com/search/iPage,",
			Pages: 2,
		},
		Output: OutputConfig{
			File:      "ads.csv",
			Delimiter: ";",
			Open:      true,
		},
		Fetch: FetchConfig{
			Engine:    EngineHTTP,
			UserAgent: DefaultUserAgent,
			Accept:    "*/*",
			Timeout:   30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Interval:  5 * time.Second,
			OutputDir: "data",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
	cfg.applyEnv()
	return cfg
}

// applyEnv fills secrets that are only ever taken from the environment
func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("GOOGLE_SHEETS_SPREADSHEET_URL"); v != "" && c.Sheets.SpreadsheetURL == "" {
		c.Sheets.SpreadsheetURL = v
	}
}

// DelimiterRune returns the output delimiter as a single rune
func (c *Config) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Output.Delimiter)
	return r
}

// Validate checks the configuration before any request is made
func (c *Config) Validate() error {
	if c.Site.Pages == 0 {
		return ErrZeroPages
	}
	if c.Site.Pages < 0 {
		return fmt.Errorf("pages must be positive, got %d", c.Site.Pages)
	}
	if c.Site.URL == "" {
		return errors.New("site url is required")
	}
	u, err := url.Parse(c.Site.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("site url must be an absolute http(s) url: %q", c.Site.URL)
	}
	if c.Output.File == "" {
		return errors.New("output file is required")
	}
	if utf8.RuneCountInString(c.Output.Delimiter) != 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", c.Output.Delimiter)
	}
	switch d := c.DelimiterRune(); d {
	case '"', '\r', '\n', utf8.RuneError:
		return fmt.Errorf("invalid delimiter %q", d)
	}
	switch c.Fetch.Engine {
	case EngineHTTP, EngineBrowser:
	default:
		return fmt.Errorf("unknown fetch engine %q (want %q or %q)", c.Fetch.Engine, EngineHTTP, EngineBrowser)
	}
	if c.Fetch.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative, got %d", c.Fetch.Parallelism)
	}
	return nil
}

// Host returns the host of the configured site url
func (c *Config) Host() string {
	u, err := url.Parse(c.Site.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// IsAllowedUser reports whether a Telegram user may use the bot
func (c *Config) IsAllowedUser(userID int64) bool {
	if len(c.Telegram.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.Telegram.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
