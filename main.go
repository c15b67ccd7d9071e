package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ads-scraper/config"
	"ads-scraper/fetcher"
	"ads-scraper/logger"
	"ads-scraper/opener"
	"ads-scraper/output"
	"ads-scraper/parser"
	"ads-scraper/scraper"
	"ads-scraper/sheets"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const defaultConfigPath = "config.yaml"

// cliOptions holds the command-line flags
type cliOptions struct {
	configPath string
	logLevel   string
	url        string
	pages      int
	output     string
	delimiter  string
	engine     string
	discover   bool
	noOpen     bool
	sheets     bool
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:   "ads-scraper",
		Short: "Scrape classified ad listings into a delimited file",
		Long: "Fetches every listing page of a classified ads site concurrently, " +
			"extracts the ads and writes them to a semicolon-delimited file.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runCLI(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	flags := root.Flags()
	flags.StringVar(&opts.url, "url", "", "listing URL template; the page number is appended or replaces {page}")
	flags.IntVar(&opts.pages, "pages", 0, "number of pages to scrape")
	flags.StringVar(&opts.output, "output", "", "output file")
	flags.StringVar(&opts.delimiter, "delimiter", "", "output field delimiter")
	flags.StringVar(&opts.engine, "engine", "", "fetch engine: http or browser")
	flags.BoolVar(&opts.discover, "discover", false, "read the page count from the first page, capped by --pages")
	flags.BoolVar(&opts.noOpen, "no-open", false, "do not open the output file when done")
	flags.BoolVar(&opts.sheets, "sheets", false, "also export the ads to Google Sheets")

	root.AddCommand(newBotCommand(opts), newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ads-scraper version %s\n", version)
		},
	}
}

// resolveConfig loads the config file and applies the flags the user set
func resolveConfig(cmd *cobra.Command, opts *cliOptions) (*config.Config, error) {
	flags := cmd.Flags()

	cfg := config.GetDefaultConfig()
	if _, err := os.Stat(opts.configPath); err == nil {
		cfg, err = config.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
	} else if flags.Changed("config") {
		return nil, fmt.Errorf("config file not found: %s", opts.configPath)
	}

	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	// Scraping flags only exist on the root command
	if flags.Lookup("url") != nil {
		if flags.Changed("url") {
			cfg.Site.URL = opts.url
		}
		if flags.Changed("pages") {
			cfg.Site.Pages = opts.pages
		}
		if flags.Changed("output") {
			cfg.Output.File = opts.output
		}
		if flags.Changed("delimiter") {
			cfg.Output.Delimiter = opts.delimiter
		}
		if flags.Changed("engine") {
			cfg.Fetch.Engine = opts.engine
		}
		if opts.noOpen {
			cfg.Output.Open = false
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runCLI scrapes every page once, writes the file and opens it
func runCLI(ctx context.Context, cfg *config.Config, opts *cliOptions, out io.Writer) error {
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	f, err := fetcher.New(cfg.Fetch, log)
	if err != nil {
		return fmt.Errorf("failed to create fetcher: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Warnf("Failed to close fetcher: %v", err)
		}
	}()

	s := scraper.NewScraper(f, parser.NewParser(), log)
	res, err := s.Run(ctx, scraper.Job{
		URLTemplate: cfg.Site.URL,
		Pages:       cfg.Site.Pages,
		Discover:    opts.discover,
		Output:      cfg.Output.File,
		Options: output.Options{
			Delimiter: cfg.DelimiterRune(),
			BOM:       cfg.Output.BOM,
		},
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Got %d ad(s)\n", res.Written)

	if cfg.Output.Open {
		openOutput(ctx, res.Output, log)
	}

	if opts.sheets {
		if err := exportToSheets(ctx, cfg, res, log); err != nil {
			return err
		}
	}
	return nil
}

// openOutput opens the file best-effort
func openOutput(ctx context.Context, path string, log *zap.SugaredLogger) {
	err := opener.Open(ctx, path)
	switch {
	case err == nil:
	case errors.Is(err, opener.ErrUnsupported):
		log.Warnf("Can't open %s automatically: %v", path, err)
	default:
		log.Warnf("Failed to open %s: %v", path, err)
	}
}

func exportToSheets(ctx context.Context, cfg *config.Config, res *scraper.Result, log *zap.SugaredLogger) error {
	writer, err := newSheetsWriter(ctx, cfg, log)
	if err != nil {
		return err
	}
	sheetName := "Run_" + res.RunID
	_, sheetID, err := writer.CreateSheetAndWriteAds(ctx, sheetName, res.Ads, cfg.Site.URL)
	if err != nil {
		return err
	}
	log.Infof("View spreadsheet: %s", sheets.SheetURL(cfg.Sheets.SpreadsheetURL, sheetID))
	return nil
}

func newSheetsWriter(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*sheets.Writer, error) {
	spreadsheetID := sheets.ExtractSpreadsheetID(cfg.Sheets.SpreadsheetURL)
	if spreadsheetID == "" {
		return nil, fmt.Errorf("could not extract spreadsheet ID from URL: %q", cfg.Sheets.SpreadsheetURL)
	}
	writer, err := sheets.NewWriter(ctx, spreadsheetID, cfg.Sheets.CredentialsPath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets writer: %w", err)
	}
	log.Infof("Google Sheets writer initialized for spreadsheet: %s", spreadsheetID)
	return writer, nil
}
