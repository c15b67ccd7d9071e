package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"ads-scraper/bot"
	"ads-scraper/config"
	"ads-scraper/db"
	"ads-scraper/logger"
	"ads-scraper/output"
	"ads-scraper/scheduler"
	"ads-scraper/scraper"
)

const tokenEnv = "ADS_SCRAPER_TG_TOKEN"

func newBotCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot and the request scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runBot(cmd.Context(), cfg)
		},
	}
}

// runBot serves Telegram updates until ctx is cancelled
func runBot(ctx context.Context, cfg *config.Config) error {
	token := os.Getenv(tokenEnv)
	if token == "" {
		return fmt.Errorf("%s environment variable is not set", tokenEnv)
	}
	if cfg.Database.URL == "" {
		return errors.New("database url is required to run the bot (set DATABASE_URL)")
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return fmt.Errorf("failed to initialize bot: %w", err)
	}
	log.Infof("Authorized on account %s", api.Self.UserName)

	database, err := db.NewDB(ctx, cfg.Database.URL, log)
	if err != nil {
		return err
	}
	defer database.Close()
	log.Info("Database initialized successfully")

	var exporter scheduler.Exporter
	if cfg.Sheets.SpreadsheetURL != "" {
		writer, err := newSheetsWriter(ctx, cfg, log)
		if err != nil {
			return err
		}
		exporter = writer
	}

	sched := scheduler.NewScheduler(
		database,
		scraper.NewOnDemand(cfg.Fetch, log),
		bot.NewNotifier(api),
		exporter,
		scheduler.Options{
			Interval:       cfg.Scheduler.Interval,
			OutputDir:      filepath.Clean(cfg.Scheduler.OutputDir),
			Output:         output.Options{Delimiter: cfg.DelimiterRune(), BOM: cfg.Output.BOM},
			SpreadsheetURL: cfg.Sheets.SpreadsheetURL,
		},
		log,
	)
	sched.Start()
	log.Info("Scheduler started (fetchers are created on demand for each request)")
	defer sched.Stop()

	// Start from the latest update to skip old ones
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updateConfig.Offset = -1

	updates := api.GetUpdatesChan(updateConfig)
	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()

	bot.New(api, database, cfg, log).Run(ctx, updates)
	log.Info("Shutting down")
	return nil
}
