package main

import (
	"fmt"
	"log/slog"
	"os"

	"PodAtlas/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run() error {
	cfg, err := parseFlags()
	if err != nil {
		return err
	}

	logger.Init(parseLogLevel(cfg.LogLevel))

	app, err := NewApp(cfg)
	if err != nil {
		return fmt.Errorf("create crawler:\n%w", err)
	}

	printStartupInfo(cfg)

	return app.Run()
}

// parseLogLevel maps the config value onto a slog level, defaulting to
// info for unknown values.
func parseLogLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printStartupInfo displays the crawler configuration at startup.
func printStartupInfo(cfg *Config) {
	logger.Info("starting PodAtlas crawler",
		"http", cfg.HTTPAddress,
		"seeds", len(cfg.Seeds),
		"interval", cfg.CrawlInterval,
		"backend", cfg.Backend,
		"data", cfg.DataDir,
	)

	if len(cfg.Watchlist) > 0 {
		logger.Info("watchlist alerting enabled",
			"pods", len(cfg.Watchlist),
			"webhook", cfg.WebhookURL != "",
		)
	}
}
