package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/maltedev/pricewatch/internal/app"
	"github.com/maltedev/pricewatch/internal/config"
	"github.com/maltedev/pricewatch/internal/logger"
	"github.com/spf13/cobra"
)

var (
	catalogPath string
	preset      string
	mode        string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:           "pricewatch",
	Short:         "pricewatch collects and compares product prices across storefronts.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&catalogPath, "catalog", "", "site catalog file (default from SCRAPER_CATALOG)")
	flags.StringVar(&preset, "preset", "", "target preset: catalog, full or focused")
	flags.StringVar(&mode, "mode", "", "relevance mode: strict, lenient, fuzzy or auto")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log cascade diagnostics")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig applies command line overrides on top of the environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if catalogPath != "" {
		cfg.Scraper.CatalogPath = catalogPath
	}
	if preset != "" {
		cfg.Scraper.Preset = preset
	}
	if mode != "" {
		cfg.Scraper.Mode = mode
	}
	if verbose {
		cfg.Scraper.Verbose = true
		cfg.Logging.Level = "debug"
	}

	return cfg, nil
}

// newLogger logs to stderr so tables on stdout stay clean.
func newLogger(cfg *config.Config) *slog.Logger {
	l := logger.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(l)
	return l
}

func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.New(ctx, cfg, newLogger(cfg))
}
