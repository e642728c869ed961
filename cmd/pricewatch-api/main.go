package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/pricewatch/internal/api"
	"github.com/maltedev/pricewatch/internal/app"
	"github.com/maltedev/pricewatch/internal/config"
	"github.com/maltedev/pricewatch/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, nil)
	go limiter.Run(ctx)

	deps := api.Deps{
		Sites:    a.Catalog.Sites,
		Searcher: a.Orchestrator,
		Rates:    a.Rates,
		Sink:     a.Outputs,
		Base:     cfg.Exchange.BaseCurrency,
		Quote:    cfg.Exchange.CanonicalCurrency,
		Logger:   log,
	}
	// avoid typed-nil interfaces when postgres is off
	if a.Quotes != nil {
		deps.Quotes = a.Quotes
		deps.DB = a.DB
	}

	router := api.NewRouter(api.NewHandlers(deps), api.RouterOptions{
		RequestTimeout: cfg.Server.WriteTimeout,
		SearchLimiter:  limiter,
		AccessLog:      cfg.Scraper.Verbose,
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("server starting",
		"addr", server.Addr,
		"sites", len(a.Catalog.Sites),
		"database", cfg.Database.Enabled,
		"quote_stream", cfg.Redis.StreamEnabled)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
