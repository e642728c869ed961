// Package app assembles the price pipeline from configuration. Both binaries
// share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maltedev/pricewatch/internal/catalog"
	"github.com/maltedev/pricewatch/internal/config"
	"github.com/maltedev/pricewatch/internal/currency"
	"github.com/maltedev/pricewatch/internal/database"
	"github.com/maltedev/pricewatch/internal/exchange"
	"github.com/maltedev/pricewatch/internal/fetcher"
	"github.com/maltedev/pricewatch/internal/matcher"
	"github.com/maltedev/pricewatch/internal/models"
	"github.com/maltedev/pricewatch/internal/parser"
	"github.com/maltedev/pricewatch/internal/ratelimit"
	"github.com/maltedev/pricewatch/internal/scraper"
	"github.com/maltedev/pricewatch/internal/sink"
	"github.com/maltedev/pricewatch/internal/storage"
	"github.com/redis/go-redis/v9"
)

const streamMaxLen = 10000

type App struct {
	Config       *config.Config
	Catalog      *catalog.Catalog
	Rates        *exchange.Service
	Orchestrator *scraper.Orchestrator
	Engine       *parser.Engine
	Matcher      *matcher.Matcher
	Queries      *scraper.QueryStrategy
	Collector    *sink.Collector
	// Outputs holds the redis stream and postgres sinks that are enabled.
	Outputs sink.Multi
	// Sink is the collector followed by Outputs.
	Sink   sink.Multi
	DB     *database.DB
	Quotes *database.QuoteRepository
	Logger *slog.Logger

	redis *redis.Client
	pacer *ratelimit.Pacer
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}

	mode, err := matcher.ParseMode(cfg.Scraper.Mode)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Load(cfg.Scraper.CatalogPath, cfg.Scraper.Preset, logger)
	if err != nil {
		return nil, err
	}
	a.Catalog = cat

	if cfg.Exchange.Store == "redis" || cfg.Redis.StreamEnabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	store, err := a.rateStore()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Rates = exchange.NewService(exchange.Options{
		Store:     store,
		Providers: exchange.DefaultProviders(cfg.Exchange.BaseCurrency, cfg.Exchange.CanonicalCurrency, cfg.Exchange.ProviderTimeout),
		Logger:    logger,
		Base:      cfg.Exchange.BaseCurrency,
		Quote:     cfg.Exchange.CanonicalCurrency,
		Validity:  cfg.Exchange.Validity,
		MinRate:   cfg.Exchange.MinRate,
		MaxRate:   cfg.Exchange.MaxRate,
		Fallback:  cfg.Exchange.FallbackRate,
	})

	if a.redis != nil && cfg.Redis.StreamEnabled {
		a.Outputs = append(a.Outputs, sink.NewStreamSink(a.redis, cfg.Redis.QuoteStream, streamMaxLen))
	}

	if cfg.Database.Enabled {
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.DBName,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.DB = db

		if err := db.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
		a.Quotes = database.NewQuoteRepository(db)
		a.Outputs = append(a.Outputs, a.Quotes)
	}

	a.Collector = sink.NewCollector()
	a.Sink = append(sink.Multi{a.Collector}, a.Outputs...)

	f := fetcher.New(fetcher.Options{
		UserAgents: cfg.Scraper.UserAgents,
		MaxRetries: cfg.Scraper.MaxRetries,
		Timeout:    cfg.Scraper.RequestTimeout,
		BaseDelay:  cfg.Scraper.RetryBaseDelay,
		Logger:     logger,
	})

	a.pacer = ratelimit.NewPacer(cfg.Scraper.CrawlDelayMin, cfg.Scraper.CrawlDelayMax)
	a.Engine = parser.NewEngine(parser.EngineOptions{
		MaxCandidates:    cfg.Scraper.MaxCandidates,
		MinFallbackPrice: cfg.Scraper.MinPlausiblePrice,
		Logger:           logger,
	})
	a.Matcher = matcher.New(cat.Keywords)
	a.Queries = scraper.NewQueryStrategy(cat.CategoryQuery)
	a.Orchestrator = scraper.New(scraper.Deps{
		Fetcher:    f,
		Pacer:      a.pacer,
		Normalizer: currency.NewNormalizer(a.Rates, cfg.Exchange.CanonicalCurrency, cfg.Exchange.BaseCurrency, logger),
		Engine:     a.Engine,
		Matcher:    a.Matcher,
		Queries:    a.Queries,
		Logger:     logger,
	}, scraper.Options{
		Mode:    mode,
		Verbose: cfg.Scraper.Verbose,
	})

	return a, nil
}

func (a *App) rateStore() (storage.Store, error) {
	switch a.Config.Exchange.Store {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "redis":
		return storage.NewRedisStore(a.redis, a.Config.Redis.KeyPrefix, 2*a.Config.Exchange.Validity), nil
	default:
		store, err := storage.NewFileStore(a.Config.Exchange.CacheFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open rate cache: %w", err)
		}
		return store, nil
	}
}

// RunAll searches every catalog target on every enabled catalog site.
func (a *App) RunAll(ctx context.Context) (scraper.RunSummary, error) {
	return a.Run(ctx, a.Catalog.Sites, a.Catalog.Targets)
}

// Run executes one run and records its summary when postgres is enabled.
func (a *App) Run(ctx context.Context, sites []models.SiteProfile, targets []models.SearchTarget) (scraper.RunSummary, error) {
	summary, err := a.Orchestrator.Run(ctx, sites, targets, a.Sink)
	if errors.Is(err, scraper.ErrNoTargets) {
		return summary, err
	}

	a.Logger.Info("politeness delay", "run_id", summary.RunID, "total_wait", a.pacer.Waited())

	if a.Quotes != nil {
		// the run may have been cancelled; record it anyway
		recordErr := a.Quotes.SaveRun(context.WithoutCancel(ctx), database.RunRecord{
			ID:         summary.RunID,
			StartedAt:  summary.StartedAt,
			FinishedAt: summary.FinishedAt,
			Targets:    summary.Targets,
			Sites:      summary.Sites,
			Quotes:     summary.Quotes,
			Degraded:   summary.Degraded,
		})
		if recordErr != nil {
			a.Logger.Error("failed to record run", "run_id", summary.RunID, "error", recordErr)
		}
	}

	return summary, err
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("failed to close redis client", "error", err)
		}
	}
}
