package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/pricewatch/internal/config"
	"github.com/maltedev/pricewatch/internal/database"
	"github.com/maltedev/pricewatch/internal/logger"
	"github.com/maltedev/pricewatch/internal/sink"
	"github.com/redis/go-redis/v9"
)

// pricewatch-consumer moves quotes from the redis stream into postgres, so
// scrapers can run without database access.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}
	log.Info("connected to redis", "addr", cfg.Redis.Addr)

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	consumer := sink.NewConsumer(rdb, database.NewQuoteRepository(db), sink.ConsumerOptions{
		Stream: cfg.Redis.QuoteStream,
		Group:  cfg.Redis.ConsumerGroup,
		Name:   cfg.Redis.ConsumerName,
		Logger: log,
	})

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}

	log.Info("consumer stopped")
}
