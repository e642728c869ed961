package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Scraper   ScraperConfig
	Exchange  ExchangeConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Output    OutputConfig
	Logging   LoggingConfig
	CI        bool
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	CrawlDelayMin     time.Duration
	CrawlDelayMax     time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RequestTimeout    time.Duration
	UserAgents        []string
	MaxCandidates     int
	MinPlausiblePrice float64
	Mode              string
	Verbose           bool
	CatalogPath       string
	Preset            string
}

type ExchangeConfig struct {
	CanonicalCurrency string
	BaseCurrency      string
	Validity          time.Duration
	MinRate           float64
	MaxRate           float64
	FallbackRate      float64
	ProviderTimeout   time.Duration
	Store             string
	CacheFile         string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	MaxConns int32
}

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	KeyPrefix     string
	QuoteStream   string
	StreamEnabled bool
	ConsumerGroup string
	ConsumerName  string
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type OutputConfig struct {
	Dir      string
	SaveCSV  bool
	SaveJSON bool
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	ci := getBoolOrDefault("GITHUB_ACTIONS", false)
	debug := getBoolOrDefault("DEBUG_MODE", false)

	delayMin, delayMax, retries := 1*time.Second, 3*time.Second, 3
	if ci {
		delayMin, delayMax, retries = 2*time.Second, 5*time.Second, 2
	}

	cfg := &Config{
		CI: ci,
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 10*time.Minute),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Scraper: ScraperConfig{
			CrawlDelayMin:     getDurationOrDefault("SCRAPER_CRAWL_DELAY_MIN", delayMin),
			CrawlDelayMax:     getDurationOrDefault("SCRAPER_CRAWL_DELAY_MAX", delayMax),
			MaxRetries:        getIntOrDefault("SCRAPER_MAX_RETRIES", retries),
			RetryBaseDelay:    getDurationOrDefault("SCRAPER_RETRY_BASE_DELAY", 1*time.Second),
			RequestTimeout:    getDurationOrDefault("SCRAPER_REQUEST_TIMEOUT", 15*time.Second),
			UserAgents:        getStringSliceOrDefault("SCRAPER_USER_AGENTS", defaultUserAgents()),
			MaxCandidates:     getIntOrDefault("SCRAPER_MAX_CANDIDATES", 3),
			MinPlausiblePrice: getFloatOrDefault("SCRAPER_MIN_PRICE", 10),
			Mode:              getEnvOrDefault("SCRAPER_MODE", "lenient"),
			Verbose:           getBoolOrDefault("VERBOSE_LOGGING", ci || debug),
			CatalogPath:       getEnvOrDefault("SCRAPER_CATALOG", "website_configs.json"),
			Preset:            getEnvOrDefault("SCRAPER_PRESET", "catalog"),
		},
		Exchange: ExchangeConfig{
			CanonicalCurrency: strings.ToUpper(getEnvOrDefault("EXCHANGE_CANONICAL_CURRENCY", "AUD")),
			BaseCurrency:      strings.ToUpper(getEnvOrDefault("EXCHANGE_BASE_CURRENCY", "USD")),
			Validity:          getDurationOrDefault("EXCHANGE_CACHE_VALIDITY", 12*time.Hour),
			MinRate:           getFloatOrDefault("EXCHANGE_MIN_RATE", 1.0),
			MaxRate:           getFloatOrDefault("EXCHANGE_MAX_RATE", 2.0),
			FallbackRate:      getFloatOrDefault("EXCHANGE_FALLBACK_RATE", 1.50),
			ProviderTimeout:   getDurationOrDefault("EXCHANGE_PROVIDER_TIMEOUT", 10*time.Second),
			Store:             getEnvOrDefault("EXCHANGE_STORE", "file"),
			CacheFile:         getEnvOrDefault("EXCHANGE_CACHE_FILE", "data/exchange_rates.json"),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "pricewatch"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 5)),
		},
		Redis: RedisConfig{
			Addr:          getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:      getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:            getIntOrDefault("REDIS_DB", 0),
			KeyPrefix:     getEnvOrDefault("REDIS_KEY_PREFIX", "pricewatch:"),
			QuoteStream:   getEnvOrDefault("REDIS_QUOTE_STREAM", "stream:price_quotes"),
			StreamEnabled: getBoolOrDefault("REDIS_STREAM_ENABLED", false),
			ConsumerGroup: getEnvOrDefault("REDIS_CONSUMER_GROUP", "pricewatch-quotes"),
			ConsumerName:  getEnvOrDefault("REDIS_CONSUMER_NAME", "consumer-1"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getFloatOrDefault("API_RATE_RPS", 0.2),
			Burst:             getIntOrDefault("API_RATE_BURST", 2),
		},
		Output: OutputConfig{
			Dir:      getEnvOrDefault("OUTPUT_DIR", "data/prices"),
			SaveCSV:  getBoolOrDefault("SAVE_CSV", true),
			SaveJSON: getBoolOrDefault("SAVE_JSON", true),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.CrawlDelayMin > c.Scraper.CrawlDelayMax {
		return fmt.Errorf("SCRAPER_CRAWL_DELAY_MIN cannot be greater than SCRAPER_CRAWL_DELAY_MAX")
	}

	if c.Scraper.MaxRetries < 1 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES must be at least 1")
	}

	if c.Scraper.MaxCandidates < 1 {
		return fmt.Errorf("SCRAPER_MAX_CANDIDATES must be at least 1")
	}

	if len(c.Scraper.UserAgents) == 0 {
		return fmt.Errorf("SCRAPER_USER_AGENTS must not be empty")
	}

	switch strings.ToLower(c.Scraper.Mode) {
	case "strict", "lenient", "fuzzy", "auto":
	default:
		return fmt.Errorf("SCRAPER_MODE must be one of strict, lenient, fuzzy, auto, got %q", c.Scraper.Mode)
	}

	if c.Exchange.MinRate <= 0 || c.Exchange.MinRate >= c.Exchange.MaxRate {
		return fmt.Errorf("EXCHANGE_MIN_RATE must be positive and below EXCHANGE_MAX_RATE")
	}

	if c.Exchange.FallbackRate <= 0 {
		return fmt.Errorf("EXCHANGE_FALLBACK_RATE must be positive")
	}

	if c.Exchange.Validity <= 0 {
		return fmt.Errorf("EXCHANGE_CACHE_VALIDITY must be positive")
	}

	switch c.Exchange.Store {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("EXCHANGE_STORE must be memory, file or redis, got %q", c.Exchange.Store)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, "|") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}

func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}
