package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maltedev/pricewatch/internal/clock"
	"github.com/maltedev/pricewatch/internal/storage"
)

var ErrOutOfBand = errors.New("rate outside sanity band")

const (
	SourceCache    = "cache"
	SourceFallback = "fallback"
)

// Rate is the outcome of a lookup. Degraded is set when Value is the
// configured fallback rather than a live or cached rate.
type Rate struct {
	Value     float64   `json:"rate"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	Degraded  bool      `json:"degraded"`
}

// Entry is the persisted cache record.
type Entry struct {
	Rate      float64   `json:"rate"`
	FetchedAt time.Time `json:"timestamp"`
}

// naiveLayout accepts ISO-8601 timestamps written without a zone offset.
const naiveLayout = "2006-01-02T15:04:05.999999999"

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Rate      float64 `json:"rate"`
		Timestamp string  `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		ts, err = time.ParseInLocation(naiveLayout, raw.Timestamp, time.Local)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", raw.Timestamp, err)
		}
	}

	e.Rate = raw.Rate
	e.FetchedAt = ts
	return nil
}

type Options struct {
	Store     storage.Store
	Providers []Provider
	Clock     clock.Clock
	Logger    *slog.Logger
	Base      string
	Quote     string
	Validity  time.Duration
	MinRate   float64
	MaxRate   float64
	Fallback  float64
}

// Service resolves the base→quote rate: fresh cache entry, then providers in
// order, then the fallback constant. It never returns an error.
type Service struct {
	store     storage.Store
	providers []Provider
	clock     clock.Clock
	logger    *slog.Logger
	key       string
	validity  time.Duration
	minRate   float64
	maxRate   float64
	fallback  float64

	mu       sync.Mutex
	degraded bool
}

func NewService(opts Options) *Service {
	if opts.Base == "" {
		opts.Base = "USD"
	}
	if opts.Quote == "" {
		opts.Quote = "AUD"
	}
	if opts.Validity <= 0 {
		opts.Validity = 12 * time.Hour
	}
	if opts.MinRate == 0 && opts.MaxRate == 0 {
		opts.MinRate, opts.MaxRate = 1.0, 2.0
	}
	if opts.Fallback <= 0 {
		opts.Fallback = 1.50
	}
	if opts.Store == nil {
		opts.Store = storage.NewMemoryStore()
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Service{
		store:     opts.Store,
		providers: opts.Providers,
		clock:     opts.Clock,
		logger:    opts.Logger.With("component", "exchange"),
		key:       CacheKey(opts.Base, opts.Quote),
		validity:  opts.Validity,
		minRate:   opts.MinRate,
		maxRate:   opts.MaxRate,
		fallback:  opts.Fallback,
	}
}

func CacheKey(base, quote string) string {
	return "exchange:" + base + ":" + quote
}

func (s *Service) Rate(ctx context.Context) Rate {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rate, ok := s.cached(ctx); ok {
		s.degraded = false
		return rate
	}

	for _, p := range s.providers {
		value, err := p.FetchRate(ctx)
		if err == nil {
			err = s.checkBand(value)
		}
		if err != nil {
			s.logger.Warn("rate provider failed", "provider", p.Name(), "error", err)
			continue
		}

		now := s.clock.Now()
		s.logger.Info("fetched exchange rate", "provider", p.Name(), "rate", value)
		s.persist(ctx, Entry{Rate: value, FetchedAt: now})

		s.degraded = false
		return Rate{Value: value, Source: p.Name(), FetchedAt: now}
	}

	s.logger.Warn("using fallback exchange rate", "rate", s.fallback)
	s.degraded = true
	return Rate{Value: s.fallback, Source: SourceFallback, FetchedAt: s.clock.Now(), Degraded: true}
}

// Degraded reports whether the most recent lookup fell back to the constant.
func (s *Service) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *Service) cached(ctx context.Context) (Rate, bool) {
	data, err := s.store.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("error loading cached rate", "error", err)
		}
		return Rate{}, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn("ignoring unreadable cache entry", "error", err)
		return Rate{}, false
	}

	if err := s.checkBand(entry.Rate); err != nil {
		s.logger.Warn("ignoring cached rate", "error", err)
		return Rate{}, false
	}

	if s.clock.Now().Sub(entry.FetchedAt) >= s.validity {
		return Rate{}, false
	}

	s.logger.Debug("using cached exchange rate", "rate", entry.Rate, "fetched_at", entry.FetchedAt)
	return Rate{Value: entry.Rate, Source: SourceCache, FetchedAt: entry.FetchedAt}, true
}

func (s *Service) persist(ctx context.Context, entry Entry) {
	data, err := json.Marshal(entry)
	if err == nil {
		err = s.store.Put(ctx, s.key, data)
	}
	if err != nil {
		s.logger.Warn("error caching rate", "error", err)
	}
}

func (s *Service) checkBand(value float64) error {
	if value <= s.minRate || value >= s.maxRate {
		return fmt.Errorf("%w: %.4f not in (%.2f, %.2f)", ErrOutOfBand, value, s.minRate, s.maxRate)
	}
	return nil
}
