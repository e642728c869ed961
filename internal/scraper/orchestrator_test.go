package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/maltedev/pricewatch/internal/clock"
	"github.com/maltedev/pricewatch/internal/currency"
	"github.com/maltedev/pricewatch/internal/exchange"
	"github.com/maltedev/pricewatch/internal/logger"
	"github.com/maltedev/pricewatch/internal/matcher"
	"github.com/maltedev/pricewatch/internal/models"
	"github.com/maltedev/pricewatch/internal/parser"
	"github.com/maltedev/pricewatch/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	pages    map[string]string
	failures map[string]error
	panicOn  string
	requests []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.requests = append(f.requests, url)
	if url == f.panicOn {
		panic("boom")
	}
	if err, ok := f.failures[url]; ok {
		return nil, err
	}
	if page, ok := f.pages[url]; ok {
		return []byte(page), nil
	}
	return []byte(`<html><body><p>No results</p></body></html>`), nil
}

type countingPacer struct{ waits int }

func (p *countingPacer) Wait(ctx context.Context) error {
	p.waits++
	return ctx.Err()
}

type collector struct {
	quotes []models.PriceQuote
	err    error
}

func (c *collector) Emit(ctx context.Context, q models.PriceQuote) error {
	if c.err != nil {
		return c.err
	}
	c.quotes = append(c.quotes, q)
	return nil
}

type noProvider struct{}

func (noProvider) Name() string { return "down" }

func (noProvider) FetchRate(ctx context.Context) (float64, error) {
	return 0, errors.New("unreachable")
}

func usShop() models.SiteProfile {
	return models.SiteProfile{
		Key:       "usshop",
		Name:      "US Shop",
		BaseURL:   "https://us.example.com",
		SearchURL: "https://us.example.com/search?q={query}",
		Currency:  "USD",
		Enabled:   true,
		Selectors: models.SelectorSet{
			Container: []string{".result"},
			Title:     []string{".title"},
			Price:     []string{".price"},
			Link:      "a",
		},
	}
}

const usResults = `<html><body>
<div class="result">
  <a href="/item/dtc1250e"><span class="title">Fargo DTC1250e Single Sided ID Card Printer</span></a>
  <span class="price">$199.99</span>
</div>
<div class="result">
  <a href="/item/mouse"><span class="title">Wireless Mouse</span></a>
  <span class="price">$19.99</span>
</div>
</body></html>`

type fixture struct {
	fetcher *fakeFetcher
	pacer   *countingPacer
	orch    *Orchestrator
	rates   *exchange.Service
}

func newFixture(t *testing.T, mode matcher.Mode, cachedRate float64) *fixture {
	t.Helper()

	store := storage.NewMemoryStore()
	if cachedRate > 0 {
		data, err := json.Marshal(exchange.Entry{Rate: cachedRate, FetchedAt: now.Add(-time.Hour)})
		require.NoError(t, err)
		require.NoError(t, store.Put(context.Background(), exchange.CacheKey("USD", "AUD"), data))
	}

	clk := clock.NewManual(now)
	rates := exchange.NewService(exchange.Options{
		Store:     store,
		Providers: []exchange.Provider{noProvider{}},
		Clock:     clk,
		Logger:    logger.Discard(),
	})

	f := &fixture{
		fetcher: &fakeFetcher{pages: map[string]string{}, failures: map[string]error{}},
		pacer:   &countingPacer{},
		rates:   rates,
	}
	f.orch = New(Deps{
		Fetcher:    f.fetcher,
		Pacer:      f.pacer,
		Normalizer: currency.NewNormalizer(rates, "AUD", "USD", logger.Discard()),
		Engine:     parser.NewEngine(parser.EngineOptions{MaxCandidates: 3, Logger: logger.Discard()}),
		Matcher:    matcher.New(nil),
		Queries:    NewQueryStrategy(""),
		Clock:      clk,
		Logger:     logger.Discard(),
	}, Options{Mode: mode})

	return f
}

func TestSearchSite_EndToEndConversion(t *testing.T) {
	f := newFixture(t, matcher.ModeLenient, 1.50)
	f.fetcher.pages["https://us.example.com/search?q=Fargo+DTC1250e"] = usResults

	quotes := f.orch.SearchSite(context.Background(), usShop(), models.SearchTarget{Name: "Fargo DTC1250e"})
	require.Len(t, quotes, 1)

	q := quotes[0]
	assert.Equal(t, "Fargo DTC1250e", q.Model)
	assert.Equal(t, "US Shop", q.Supplier)
	assert.Equal(t, "usshop", q.SiteKey)
	assert.Equal(t, 199.99, q.OriginalAmount)
	assert.Equal(t, "USD", q.OriginalCurrency)
	assert.InDelta(t, 299.985, q.CanonicalAmount, 1e-9)
	assert.Equal(t, "AUD", q.CanonicalCurrency)
	assert.Equal(t, "https://us.example.com/item/dtc1250e", q.SourceURL)
	assert.Equal(t, "https://us.example.com/search?q=Fargo+DTC1250e", q.SearchURL)
	assert.Equal(t, models.QuoteStatusSuccess, q.Status)
	assert.Equal(t, now, q.ScrapedAt)

	assert.Len(t, f.fetcher.requests, 1, "first success ends the search")
	assert.Equal(t, 1, f.pacer.waits)
}

func TestSearchSite_NothingMatches(t *testing.T) {
	f := newFixture(t, matcher.ModeLenient, 1.50)

	quotes := f.orch.SearchSite(context.Background(), usShop(), models.SearchTarget{Name: "Fargo DTC1250e"})
	assert.Empty(t, quotes)

	assert.Equal(t, []string{
		"https://us.example.com/search?q=Fargo+DTC1250e",
		"https://us.example.com/search?q=Fargo%20DTC1250e",
		"https://us.example.com/search?q=Fargo",
		"https://us.example.com/search?q=card+printer",
	}, f.fetcher.requests)
	assert.Equal(t, 4, f.pacer.waits)
}

func TestSearchSite_FetchFailureAdvancesQuery(t *testing.T) {
	f := newFixture(t, matcher.ModeLenient, 1.50)
	f.fetcher.failures["https://us.example.com/search?q=Fargo+DTC1250e"] = errors.New("fetch failed")
	f.fetcher.pages["https://us.example.com/search?q=Fargo%20DTC1250e"] = usResults

	quotes := f.orch.SearchSite(context.Background(), usShop(), models.SearchTarget{Name: "Fargo DTC1250e"})
	require.Len(t, quotes, 1)
	assert.Equal(t, "https://us.example.com/search?q=Fargo%20DTC1250e", quotes[0].SearchURL)
	assert.Equal(t, 2, f.pacer.waits)
}

func TestSearchSite_GenericFallback(t *testing.T) {
	f := newFixture(t, matcher.ModeAuto, 1.50)
	f.fetcher.pages["https://us.example.com/search?q=Fargo+DTC1250e"] = `<html><body>
		<div class="card-tile">Fargo DTC1250e card printer, sale US$1,000.00</div>
	</body></html>`

	quotes := f.orch.SearchSite(context.Background(), usShop(), models.SearchTarget{Name: "Fargo DTC1250e"})
	require.Len(t, quotes, 1)
	assert.Equal(t, 1000.0, quotes[0].OriginalAmount)
	assert.Equal(t, "https://us.example.com/search?q=Fargo+DTC1250e", quotes[0].SourceURL, "no link falls back to search URL")
}

func TestSearchSite_EmitsAllAcceptedCandidates(t *testing.T) {
	f := newFixture(t, matcher.ModeLenient, 1.50)
	site := usShop()
	site.Currency = "AUD"
	f.fetcher.pages["https://us.example.com/search?q=Zebra+ZC300"] = `<html><body>
		<div class="result"><span class="title">Zebra ZC300 Card Printer</span><span class="price">$2,100.00</span></div>
		<div class="result"><span class="title">Zebra ZC300 Dual Sided Card Printer</span><span class="price">$2,600.00</span></div>
		<div class="result"><span class="title">Zebra Ribbon Pack</span><span class="price">POA</span></div>
	</body></html>`

	quotes := f.orch.SearchSite(context.Background(), site, models.SearchTarget{Name: "Zebra ZC300"})
	require.Len(t, quotes, 2)
	assert.Equal(t, 2100.0, quotes[0].CanonicalAmount)
	assert.Equal(t, 2600.0, quotes[1].CanonicalAmount)
}

func TestSearchSite_DisabledSite(t *testing.T) {
	f := newFixture(t, matcher.ModeLenient, 1.50)
	site := usShop()
	site.Enabled = false

	assert.Empty(t, f.orch.SearchSite(context.Background(), site, models.SearchTarget{Name: "Fargo DTC1250e"}))
	assert.Empty(t, f.fetcher.requests)
	assert.Zero(t, f.pacer.waits)
}

func TestSearchSite_RecoversFromPanic(t *testing.T) {
	f := newFixture(t, matcher.ModeLenient, 1.50)
	f.fetcher.panicOn = "https://us.example.com/search?q=Fargo+DTC1250e"

	assert.NotPanics(t, func() {
		quotes := f.orch.SearchSite(context.Background(), usShop(), models.SearchTarget{Name: "Fargo DTC1250e"})
		assert.Empty(t, quotes)
	})
}

func TestSearchSite_FallbackRateIsDegraded(t *testing.T) {
	f := newFixture(t, matcher.ModeLenient, 0)
	f.fetcher.pages["https://us.example.com/search?q=Fargo+DTC1250e"] = usResults

	quotes := f.orch.SearchSite(context.Background(), usShop(), models.SearchTarget{Name: "Fargo DTC1250e"})
	require.Len(t, quotes, 1)
	assert.InDelta(t, 299.985, quotes[0].CanonicalAmount, 1e-9)
	assert.Equal(t, models.QuoteStatusDegraded, quotes[0].Status)
	assert.True(t, f.rates.Degraded())
}

func TestEvaluate_Reasons(t *testing.T) {
	f := newFixture(t, matcher.ModeLenient, 1.50)
	site := usShop()
	target := models.SearchTarget{Name: "Fargo DTC1250e"}
	ctx := context.Background()

	eval := f.orch.Evaluate(ctx, site, target, models.Candidate{Title: "Wireless Mouse", PriceText: "$10"}, "u", matcher.ModeLenient)
	assert.False(t, eval.Accepted())
	assert.Equal(t, ReasonIrrelevant, eval.Reason)

	eval = f.orch.Evaluate(ctx, site, target, models.Candidate{Title: "Fargo DTC1250e printer", PriceText: "Call us"}, "u", matcher.ModeLenient)
	assert.Equal(t, ReasonNoPrice, eval.Reason)

	eval = f.orch.Evaluate(ctx, site, target, models.Candidate{Title: "Fargo DTC1250e printer", PriceText: "$0.00"}, "u", matcher.ModeLenient)
	assert.Equal(t, ReasonNoPrice, eval.Reason)

	eval = f.orch.Evaluate(ctx, site, target, models.Candidate{Title: "Fargo DTC1250e printer", PriceText: "$1,500"}, "u", matcher.ModeStrict)
	require.True(t, eval.Accepted())
	assert.Equal(t, 1500.0, eval.Quote.OriginalAmount)
}

func TestModeFor(t *testing.T) {
	f := newFixture(t, matcher.ModeAuto, 1.50)
	configured := parser.Strategy{Name: parser.StrategyConfigured}
	generic := parser.Strategy{Name: parser.StrategyGenericClass}

	assert.Equal(t, matcher.ModeStrict, f.orch.modeFor(configured, Query{Text: "a+b"}))
	assert.Equal(t, matcher.ModeLenient, f.orch.modeFor(configured, Query{Text: "a", Reduced: true}))
	assert.Equal(t, matcher.ModeLenient, f.orch.modeFor(generic, Query{Text: "a+b"}))

	fixed := newFixture(t, matcher.ModeStrict, 1.50)
	assert.Equal(t, matcher.ModeStrict, fixed.orch.modeFor(generic, Query{Text: "a", Reduced: true}))
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("no targets is a hard stop", func(t *testing.T) {
		f := newFixture(t, matcher.ModeLenient, 1.50)
		_, err := f.orch.Run(ctx, []models.SiteProfile{usShop()}, nil, &collector{})
		assert.ErrorIs(t, err, ErrNoTargets)
		assert.Empty(t, f.fetcher.requests)
	})

	t.Run("emits quotes with run id", func(t *testing.T) {
		f := newFixture(t, matcher.ModeLenient, 1.50)
		f.fetcher.pages["https://us.example.com/search?q=Fargo+DTC1250e"] = usResults

		disabled := usShop()
		disabled.Key = "off"
		disabled.Enabled = false

		sink := &collector{}
		summary, err := f.orch.Run(ctx,
			[]models.SiteProfile{usShop(), disabled},
			[]models.SearchTarget{{Name: "Fargo DTC1250e"}, {Name: "Evolis Primacy 2"}},
			sink)
		require.NoError(t, err)

		assert.Equal(t, 2, summary.Targets)
		assert.Equal(t, 1, summary.Sites)
		assert.Equal(t, 2, summary.Pairs)
		assert.Equal(t, 1, summary.Quotes)
		assert.Zero(t, summary.Degraded)

		require.Len(t, sink.quotes, 1)
		assert.Equal(t, summary.RunID, sink.quotes[0].RunID)
	})

	t.Run("sink errors do not stop the run", func(t *testing.T) {
		f := newFixture(t, matcher.ModeLenient, 1.50)
		f.fetcher.pages["https://us.example.com/search?q=Fargo+DTC1250e"] = usResults

		summary, err := f.orch.Run(ctx, []models.SiteProfile{usShop()},
			[]models.SearchTarget{{Name: "Fargo DTC1250e"}}, &collector{err: errors.New("redis down")})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.EmitErrors)
		assert.Zero(t, summary.Quotes)
	})

	t.Run("cancelled context", func(t *testing.T) {
		f := newFixture(t, matcher.ModeLenient, 1.50)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := f.orch.Run(cctx, []models.SiteProfile{usShop()}, []models.SearchTarget{{Name: "x"}}, &collector{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, f.fetcher.requests)
	})
}
