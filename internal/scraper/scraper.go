package scraper

import (
	"context"
	"errors"

	"github.com/maltedev/pricewatch/internal/currency"
	"github.com/maltedev/pricewatch/internal/matcher"
	"github.com/maltedev/pricewatch/internal/models"
)

// ErrNoTargets is the only condition that stops a run before it starts.
var ErrNoTargets = errors.New("no search targets configured")

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Pacer interface {
	Wait(ctx context.Context) error
}

type Normalizer interface {
	ToCanonical(ctx context.Context, amount float64, code string) (currency.Conversion, bool)
}

type Matcher interface {
	IsRelevant(title, target string, mode matcher.Mode) bool
}

// QuoteSink receives every accepted quote of a run.
type QuoteSink interface {
	Emit(ctx context.Context, quote models.PriceQuote) error
}

type Options struct {
	Mode    matcher.Mode
	Verbose bool
}
