package currency

import (
	"context"
	"log/slog"
	"strings"

	"github.com/maltedev/pricewatch/internal/exchange"
)

// RateSource supplies the live base→canonical rate.
type RateSource interface {
	Rate(ctx context.Context) exchange.Rate
}

// Conversion is an amount expressed in the canonical currency.
type Conversion struct {
	Amount   float64
	Currency string
	Rate     float64
	// Assumed is set when the source currency is unsupported and the amount
	// was taken as already canonical.
	Assumed bool
	// Degraded is set when the fallback exchange rate was used.
	Degraded bool
}

type Normalizer struct {
	rates     RateSource
	canonical string
	base      string
	logger    *slog.Logger
}

func NewNormalizer(rates RateSource, canonical, base string, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		rates:     rates,
		canonical: strings.ToUpper(canonical),
		base:      strings.ToUpper(base),
		logger:    logger.With("component", "currency"),
	}
}

// ToCanonical converts amount from code into the canonical currency. ok is
// false when there is no amount to convert.
func (n *Normalizer) ToCanonical(ctx context.Context, amount float64, code string) (Conversion, bool) {
	if amount <= 0 {
		return Conversion{}, false
	}

	code = strings.ToUpper(strings.TrimSpace(code))

	switch code {
	case n.canonical:
		return Conversion{Amount: amount, Currency: n.canonical, Rate: 1}, true
	case n.base:
		rate := n.rates.Rate(ctx)
		return Conversion{
			Amount:   amount * rate.Value,
			Currency: n.canonical,
			Rate:     rate.Value,
			Degraded: rate.Degraded,
		}, true
	default:
		n.logger.Warn("unsupported currency, treating as canonical", "currency", code, "canonical", n.canonical)
		return Conversion{Amount: amount, Currency: n.canonical, Rate: 1, Assumed: true}, true
	}
}
