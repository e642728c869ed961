package currency

import (
	"context"
	"testing"

	"github.com/maltedev/pricewatch/internal/exchange"
	"github.com/maltedev/pricewatch/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedRate struct {
	rate  exchange.Rate
	calls int
}

func (f *fixedRate) Rate(ctx context.Context) exchange.Rate {
	f.calls++
	return f.rate
}

func TestToCanonical(t *testing.T) {
	ctx := context.Background()

	t.Run("identity for canonical currency", func(t *testing.T) {
		rates := &fixedRate{rate: exchange.Rate{Value: 1.5}}
		n := NewNormalizer(rates, "AUD", "USD", logger.Discard())

		for _, code := range []string{"AUD", "aud", " Aud "} {
			conv, ok := n.ToCanonical(ctx, 123.45, code)
			require.True(t, ok)
			assert.Equal(t, 123.45, conv.Amount)
			assert.Equal(t, "AUD", conv.Currency)
			assert.False(t, conv.Assumed)
		}
		assert.Zero(t, rates.calls, "identity must not consult the rate")
	})

	t.Run("base currency uses live rate", func(t *testing.T) {
		n := NewNormalizer(&fixedRate{rate: exchange.Rate{Value: 1.5}}, "AUD", "USD", logger.Discard())

		conv, ok := n.ToCanonical(ctx, 199.99, "usd")
		require.True(t, ok)
		assert.InDelta(t, 299.985, conv.Amount, 1e-9)
		assert.Equal(t, 1.5, conv.Rate)
		assert.False(t, conv.Degraded)
	})

	t.Run("fallback rate marks conversion degraded", func(t *testing.T) {
		n := NewNormalizer(&fixedRate{rate: exchange.Rate{Value: 1.5, Degraded: true}}, "AUD", "USD", logger.Discard())

		conv, ok := n.ToCanonical(ctx, 10, "USD")
		require.True(t, ok)
		assert.True(t, conv.Degraded)
	})

	t.Run("unsupported currency is assumed canonical", func(t *testing.T) {
		n := NewNormalizer(&fixedRate{rate: exchange.Rate{Value: 1.5}}, "AUD", "USD", logger.Discard())

		conv, ok := n.ToCanonical(ctx, 80, "EUR")
		require.True(t, ok)
		assert.Equal(t, 80.0, conv.Amount)
		assert.True(t, conv.Assumed)
	})

	t.Run("absent amount", func(t *testing.T) {
		n := NewNormalizer(&fixedRate{rate: exchange.Rate{Value: 1.5}}, "AUD", "USD", logger.Discard())

		_, ok := n.ToCanonical(ctx, 0, "USD")
		assert.False(t, ok)
		_, ok = n.ToCanonical(ctx, -5, "AUD")
		assert.False(t, ok)
	})
}
