package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/maltedev/pricewatch/internal/models"
)

type Sink interface {
	Emit(ctx context.Context, quote models.PriceQuote) error
}

// Collector keeps every emitted quote in memory.
type Collector struct {
	mu     sync.Mutex
	quotes []models.PriceQuote
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Emit(_ context.Context, quote models.PriceQuote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes = append(c.quotes, quote)
	return nil
}

// Quotes returns a copy of the collected quotes in emission order.
func (c *Collector) Quotes() []models.PriceQuote {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.PriceQuote(nil), c.quotes...)
}

func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.quotes)
}

// Multi fans a quote out to every sink. All sinks are tried; their errors are
// joined.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, quote models.PriceQuote) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, quote); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
