package models

import (
	"time"

	"github.com/google/uuid"
)

type QuoteStatus string

const (
	QuoteStatusSuccess QuoteStatus = "success"
	// QuoteStatusDegraded marks a quote produced through a fallback path:
	// the fallback exchange rate or an assumed currency.
	QuoteStatusDegraded QuoteStatus = "degraded"
)

// PriceQuote is the record emitted for one accepted listing.
type PriceQuote struct {
	ID                uuid.UUID   `json:"id"`
	RunID             uuid.UUID   `json:"run_id"`
	Model             string      `json:"model"`
	Supplier          string      `json:"supplier"`
	SiteKey           string      `json:"website"`
	Title             string      `json:"title"`
	OriginalAmount    float64     `json:"original_amount"`
	OriginalCurrency  string      `json:"original_currency"`
	CanonicalAmount   float64     `json:"canonical_amount"`
	CanonicalCurrency string      `json:"canonical_currency"`
	SourceURL         string      `json:"url"`
	SearchURL         string      `json:"search_url"`
	ScrapedAt         time.Time   `json:"scraped_at"`
	Status            QuoteStatus `json:"status"`
}

func (q *PriceQuote) IsDegraded() bool {
	return q.Status == QuoteStatusDegraded
}
