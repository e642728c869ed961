package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/pricewatch/internal/models"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// RunRecord is the persisted summary of one run.
type RunRecord struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Targets    int
	Sites      int
	Quotes     int
	Degraded   int
}

type QuoteFilter struct {
	Model   string
	SiteKey string
	RunID   uuid.UUID
	Since   time.Time
	Limit   int
}

// QuoteRepository persists quotes and run summaries in postgres.
type QuoteRepository struct {
	db *DB
}

func NewQuoteRepository(db *DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

// Emit stores a quote. Re-emitting the same quote id is a no-op.
func (r *QuoteRepository) Emit(ctx context.Context, q models.PriceQuote) error {
	query := `
		INSERT INTO price_quotes (
			id, run_id, model, supplier, website, title,
			original_amount, original_currency, canonical_amount, canonical_currency,
			url, search_url, status, scraped_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.Exec(ctx, query,
		q.ID, nullableUUID(q.RunID), q.Model, q.Supplier, q.SiteKey, q.Title,
		q.OriginalAmount, q.OriginalCurrency, q.CanonicalAmount, q.CanonicalCurrency,
		q.SourceURL, q.SearchURL, string(q.Status), q.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert quote: %w", err)
	}
	return nil
}

func (r *QuoteRepository) SaveRun(ctx context.Context, run RunRecord) error {
	query := `
		INSERT INTO price_runs (id, started_at, finished_at, targets, sites, quotes, degraded)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			quotes = EXCLUDED.quotes,
			degraded = EXCLUDED.degraded`

	_, err := r.db.Exec(ctx, query,
		run.ID, run.StartedAt, run.FinishedAt, run.Targets, run.Sites, run.Quotes, run.Degraded)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// List returns quotes matching f, newest first.
func (r *QuoteRepository) List(ctx context.Context, f QuoteFilter) ([]models.PriceQuote, error) {
	query, args := buildListQuery(f)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	var quotes []models.PriceQuote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		quotes = append(quotes, q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return quotes, nil
}

func buildListQuery(f QuoteFilter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)

	add := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if f.Model != "" {
		add("model ILIKE $%d", "%"+f.Model+"%")
	}
	if f.SiteKey != "" {
		add("website = $%d", f.SiteKey)
	}
	if f.RunID != uuid.Nil {
		add("run_id = $%d", f.RunID)
	}
	if !f.Since.IsZero() {
		add("scraped_at >= $%d", f.Since)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var b strings.Builder
	b.WriteString(`SELECT id, run_id, model, supplier, website, title,
		original_amount::float8, original_currency, canonical_amount::float8, canonical_currency,
		url, search_url, status, scraped_at
		FROM price_quotes`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, limit)
	fmt.Fprintf(&b, " ORDER BY scraped_at DESC LIMIT $%d", len(args))

	return b.String(), args
}

func scanQuote(row pgx.Row) (models.PriceQuote, error) {
	var (
		q      models.PriceQuote
		runID  *uuid.UUID
		status string
	)

	err := row.Scan(
		&q.ID, &runID, &q.Model, &q.Supplier, &q.SiteKey, &q.Title,
		&q.OriginalAmount, &q.OriginalCurrency, &q.CanonicalAmount, &q.CanonicalCurrency,
		&q.SourceURL, &q.SearchURL, &status, &q.ScrapedAt,
	)
	if err != nil {
		return q, err
	}

	if runID != nil {
		q.RunID = *runID
	}
	q.Status = models.QuoteStatus(status)
	return q, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
