package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const schema = `
CREATE TABLE IF NOT EXISTS price_runs (
	id          UUID PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	targets     INTEGER NOT NULL,
	sites       INTEGER NOT NULL,
	quotes      INTEGER NOT NULL,
	degraded    INTEGER NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS price_quotes (
	id                 UUID PRIMARY KEY,
	run_id             UUID,
	model              TEXT NOT NULL,
	supplier           TEXT NOT NULL,
	website            TEXT NOT NULL,
	title              TEXT NOT NULL,
	original_amount    NUMERIC(12, 4) NOT NULL,
	original_currency  CHAR(3) NOT NULL,
	canonical_amount   NUMERIC(12, 4) NOT NULL,
	canonical_currency CHAR(3) NOT NULL,
	url                TEXT NOT NULL,
	search_url         TEXT NOT NULL,
	status             TEXT NOT NULL,
	scraped_at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_quotes_model ON price_quotes (model, scraped_at DESC);
CREATE INDEX IF NOT EXISTS idx_price_quotes_run ON price_quotes (run_id);
`

// Migrate creates the tables used by the quote repository.
func (db *DB) Migrate(ctx context.Context) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, schema); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
		return nil
	})
}
