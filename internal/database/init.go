package database

import (
	"context"
	"fmt"

	"github.com/yourusername/dutch-better/internal/config"
)

const outcomesSchema = `
CREATE TABLE IF NOT EXISTS race_outcomes (
	id                  UUID PRIMARY KEY,
	market_id           TEXT NOT NULL,
	race_name           TEXT NOT NULL,
	favourites          TEXT NOT NULL DEFAULT '',
	stake1              NUMERIC(12,2) NOT NULL DEFAULT 0,
	stake2              NUMERIC(12,2) NOT NULL DEFAULT 0,
	total_stake         NUMERIC(12,2) NOT NULL DEFAULT 0,
	profit_loss         NUMERIC(12,2) NOT NULL,
	bank_after          NUMERIC(12,2) NOT NULL,
	won                 BOOLEAN NOT NULL,
	winner_selection_id BIGINT,
	settled_at          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_race_outcomes_settled_at ON race_outcomes (settled_at);
CREATE INDEX IF NOT EXISTS idx_race_outcomes_market_id ON race_outcomes (market_id);
`

// Initialize creates a database connection pool and ensures the outcome
// schema exists
func Initialize(ctx context.Context, cfg *config.Config) (*DB, error) {
	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	if _, err := db.pool.Exec(ctx, outcomesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure outcomes schema: %w", err)
	}

	return db, nil
}
