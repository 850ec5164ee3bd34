package history

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/dutch-better/internal/database"
	"github.com/yourusername/dutch-better/internal/models"
)

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates an outcome store backed by the given database
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// RecordOutcome appends a settled race outcome
func (s *PostgresStore) RecordOutcome(ctx context.Context, outcome models.RaceOutcome) error {
	query := `
		INSERT INTO race_outcomes (id, market_id, race_name, favourites, stake1, stake2,
		                           total_stake, profit_loss, bank_after, won,
		                           winner_selection_id, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.db.GetPool().Exec(ctx, query,
		outcome.ID, outcome.MarketID, outcome.RaceName, outcome.Favourites,
		outcome.Stake1, outcome.Stake2, outcome.TotalStake, outcome.ProfitLoss,
		outcome.BankAfter, outcome.Won, outcome.WinnerSelectionID, outcome.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}

	return nil
}

// Outcomes returns outcomes settled within [from, to)
func (s *PostgresStore) Outcomes(ctx context.Context, from, to time.Time) ([]models.RaceOutcome, error) {
	query := `
		SELECT id, market_id, race_name, favourites, stake1, stake2, total_stake,
		       profit_loss, bank_after, won, winner_selection_id, settled_at
		FROM race_outcomes
		WHERE settled_at >= $1 AND settled_at < $2
		ORDER BY settled_at ASC
	`

	rows, err := s.db.GetPool().Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []models.RaceOutcome
	for rows.Next() {
		var outcome models.RaceOutcome
		err := rows.Scan(
			&outcome.ID, &outcome.MarketID, &outcome.RaceName, &outcome.Favourites,
			&outcome.Stake1, &outcome.Stake2, &outcome.TotalStake, &outcome.ProfitLoss,
			&outcome.BankAfter, &outcome.Won, &outcome.WinnerSelectionID, &outcome.SettledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, rows.Err()
}

// DailySummary aggregates the outcomes of one calendar day
func (s *PostgresStore) DailySummary(ctx context.Context, day time.Time) (DaySummary, error) {
	from, to := dayBounds(day)

	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE won),
		       COUNT(*) FILTER (WHERE NOT won),
		       COALESCE(SUM(profit_loss), 0)
		FROM race_outcomes
		WHERE settled_at >= $1 AND settled_at < $2
	`

	summary := DaySummary{Day: from}
	err := s.db.GetPool().QueryRow(ctx, query, from, to).Scan(
		&summary.Races, &summary.Wins, &summary.Losses, &summary.ProfitLoss,
	)
	if err != nil {
		return DaySummary{}, fmt.Errorf("failed to summarize outcomes: %w", err)
	}

	return summary, nil
}
