package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RaceOutcome is one settled race in the session history. Entries are
// written exactly once and never mutated.
type RaceOutcome struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	MarketID          string          `db:"market_id" json:"market_id"`
	RaceName          string          `db:"race_name" json:"race_name"`
	Favourites        string          `db:"favourites" json:"favourites"`
	Stake1            decimal.Decimal `db:"stake1" json:"stake1"`
	Stake2            decimal.Decimal `db:"stake2" json:"stake2"`
	TotalStake        decimal.Decimal `db:"total_stake" json:"total_stake"`
	ProfitLoss        decimal.Decimal `db:"profit_loss" json:"profit_loss"`
	BankAfter         decimal.Decimal `db:"bank_after" json:"bank_after"`
	Won               bool            `db:"won" json:"won"`
	WinnerSelectionID *uint64         `db:"winner_selection_id" json:"winner_selection_id"`
	SettledAt         time.Time       `db:"settled_at" json:"settled_at"`
}

// Money rounds a float currency amount to two decimal places for recording.
func Money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
