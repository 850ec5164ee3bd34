// Package history stores settled race outcomes for review and reporting.
package history

import (
	"context"
	"time"

	"github.com/yourusername/dutch-better/internal/models"
)

// Store persists and queries race outcomes
type Store interface {
	// RecordOutcome appends a settled race outcome
	RecordOutcome(ctx context.Context, outcome models.RaceOutcome) error

	// Outcomes returns outcomes settled within [from, to) ordered by
	// settlement time ascending
	Outcomes(ctx context.Context, from, to time.Time) ([]models.RaceOutcome, error)

	// DailySummary aggregates the outcomes of one calendar day
	DailySummary(ctx context.Context, day time.Time) (DaySummary, error)
}

// DaySummary aggregates one day's settled races
type DaySummary struct {
	Day        time.Time `json:"day"`
	Races      int       `json:"races"`
	Wins       int       `json:"wins"`
	Losses     int       `json:"losses"`
	ProfitLoss float64   `json:"profit_loss"`
}

// dayBounds returns the UTC day window containing t
func dayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	from := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.Add(24 * time.Hour)
}

// summarize folds outcomes into a DaySummary
func summarize(day time.Time, outcomes []models.RaceOutcome) DaySummary {
	summary := DaySummary{Day: day}
	for _, outcome := range outcomes {
		summary.Races++
		if outcome.Won {
			summary.Wins++
		} else {
			summary.Losses++
		}
		pl, _ := outcome.ProfitLoss.Float64()
		summary.ProfitLoss += pl
	}
	return summary
}
