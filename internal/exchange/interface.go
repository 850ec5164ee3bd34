// Package exchange provides the betting exchange clients used by the
// dutching bot: a live API-NG client, a dummy fixture client and a caching
// decorator.
package exchange

import (
	"context"
	"time"

	"github.com/yourusername/dutch-better/internal/models"
)

// Client is the exchange surface the bot depends on. All implementations
// return models.ErrDataUnavailable-wrapped errors for recoverable data gaps
// so callers can skip a race rather than abort the day.
type Client interface {
	// TodaysRaces returns today's selectable WIN markets sorted by start time
	TodaysRaces(ctx context.Context) ([]models.RaceInfo, error)

	// ResolveRaceName resolves a market id to a display name
	ResolveRaceName(ctx context.Context, marketID string) (string, error)

	// RaceStartTime returns the advertised off time for a market
	RaceStartTime(ctx context.Context, marketID string) (time.Time, error)

	// TopTwoFavourites returns the two shortest-priced active runners,
	// sorted ascending by back price
	TopTwoFavourites(ctx context.Context, marketID string) ([]models.RunnerPrice, error)

	// AccountBalance returns the available-to-bet account balance
	AccountBalance(ctx context.Context) (float64, error)

	// SettlementStatus reports whether a market has settled and who won
	SettlementStatus(ctx context.Context, marketID string) (models.Settlement, error)
}

// BackBet is a single back order at a fixed price
type BackBet struct {
	SelectionID uint64
	Price       float64
	Stake       float64
}

// OrderPlacer places back bets on a market. Separated from Client so the
// read path can run live while order placement stays stubbed out.
type OrderPlacer interface {
	PlaceBackBets(ctx context.Context, marketID string, bets []BackBet) error
}
