package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/dutch-better/internal/models"
)

// DummyClient serves canned race fixtures so the full pipeline can run
// without exchange credentials. Races start shortly after construction and
// settle two minutes after their off time, alternating winners between the
// favourite and an outsider.
type DummyClient struct {
	races       []models.RaceInfo
	favourites  map[string][]models.RunnerPrice
	winners     map[string]uint64
	balance     float64
	gap         time.Duration
	settleDelay time.Duration
	mu          sync.RWMutex
	logger      *logrus.Logger
}

// DummyTiming controls how the generated card is spaced out
type DummyTiming struct {
	// Gap is the interval between consecutive race off times
	Gap time.Duration
	// SettleDelay is how long after the off a market settles
	SettleDelay time.Duration
}

// NewDummyClient creates a dummy client with a generated card of races
func NewDummyClient(balance float64, logger *logrus.Logger) *DummyClient {
	return NewDummyClientWithTiming(balance, DummyTiming{
		Gap:         3 * time.Minute,
		SettleDelay: 2 * time.Minute,
	}, logger)
}

// NewDummyClientWithTiming creates a dummy client with a compressed or
// stretched card, used by tests that run a whole day in seconds
func NewDummyClientWithTiming(balance float64, timing DummyTiming, logger *logrus.Logger) *DummyClient {
	d := &DummyClient{
		favourites:  make(map[string][]models.RunnerPrice),
		winners:     make(map[string]uint64),
		balance:     balance,
		gap:         timing.Gap,
		settleDelay: timing.SettleDelay,
		logger:      logger,
	}
	d.generateCard(time.Now().UTC())
	return d
}

// generateCard builds a deterministic set of fixtures starting soon after now
func (d *DummyClient) generateCard(now time.Time) {
	venues := []string{"Ascot", "Kempton", "Newbury", "Fontwell", "Ludlow", "Taunton"}
	odds := [][2]float64{
		{2.0, 4.0},
		{2.5, 3.5},
		{1.8, 4.5},
		{3.0, 4.0},
		{2.2, 3.8},
		{2.8, 4.2},
	}

	for i, venue := range venues {
		marketID := fmt.Sprintf("1.%09d", 100000000+i)
		start := now.Add(time.Duration(i+2) * d.gap)

		fav1 := models.RunnerPrice{
			SelectionID: uint64(1000 + i*10),
			Name:        fmt.Sprintf("Dummy Runner %da", i+1),
			BackPrice:   odds[i][0],
			LayPrice:    odds[i][0] + 0.1,
		}
		fav2 := models.RunnerPrice{
			SelectionID: uint64(1001 + i*10),
			Name:        fmt.Sprintf("Dummy Runner %db", i+1),
			BackPrice:   odds[i][1],
			LayPrice:    odds[i][1] + 0.2,
		}

		d.races = append(d.races, models.RaceInfo{
			MarketID:  marketID,
			Name:      fmt.Sprintf("%s %s", start.Format("15:04"), venue),
			StartTime: start,
		})
		d.favourites[marketID] = []models.RunnerPrice{fav1, fav2}

		// Alternate between a staked favourite winning and an outsider
		if i%2 == 1 {
			d.winners[marketID] = fav1.SelectionID
		} else {
			d.winners[marketID] = 9999
		}
	}
}

// SetWinner overrides the winning selection for a market
func (d *DummyClient) SetWinner(marketID string, selectionID uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.winners[marketID] = selectionID
}

// TodaysRaces returns the generated race card
func (d *DummyClient) TodaysRaces(ctx context.Context) ([]models.RaceInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]models.RaceInfo(nil), d.races...), nil
}

// ResolveRaceName resolves a market id to its fixture name
func (d *DummyClient) ResolveRaceName(ctx context.Context, marketID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, race := range d.races {
		if race.MarketID == marketID {
			return race.Name, nil
		}
	}
	return "", fmt.Errorf("%w: %s", models.ErrMarketNotFound, marketID)
}

// RaceStartTime returns the fixture off time
func (d *DummyClient) RaceStartTime(ctx context.Context, marketID string) (time.Time, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, race := range d.races {
		if race.MarketID == marketID {
			return race.StartTime, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s", models.ErrMarketNotFound, marketID)
}

// TopTwoFavourites returns the fixture favourites for a market
func (d *DummyClient) TopTwoFavourites(ctx context.Context, marketID string) ([]models.RunnerPrice, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	favs, ok := d.favourites[marketID]
	if !ok {
		return nil, fmt.Errorf("%w: no favourites for %s", models.ErrDataUnavailable, marketID)
	}
	return append([]models.RunnerPrice(nil), favs...), nil
}

// AccountBalance returns the configured dummy balance
func (d *DummyClient) AccountBalance(ctx context.Context) (float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.balance, nil
}

// SettlementStatus settles a market once the settle delay has passed its off
func (d *DummyClient) SettlementStatus(ctx context.Context, marketID string) (models.Settlement, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, race := range d.races {
		if race.MarketID != marketID {
			continue
		}
		settlement := models.Settlement{MarketID: marketID}
		if time.Now().UTC().After(race.StartTime.Add(d.settleDelay)) {
			settlement.Closed = true
			winner := d.winners[marketID]
			settlement.WinnerSelectionID = &winner
		}
		return settlement, nil
	}
	return models.Settlement{}, fmt.Errorf("%w: %s", models.ErrMarketNotFound, marketID)
}

// LoggingOrderPlacer logs would-be orders instead of placing them. Used
// whenever live betting is disabled.
type LoggingOrderPlacer struct {
	logger *logrus.Logger
}

// NewLoggingOrderPlacer creates an order placer that only logs
func NewLoggingOrderPlacer(logger *logrus.Logger) *LoggingOrderPlacer {
	return &LoggingOrderPlacer{logger: logger}
}

// PlaceBackBets logs the bets that would have been placed
func (p *LoggingOrderPlacer) PlaceBackBets(ctx context.Context, marketID string, bets []BackBet) error {
	for _, bet := range bets {
		p.logger.WithFields(logrus.Fields{
			"market_id":    marketID,
			"selection_id": bet.SelectionID,
			"price":        bet.Price,
			"stake":        bet.Stake,
		}).Info("Paper bet (live betting disabled)")
	}
	return nil
}
