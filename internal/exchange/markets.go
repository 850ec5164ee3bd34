package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/yourusername/dutch-better/internal/models"
)

// Horse racing event type on the exchange
const horseRacingEventTypeID = "7"

// Exchange price bounds for a placeable runner
const (
	minValidPrice = 1.01
	maxValidPrice = 1000.0
)

// MarketCatalogue represents market catalogue information
type MarketCatalogue struct {
	MarketID        string          `json:"marketId"`
	MarketName      string          `json:"marketName"`
	MarketStartTime time.Time       `json:"marketStartTime"`
	Event           *Event          `json:"event,omitempty"`
	Runners         []RunnerCatalog `json:"runners,omitempty"`
	TotalMatched    float64         `json:"totalMatched"`
}

// Event contains the event metadata for a market
type Event struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Venue   string `json:"venue"`
	Country string `json:"countryCode"`
}

// RunnerCatalog represents a runner in the market catalogue
type RunnerCatalog struct {
	SelectionID uint64 `json:"selectionId"`
	RunnerName  string `json:"runnerName"`
}

// MarketBook represents current market state and odds
type MarketBook struct {
	MarketID     string   `json:"marketId"`
	Status       string   `json:"status"`
	BetDelay     int      `json:"betDelay"`
	Complete     bool     `json:"complete"`
	Runners      []Runner `json:"runners"`
	TotalMatched float64  `json:"totalMatched"`
}

// Runner represents a runner in the market with current odds
type Runner struct {
	SelectionID    uint64         `json:"selectionId"`
	Status         string         `json:"status"`
	ExchangePrices ExchangePrices `json:"ex"`
}

// ExchangePrices represents back/lay prices on the exchange
type ExchangePrices struct {
	AvailableToBack []PriceSize `json:"availableToBack"`
	AvailableToLay  []PriceSize `json:"availableToLay"`
}

// PriceSize represents a price level with size
type PriceSize struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// MarketFilter for filtering the market catalogue
type MarketFilter struct {
	TextQuery       string     `json:"textQuery,omitempty"`
	EventTypeIDs    []string   `json:"eventTypeIds,omitempty"`
	MarketIDs       []string   `json:"marketIds,omitempty"`
	MarketTypes     []string   `json:"marketTypeCodes,omitempty"`
	MarketStartTime *TimeRange `json:"marketStartTime,omitempty"`
}

// TimeRange filters markets by start time
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// listMarketCatalogue fetches the market catalogue for the given filter
func (c *BetfairClient) listMarketCatalogue(
	ctx context.Context,
	filter MarketFilter,
	projection []string,
	maxResults int,
) ([]MarketCatalogue, error) {
	if maxResults <= 0 || maxResults > 1000 {
		maxResults = 100
	}

	params := map[string]interface{}{
		"filter":           filter,
		"marketProjection": projection,
		"sort":             "FIRST_TO_START",
		"maxResults":       maxResults,
	}

	result, err := c.makeRequest(ctx, "listMarketCatalogue", params)
	if err != nil {
		return nil, err
	}

	var catalogues []MarketCatalogue
	if err := json.Unmarshal(result, &catalogues); err != nil {
		return nil, fmt.Errorf("failed to parse market catalogue response: %w", err)
	}

	return catalogues, nil
}

// listMarketBook fetches current market state and prices
func (c *BetfairClient) listMarketBook(
	ctx context.Context,
	marketIDs []string,
	priceProjection []string,
) ([]MarketBook, error) {
	if len(marketIDs) == 0 {
		return nil, fmt.Errorf("at least one market ID required")
	}

	params := map[string]interface{}{
		"marketIds": marketIDs,
	}
	if len(priceProjection) > 0 {
		params["priceProjection"] = map[string]interface{}{
			"priceData": priceProjection,
		}
	}

	result, err := c.makeRequest(ctx, "listMarketBook", params)
	if err != nil {
		return nil, err
	}

	var books []MarketBook
	if err := json.Unmarshal(result, &books); err != nil {
		return nil, fmt.Errorf("failed to parse market book response: %w", err)
	}

	return books, nil
}

// TodaysRaces returns today's WIN markets sorted by start time. It prefers
// novice hurdle races and falls back to the full WIN card when the text
// query finds nothing.
func (c *BetfairClient) TodaysRaces(ctx context.Context) ([]models.RaceInfo, error) {
	now := time.Now().UTC()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, time.UTC)

	filter := MarketFilter{
		TextQuery:    "novice hurdle",
		EventTypeIDs: []string{horseRacingEventTypeID},
		MarketTypes:  []string{"WIN"},
		MarketStartTime: &TimeRange{
			From: now,
			To:   endOfDay,
		},
	}

	projection := []string{"MARKET_START_TIME", "EVENT"}

	catalogues, err := c.listMarketCatalogue(ctx, filter, projection, 100)
	if err != nil {
		return nil, err
	}

	if len(catalogues) == 0 {
		c.logger.Info("No novice hurdle markets found, falling back to all WIN markets")
		filter.TextQuery = ""
		catalogues, err = c.listMarketCatalogue(ctx, filter, projection, 100)
		if err != nil {
			return nil, err
		}
	}

	races := make([]models.RaceInfo, 0, len(catalogues))
	for _, cat := range catalogues {
		races = append(races, models.RaceInfo{
			MarketID:  cat.MarketID,
			Name:      raceName(cat),
			StartTime: cat.MarketStartTime,
		})
	}

	sort.Slice(races, func(i, j int) bool {
		return races[i].StartTime.Before(races[j].StartTime)
	})

	c.logger.WithField("races", len(races)).Info("Today's races retrieved")
	return races, nil
}

// ResolveRaceName resolves a market id to a display name
func (c *BetfairClient) ResolveRaceName(ctx context.Context, marketID string) (string, error) {
	cat, err := c.catalogueForMarket(ctx, marketID)
	if err != nil {
		return "", err
	}
	return raceName(*cat), nil
}

// RaceStartTime returns the advertised off time for a market
func (c *BetfairClient) RaceStartTime(ctx context.Context, marketID string) (time.Time, error) {
	cat, err := c.catalogueForMarket(ctx, marketID)
	if err != nil {
		return time.Time{}, err
	}
	if cat.MarketStartTime.IsZero() {
		return time.Time{}, fmt.Errorf("%w: no start time for market %s", models.ErrDataUnavailable, marketID)
	}
	return cat.MarketStartTime, nil
}

// TopTwoFavourites returns the two shortest-priced active runners sorted
// ascending by back price. Fewer than two priced runners is a data gap, not
// a hard failure.
func (c *BetfairClient) TopTwoFavourites(ctx context.Context, marketID string) ([]models.RunnerPrice, error) {
	books, err := c.listMarketBook(ctx, []string{marketID}, []string{"EX_BEST_OFFERS"})
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("%w: no market book for %s", models.ErrDataUnavailable, marketID)
	}

	book := books[0]
	if book.Status == "SUSPENDED" {
		return nil, NewMarketSuspendedError(marketID, "market suspended", nil)
	}

	names := c.runnerNames(ctx, marketID)

	var prices []models.RunnerPrice
	for _, runner := range book.Runners {
		if runner.Status != "ACTIVE" {
			continue
		}
		if len(runner.ExchangePrices.AvailableToBack) == 0 {
			continue
		}
		back := runner.ExchangePrices.AvailableToBack[0].Price
		if back < minValidPrice || back > maxValidPrice {
			continue
		}
		lay := 0.0
		if len(runner.ExchangePrices.AvailableToLay) > 0 {
			lay = runner.ExchangePrices.AvailableToLay[0].Price
		}
		prices = append(prices, models.RunnerPrice{
			SelectionID: runner.SelectionID,
			Name:        names[runner.SelectionID],
			BackPrice:   back,
			LayPrice:    lay,
		})
	}

	if len(prices) < 2 {
		return nil, fmt.Errorf("%w: %d priced runners in market %s", models.ErrDataUnavailable, len(prices), marketID)
	}

	sort.Slice(prices, func(i, j int) bool {
		return prices[i].BackPrice < prices[j].BackPrice
	})

	return prices[:2], nil
}

// SettlementStatus reports whether a market has settled and which runner won
func (c *BetfairClient) SettlementStatus(ctx context.Context, marketID string) (models.Settlement, error) {
	books, err := c.listMarketBook(ctx, []string{marketID}, nil)
	if err != nil {
		return models.Settlement{}, err
	}
	if len(books) == 0 {
		return models.Settlement{}, fmt.Errorf("%w: no market book for %s", models.ErrDataUnavailable, marketID)
	}

	book := books[0]
	settlement := models.Settlement{
		MarketID: marketID,
		Closed:   book.Status == "CLOSED",
	}

	if settlement.Closed {
		for _, runner := range book.Runners {
			if runner.Status == "WINNER" {
				id := runner.SelectionID
				settlement.WinnerSelectionID = &id
				break
			}
		}
	}

	return settlement, nil
}

// catalogueForMarket fetches the catalogue entry for a single market
func (c *BetfairClient) catalogueForMarket(ctx context.Context, marketID string) (*MarketCatalogue, error) {
	filter := MarketFilter{MarketIDs: []string{marketID}}
	projection := []string{"MARKET_START_TIME", "EVENT", "RUNNER_DESCRIPTION"}

	catalogues, err := c.listMarketCatalogue(ctx, filter, projection, 1)
	if err != nil {
		return nil, err
	}
	if len(catalogues) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrMarketNotFound, marketID)
	}
	return &catalogues[0], nil
}

// runnerNames resolves selection ids to runner names. Name resolution is
// cosmetic, so a lookup failure degrades to empty names.
func (c *BetfairClient) runnerNames(ctx context.Context, marketID string) map[uint64]string {
	names := make(map[uint64]string)
	cat, err := c.catalogueForMarket(ctx, marketID)
	if err != nil {
		c.logger.WithError(err).WithField("market_id", marketID).
			Debug("Runner name lookup failed")
		return names
	}
	for _, runner := range cat.Runners {
		names[runner.SelectionID] = runner.RunnerName
	}
	return names
}

// raceName builds a display name like "14:30 Ascot" from the catalogue entry
func raceName(cat MarketCatalogue) string {
	if cat.Event != nil && cat.Event.Venue != "" && !cat.MarketStartTime.IsZero() {
		return fmt.Sprintf("%s %s", cat.MarketStartTime.Format("15:04"), cat.Event.Venue)
	}
	return cat.MarketName
}
