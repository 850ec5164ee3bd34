package exchange

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/dutch-better/internal/models"
)

// Catalogue data (names, start times, the day's card) barely changes, so it
// gets a long TTL independent of the price TTL.
const catalogueTTL = 10 * time.Minute

// CachedClient wraps a Client with TTL caching. Prices use the short
// configured TTL; catalogue lookups are cached for minutes. Settlement
// status is never cached, a stale CLOSED would double-settle a race.
type CachedClient struct {
	client  Client
	prices  *gocache.Cache
	catalog *gocache.Cache
	logger  *logrus.Logger
}

// NewCachedClient creates a caching decorator around an exchange client
func NewCachedClient(client Client, priceTTL time.Duration, logger *logrus.Logger) *CachedClient {
	if priceTTL <= 0 {
		priceTTL = 5 * time.Second
	}
	return &CachedClient{
		client:  client,
		prices:  gocache.New(priceTTL, 2*priceTTL),
		catalog: gocache.New(catalogueTTL, 2*catalogueTTL),
		logger:  logger,
	}
}

// TodaysRaces returns the day's card, cached for the catalogue TTL
func (c *CachedClient) TodaysRaces(ctx context.Context) ([]models.RaceInfo, error) {
	const key = "todays_races"
	if cached, ok := c.catalog.Get(key); ok {
		return cached.([]models.RaceInfo), nil
	}

	races, err := c.client.TodaysRaces(ctx)
	if err != nil {
		return nil, err
	}

	c.catalog.Set(key, races, gocache.DefaultExpiration)
	return races, nil
}

// ResolveRaceName resolves a market id to a display name, cached
func (c *CachedClient) ResolveRaceName(ctx context.Context, marketID string) (string, error) {
	key := "name:" + marketID
	if cached, ok := c.catalog.Get(key); ok {
		return cached.(string), nil
	}

	name, err := c.client.ResolveRaceName(ctx, marketID)
	if err != nil {
		return "", err
	}

	c.catalog.Set(key, name, gocache.DefaultExpiration)
	return name, nil
}

// RaceStartTime returns the advertised off time, cached
func (c *CachedClient) RaceStartTime(ctx context.Context, marketID string) (time.Time, error) {
	key := "start:" + marketID
	if cached, ok := c.catalog.Get(key); ok {
		return cached.(time.Time), nil
	}

	start, err := c.client.RaceStartTime(ctx, marketID)
	if err != nil {
		return time.Time{}, err
	}

	c.catalog.Set(key, start, gocache.DefaultExpiration)
	return start, nil
}

// TopTwoFavourites returns the current favourites, cached for the price TTL
func (c *CachedClient) TopTwoFavourites(ctx context.Context, marketID string) ([]models.RunnerPrice, error) {
	key := "favs:" + marketID
	if cached, ok := c.prices.Get(key); ok {
		c.logger.WithField("market_id", marketID).Debug("Favourites served from cache")
		return cached.([]models.RunnerPrice), nil
	}

	favs, err := c.client.TopTwoFavourites(ctx, marketID)
	if err != nil {
		return nil, err
	}

	c.prices.Set(key, favs, gocache.DefaultExpiration)
	return favs, nil
}

// AccountBalance returns the account balance, cached for the price TTL
func (c *CachedClient) AccountBalance(ctx context.Context) (float64, error) {
	const key = "balance"
	if cached, ok := c.prices.Get(key); ok {
		return cached.(float64), nil
	}

	balance, err := c.client.AccountBalance(ctx)
	if err != nil {
		return 0, err
	}

	c.prices.Set(key, balance, gocache.DefaultExpiration)
	return balance, nil
}

// SettlementStatus passes through uncached
func (c *CachedClient) SettlementStatus(ctx context.Context, marketID string) (models.Settlement, error) {
	return c.client.SettlementStatus(ctx, marketID)
}

// InvalidateMarket drops all cached entries for a market
func (c *CachedClient) InvalidateMarket(marketID string) {
	c.prices.Delete("favs:" + marketID)
	c.catalog.Delete("name:" + marketID)
	c.catalog.Delete("start:" + marketID)
}

// Flush clears both caches
func (c *CachedClient) Flush() {
	c.prices.Flush()
	c.catalog.Flush()
}
