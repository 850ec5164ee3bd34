package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/yourusername/dutch-better/internal/models"
)

func TestDummyClientServesFullCard(t *testing.T) {
	d := NewDummyClient(100, quietLogger())
	ctx := context.Background()

	races, err := d.TodaysRaces(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(races) == 0 {
		t.Fatal("expected at least one fixture race")
	}

	for i := 1; i < len(races); i++ {
		if races[i].StartTime.Before(races[i-1].StartTime) {
			t.Error("fixture races must be sorted by start time")
		}
	}

	first := races[0]

	name, err := d.ResolveRaceName(ctx, first.MarketID)
	if err != nil || name != first.Name {
		t.Errorf("ResolveRaceName = %q, %v; want %q", name, err, first.Name)
	}

	start, err := d.RaceStartTime(ctx, first.MarketID)
	if err != nil || !start.Equal(first.StartTime) {
		t.Errorf("RaceStartTime = %v, %v; want %v", start, err, first.StartTime)
	}

	favs, err := d.TopTwoFavourites(ctx, first.MarketID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(favs) != 2 {
		t.Fatalf("expected 2 favourites, got %d", len(favs))
	}
	if favs[0].BackPrice >= favs[1].BackPrice {
		t.Errorf("favourites must be sorted ascending: %+v", favs)
	}

	balance, err := d.AccountBalance(ctx)
	if err != nil || balance != 100 {
		t.Errorf("AccountBalance = %f, %v; want 100", balance, err)
	}
}

func TestDummyClientSettlesAfterOff(t *testing.T) {
	d := NewDummyClient(100, quietLogger())
	ctx := context.Background()

	races, _ := d.TodaysRaces(ctx)
	marketID := races[0].MarketID

	// Before the off the market is open
	settlement, err := d.SettlementStatus(ctx, marketID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settlement.Closed {
		t.Error("market should not settle before the off")
	}

	// Rewind the fixture start time so the race is past settling
	d.mu.Lock()
	d.races[0].StartTime = time.Now().UTC().Add(-5 * time.Minute)
	d.mu.Unlock()
	d.SetWinner(marketID, 42)

	settlement, err = d.SettlementStatus(ctx, marketID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !settlement.WinnerKnown() {
		t.Fatal("expected settled market with winner")
	}
	if *settlement.WinnerSelectionID != 42 {
		t.Errorf("expected winner 42, got %d", *settlement.WinnerSelectionID)
	}
}

func TestDummyClientUnknownMarket(t *testing.T) {
	d := NewDummyClient(100, quietLogger())
	ctx := context.Background()

	if _, err := d.ResolveRaceName(ctx, "1.nonexistent"); err == nil {
		t.Error("expected error for unknown market name")
	}
	if _, err := d.TopTwoFavourites(ctx, "1.nonexistent"); err == nil {
		t.Error("expected error for unknown market favourites")
	}
	if _, err := d.SettlementStatus(ctx, "1.nonexistent"); err == nil {
		t.Error("expected error for unknown market settlement")
	}
}

func TestLoggingOrderPlacerNeverFails(t *testing.T) {
	p := NewLoggingOrderPlacer(quietLogger())
	err := p.PlaceBackBets(context.Background(), "1.234", []BackBet{
		{SelectionID: 1, Price: 2.0, Stake: 10},
		{SelectionID: 2, Price: 4.0, Stake: 5},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// countingClient wraps DummyClient counting underlying calls
type countingClient struct {
	Client
	calls map[string]int
}

func (c *countingClient) TopTwoFavourites(ctx context.Context, marketID string) ([]models.RunnerPrice, error) {
	c.calls["favourites"]++
	return c.Client.TopTwoFavourites(ctx, marketID)
}

func (c *countingClient) ResolveRaceName(ctx context.Context, marketID string) (string, error) {
	c.calls["name"]++
	return c.Client.ResolveRaceName(ctx, marketID)
}

func (c *countingClient) SettlementStatus(ctx context.Context, marketID string) (models.Settlement, error) {
	c.calls["settlement"]++
	return c.Client.SettlementStatus(ctx, marketID)
}

func TestCachedClientCachesPricesAndNames(t *testing.T) {
	inner := &countingClient{Client: NewDummyClient(100, quietLogger()), calls: map[string]int{}}
	cached := NewCachedClient(inner, time.Minute, quietLogger())
	ctx := context.Background()

	races, _ := cached.TodaysRaces(ctx)
	marketID := races[0].MarketID

	for i := 0; i < 3; i++ {
		if _, err := cached.TopTwoFavourites(ctx, marketID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := cached.ResolveRaceName(ctx, marketID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if inner.calls["favourites"] != 1 {
		t.Errorf("expected 1 underlying favourites call, got %d", inner.calls["favourites"])
	}
	if inner.calls["name"] != 1 {
		t.Errorf("expected 1 underlying name call, got %d", inner.calls["name"])
	}
}

func TestCachedClientNeverCachesSettlement(t *testing.T) {
	inner := &countingClient{Client: NewDummyClient(100, quietLogger()), calls: map[string]int{}}
	cached := NewCachedClient(inner, time.Minute, quietLogger())
	ctx := context.Background()

	races, _ := cached.TodaysRaces(ctx)
	marketID := races[0].MarketID

	for i := 0; i < 3; i++ {
		if _, err := cached.SettlementStatus(ctx, marketID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if inner.calls["settlement"] != 3 {
		t.Errorf("expected 3 underlying settlement calls, got %d", inner.calls["settlement"])
	}
}

func TestCachedClientInvalidateMarket(t *testing.T) {
	inner := &countingClient{Client: NewDummyClient(100, quietLogger()), calls: map[string]int{}}
	cached := NewCachedClient(inner, time.Minute, quietLogger())
	ctx := context.Background()

	races, _ := cached.TodaysRaces(ctx)
	marketID := races[0].MarketID

	cached.TopTwoFavourites(ctx, marketID)
	cached.InvalidateMarket(marketID)
	cached.TopTwoFavourites(ctx, marketID)

	if inner.calls["favourites"] != 2 {
		t.Errorf("expected cache invalidation to force refetch, got %d calls", inner.calls["favourites"])
	}
}
