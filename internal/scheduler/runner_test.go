package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/dutch-better/internal/engine"
	"github.com/yourusername/dutch-better/internal/exchange"
	"github.com/yourusername/dutch-better/internal/models"
)

// fakeClient is a scriptable exchange for runner tests. Races settle the
// moment they are polled unless a settlement is withheld.
type fakeClient struct {
	mu          sync.Mutex
	races       []models.RaceInfo
	starts      map[string]time.Time
	startErrs   map[string]error
	favs        map[string][]models.RunnerPrice
	favErrs     map[string]error
	settlements map[string]models.Settlement
	balance     float64
	balanceErr  error
	pollCounts  map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		starts:      make(map[string]time.Time),
		startErrs:   make(map[string]error),
		favs:        make(map[string][]models.RunnerPrice),
		favErrs:     make(map[string]error),
		settlements: make(map[string]models.Settlement),
		balance:     1000,
		pollCounts:  make(map[string]int),
	}
}

func (f *fakeClient) TodaysRaces(ctx context.Context) ([]models.RaceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.RaceInfo(nil), f.races...), nil
}

func (f *fakeClient) ResolveRaceName(ctx context.Context, marketID string) (string, error) {
	return "14:30 Ascot", nil
}

func (f *fakeClient) RaceStartTime(ctx context.Context, marketID string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.startErrs[marketID]; ok {
		return time.Time{}, err
	}
	return f.starts[marketID], nil
}

func (f *fakeClient) TopTwoFavourites(ctx context.Context, marketID string) ([]models.RunnerPrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.favErrs[marketID]; ok {
		return nil, err
	}
	return f.favs[marketID], nil
}

func (f *fakeClient) AccountBalance(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeClient) SettlementStatus(ctx context.Context, marketID string) (models.Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCounts[marketID]++
	settlement, ok := f.settlements[marketID]
	if !ok {
		return models.Settlement{MarketID: marketID}, nil
	}
	return settlement, nil
}

// addRace scripts one race with favourites at the given odds and a winner
func (f *fakeClient) addRace(marketID string, startIn time.Duration, o1, o2 float64, winner uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now().Add(startIn)
	f.races = append(f.races, models.RaceInfo{MarketID: marketID, Name: "14:30 Ascot", StartTime: start})
	f.starts[marketID] = start
	f.favs[marketID] = []models.RunnerPrice{
		{SelectionID: 101, Name: "First Fav", BackPrice: o1},
		{SelectionID: 202, Name: "Second Fav", BackPrice: o2},
	}
	f.settlements[marketID] = models.Settlement{
		MarketID:          marketID,
		Closed:            true,
		WinnerSelectionID: &winner,
	}
}

// withholdSettlement keeps the market open so settlement polling spins
func (f *fakeClient) withholdSettlement(marketID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.settlements, marketID)
}

type capturePlacer struct {
	mu    sync.Mutex
	calls []struct {
		marketID string
		bets     []exchange.BackBet
	}
	err error
}

func (p *capturePlacer) PlaceBackBets(ctx context.Context, marketID string, bets []exchange.BackBet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.calls = append(p.calls, struct {
		marketID string
		bets     []exchange.BackBet
	}{marketID, bets})
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testSettings() engine.Settings {
	return engine.Settings{
		MinFavouriteOdds: 1.5,
		MaxFavouriteOdds: 5.0,
		TargetProfit:     5,
		MaxDailyLoss:     50,
		SecondsBeforeOff: 0,
	}
}

func testRunnerConfig(live bool) Config {
	return Config{
		SecondsBeforeOff:  0,
		TickInterval:      10 * time.Millisecond,
		SettlementTimeout: time.Second,
		LiveBetting:       live,
	}
}

func newTestRunner(t *testing.T, client *fakeClient, placer exchange.OrderPlacer, cfg Config) (*Runner, *engine.Engine) {
	t.Helper()
	eng := engine.New(testSettings(), 100, client, nil, quietLogger())
	return NewRunner(eng, client, placer, nil, cfg, quietLogger()), eng
}

func TestRunnerWinEndsDay(t *testing.T) {
	client := newFakeClient()
	client.addRace("1.1", 50*time.Millisecond, 2.0, 4.0, 101)
	client.addRace("1.2", 100*time.Millisecond, 2.0, 4.0, 101)

	runner, eng := newTestRunner(t, client, nil, testRunnerConfig(false))
	eng.SelectRaces([]string{"1.1", "1.2"})
	eng.StartDay(context.Background())

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := eng.Snapshot()
	if !snap.DayDone {
		t.Error("expected day done after a win")
	}
	if snap.CurrentBank != 105 {
		t.Errorf("expected bank 105 after winning the target, got %.2f", snap.CurrentBank)
	}
	if len(snap.History) != 1 || !snap.History[0].Won {
		t.Errorf("expected a single winning outcome, got %+v", snap.History)
	}
	if snap.History[0].WinnerSelectionID == nil || *snap.History[0].WinnerSelectionID != 101 {
		t.Errorf("expected winner 101 recorded, got %v", snap.History[0].WinnerSelectionID)
	}
	if client.pollCounts["1.2"] != 0 {
		t.Error("second race should never be polled after a first-race win")
	}
}

func TestRunnerLossAdvancesThenRecovers(t *testing.T) {
	client := newFakeClient()
	client.addRace("1.1", 30*time.Millisecond, 2.0, 4.0, 9999)
	client.addRace("1.2", 120*time.Millisecond, 2.0, 4.0, 101)

	runner, eng := newTestRunner(t, client, nil, testRunnerConfig(false))
	eng.SelectRaces([]string{"1.1", "1.2"})
	eng.StartDay(context.Background())

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := eng.Snapshot()
	if !snap.DayDone {
		t.Error("expected day done after the recovery win")
	}
	// Lose 15 on the first race, then win back 15 + the base target of 5
	if snap.CurrentBank != 105 {
		t.Errorf("expected bank 105 after recovery, got %.2f", snap.CurrentBank)
	}
	if len(snap.History) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(snap.History))
	}
	if snap.History[0].Won || !snap.History[1].Won {
		t.Error("expected loss then win")
	}
}

func TestRunnerSkipsRaceWithoutStartTime(t *testing.T) {
	client := newFakeClient()
	client.addRace("1.2", 30*time.Millisecond, 2.0, 4.0, 101)
	client.startErrs["1.1"] = errors.New("catalogue gap")

	runner, eng := newTestRunner(t, client, nil, testRunnerConfig(false))
	eng.SelectRaces([]string{"1.1", "1.2"})
	eng.StartDay(context.Background())

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := eng.Snapshot()
	if snap.CurrentBank != 105 {
		t.Errorf("expected skip then win for 105, got %.2f", snap.CurrentBank)
	}
	if len(snap.History) != 1 {
		t.Errorf("skipped race must not appear in history, got %d entries", len(snap.History))
	}
}

func TestRunnerSkipsRaceAlreadyOff(t *testing.T) {
	client := newFakeClient()
	client.addRace("1.1", -time.Minute, 2.0, 4.0, 101)

	runner, eng := newTestRunner(t, client, nil, testRunnerConfig(false))
	eng.SelectRaces([]string{"1.1"})
	eng.StartDay(context.Background())

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := eng.Snapshot()
	if !snap.DayDone || snap.CurrentBank != 100 {
		t.Errorf("expected untouched bank after skipping an off race, got %.2f", snap.CurrentBank)
	}
	if client.pollCounts["1.1"] != 0 {
		t.Error("an off race must not be settled")
	}
}

func TestRunnerSkipsOnFavouritesError(t *testing.T) {
	client := newFakeClient()
	client.addRace("1.1", 30*time.Millisecond, 2.0, 4.0, 101)
	client.favErrs["1.1"] = models.ErrDataUnavailable

	runner, eng := newTestRunner(t, client, nil, testRunnerConfig(false))
	eng.SelectRaces([]string{"1.1"})
	eng.StartDay(context.Background())

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bank := eng.Snapshot().CurrentBank; bank != 100 {
		t.Errorf("expected untouched bank, got %.2f", bank)
	}
}

func TestRunnerSkipsOddsOutsideRange(t *testing.T) {
	client := newFakeClient()
	client.addRace("1.1", 30*time.Millisecond, 1.2, 9.0, 101)

	runner, eng := newTestRunner(t, client, nil, testRunnerConfig(false))
	eng.SelectRaces([]string{"1.1"})
	eng.StartDay(context.Background())

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := eng.Snapshot()
	if !snap.DayDone || snap.CurrentBank != 100 {
		t.Errorf("expected a no-bet skip, bank %.2f", snap.CurrentBank)
	}
}

func TestRunnerSkipsOnInsufficientFunds(t *testing.T) {
	client := newFakeClient()
	client.addRace("1.1", 30*time.Millisecond, 2.0, 4.0, 101)
	client.balance = 1 // below the 15 total stake

	runner, eng := newTestRunner(t, client, nil, testRunnerConfig(false))
	eng.SelectRaces([]string{"1.1"})
	eng.StartDay(context.Background())

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bank := eng.Snapshot().CurrentBank; bank != 100 {
		t.Errorf("expected untouched bank, got %.2f", bank)
	}
}

func TestRunnerToleratesBalanceFetchFailure(t *testing.T) {
	client := newFakeClient()
	client.addRace("1.1", 30*time.Millisecond, 2.0, 4.0, 101)
	client.balanceErr = errors.New("account endpoint down")

	runner, eng := newTestRunner(t, client, nil, testRunnerConfig(false))
	eng.SelectRaces([]string{"1.1"})
	eng.StartDay(context.Background())

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bank := eng.Snapshot().CurrentBank; bank != 105 {
		t.Errorf("expected the race to proceed to a win, got bank %.2f", bank)
	}
}

func TestRunnerSettlementTimeoutSkips(t *testing.T) {
	client := newFakeClient()
	client.addRace("1.1", 20*time.Millisecond, 2.0, 4.0, 101)
	client.withholdSettlement("1.1")

	cfg := testRunnerConfig(false)
	cfg.SettlementTimeout = 50 * time.Millisecond
	runner, eng := newTestRunner(t, client, nil, cfg)
	eng.SelectRaces([]string{"1.1"})
	eng.StartDay(context.Background())

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := eng.Snapshot()
	if !snap.DayDone || snap.CurrentBank != 100 {
		t.Errorf("expected untouched bank after settlement timeout, got %.2f", snap.CurrentBank)
	}
	if client.pollCounts["1.1"] == 0 {
		t.Error("expected at least one settlement poll")
	}
}

func TestRunnerVoidedMarketSkips(t *testing.T) {
	client := newFakeClient()
	client.addRace("1.1", 20*time.Millisecond, 2.0, 4.0, 101)
	client.mu.Lock()
	client.settlements["1.1"] = models.Settlement{MarketID: "1.1", Closed: true}
	client.mu.Unlock()

	runner, eng := newTestRunner(t, client, nil, testRunnerConfig(false))
	eng.SelectRaces([]string{"1.1"})
	eng.StartDay(context.Background())

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bank := eng.Snapshot().CurrentBank; bank != 100 {
		t.Errorf("voided market must not touch the bank, got %.2f", bank)
	}
}

func TestRunnerLiveBettingPlacesBothLegs(t *testing.T) {
	client := newFakeClient()
	client.addRace("1.1", 30*time.Millisecond, 2.0, 4.0, 101)

	placer := &capturePlacer{}
	runner, eng := newTestRunner(t, client, placer, testRunnerConfig(true))
	eng.SelectRaces([]string{"1.1"})
	eng.StartDay(context.Background())

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(placer.calls) != 1 {
		t.Fatalf("expected 1 order call, got %d", len(placer.calls))
	}
	bets := placer.calls[0].bets
	if len(bets) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(bets))
	}
	if bets[0].SelectionID != 101 || bets[1].SelectionID != 202 {
		t.Errorf("unexpected selections %d / %d", bets[0].SelectionID, bets[1].SelectionID)
	}
	if bets[0].Stake != 10 || bets[1].Stake != 5 {
		t.Errorf("expected stakes 10 / 5, got %.2f / %.2f", bets[0].Stake, bets[1].Stake)
	}
}

func TestRunnerPaperModeNeverPlaces(t *testing.T) {
	client := newFakeClient()
	client.addRace("1.1", 30*time.Millisecond, 2.0, 4.0, 101)

	placer := &capturePlacer{}
	runner, eng := newTestRunner(t, client, placer, testRunnerConfig(false))
	eng.SelectRaces([]string{"1.1"})
	eng.StartDay(context.Background())

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(placer.calls) != 0 {
		t.Errorf("paper mode must not place orders, got %d calls", len(placer.calls))
	}
	if bank := eng.Snapshot().CurrentBank; bank != 105 {
		t.Errorf("paper mode still settles against the engine, got bank %.2f", bank)
	}
}

func TestRunnerOrderFailureSkipsRace(t *testing.T) {
	client := newFakeClient()
	client.addRace("1.1", 30*time.Millisecond, 2.0, 4.0, 101)

	placer := &capturePlacer{err: errors.New("INSUFFICIENT_FUNDS")}
	runner, eng := newTestRunner(t, client, placer, testRunnerConfig(true))
	eng.SelectRaces([]string{"1.1"})
	eng.StartDay(context.Background())

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bank := eng.Snapshot().CurrentBank; bank != 100 {
		t.Errorf("failed placement must not settle against the bank, got %.2f", bank)
	}
}

func TestRunnerContextCancellation(t *testing.T) {
	client := newFakeClient()
	client.addRace("1.1", time.Hour, 2.0, 4.0, 101)

	runner, eng := newTestRunner(t, client, nil, testRunnerConfig(false))
	eng.SelectRaces([]string{"1.1"})
	eng.StartDay(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("runner did not stop on cancellation")
	}

	if eng.DayDone() {
		t.Error("cancellation must not mark the day done")
	}
}
