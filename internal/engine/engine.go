// Package engine owns the dutching session state and the race-advance and
// outcome-recording logic.
package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/dutch-better/internal/dutch"
	"github.com/yourusername/dutch-better/internal/metrics"
	"github.com/yourusername/dutch-better/internal/models"
)

// State represents the session lifecycle state
type State int

const (
	// StateIdle means no day has been started yet
	StateIdle State = iota
	// StateDayActive means a current race is set and awaiting an outcome
	StateDayActive
	// StateDayDone means the session is terminal until the next StartDay
	StateDayDone
)

// String returns string representation of the session state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateDayActive:
		return "DAY_ACTIVE"
	case StateDayDone:
		return "DAY_DONE"
	default:
		return "UNKNOWN"
	}
}

// RaceNameResolver resolves a market identifier to a display name.
// Resolution is best-effort; failures fall back to the raw identifier.
type RaceNameResolver interface {
	ResolveRaceName(ctx context.Context, marketID string) (string, error)
}

// Recorder persists settled race outcomes. Recording is best-effort: a
// recorder failure is logged and never blocks or unwinds a settlement.
type Recorder interface {
	RecordOutcome(ctx context.Context, outcome models.RaceOutcome) error
}

// Settings holds the risk and sizing parameters for a session.
type Settings struct {
	MinFavouriteOdds float64
	MaxFavouriteOdds float64
	TargetProfit     float64
	MaxDailyLoss     float64
	StakePercent     float64
	SecondsBeforeOff int
}

// valid reports whether the settings can produce a bet at all. Malformed
// settings are treated as infeasible at the point of use, never as a panic
// or error, so the driving loop stays alive.
func (s Settings) valid() bool {
	if s.MinFavouriteOdds <= 1.0 || s.MaxFavouriteOdds < s.MinFavouriteOdds {
		return false
	}
	if s.TargetProfit <= 0 || s.MaxDailyLoss <= 0 {
		return false
	}
	return true
}

// Snapshot is a read-only view of the session for the driving layer.
type Snapshot struct {
	State            string              `json:"state"`
	StartingBank     float64             `json:"starting_bank"`
	CurrentBank      float64             `json:"current_bank"`
	TodaysProfitLoss float64             `json:"todays_profit_loss"`
	LossCarry        float64             `json:"loss_carry"`
	DayDone          bool                `json:"day_done"`
	CurrentMarketID  string              `json:"current_market_id"`
	CurrentRaceName  string              `json:"current_race_name"`
	RacesSelected    int                 `json:"races_selected"`
	CurrentIndex     int                 `json:"current_index"`
	LastStake        *models.StakeRecord `json:"last_stake,omitempty"`
	History          []models.RaceOutcome `json:"history"`
}

// Engine is the progression engine: a single mutable session aggregate,
// mutated only through its operations.
type Engine struct {
	settings Settings

	startingBank float64
	bank         float64
	todaysPL     float64
	lossCarry    float64
	dayDone      bool
	state        State

	selectedRaces []string
	currentIndex  int
	currentName   string

	lastStake *models.StakeRecord
	history   []models.RaceOutcome

	names    RaceNameResolver
	recorder Recorder
	logger   *logrus.Logger
	mu       sync.RWMutex
}

// New creates a progression engine. resolver and recorder may be nil.
func New(settings Settings, startingBank float64, resolver RaceNameResolver, recorder Recorder, logger *logrus.Logger) *Engine {
	e := &Engine{
		settings:     settings,
		startingBank: startingBank,
		bank:         startingBank,
		state:        StateIdle,
		names:        resolver,
		recorder:     recorder,
		logger:       logger,
	}
	e.publishMetrics()
	return e
}

// SelectRaces replaces the ordered race sequence for the next day.
// Insertion order is betting order.
func (e *Engine) SelectRaces(marketIDs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.selectedRaces = append([]string(nil), marketIDs...)
	e.currentIndex = 0

	e.logger.WithField("races", len(e.selectedRaces)).Info("Race selection updated")
}

// StartDay resets the day counters and points the engine at the first
// selected race. An empty selection goes straight to day-done.
func (e *Engine) StartDay(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.todaysPL = 0
	e.lossCarry = 0
	e.dayDone = false
	e.currentIndex = 0
	e.lastStake = nil
	e.state = StateDayActive

	if len(e.selectedRaces) == 0 {
		e.logger.Warn("Day started with no races selected")
		e.dayDone = true
		e.state = StateDayDone
		e.publishMetrics()
		return
	}

	e.currentName = e.resolveName(ctx, e.selectedRaces[0])

	e.logger.WithFields(logrus.Fields{
		"races":       len(e.selectedRaces),
		"first_race":  e.currentName,
		"bank":        e.bank,
		"target":      e.settings.TargetProfit,
		"max_loss":    e.settings.MaxDailyLoss,
	}).Info("Day started")
	e.publishMetrics()
}

// ResetBank sets a new starting bank and returns the session to idle.
func (e *Engine) ResetBank(startingBank float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.startingBank = startingBank
	e.bank = startingBank
	e.todaysPL = 0
	e.lossCarry = 0
	e.dayDone = false
	e.state = StateIdle
	e.lastStake = nil

	e.logger.WithField("bank", startingBank).Info("Bank reset")
	e.publishMetrics()
}

// CurrentRace returns the market id of the current race, if any.
func (e *Engine) CurrentRace() (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.dayDone || e.currentIndex >= len(e.selectedRaces) {
		return "", false
	}
	return e.selectedRaces[e.currentIndex], true
}

// HasMoreRaces reports whether at least one race follows the current one.
func (e *Engine) HasMoreRaces() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.dayDone && e.currentIndex+1 < len(e.selectedRaces)
}

// DayDone reports whether the session has reached its terminal state.
func (e *Engine) DayDone() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dayDone
}

// Settings returns the session settings.
func (e *Engine) Settings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// LastStake returns the most recently computed stake record.
func (e *Engine) LastStake() (models.StakeRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastStake == nil {
		return models.StakeRecord{}, false
	}
	return *e.lastStake, true
}

// ComputeStakeForCurrent converts the current race's two favourites into an
// equal-profit dutch sized to recover the loss carry on top of the base
// target. It fails closed: day done, no current race, out-of-range odds and
// malformed settings all produce a no-bet rather than an error.
func (e *Engine) ComputeStakeForCurrent(fav1, fav2 models.RunnerPrice) dutch.StakeResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dayDone || e.state != StateDayActive {
		return e.noBet(fav1, fav2, "day is done")
	}
	if e.currentIndex >= len(e.selectedRaces) {
		return e.noBet(fav1, fav2, "no current race")
	}
	if !e.settings.valid() {
		return e.noBet(fav1, fav2, "invalid odds bounds or targets in settings")
	}

	o1, o2 := fav1.BackPrice, fav2.BackPrice
	if !e.withinBounds(o1) || !e.withinBounds(o2) {
		return e.noBet(fav1, fav2, "favourite odds outside configured range")
	}

	desired := e.settings.TargetProfit + e.lossCarry
	if desired <= 0 {
		desired = e.settings.TargetProfit
	}

	available := e.bank
	if e.settings.StakePercent > 0 {
		if budget := e.bank * e.settings.StakePercent / 100; budget < available {
			available = budget
		}
	}

	result := dutch.Stakes(o1, o2, desired).CapTo(available)
	if !result.Feasible() {
		return e.noBet(fav1, fav2, result.Reason)
	}

	marketID := e.selectedRaces[e.currentIndex]
	e.lastStake = &models.StakeRecord{
		MarketID:   marketID,
		RaceName:   e.currentName,
		Favourite1: fav1,
		Favourite2: fav2,
		Stake1:     result.Stake1,
		Stake2:     result.Stake2,
		TotalStake: result.TotalStake,
		Profit:     result.Profit,
		ComputedAt: time.Now().UTC(),
	}

	metrics.StakesComputedTotal.Inc()
	e.logger.WithFields(logrus.Fields{
		"market_id":   marketID,
		"race":        e.currentName,
		"odds1":       o1,
		"odds2":       o2,
		"stake1":      result.Stake1,
		"stake2":      result.Stake2,
		"total_stake": result.TotalStake,
		"profit":      result.Profit,
		"loss_carry":  e.lossCarry,
	}).Info("Dutch stakes computed")

	return result
}

// OnRaceWon settles the current race as won. A win always ends the day: the
// recovery model assumes one win clears the carry and the operator stops
// rather than compounding exposure. No-op once the day is done.
// winnerSelectionID is recorded in the outcome history; zero means unknown.
func (e *Engine) OnRaceWon(ctx context.Context, profit float64, winnerSelectionID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dayDone {
		e.logger.Debug("Win signal ignored: day already done")
		return
	}

	e.bank += profit
	e.todaysPL += profit
	e.lossCarry = 0
	e.appendOutcome(ctx, profit, true, winnerSelectionID)
	e.dayDone = true
	e.state = StateDayDone
	e.lastStake = nil

	metrics.RacesWonTotal.Inc()
	e.logger.WithFields(logrus.Fields{
		"profit":    profit,
		"bank":      e.bank,
		"todays_pl": e.todaysPL,
	}).Info("Race won, stopping for the day")
	e.publishMetrics()
}

// OnRaceLost settles the current race as lost, grows the loss carry and
// either halts at the daily loss limit or advances to the next race.
// No-op once the day is done.
// winnerSelectionID is recorded in the outcome history; zero means unknown.
func (e *Engine) OnRaceLost(ctx context.Context, loss float64, winnerSelectionID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dayDone {
		e.logger.Debug("Loss signal ignored: day already done")
		return
	}

	if loss > 0 {
		loss = -loss
	}

	e.bank += loss
	e.todaysPL += loss
	e.lossCarry += math.Abs(loss)
	e.appendOutcome(ctx, loss, false, winnerSelectionID)
	e.lastStake = nil

	metrics.RacesLostTotal.Inc()
	log := e.logger.WithFields(logrus.Fields{
		"loss":       loss,
		"bank":       e.bank,
		"loss_carry": e.lossCarry,
		"max_loss":   e.settings.MaxDailyLoss,
	})

	// Canonical stop condition: the carry is exactly what the next win must
	// recover, so it is compared against the daily budget directly.
	if e.lossCarry >= e.settings.MaxDailyLoss {
		e.dayDone = true
		e.state = StateDayDone
		log.Warn("Daily loss limit reached, stopping for the day")
		e.publishMetrics()
		return
	}

	log.Info("Race lost, advancing")
	e.advanceLocked(ctx)
	e.publishMetrics()
}

// SkipCurrent advances past the current race without touching the bank.
// Used for data-unavailable and infeasible races.
func (e *Engine) SkipCurrent(ctx context.Context, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dayDone || e.currentIndex >= len(e.selectedRaces) {
		return
	}

	metrics.RacesSkippedTotal.WithLabelValues("engine").Inc()
	e.logger.WithFields(logrus.Fields{
		"market_id": e.selectedRaces[e.currentIndex],
		"race":      e.currentName,
		"reason":    reason,
	}).Warn("Race skipped")

	e.lastStake = nil
	e.advanceLocked(ctx)
	e.publishMetrics()
}

// Snapshot returns a copy of the session state for display.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := Snapshot{
		State:            e.state.String(),
		StartingBank:     e.startingBank,
		CurrentBank:      e.bank,
		TodaysProfitLoss: e.todaysPL,
		LossCarry:        e.lossCarry,
		DayDone:          e.dayDone,
		RacesSelected:    len(e.selectedRaces),
		CurrentIndex:     e.currentIndex,
		History:          append([]models.RaceOutcome(nil), e.history...),
	}
	if !e.dayDone && e.currentIndex < len(e.selectedRaces) {
		snap.CurrentMarketID = e.selectedRaces[e.currentIndex]
		snap.CurrentRaceName = e.currentName
	}
	if e.lastStake != nil {
		record := *e.lastStake
		snap.LastStake = &record
	}
	return snap
}

// advanceLocked moves to the next race or ends the day when none remain.
// Callers must hold the write lock.
func (e *Engine) advanceLocked(ctx context.Context) {
	e.currentIndex++
	if e.currentIndex >= len(e.selectedRaces) {
		e.dayDone = true
		e.state = StateDayDone
		e.currentName = ""
		e.logger.Info("Race sequence exhausted, day done")
		return
	}
	e.currentName = e.resolveName(ctx, e.selectedRaces[e.currentIndex])
	e.logger.WithFields(logrus.Fields{
		"market_id": e.selectedRaces[e.currentIndex],
		"race":      e.currentName,
		"index":     e.currentIndex,
	}).Info("Advanced to next race")
}

// appendOutcome writes the history entry for a settlement. Entries are
// append-only. Callers must hold the write lock.
func (e *Engine) appendOutcome(ctx context.Context, profitLoss float64, won bool, winnerSelectionID uint64) {
	outcome := models.RaceOutcome{
		ID:         uuid.New(),
		ProfitLoss: models.Money(profitLoss),
		BankAfter:  models.Money(e.bank),
		Won:        won,
		SettledAt:  time.Now().UTC(),
	}
	if winnerSelectionID != 0 {
		outcome.WinnerSelectionID = &winnerSelectionID
	}
	if e.currentIndex < len(e.selectedRaces) {
		outcome.MarketID = e.selectedRaces[e.currentIndex]
		outcome.RaceName = e.currentName
	}
	if e.lastStake != nil {
		outcome.Favourites = e.lastStake.Favourite1.Name + " / " + e.lastStake.Favourite2.Name
		outcome.Stake1 = models.Money(e.lastStake.Stake1)
		outcome.Stake2 = models.Money(e.lastStake.Stake2)
		outcome.TotalStake = models.Money(e.lastStake.TotalStake)
	}

	e.history = append(e.history, outcome)

	if e.recorder != nil {
		if err := e.recorder.RecordOutcome(ctx, outcome); err != nil {
			e.logger.WithError(err).WithField("market_id", outcome.MarketID).
				Error("Failed to persist race outcome")
		}
	}
}

// noBet logs an infeasibility with enough context to diagnose it without
// mistaking it for a financial loss. Callers must hold the lock.
func (e *Engine) noBet(fav1, fav2 models.RunnerPrice, reason string) dutch.StakeResult {
	metrics.InfeasibleStakesTotal.Inc()

	marketID := ""
	if e.currentIndex < len(e.selectedRaces) {
		marketID = e.selectedRaces[e.currentIndex]
	}
	e.logger.WithFields(logrus.Fields{
		"market_id": marketID,
		"odds1":     fav1.BackPrice,
		"odds2":     fav2.BackPrice,
		"min_odds":  e.settings.MinFavouriteOdds,
		"max_odds":  e.settings.MaxFavouriteOdds,
		"reason":    reason,
	}).Info("No bet for current race")

	return dutch.NoBet("%s", reason)
}

func (e *Engine) withinBounds(odds float64) bool {
	return odds >= e.settings.MinFavouriteOdds && odds <= e.settings.MaxFavouriteOdds
}

func (e *Engine) resolveName(ctx context.Context, marketID string) string {
	if e.names == nil {
		return marketID
	}
	name, err := e.names.ResolveRaceName(ctx, marketID)
	if err != nil || name == "" {
		if err != nil {
			e.logger.WithError(err).WithField("market_id", marketID).
				Warn("Race name resolution failed, using market id")
		}
		return marketID
	}
	return name
}

// publishMetrics pushes the session gauges. Callers must hold the lock.
func (e *Engine) publishMetrics() {
	metrics.CurrentBank.Set(e.bank)
	metrics.DailyPnL.Set(e.todaysPL)
	metrics.LossCarry.Set(e.lossCarry)
	remaining := len(e.selectedRaces) - e.currentIndex
	if e.dayDone || remaining < 0 {
		remaining = 0
	}
	metrics.RacesRemaining.Set(float64(remaining))
	if e.dayDone {
		metrics.DayDone.Set(1)
	} else {
		metrics.DayDone.Set(0)
	}
}
