// Package scheduler drives the engine through the day's race sequence:
// waiting for each off, fetching favourites, staking and settling.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/dutch-better/internal/dutch"
	"github.com/yourusername/dutch-better/internal/engine"
	"github.com/yourusername/dutch-better/internal/exchange"
	"github.com/yourusername/dutch-better/internal/logger"
	"github.com/yourusername/dutch-better/internal/metrics"
	"github.com/yourusername/dutch-better/internal/models"
)

// Interruptible waits sleep in chunks so cancellation stays responsive
const maxWaitChunk = 60 * time.Second

// Config holds the runner timing parameters
type Config struct {
	SecondsBeforeOff  int
	TickInterval      time.Duration
	SettlementTimeout time.Duration
	LiveBetting       bool
}

// Runner executes one day's race sequence against the engine and exchange
type Runner struct {
	engine *engine.Engine
	client exchange.Client
	orders exchange.OrderPlacer
	stream *exchange.PriceStream
	cfg    Config
	logger *logrus.Logger
	audit  *logger.AuditLogger
}

// NewRunner creates a race runner. orders and stream may be nil; without an
// order placer the runner operates in paper mode, without a stream it fetches
// prices over REST only.
func NewRunner(
	eng *engine.Engine,
	client exchange.Client,
	orders exchange.OrderPlacer,
	stream *exchange.PriceStream,
	cfg Config,
	log *logrus.Logger,
) *Runner {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	if cfg.SettlementTimeout <= 0 {
		cfg.SettlementTimeout = time.Hour
	}
	return &Runner{
		engine: eng,
		client: client,
		orders: orders,
		stream: stream,
		cfg:    cfg,
		logger: log,
		audit:  logger.NewAuditLogger(log),
	}
}

// Run works through the selected races until the engine declares the day
// done or the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	for {
		marketID, ok := r.engine.CurrentRace()
		if !ok {
			r.logger.Info("No current race, day complete")
			return nil
		}

		if err := r.runRace(ctx, marketID); err != nil {
			return err
		}
	}
}

// runRace handles one race end to end. All data failures skip the race;
// only context cancellation propagates as an error.
func (r *Runner) runRace(ctx context.Context, marketID string) error {
	log := r.logger.WithField("market_id", marketID)

	start, err := r.client.RaceStartTime(ctx, marketID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("Start time unavailable")
		r.skip(ctx, "start time unavailable")
		return nil
	}

	betAt := start.Add(-time.Duration(r.cfg.SecondsBeforeOff) * time.Second)
	if time.Now().After(start) {
		log.WithField("start", start).Warn("Race already off")
		r.skip(ctx, "race already off")
		return nil
	}

	log.WithFields(logrus.Fields{
		"start":  start,
		"bet_at": betAt,
	}).Info("Waiting for betting window")

	if err := waitUntil(ctx, betAt); err != nil {
		return err
	}

	favs, err := r.favourites(ctx, marketID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("Favourites unavailable")
		r.skip(ctx, "market data unavailable")
		return nil
	}

	result := r.engine.ComputeStakeForCurrent(favs[0], favs[1])
	if !result.Feasible() {
		r.engine.SkipCurrent(ctx, result.Reason)
		return nil
	}

	if err := r.checkFunds(ctx, result); err != nil {
		log.WithError(err).Warn("Account funds check failed")
		r.skip(ctx, "insufficient account funds")
		return nil
	}

	if err := r.placeBets(ctx, marketID, favs, result); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Error("Order placement failed")
		r.skip(ctx, "order placement failed")
		return nil
	}

	if err := waitUntil(ctx, start); err != nil {
		return err
	}

	return r.settle(ctx, marketID, start, result)
}

// favourites fetches the two favourites, preferring fresh stream data
func (r *Runner) favourites(ctx context.Context, marketID string) ([]models.RunnerPrice, error) {
	if r.stream != nil && r.stream.IsConnected() {
		if prices, ok := r.stream.LatestPrices(marketID); ok {
			return prices[:2], nil
		}
	}
	return r.client.TopTwoFavourites(ctx, marketID)
}

// checkFunds verifies the account can cover the computed stakes. A balance
// fetch failure is tolerated, the engine bank cap already bounds exposure.
func (r *Runner) checkFunds(ctx context.Context, result dutch.StakeResult) error {
	balance, err := r.client.AccountBalance(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("Balance unavailable, relying on engine bank cap")
		return nil
	}
	if balance < result.TotalStake {
		return fmt.Errorf("balance %.2f below total stake %.2f", balance, result.TotalStake)
	}
	return nil
}

// placeBets submits the dutch legs when live betting is enabled
func (r *Runner) placeBets(ctx context.Context, marketID string, favs []models.RunnerPrice, result dutch.StakeResult) error {
	paperTrading := !r.cfg.LiveBetting || r.orders == nil

	raceName := marketID
	if stake, ok := r.engine.LastStake(); ok && stake.RaceName != "" {
		raceName = stake.RaceName
	}
	r.audit.LogDutchPlacement(marketID, raceName,
		favs[0].SelectionID, favs[1].SelectionID,
		result.Stake1, result.Stake2,
		favs[0].BackPrice, favs[1].BackPrice,
		result.Profit, time.Now().UTC(), paperTrading)

	if paperTrading {
		r.logger.WithFields(logrus.Fields{
			"market_id": marketID,
			"stake1":    result.Stake1,
			"stake2":    result.Stake2,
		}).Info("Live betting disabled, stakes computed only")
		return nil
	}

	return r.orders.PlaceBackBets(ctx, marketID, []exchange.BackBet{
		{SelectionID: favs[0].SelectionID, Price: favs[0].BackPrice, Stake: result.Stake1},
		{SelectionID: favs[1].SelectionID, Price: favs[1].BackPrice, Stake: result.Stake2},
	})
}

// settle polls the market until it resolves or the settlement budget runs out
func (r *Runner) settle(ctx context.Context, marketID string, start time.Time, result dutch.StakeResult) error {
	log := r.logger.WithField("market_id", marketID)
	deadline := start.Add(r.cfg.SettlementTimeout)

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		settlement, err := r.client.SettlementStatus(ctx, marketID)
		metrics.SettlementPollsTotal.Inc()

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).Warn("Settlement poll failed")

		case settlement.WinnerKnown():
			metrics.SettlementWaitSeconds.Observe(time.Since(start).Seconds())
			r.recordOutcome(ctx, settlement, result)
			return nil

		case settlement.Closed:
			// Closed with no winner means the race was voided
			log.Warn("Market closed without a winner")
			r.skip(ctx, "market voided")
			return nil
		}

		if time.Now().After(deadline) {
			log.WithField("deadline", deadline).Warn("Settlement timed out")
			r.skip(ctx, "settlement timed out")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// recordOutcome maps the winning selection onto the staked favourites
func (r *Runner) recordOutcome(ctx context.Context, settlement models.Settlement, result dutch.StakeResult) {
	stake, ok := r.engine.LastStake()
	if !ok {
		r.logger.WithField("market_id", settlement.MarketID).
			Error("Settlement arrived with no staked record")
		r.skip(ctx, "no stake on settled race")
		return
	}

	winner := *settlement.WinnerSelectionID
	if stake.CoversSelection(winner) {
		r.engine.OnRaceWon(ctx, result.Profit, winner)
		snap := r.engine.Snapshot()
		r.audit.LogRaceSettlement(stake.MarketID, stake.RaceName, true, result.Profit, snap.CurrentBank, winner)
		return
	}
	r.engine.OnRaceLost(ctx, result.TotalStake, winner)
	snap := r.engine.Snapshot()
	r.audit.LogRaceSettlement(stake.MarketID, stake.RaceName, false, -result.TotalStake, snap.CurrentBank, winner)

	if settings := r.engine.Settings(); snap.DayDone && snap.LossCarry >= settings.MaxDailyLoss {
		r.audit.LogDailyHalt("daily loss limit reached", snap.LossCarry, settings.MaxDailyLoss, snap.CurrentBank)
	}
}

func (r *Runner) skip(ctx context.Context, reason string) {
	metrics.RacesSkippedTotal.WithLabelValues("runner").Inc()
	snap := r.engine.Snapshot()
	r.audit.LogRaceSkipped(snap.CurrentMarketID, snap.CurrentRaceName, reason)
	r.engine.SkipCurrent(ctx, reason)
}

// waitUntil sleeps until the given time in interruptible chunks
func waitUntil(ctx context.Context, until time.Time) error {
	for {
		remaining := time.Until(until)
		if remaining <= 0 {
			return nil
		}
		if remaining > maxWaitChunk {
			remaining = maxWaitChunk
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
