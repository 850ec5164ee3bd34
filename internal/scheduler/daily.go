package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/dutch-better/internal/engine"
	"github.com/yourusername/dutch-better/internal/exchange"
)

// DayPlanner schedules the daily race selection and kicks off the runner.
// One cron job per day discovers the card, seeds the engine and runs the
// sequence to completion.
type DayPlanner struct {
	cron      *cron.Cron
	engine    *engine.Engine
	client    exchange.Client
	runner    *Runner
	stream    *exchange.PriceStream
	logger    *logrus.Logger
	mu        sync.RWMutex
	isRunning bool
	jobID     cron.EntryID
	dayBudget time.Duration
}

// NewDayPlanner creates a day planner. Cron runs in UTC like race times.
// stream may be nil; when set, the day's markets are subscribed on it.
func NewDayPlanner(
	eng *engine.Engine,
	client exchange.Client,
	runner *Runner,
	stream *exchange.PriceStream,
	logger *logrus.Logger,
) *DayPlanner {
	return &DayPlanner{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		engine:    eng,
		client:    client,
		runner:    runner,
		stream:    stream,
		logger:    logger,
		dayBudget: 16 * time.Hour,
	}
}

// Schedule registers the daily job with the given cron expression
func (p *DayPlanner) Schedule(cronExpression string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("cannot schedule job while planner is running")
	}

	jobFunc := func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.dayBudget)
		defer cancel()

		if err := p.RunDay(ctx); err != nil {
			p.logger.WithError(err).Error("Daily run failed")
		}
	}

	entryID, err := p.cron.AddFunc(cronExpression, jobFunc)
	if err != nil {
		return fmt.Errorf("failed to add daily job: %w", err)
	}

	p.jobID = entryID
	p.logger.WithField("cron", cronExpression).Info("Daily job scheduled")

	return nil
}

// RunDay discovers today's card, seeds the engine and runs the sequence.
// Callable directly for run-now starts as well as from the cron job.
func (p *DayPlanner) RunDay(ctx context.Context) error {
	races, err := p.client.TodaysRaces(ctx)
	if err != nil {
		return fmt.Errorf("race discovery failed: %w", err)
	}

	// Only races that have not gone off yet are selectable
	now := time.Now().UTC()
	var marketIDs []string
	for _, race := range races {
		if race.StartTime.After(now) {
			marketIDs = append(marketIDs, race.MarketID)
		}
	}

	p.logger.WithFields(logrus.Fields{
		"discovered": len(races),
		"selected":   len(marketIDs),
	}).Info("Race card selected")

	if p.stream != nil && p.stream.IsConnected() && len(marketIDs) > 0 {
		if err := p.stream.SubscribeToMarkets(ctx, marketIDs); err != nil {
			p.logger.WithError(err).Warn("Stream subscription failed, falling back to polled prices")
		}
	}

	p.engine.SelectRaces(marketIDs)
	p.engine.StartDay(ctx)

	return p.runner.Run(ctx)
}

// Start starts the cron scheduler
func (p *DayPlanner) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("planner is already running")
	}

	p.cron.Start()
	p.isRunning = true
	p.logger.Info("Day planner started")

	return nil
}

// Stop gracefully stops the cron scheduler
func (p *DayPlanner) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isRunning {
		return nil
	}

	<-p.cron.Stop().Done()
	p.isRunning = false
	p.logger.Info("Day planner stopped")

	return nil
}

// IsRunning returns whether the planner is currently running
func (p *DayPlanner) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isRunning
}

// NextRun returns the time of the next scheduled daily run
func (p *DayPlanner) NextRun() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.isRunning {
		return time.Time{}
	}

	entry := p.cron.Entry(p.jobID)
	if !entry.Valid() {
		return time.Time{}
	}
	return entry.Next
}
