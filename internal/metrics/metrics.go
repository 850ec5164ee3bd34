// Package metrics provides the centralized Prometheus registry for the
// dutching bot.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	StakesComputedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dutch_better",
		Name:      "stakes_computed_total",
		Help:      "Total number of feasible dutch stakes computed",
	})
	InfeasibleStakesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dutch_better",
		Name:      "infeasible_stakes_total",
		Help:      "Total number of stake computations that produced a no-bet",
	})
	RacesWonTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dutch_better",
		Name:      "races_won_total",
		Help:      "Total number of races settled as won",
	})
	RacesLostTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dutch_better",
		Name:      "races_lost_total",
		Help:      "Total number of races settled as lost",
	})
	RacesSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dutch_better",
		Name:      "races_skipped_total",
		Help:      "Total number of races skipped without staking, by the component that skipped",
	}, []string{"component"})
	SettlementPollsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dutch_better",
		Name:      "settlement_polls_total",
		Help:      "Total number of settlement status polls",
	})
	ExchangeErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dutch_better",
		Name:      "exchange_errors_total",
		Help:      "Total number of exchange collaborator call failures",
	}, []string{"operation"})
)

// Gauge metrics
var (
	CurrentBank = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dutch_better",
		Name:      "current_bank",
		Help:      "Current session bank in currency units",
	})
	DailyPnL = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dutch_better",
		Name:      "daily_pnl",
		Help:      "Profit and loss since the day was started",
	})
	LossCarry = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dutch_better",
		Name:      "loss_carry",
		Help:      "Accumulated deficit the next win must recover",
	})
	RacesRemaining = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dutch_better",
		Name:      "races_remaining",
		Help:      "Races left in the selected sequence",
	})
	DayDone = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dutch_better",
		Name:      "day_done",
		Help:      "1 when the session has reached its terminal day-done state",
	})
)

// Histogram metrics
var (
	SettlementWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dutch_better",
		Name:      "settlement_wait_seconds",
		Help:      "Time from race off to a resolved settlement",
		Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
	})
)

// Registry returns the global metrics registry, initializing it on first use.
func Registry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			StakesComputedTotal,
			InfeasibleStakesTotal,
			RacesWonTotal,
			RacesLostTotal,
			RacesSkippedTotal,
			SettlementPollsTotal,
			ExchangeErrorsTotal,
			CurrentBank,
			DailyPnL,
			LossCarry,
			RacesRemaining,
			DayDone,
			SettlementWaitSeconds,
		)
	})
	return registry
}

// Handler returns an HTTP handler serving the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}
