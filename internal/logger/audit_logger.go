// Package logger provides audit logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditLogger provides a dedicated audit trail for money-moving events.
// Every staked bet, settlement and halt passes through here regardless of
// the base log level.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogDutchPlacement logs the two legs of a dutch placement.
func (al *AuditLogger) LogDutchPlacement(marketID, raceName string, selection1, selection2 uint64, stake1, stake2, odds1, odds2, targetProfit float64, timestamp time.Time, paperTrading bool) {
	al.WithFields(logrus.Fields{
		"market_id":     marketID,
		"race":          raceName,
		"selection1":    selection1,
		"selection2":    selection2,
		"stake1":        stake1,
		"stake2":        stake2,
		"total_stake":   stake1 + stake2,
		"odds1":         odds1,
		"odds2":         odds2,
		"target_profit": targetProfit,
		"timestamp":     timestamp.Unix(),
		"paper_trading": paperTrading,
	}).Info("Dutch placement recorded")
}

// LogRaceSettlement logs a settled race and the bank movement it caused.
func (al *AuditLogger) LogRaceSettlement(marketID, raceName string, won bool, profitLoss, bankAfter float64, winnerSelectionID uint64) {
	al.WithFields(logrus.Fields{
		"market_id":        marketID,
		"race":             raceName,
		"won":              won,
		"profit_loss":      profitLoss,
		"bank_after":       bankAfter,
		"winner_selection": winnerSelectionID,
	}).Info("Race settlement recorded")
}

// LogRaceSkipped logs a race passed over without staking.
func (al *AuditLogger) LogRaceSkipped(marketID, raceName, reason string) {
	al.WithFields(logrus.Fields{
		"market_id": marketID,
		"race":      raceName,
		"reason":    reason,
	}).Info("Race skipped")
}

// LogDailyHalt logs the loss-limit halt with the session state at the time.
func (al *AuditLogger) LogDailyHalt(reason string, lossCarry, maxDailyLoss, bank float64) {
	al.WithFields(logrus.Fields{
		"reason":         reason,
		"loss_carry":     lossCarry,
		"max_daily_loss": maxDailyLoss,
		"bank":           bank,
	}).Warn("Daily halt recorded")
}

// LogSettingsChange logs a risk parameter change.
func (al *AuditLogger) LogSettingsChange(parameterName string, oldValue, newValue interface{}, changedBy string) {
	al.WithFields(logrus.Fields{
		"parameter_name": parameterName,
		"old_value":      oldValue,
		"new_value":      newValue,
		"changed_by":     changedBy,
	}).Info("Settings changed")
}
