// Package dutch computes equal-profit stakes across the two market favourites.
package dutch

import (
	"fmt"
	"math"
)

// StakeResult is the outcome of a dutch calculation. A result is either
// feasible with concrete stakes, or a no-bet with a reason; stakes are never
// silently clamped to a default.
type StakeResult struct {
	Stake1     float64 `json:"stake1"`
	Stake2     float64 `json:"stake2"`
	TotalStake float64 `json:"total_stake"`
	Profit     float64 `json:"profit"`
	Reason     string  `json:"reason,omitempty"`
}

// Feasible reports whether the result carries placeable stakes.
func (r StakeResult) Feasible() bool {
	return r.Reason == "" && r.TotalStake > 0
}

// NoBet returns an infeasible result with the given reason.
func NoBet(format string, args ...interface{}) StakeResult {
	return StakeResult{Reason: fmt.Sprintf(format, args...)}
}

// Stakes solves the equal-profit two-way dutch for decimal odds o1, o2 and
// desired profit P:
//
//	stake1*(o1-1) - stake2 = P
//	stake2*(o2-1) - stake1 = P
//
// With det = (o1-1)(o2-1) - 1 the solution is stake1 = P*o2/det,
// stake2 = P*o1/det. det <= 0 means the combined implied probabilities
// leave no room for profit.
func Stakes(o1, o2, profit float64) StakeResult {
	if o1 <= 1.0 || o2 <= 1.0 {
		return NoBet("invalid price (o1=%.2f o2=%.2f): odds must exceed 1.0", o1, o2)
	}
	if profit <= 0 || math.IsNaN(profit) || math.IsInf(profit, 0) {
		return NoBet("non-positive target profit %.2f", profit)
	}

	det := (o1-1)*(o2-1) - 1
	if det <= 0 {
		return NoBet("market overround leaves no equal profit (1/o1+1/o2=%.4f)", 1/o1+1/o2)
	}

	s1 := profit * o2 / det
	s2 := profit * o1 / det
	if s1 <= 0 || s2 <= 0 {
		return NoBet("degenerate stakes (s1=%.4f s2=%.4f)", s1, s2)
	}

	return StakeResult{
		Stake1:     s1,
		Stake2:     s2,
		TotalStake: s1 + s2,
		Profit:     profit,
	}
}

// CapTo scales the stakes down proportionally so the total never exceeds the
// available funds. The achieved profit shrinks by the same ratio and is
// reported as the actual profit. Infeasible results pass through unchanged.
func (r StakeResult) CapTo(available float64) StakeResult {
	if !r.Feasible() {
		return r
	}
	if available <= 0 {
		return NoBet("no funds available (%.2f)", available)
	}
	if r.TotalStake <= available {
		return r
	}
	ratio := available / r.TotalStake
	return StakeResult{
		Stake1:     r.Stake1 * ratio,
		Stake2:     r.Stake2 * ratio,
		TotalStake: available,
		Profit:     r.Profit * ratio,
	}
}
