package models

import (
	"time"
)

// StakeRecord is the most recently computed dutch for the current race.
// It is kept so the outcome can be settled without recomputation.
type StakeRecord struct {
	MarketID   string      `json:"market_id"`
	RaceName   string      `json:"race_name"`
	Favourite1 RunnerPrice `json:"favourite1"`
	Favourite2 RunnerPrice `json:"favourite2"`
	Stake1     float64     `json:"stake1"`
	Stake2     float64     `json:"stake2"`
	TotalStake float64     `json:"total_stake"`
	Profit     float64     `json:"profit"`
	ComputedAt time.Time   `json:"computed_at"`
}

// CoversSelection reports whether the given selection is one of the two
// staked favourites.
func (r StakeRecord) CoversSelection(selectionID uint64) bool {
	return r.Favourite1.SelectionID == selectionID || r.Favourite2.SelectionID == selectionID
}
