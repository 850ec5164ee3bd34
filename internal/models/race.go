package models

import (
	"time"
)

// RaceInfo identifies a selectable WIN market for the day's card.
type RaceInfo struct {
	MarketID  string    `json:"market_id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
}

// RunnerPrice is the best available back/lay price for one runner.
type RunnerPrice struct {
	SelectionID uint64  `json:"selection_id"`
	Name        string  `json:"name"`
	BackPrice   float64 `json:"back_price"`
	LayPrice    float64 `json:"lay_price"`
}

// ImpliedProbability returns 1/backPrice, or 0 for unpriced runners.
func (r RunnerPrice) ImpliedProbability() float64 {
	if r.BackPrice <= 0 {
		return 0
	}
	return 1.0 / r.BackPrice
}

// RaceSnapshot is a point-in-time view of a race's two market favourites.
// It is fetched per cycle from the exchange and never persisted.
type RaceSnapshot struct {
	MarketID   string        `json:"market_id"`
	Name       string        `json:"name"`
	StartTime  time.Time     `json:"start_time"`
	Favourites []RunnerPrice `json:"favourites"`
}

// HasTwoFavourites reports whether the snapshot carries two priced runners,
// sorted ascending by back price.
func (s RaceSnapshot) HasTwoFavourites() bool {
	if len(s.Favourites) < 2 {
		return false
	}
	return s.Favourites[0].BackPrice > 0 && s.Favourites[1].BackPrice > 0
}

// Settlement is the outcome of a settled market.
type Settlement struct {
	MarketID          string  `json:"market_id"`
	Closed            bool    `json:"closed"`
	WinnerSelectionID *uint64 `json:"winner_selection_id"`
}

// WinnerKnown reports whether the market is closed with a resolved winner.
func (s Settlement) WinnerKnown() bool {
	return s.Closed && s.WinnerSelectionID != nil
}
