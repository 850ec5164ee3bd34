package models

import "errors"

// Custom errors
var (
	// ErrDataUnavailable marks a collaborator call that failed or returned
	// insufficient data (e.g. fewer than two priced runners). Always
	// recovered locally by skipping the race.
	ErrDataUnavailable = errors.New("market data unavailable")
	ErrNoCurrentRace   = errors.New("no current race")
	ErrMarketNotFound  = errors.New("market not found")
	ErrNotFound        = errors.New("record not found")
)
