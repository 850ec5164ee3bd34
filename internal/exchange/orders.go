package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// PlaceInstruction represents a single bet placement instruction
type PlaceInstruction struct {
	OrderType   string      `json:"orderType"`
	SelectionID uint64      `json:"selectionId"`
	Side        string      `json:"side"`
	LimitOrder  *LimitOrder `json:"limitOrder,omitempty"`
}

// LimitOrder represents a limit order
type LimitOrder struct {
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	PersistenceType string  `json:"persistenceType,omitempty"`
}

// PlaceOrdersResponse represents bet placement response
type PlaceOrdersResponse struct {
	MarketID           string              `json:"marketId"`
	Status             string              `json:"status"`
	ErrorCode          string              `json:"errorCode,omitempty"`
	InstructionReports []InstructionReport `json:"instructionReports"`
}

// InstructionReport represents result of a single bet placement
type InstructionReport struct {
	Status              string     `json:"status"`
	ErrorCode           string     `json:"errorCode,omitempty"`
	OrderStatus         string     `json:"orderStatus"`
	BetID               string     `json:"betId"`
	PlacedDate          *time.Time `json:"placedDate"`
	AveragePriceMatched float64    `json:"averagePriceMatched"`
	SizeMatched         float64    `json:"sizeMatched"`
}

// PlaceBackBets places limit back orders for the given bets on one market.
// All instructions go in a single placeOrders call so the two dutch legs
// succeed or fail together.
func (c *BetfairClient) PlaceBackBets(ctx context.Context, marketID string, bets []BackBet) error {
	if len(bets) == 0 {
		return fmt.Errorf("at least one bet required")
	}

	instructions := make([]PlaceInstruction, 0, len(bets))
	for _, bet := range bets {
		if err := validateBackBet(bet); err != nil {
			return err
		}
		instructions = append(instructions, PlaceInstruction{
			OrderType:   "LIMIT",
			SelectionID: bet.SelectionID,
			Side:        "BACK",
			LimitOrder: &LimitOrder{
				Size:            bet.Stake,
				Price:           bet.Price,
				PersistenceType: "LAPSE",
			},
		})
	}

	params := map[string]interface{}{
		"marketId":     marketID,
		"instructions": instructions,
	}

	result, err := c.makeRequest(ctx, "placeOrders", params)
	if err != nil {
		return err
	}

	var resp PlaceOrdersResponse
	if err := json.Unmarshal(result, &resp); err != nil {
		return fmt.Errorf("failed to parse place orders response: %w", err)
	}

	if resp.Status != "SUCCESS" {
		return MapAPIError(resp.ErrorCode, fmt.Sprintf("bet placement failed: status=%s", resp.Status), c.logger)
	}

	for _, report := range resp.InstructionReports {
		if report.Status != "SUCCESS" {
			return MapAPIError(report.ErrorCode, fmt.Sprintf("instruction failed: %s", report.Status), c.logger)
		}
		c.logger.WithFields(logrus.Fields{
			"market_id": marketID,
			"bet_id":    report.BetID,
			"matched":   report.SizeMatched,
			"avg_price": report.AveragePriceMatched,
		}).Info("Back bet placed")
	}

	return nil
}

// validateBackBet validates bet parameters before submission
func validateBackBet(bet BackBet) error {
	if bet.Price < minValidPrice || bet.Price > maxValidPrice {
		return fmt.Errorf("invalid price: %.2f (must be between %.2f and %.0f)", bet.Price, minValidPrice, maxValidPrice)
	}
	if bet.Stake <= 0 {
		return fmt.Errorf("invalid stake: %.2f", bet.Stake)
	}
	return nil
}
