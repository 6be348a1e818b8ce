package domain

import (
	"time"

	"github.com/google/uuid"
)

// Trade is an immutable record of a single buy against the market maker.
// AccountID is nil for the prophet's own bets, which have no room account.
type Trade struct {
	ID             uuid.UUID  `json:"id"`
	MarketID       uuid.UUID  `json:"market_id"`
	AccountID      *uuid.UUID `json:"account_id,omitempty"`
	ProphetTrade   bool       `json:"is_prophet_trade"`
	Side           Side       `json:"side"`
	Amount         float64    `json:"amount"`
	SharesReceived float64    `json:"shares_received"`
	// OddsAtTrade is the market's yes-price snapshotted before this trade
	// mutated the pool. Reputation scoring depends on it.
	OddsAtTrade float64   `json:"odds_at_trade"`
	CreatedAt   time.Time `json:"created_at"`
}

// TradeReceipt is what the trading coordinator hands back to the caller.
type TradeReceipt struct {
	TradeID        uuid.UUID `json:"trade_id"`
	SharesReceived float64   `json:"shares_received"`
	OddsYes        float64   `json:"new_odds_yes"`
	OddsNo         float64   `json:"new_odds_no"`
	Balance        float64   `json:"new_balance"`
}
