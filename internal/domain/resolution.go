package domain

import "github.com/google/uuid"

// ResolutionSummary is the report returned after a market resolves.
type ResolutionSummary struct {
	MarketID          uuid.UUID        `json:"market_id"`
	Result            Side             `json:"result"`
	Method            ResolutionMethod `json:"method"`
	TotalPayout       float64          `json:"total_payout"`
	Winners           int              `json:"winners_count"`
	Losers            int              `json:"losers_count"`
	TradesProcessed   int              `json:"total_trades"`
	ChildrenActivated []uuid.UUID      `json:"activated_markets"`
	Tally             *Tally           `json:"vote_summary,omitempty"`
	OracleFallback    bool             `json:"oracle_fallback,omitempty"`
}
