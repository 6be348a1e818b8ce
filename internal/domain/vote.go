package domain

import (
	"time"

	"github.com/google/uuid"
)

// Vote is a single resolution ballot. At most one durable vote exists per
// (market, account) pair; whether a resubmission overwrites or is rejected
// is a configuration choice (VotePolicy).
type Vote struct {
	ID        uuid.UUID `json:"id"`
	MarketID  uuid.UUID `json:"market_id"`
	AccountID uuid.UUID `json:"account_id"`
	Choice    Side      `json:"choice"`
	CreatedAt time.Time `json:"created_at"`
}

// VotePolicy controls how a second vote from the same account is handled.
type VotePolicy string

const (
	VotePolicyReject    VotePolicy = "reject"
	VotePolicyOverwrite VotePolicy = "overwrite"
)

// Tally is the grouped vote count for a market.
type Tally struct {
	Yes   int `json:"yes_votes"`
	No    int `json:"no_votes"`
	Total int `json:"total_votes"`
}
