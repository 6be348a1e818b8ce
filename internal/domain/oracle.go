package domain

import "context"

// Ruling is the structured output of a dispute ruling.
type Ruling struct {
	Ruling     Side    `json:"ruling"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	// Fallback is set when the oracle call failed or returned garbage and
	// the ruling was derived from the majority of cast ballots instead.
	Fallback bool `json:"fallback,omitempty"`
}

// MarketIdea is a generated market proposal.
type MarketIdea struct {
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Category       string  `json:"category"`
	InitialOddsYes float64 `json:"initial_odds_yes"`
}

// BetDecision is the oracle's answer to "should you bet on this market".
type BetDecision struct {
	ShouldBet  bool    `json:"should_bet"`
	Side       Side    `json:"side"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Amount     float64 `json:"amount"`
}

// Oracle is the AI collaborator. Only DisputeRuling is authoritative; the
// commentary and generation calls are cosmetic and their failures are
// swallowed by callers. Implementations must bound every call with their own
// timeout so no caller blocks on a slow model.
type Oracle interface {
	DisputeRuling(ctx context.Context, title, description string, yesVotes, noVotes int) (Ruling, error)
	TradeCommentary(ctx context.Context, title, trader string, side Side, amount, newOddsYes float64) (string, error)
	ResolutionCommentary(ctx context.Context, title string, result Side, tally Tally, winners, losers int) (string, error)
	GenerateMarkets(ctx context.Context, roomName string, members, recentTitles []string) ([]MarketIdea, error)
	BetDecision(ctx context.Context, title, description string, oddsYes float64) (BetDecision, error)
}
