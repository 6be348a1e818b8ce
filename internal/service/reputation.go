package service

import "github.com/alanyoungcy/prophecy/internal/domain"

// Reputation scoring: an Elo-like running score seeded at 1000. Each settled
// trade moves the holder by k * (outcome - expectedProbability), where the
// expected probability is the pre-trade price of the side they bought. A
// correct bet against long odds gains close to k; a confident-but-wrong bet
// loses close to k.
const (
	// ReputationBaseline is the score new accounts start with.
	ReputationBaseline = 1000.0

	// reputationScale is the k factor applied per trade.
	reputationScale = 50.0
)

// reputationDelta returns the score change for one settled trade.
func reputationDelta(won bool, oddsAtTrade float64, side domain.Side) float64 {
	expected := oddsAtTrade
	if side == domain.SideNo {
		expected = 1.0 - oddsAtTrade
	}

	outcome := 0.0
	if won {
		outcome = 1.0
	}

	return reputationScale * (outcome - expected)
}

// rankBands maps score floors to rank names, highest first.
var rankBands = []struct {
	min  float64
	name string
}{
	{1500, "Diamond"},
	{1300, "Platinum"},
	{1150, "Gold"},
	{950, "Silver"},
}

// rankForScore derives the rank band for a reputation score. Anything below
// the lowest band floor is Bronze.
func rankForScore(score float64) string {
	for _, b := range rankBands {
		if score >= b.min {
			return b.name
		}
	}
	return "Bronze"
}

// applyStreak updates win-streak counters after a settled trade.
func applyStreak(a *domain.Account, won bool) {
	if !won {
		a.WinStreakCurrent = 0
		return
	}
	a.WinStreakCurrent++
	if a.WinStreakCurrent > a.WinStreakBest {
		a.WinStreakBest = a.WinStreakCurrent
	}
}
