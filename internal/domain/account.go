package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is an account's standing inside a room.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleParticipant Role = "participant"
	RoleSpectator   Role = "spectator"
)

// CanTrade reports whether the role is allowed to place trades.
func (r Role) CanTrade() bool {
	return r == RoleAdmin || r == RoleParticipant
}

// CanVote reports whether the role is allowed to cast resolution votes.
func (r Role) CanVote() bool {
	return r == RoleAdmin || r == RoleParticipant
}

// Room is a private prediction-market space for one group.
type Room struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	JoinCode        string    `json:"join_code"`
	CreatorID       uuid.UUID `json:"creator_id"`
	StartingBalance float64   `json:"starting_balance"`
	MinBet          float64   `json:"min_bet"`
	MaxBet          float64   `json:"max_bet"`
	CreatedAt       time.Time `json:"created_at"`
}

// Account is a participant's room-scoped ledger entry: balance, counters,
// and the Elo-like reputation score with its derived rank band.
type Account struct {
	ID          uuid.UUID `json:"id"`
	RoomID      uuid.UUID `json:"room_id"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`

	Balance        float64 `json:"balance"`
	LifetimeEarned float64 `json:"lifetime_earned"`

	TradesPlaced int `json:"trades_placed"`
	TradesWon    int `json:"trades_won"`
	VotesCast    int `json:"votes_cast"`

	ReputationScore  float64 `json:"reputation_score"`
	ReputationRank   string  `json:"reputation_rank"`
	WinStreakCurrent int     `json:"win_streak_current"`
	WinStreakBest    int     `json:"win_streak_best"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WinRate is the fraction of placed trades that won, as a percentage.
func (a Account) WinRate() float64 {
	if a.TradesPlaced == 0 {
		return 0
	}
	return float64(a.TradesWon) / float64(a.TradesPlaced) * 100
}
