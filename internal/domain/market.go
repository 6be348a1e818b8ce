package domain

import (
	"time"

	"github.com/google/uuid"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusPending   MarketStatus = "pending"
	MarketStatusActive    MarketStatus = "active"
	MarketStatusVoting    MarketStatus = "voting"
	MarketStatusDisputed  MarketStatus = "disputed"
	MarketStatusResolved  MarketStatus = "resolved"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// MarketKind distinguishes standalone markets from chained and derivative ones.
type MarketKind string

const (
	MarketKindStandard   MarketKind = "standard"
	MarketKindChained    MarketKind = "chained"
	MarketKindDerivative MarketKind = "derivative"
)

// Side is a binary market outcome.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether s is one of the two recognized sides.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// ResolutionMethod records how a market's outcome was decided.
type ResolutionMethod string

const (
	ResolutionCommunity ResolutionMethod = "community"
	ResolutionProphet   ResolutionMethod = "prophet"
	ResolutionAdmin     ResolutionMethod = "admin"
	ResolutionAutomatic ResolutionMethod = "automatic"
)

// ValidResolutionMethod reports whether m names a known resolution method.
func ValidResolutionMethod(m ResolutionMethod) bool {
	switch m {
	case ResolutionCommunity, ResolutionProphet, ResolutionAdmin, ResolutionAutomatic:
		return true
	}
	return false
}

// TriggerCondition links a chained child market to its parent's outcome.
type TriggerCondition string

const (
	TriggerParentYes TriggerCondition = "parent_resolves_yes"
	TriggerParentNo  TriggerCondition = "parent_resolves_no"
)

// TriggerFor returns the trigger condition matching a parent resolution.
func TriggerFor(result Side) TriggerCondition {
	if result == SideYes {
		return TriggerParentYes
	}
	return TriggerParentNo
}

// MaxChainDepth caps chains at root -> child; no deeper nesting.
const MaxChainDepth = 2

// ThresholdType names the measurable behavior a derivative market bets on.
type ThresholdType string

const (
	ThresholdOdds   ThresholdType = "odds_threshold"
	ThresholdVolume ThresholdType = "volume_threshold"
	ThresholdMethod ThresholdType = "resolution_method"
)

// Threshold is the typed condition attached to a derivative market.
// Value carries the odds level or trade count for the odds/volume types;
// Method carries the expected resolution method for the method type.
type Threshold struct {
	Type     ThresholdType    `json:"type"`
	Value    float64          `json:"value,omitempty"`
	Method   ResolutionMethod `json:"method,omitempty"`
	Deadline *time.Time       `json:"deadline,omitempty"`
}

// Market is a binary yes/no prediction market priced by the LMSR market
// maker. Chained markets carry ParentID+Trigger, derivatives carry
// ReferenceID+Threshold; both are nil for standard markets.
type Market struct {
	ID          uuid.UUID  `json:"id"`
	RoomID      uuid.UUID  `json:"room_id"`
	CreatorID   *uuid.UUID `json:"creator_id,omitempty"` // nil for prophet-generated markets
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Kind        MarketKind `json:"kind"`

	ParentID   *uuid.UUID       `json:"parent_id,omitempty"`
	Trigger    TriggerCondition `json:"trigger_condition,omitempty"`
	ChainDepth int              `json:"chain_depth"`

	ReferenceID *uuid.UUID `json:"reference_id,omitempty"`
	Threshold   *Threshold `json:"threshold,omitempty"`

	// LMSR state. OddsYes is kept denormalized so listings and derivative
	// checks never have to recompute prices.
	LiquidityB float64 `json:"lmsr_b"`
	YesShares  float64 `json:"yes_shares"`
	NoShares   float64 `json:"no_shares"`
	OddsYes    float64 `json:"odds_yes"`
	TotalPool  float64 `json:"total_pool"`

	Status           MarketStatus     `json:"status"`
	ResolutionResult *Side            `json:"resolution_result,omitempty"`
	ResolutionMethod ResolutionMethod `json:"resolution_method,omitempty"`

	ExpiresAt      time.Time  `json:"expires_at"`
	VotingDeadline *time.Time `json:"voting_deadline,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// OddsNo is the complement of OddsYes.
func (m Market) OddsNo() float64 {
	return 1.0 - m.OddsYes
}

// IsResolved reports whether the market has reached its terminal state.
func (m Market) IsResolved() bool {
	return m.Status == MarketStatusResolved
}
