package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore persists markets.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id uuid.UUID) (Market, error)
	Update(ctx context.Context, m Market) error
	ListByRoom(ctx context.Context, roomID uuid.UUID, opts ListOpts) ([]Market, error)
	ListByStatus(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	// ListChildren returns every market whose ParentID is the given id.
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]Market, error)
	// ListActiveDerivatives returns derivative markets still in active status.
	ListActiveDerivatives(ctx context.Context) ([]Market, error)
	// ListExpired returns active markets whose trading window has elapsed.
	ListExpired(ctx context.Context, now time.Time) ([]Market, error)
	// ListVotingExpired returns voting markets whose voting deadline has elapsed.
	ListVotingExpired(ctx context.Context, now time.Time) ([]Market, error)
}

// TradeStore persists the append-only trade log.
type TradeStore interface {
	Insert(ctx context.Context, t Trade) error
	ListByMarket(ctx context.Context, marketID uuid.UUID, opts ListOpts) ([]Trade, error)
	CountByMarket(ctx context.Context, marketID uuid.UUID) (int64, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, opts ListOpts) ([]Trade, error)
}

// VoteStore persists resolution ballots.
type VoteStore interface {
	// Insert stores a new vote; it returns ErrDuplicateVote if the account
	// already voted on the market.
	Insert(ctx context.Context, v Vote) error
	// Upsert stores a vote, overwriting any previous ballot from the account.
	Upsert(ctx context.Context, v Vote) error
	Get(ctx context.Context, marketID, accountID uuid.UUID) (Vote, error)
	Tally(ctx context.Context, marketID uuid.UUID) (Tally, error)
}

// RoomStore persists rooms.
type RoomStore interface {
	Create(ctx context.Context, r Room) error
	GetByID(ctx context.Context, id uuid.UUID) (Room, error)
	GetByJoinCode(ctx context.Context, code string) (Room, error)
}

// AccountStore persists room-scoped participant accounts. AdjustBalance is
// the single atomic balance primitive: a negative delta that would overdraw
// fails with ErrInsufficientFunds and leaves the balance untouched. Update
// persists profile, counter, reputation and streak fields only; Balance and
// LifetimeEarned change exclusively through AdjustBalance/AccrueEarned so a
// stale struct can never clobber them.
type AccountStore interface {
	Create(ctx context.Context, a Account) error
	GetByID(ctx context.Context, id uuid.UUID) (Account, error)
	Update(ctx context.Context, a Account) error
	AdjustBalance(ctx context.Context, id uuid.UUID, delta float64) (float64, error)
	AccrueEarned(ctx context.Context, id uuid.UUID, amount float64) error
	// ListByRoom returns accounts ordered by reputation score descending.
	ListByRoom(ctx context.Context, roomID uuid.UUID, opts ListOpts) ([]Account, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// Stores bundles every store bound to one storage scope. Inside a unit of
// work all stores share the same transaction.
type Stores struct {
	Markets  MarketStore
	Trades   TradeStore
	Votes    VoteStore
	Rooms    RoomStore
	Accounts AccountStore
	Audit    AuditStore
}

// UnitOfWork runs fn against transaction-scoped stores. Every write made by
// fn commits as one unit or not at all; returning an error rolls back.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(s Stores) error) error
}
