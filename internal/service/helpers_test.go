package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	cachemem "github.com/alanyoungcy/prophecy/internal/cache/memory"
	"github.com/alanyoungcy/prophecy/internal/domain"
	"github.com/alanyoungcy/prophecy/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture is one room with three participants and a spectator on a fresh
// in-memory backend.
type fixture struct {
	db    *memory.DB
	locks *cachemem.LockManager

	room      domain.Room
	admin     domain.Account
	alice     domain.Account
	bob       domain.Account
	spectator domain.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		db:    memory.New(),
		locks: cachemem.NewLockManager(),
	}

	now := time.Now().UTC()
	f.room = domain.Room{
		ID:              uuid.New(),
		Name:            "test room",
		JoinCode:        "TESTRM",
		StartingBalance: 1000,
		MinBet:          1,
		MaxBet:          500,
		CreatedAt:       now,
	}

	mkAccount := func(name string, role domain.Role, balance float64) domain.Account {
		return domain.Account{
			ID:              uuid.New(),
			RoomID:          f.room.ID,
			DisplayName:     name,
			Role:            role,
			Balance:         balance,
			ReputationScore: ReputationBaseline,
			ReputationRank:  rankForScore(ReputationBaseline),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	}
	f.admin = mkAccount("admin", domain.RoleAdmin, 1000)
	f.alice = mkAccount("alice", domain.RoleParticipant, 1000)
	f.bob = mkAccount("bob", domain.RoleParticipant, 1000)
	f.spectator = mkAccount("watcher", domain.RoleSpectator, 0)
	f.room.CreatorID = f.admin.ID

	err := f.db.Do(context.Background(), func(st domain.Stores) error {
		if err := st.Rooms.Create(context.Background(), f.room); err != nil {
			return err
		}
		for _, a := range []domain.Account{f.admin, f.alice, f.bob, f.spectator} {
			if err := st.Accounts.Create(context.Background(), a); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	return f
}

// seedMarket stores a market directly, bypassing the service layer.
func (f *fixture) seedMarket(t *testing.T, mutate func(*domain.Market)) domain.Market {
	t.Helper()

	now := time.Now().UTC()
	m := domain.Market{
		ID:         uuid.New(),
		RoomID:     f.room.ID,
		CreatorID:  &f.admin.ID,
		Title:      "will it happen",
		Kind:       domain.MarketKindStandard,
		LiquidityB: 100,
		OddsYes:    0.5,
		Status:     domain.MarketStatusActive,
		ExpiresAt:  now.Add(24 * time.Hour),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if mutate != nil {
		mutate(&m)
	}

	err := f.db.Do(context.Background(), func(st domain.Stores) error {
		return st.Markets.Create(context.Background(), m)
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) account(t *testing.T, id uuid.UUID) domain.Account {
	t.Helper()
	var a domain.Account
	err := f.db.Do(context.Background(), func(st domain.Stores) error {
		var err error
		a, err = st.Accounts.GetByID(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) market(t *testing.T, id uuid.UUID) domain.Market {
	t.Helper()
	var m domain.Market
	err := f.db.Do(context.Background(), func(st domain.Stores) error {
		var err error
		m, err = st.Markets.GetByID(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	return m
}

// castBallot stores a ballot directly, bypassing the vote service.
func (f *fixture) castBallot(t *testing.T, marketID, accountID uuid.UUID, choice domain.Side) {
	t.Helper()
	err := f.db.Do(context.Background(), func(st domain.Stores) error {
		return st.Votes.Upsert(context.Background(), domain.Vote{
			ID:        uuid.New(),
			MarketID:  marketID,
			AccountID: accountID,
			Choice:    choice,
			CreatedAt: time.Now().UTC(),
		})
	})
	require.NoError(t, err)
}
