package sweep

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachemem "github.com/alanyoungcy/prophecy/internal/cache/memory"
	"github.com/alanyoungcy/prophecy/internal/domain"
	"github.com/alanyoungcy/prophecy/internal/service"
	"github.com/alanyoungcy/prophecy/internal/store/memory"
)

type harness struct {
	db      *memory.DB
	sweeper *Sweeper
	room    domain.Room
	voters  []domain.Account
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := memory.New()
	locks := cachemem.NewLockManager()

	markets := service.NewMarketService(db, locks, nil, nil, nil, 0, logger)
	resolutions := service.NewResolutionService(db, locks, nil, nil, nil, nil, 0, logger)
	sweeper := New(db, markets, resolutions, nil, Config{}, logger)

	h := &harness{db: db, sweeper: sweeper}

	now := time.Now().UTC()
	h.room = domain.Room{
		ID:              uuid.New(),
		Name:            "sweep room",
		JoinCode:        "SWPRM1",
		StartingBalance: 1000,
		MinBet:          1,
		MaxBet:          500,
		CreatedAt:       now,
	}

	err := db.Do(context.Background(), func(st domain.Stores) error {
		if err := st.Rooms.Create(context.Background(), h.room); err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			a := domain.Account{
				ID:              uuid.New(),
				RoomID:          h.room.ID,
				DisplayName:     "voter",
				Role:            domain.RoleParticipant,
				Balance:         1000,
				ReputationScore: service.ReputationBaseline,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := st.Accounts.Create(context.Background(), a); err != nil {
				return err
			}
			h.voters = append(h.voters, a)
		}
		return nil
	})
	require.NoError(t, err)

	return h
}

func (h *harness) seedMarket(t *testing.T, mutate func(*domain.Market)) domain.Market {
	t.Helper()

	now := time.Now().UTC()
	m := domain.Market{
		ID:         uuid.New(),
		RoomID:     h.room.ID,
		Title:      "will the sweep find me",
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
	err := h.db.Do(context.Background(), func(st domain.Stores) error {
		return st.Markets.Create(context.Background(), m)
	})
	require.NoError(t, err)
	return m
}

func (h *harness) market(t *testing.T, id uuid.UUID) domain.Market {
	t.Helper()
	var m domain.Market
	err := h.db.Do(context.Background(), func(st domain.Stores) error {
		var err error
		m, err = st.Markets.GetByID(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	return m
}

func TestSweepExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	expired := h.seedMarket(t, func(m *domain.Market) {
		m.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	})
	fresh := h.seedMarket(t, nil)

	require.NoError(t, h.sweeper.sweepExpired(ctx))

	got := h.market(t, expired.ID)
	assert.Equal(t, domain.MarketStatusVoting, got.Status)
	require.NotNil(t, got.VotingDeadline)
	assert.Equal(t, domain.MarketStatusActive, h.market(t, fresh.ID).Status)

	// Second pass finds nothing to do.
	require.NoError(t, h.sweeper.sweepExpired(ctx))
	assert.Equal(t, domain.MarketStatusVoting, h.market(t, expired.ID).Status)
}

func TestSweepVotingSupermajority(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	deadline := time.Now().UTC().Add(-time.Minute)
	m := h.seedMarket(t, func(m *domain.Market) {
		m.Status = domain.MarketStatusVoting
		m.VotingDeadline = &deadline
	})

	err := h.db.Do(ctx, func(st domain.Stores) error {
		for _, v := range h.voters {
			vote := domain.Vote{
				ID:        uuid.New(),
				MarketID:  m.ID,
				AccountID: v.ID,
				Choice:    domain.SideYes,
				CreatedAt: time.Now().UTC(),
			}
			if err := st.Votes.Insert(ctx, vote); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, h.sweeper.sweepVoting(ctx))

	got := h.market(t, m.ID)
	assert.Equal(t, domain.MarketStatusResolved, got.Status)
	require.NotNil(t, got.ResolutionResult)
	assert.Equal(t, domain.SideYes, *got.ResolutionResult)
	assert.Equal(t, domain.ResolutionCommunity, got.ResolutionMethod)
}

func TestSweepVotingSplitEndsResolvedViaFallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	deadline := time.Now().UTC().Add(-time.Minute)
	m := h.seedMarket(t, func(m *domain.Market) {
		m.Status = domain.MarketStatusVoting
		m.VotingDeadline = &deadline
	})

	err := h.db.Do(ctx, func(st domain.Stores) error {
		choices := []domain.Side{domain.SideYes, domain.SideYes, domain.SideNo}
		for i, v := range h.voters {
			vote := domain.Vote{
				ID:        uuid.New(),
				MarketID:  m.ID,
				AccountID: v.ID,
				Choice:    choices[i],
				CreatedAt: time.Now().UTC(),
			}
			if err := st.Votes.Insert(ctx, vote); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	// One voting pass tallies the split into a dispute, then the dispute
	// sweep rules via the majority fallback because no oracle is wired.
	require.NoError(t, h.sweeper.sweepVoting(ctx))

	got := h.market(t, m.ID)
	assert.Equal(t, domain.MarketStatusResolved, got.Status)
	require.NotNil(t, got.ResolutionResult)
	assert.Equal(t, domain.SideYes, *got.ResolutionResult)
	assert.Equal(t, domain.ResolutionProphet, got.ResolutionMethod)
}
