package lifecycle

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

func market(status domain.MarketStatus) domain.Market {
	return domain.Market{ID: uuid.New(), Status: status}
}

func TestTransitionTable(t *testing.T) {
	legal := []struct{ from, to domain.MarketStatus }{
		{domain.MarketStatusPending, domain.MarketStatusActive},
		{domain.MarketStatusPending, domain.MarketStatusResolved},
		{domain.MarketStatusActive, domain.MarketStatusVoting},
		{domain.MarketStatusActive, domain.MarketStatusResolved},
		{domain.MarketStatusActive, domain.MarketStatusCancelled},
		{domain.MarketStatusVoting, domain.MarketStatusResolved},
		{domain.MarketStatusVoting, domain.MarketStatusDisputed},
		{domain.MarketStatusDisputed, domain.MarketStatusResolved},
	}
	for _, tc := range legal {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}

	illegal := []struct{ from, to domain.MarketStatus }{
		{domain.MarketStatusResolved, domain.MarketStatusActive},
		{domain.MarketStatusResolved, domain.MarketStatusResolved},
		{domain.MarketStatusCancelled, domain.MarketStatusActive},
		{domain.MarketStatusVoting, domain.MarketStatusActive},
		{domain.MarketStatusDisputed, domain.MarketStatusVoting},
		{domain.MarketStatusPending, domain.MarketStatusVoting},
	}
	for _, tc := range illegal {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be illegal", tc.from, tc.to)
	}
}

func TestTransition(t *testing.T) {
	m := market(domain.MarketStatusActive)
	require.NoError(t, Transition(&m, domain.MarketStatusVoting))
	assert.Equal(t, domain.MarketStatusVoting, m.Status)

	err := Transition(&m, domain.MarketStatusActive)
	require.ErrorIs(t, err, domain.ErrStateConflict)
	assert.Equal(t, domain.MarketStatusVoting, m.Status, "failed transition must not mutate status")
}

func TestGuards(t *testing.T) {
	t.Run("trade only while active", func(t *testing.T) {
		require.NoError(t, GuardTrade(market(domain.MarketStatusActive)))
		for _, s := range []domain.MarketStatus{domain.MarketStatusPending, domain.MarketStatusVoting, domain.MarketStatusDisputed, domain.MarketStatusResolved, domain.MarketStatusCancelled} {
			assert.ErrorIs(t, GuardTrade(market(s)), domain.ErrStateConflict, "status %s", s)
		}
	})

	t.Run("vote only while voting", func(t *testing.T) {
		require.NoError(t, GuardVote(market(domain.MarketStatusVoting)))
		assert.ErrorIs(t, GuardVote(market(domain.MarketStatusActive)), domain.ErrStateConflict)
	})

	t.Run("double resolution rejected", func(t *testing.T) {
		require.NoError(t, GuardResolve(market(domain.MarketStatusVoting)))
		require.NoError(t, GuardResolve(market(domain.MarketStatusDisputed)))
		assert.ErrorIs(t, GuardResolve(market(domain.MarketStatusResolved)), domain.ErrStateConflict)
		assert.ErrorIs(t, GuardResolve(market(domain.MarketStatusCancelled)), domain.ErrStateConflict)
	})

	t.Run("cancel only before resolution flow", func(t *testing.T) {
		require.NoError(t, GuardCancel(market(domain.MarketStatusActive)))
		require.NoError(t, GuardCancel(market(domain.MarketStatusPending)))
		assert.ErrorIs(t, GuardCancel(market(domain.MarketStatusVoting)), domain.ErrStateConflict)
	})
}
