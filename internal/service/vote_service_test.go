package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

func newVoteService(f *fixture, resolver marketResolver, policy domain.VotePolicy) *VoteService {
	return NewVoteService(f.db, f.locks, nil, resolver, policy, testLogger())
}

func TestCastVote(t *testing.T) {
	ctx := context.Background()

	t.Run("records a ballot and the tally", func(t *testing.T) {
		f := newFixture(t)
		svc := newVoteService(f, nil, domain.VotePolicyReject)
		m := f.seedMarket(t, func(m *domain.Market) { m.Status = domain.MarketStatusVoting })

		summary, err := svc.CastVote(ctx, m.ID, f.alice.ID, domain.SideYes)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Tally.Yes)
		assert.Equal(t, 1, summary.Tally.Total)
		assert.False(t, summary.Resolved)

		assert.Equal(t, 1, f.account(t, f.alice.ID).VotesCast)
	})

	t.Run("reject policy refuses a second ballot", func(t *testing.T) {
		f := newFixture(t)
		svc := newVoteService(f, nil, domain.VotePolicyReject)
		m := f.seedMarket(t, func(m *domain.Market) { m.Status = domain.MarketStatusVoting })

		_, err := svc.CastVote(ctx, m.ID, f.alice.ID, domain.SideYes)
		require.NoError(t, err)

		_, err = svc.CastVote(ctx, m.ID, f.alice.ID, domain.SideNo)
		require.ErrorIs(t, err, domain.ErrDuplicateVote)

		ballot, err := svc.GetBallot(ctx, m.ID, f.alice.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.SideYes, ballot.Choice)
	})

	t.Run("overwrite policy replaces the ballot once", func(t *testing.T) {
		f := newFixture(t)
		svc := newVoteService(f, nil, domain.VotePolicyOverwrite)
		m := f.seedMarket(t, func(m *domain.Market) { m.Status = domain.MarketStatusVoting })

		_, err := svc.CastVote(ctx, m.ID, f.alice.ID, domain.SideYes)
		require.NoError(t, err)

		summary, err := svc.CastVote(ctx, m.ID, f.alice.ID, domain.SideNo)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.Tally.Yes)
		assert.Equal(t, 1, summary.Tally.No)
		assert.Equal(t, 1, summary.Tally.Total)

		// The resubmission does not double-count the voter.
		assert.Equal(t, 1, f.account(t, f.alice.ID).VotesCast)
	})

	t.Run("only voting markets accept ballots", func(t *testing.T) {
		f := newFixture(t)
		svc := newVoteService(f, nil, domain.VotePolicyReject)
		m := f.seedMarket(t, nil) // active

		_, err := svc.CastVote(ctx, m.ID, f.alice.ID, domain.SideYes)
		require.ErrorIs(t, err, domain.ErrStateConflict)
	})

	t.Run("spectators may not vote", func(t *testing.T) {
		f := newFixture(t)
		svc := newVoteService(f, nil, domain.VotePolicyReject)
		m := f.seedMarket(t, func(m *domain.Market) { m.Status = domain.MarketStatusVoting })

		_, err := svc.CastVote(ctx, m.ID, f.spectator.ID, domain.SideYes)
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("eligible-voter supermajority resolves early", func(t *testing.T) {
		f := newFixture(t)
		resolution := newResolutionService(f, nil)
		svc := newVoteService(f, resolution, domain.VotePolicyReject)
		m := f.seedMarket(t, func(m *domain.Market) { m.Status = domain.MarketStatusVoting })

		// Three eligible voters in the room: one ballot is far from quorum.
		summary, err := svc.CastVote(ctx, m.ID, f.alice.ID, domain.SideYes)
		require.NoError(t, err)
		assert.False(t, summary.Resolved)

		summary, err = svc.CastVote(ctx, m.ID, f.bob.ID, domain.SideYes)
		require.NoError(t, err)
		assert.False(t, summary.Resolved)

		// 3 of 3 eligible voters; outcome is certain.
		summary, err = svc.CastVote(ctx, m.ID, f.admin.ID, domain.SideYes)
		require.NoError(t, err)
		require.True(t, summary.Resolved)
		require.NotNil(t, summary.Outcome)
		assert.Equal(t, domain.SideYes, summary.Outcome.Result)
		assert.Equal(t, domain.ResolutionCommunity, summary.Outcome.Method)

		assert.Equal(t, domain.MarketStatusResolved, f.market(t, m.ID).Status)
	})
}

// panicUoW blows up inside the unit of work to simulate a store failure
// mid-transaction.
type panicUoW struct{}

func (panicUoW) Do(context.Context, func(domain.Stores) error) error {
	panic("store failure")
}

func TestCastVoteReleasesLockOnPanic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewVoteService(panicUoW{}, f.locks, nil, nil, domain.VotePolicyReject, testLogger())
	m := f.seedMarket(t, func(m *domain.Market) { m.Status = domain.MarketStatusVoting })

	require.Panics(t, func() {
		_, _ = svc.CastVote(ctx, m.ID, f.alice.ID, domain.SideYes)
	})

	// The market lock must not stay held after the panic.
	lockCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	unlock, err := f.locks.Acquire(lockCtx, domain.MarketLockKey(m.ID), time.Second)
	require.NoError(t, err)
	unlock()
}
