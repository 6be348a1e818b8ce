package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

// stubOracle lets each test script the ruling path; the cosmetic calls are
// never exercised here.
type stubOracle struct {
	ruling domain.Ruling
	err    error
}

func (o *stubOracle) DisputeRuling(context.Context, string, string, int, int) (domain.Ruling, error) {
	return o.ruling, o.err
}

func (o *stubOracle) TradeCommentary(context.Context, string, string, domain.Side, float64, float64) (string, error) {
	return "", errors.New("not scripted")
}

func (o *stubOracle) ResolutionCommentary(context.Context, string, domain.Side, domain.Tally, int, int) (string, error) {
	return "", errors.New("not scripted")
}

func (o *stubOracle) GenerateMarkets(context.Context, string, []string, []string) ([]domain.MarketIdea, error) {
	return nil, errors.New("not scripted")
}

func (o *stubOracle) BetDecision(context.Context, string, string, float64) (domain.BetDecision, error) {
	return domain.BetDecision{}, errors.New("not scripted")
}

func newResolutionService(f *fixture, oracle domain.Oracle) *ResolutionService {
	return NewResolutionService(f.db, f.locks, nil, nil, oracle, nil, 0, testLogger())
}

func TestCheckSupermajority(t *testing.T) {
	yes, no := domain.SideYes, domain.SideNo
	tests := []struct {
		name  string
		tally domain.Tally
		want  *domain.Side
	}{
		{"zero votes disputes", domain.Tally{}, nil},
		{"exact three quarters yes", domain.Tally{Yes: 9, No: 3, Total: 12}, &yes},
		{"just below three quarters", domain.Tally{Yes: 8, No: 4, Total: 12}, nil},
		{"unanimous yes", domain.Tally{Yes: 5, Total: 5}, &yes},
		{"exact three quarters no", domain.Tally{Yes: 1, No: 3, Total: 4}, &no},
		{"even split", domain.Tally{Yes: 6, No: 6, Total: 12}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CheckSupermajority(tc.tally)
			if tc.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tc.want, *got)
			}
		})
	}
}

func TestResolveMarket(t *testing.T) {
	ctx := context.Background()

	t.Run("pays winners and scores reputation", func(t *testing.T) {
		f := newFixture(t)
		trading := newTradingService(f)
		resolution := newResolutionService(f, nil)
		m := f.seedMarket(t, nil)

		aliceReceipt, err := trading.PlaceTrade(ctx, m.ID, f.alice.ID, domain.SideYes, 100)
		require.NoError(t, err)
		_, err = trading.PlaceTrade(ctx, m.ID, f.bob.ID, domain.SideNo, 100)
		require.NoError(t, err)

		summary, err := resolution.ResolveMarket(ctx, m.ID, domain.SideYes, domain.ResolutionAdmin)
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Winners)
		assert.Equal(t, 1, summary.Losers)
		assert.Equal(t, 2, summary.TradesProcessed)
		assert.InDelta(t, aliceReceipt.SharesReceived, summary.TotalPayout, 1e-9)

		got := f.market(t, m.ID)
		assert.Equal(t, domain.MarketStatusResolved, got.Status)
		require.NotNil(t, got.ResolutionResult)
		assert.Equal(t, domain.SideYes, *got.ResolutionResult)
		assert.Equal(t, domain.ResolutionAdmin, got.ResolutionMethod)
		assert.NotNil(t, got.ResolvedAt)

		alice := f.account(t, f.alice.ID)
		assert.InDelta(t, 900+aliceReceipt.SharesReceived, alice.Balance, 1e-9)
		assert.InDelta(t, aliceReceipt.SharesReceived, alice.LifetimeEarned, 1e-9)
		assert.Equal(t, 1, alice.TradesWon)
		assert.Equal(t, 1, alice.WinStreakCurrent)
		assert.Equal(t, 1, alice.WinStreakBest)
		// First trade at even odds: 50 * (1 - 0.5).
		assert.InDelta(t, 1025, alice.ReputationScore, 1e-9)

		bob := f.account(t, f.bob.ID)
		assert.InDelta(t, 900, bob.Balance, 1e-9)
		assert.Equal(t, 0, bob.TradesWon)
		assert.Equal(t, 0, bob.WinStreakCurrent)
		assert.Less(t, bob.ReputationScore, ReputationBaseline)
	})

	t.Run("resolving twice conflicts", func(t *testing.T) {
		f := newFixture(t)
		resolution := newResolutionService(f, nil)
		m := f.seedMarket(t, nil)

		_, err := resolution.ResolveMarket(ctx, m.ID, domain.SideYes, domain.ResolutionAdmin)
		require.NoError(t, err)

		_, err = resolution.ResolveMarket(ctx, m.ID, domain.SideNo, domain.ResolutionAdmin)
		require.ErrorIs(t, err, domain.ErrStateConflict)

		got := f.market(t, m.ID)
		assert.Equal(t, domain.SideYes, *got.ResolutionResult)
	})

	t.Run("prophet trades settle no ledger", func(t *testing.T) {
		f := newFixture(t)
		trading := newTradingService(f)
		resolution := newResolutionService(f, nil)
		m := f.seedMarket(t, nil)

		_, err := trading.PlaceProphetTrade(ctx, m.ID, domain.SideYes, 50)
		require.NoError(t, err)

		summary, err := resolution.ResolveMarket(ctx, m.ID, domain.SideYes, domain.ResolutionAdmin)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Winners)
		assert.InDelta(t, 0, summary.TotalPayout, 1e-9)
	})

	t.Run("activates matching pending children", func(t *testing.T) {
		f := newFixture(t)
		resolution := newResolutionService(f, nil)
		parent := f.seedMarket(t, nil)

		yesChild := f.seedMarket(t, func(m *domain.Market) {
			m.Kind = domain.MarketKindChained
			m.ParentID = &parent.ID
			m.Trigger = domain.TriggerParentYes
			m.ChainDepth = 1
			m.Status = domain.MarketStatusPending
		})
		noChild := f.seedMarket(t, func(m *domain.Market) {
			m.Kind = domain.MarketKindChained
			m.ParentID = &parent.ID
			m.Trigger = domain.TriggerParentNo
			m.ChainDepth = 1
			m.Status = domain.MarketStatusPending
		})

		summary, err := resolution.ResolveMarket(ctx, parent.ID, domain.SideYes, domain.ResolutionAdmin)
		require.NoError(t, err)
		require.Len(t, summary.ChildrenActivated, 1)
		assert.Equal(t, yesChild.ID, summary.ChildrenActivated[0])

		activated := f.market(t, yesChild.ID)
		assert.Equal(t, domain.MarketStatusActive, activated.Status)
		assert.WithinDuration(t, time.Now().Add(48*time.Hour), activated.ExpiresAt, time.Minute)

		assert.Equal(t, domain.MarketStatusPending, f.market(t, noChild.ID).Status)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		f := newFixture(t)
		resolution := newResolutionService(f, nil)
		m := f.seedMarket(t, nil)

		_, err := resolution.ResolveMarket(ctx, m.ID, domain.Side("maybe"), domain.ResolutionAdmin)
		require.ErrorIs(t, err, domain.ErrValidation)

		_, err = resolution.ResolveMarket(ctx, m.ID, domain.SideYes, domain.ResolutionMethod("decree"))
		require.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestProcessVotingDeadline(t *testing.T) {
	ctx := context.Background()

	t.Run("supermajority resolves as community", func(t *testing.T) {
		f := newFixture(t)
		resolution := newResolutionService(f, nil)
		m := f.seedMarket(t, func(m *domain.Market) { m.Status = domain.MarketStatusVoting })

		f.castBallot(t, m.ID, f.admin.ID, domain.SideYes)
		f.castBallot(t, m.ID, f.alice.ID, domain.SideYes)
		f.castBallot(t, m.ID, f.bob.ID, domain.SideYes)

		summary, err := resolution.ProcessVotingDeadline(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.SideYes, summary.Result)
		assert.Equal(t, domain.ResolutionCommunity, summary.Method)
		require.NotNil(t, summary.Tally)
		assert.Equal(t, 3, summary.Tally.Yes)

		assert.Equal(t, domain.MarketStatusResolved, f.market(t, m.ID).Status)
	})

	t.Run("split vote disputes", func(t *testing.T) {
		f := newFixture(t)
		resolution := newResolutionService(f, nil)
		m := f.seedMarket(t, func(m *domain.Market) { m.Status = domain.MarketStatusVoting })

		f.castBallot(t, m.ID, f.alice.ID, domain.SideYes)
		f.castBallot(t, m.ID, f.bob.ID, domain.SideNo)

		summary, err := resolution.ProcessVotingDeadline(ctx, m.ID)
		require.NoError(t, err)
		assert.Empty(t, summary.Result)

		assert.Equal(t, domain.MarketStatusDisputed, f.market(t, m.ID).Status)
	})

	t.Run("zero votes disputes", func(t *testing.T) {
		f := newFixture(t)
		resolution := newResolutionService(f, nil)
		m := f.seedMarket(t, func(m *domain.Market) { m.Status = domain.MarketStatusVoting })

		_, err := resolution.ProcessVotingDeadline(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.MarketStatusDisputed, f.market(t, m.ID).Status)
	})

	t.Run("wrong state conflicts", func(t *testing.T) {
		f := newFixture(t)
		resolution := newResolutionService(f, nil)
		m := f.seedMarket(t, nil) // still active

		_, err := resolution.ProcessVotingDeadline(ctx, m.ID)
		require.ErrorIs(t, err, domain.ErrStateConflict)
	})
}

func TestResolveDispute(t *testing.T) {
	ctx := context.Background()

	seedDisputed := func(t *testing.T, f *fixture) domain.Market {
		m := f.seedMarket(t, func(m *domain.Market) { m.Status = domain.MarketStatusDisputed })
		f.castBallot(t, m.ID, f.alice.ID, domain.SideYes)
		f.castBallot(t, m.ID, f.bob.ID, domain.SideNo)
		return m
	}

	t.Run("oracle ruling binds", func(t *testing.T) {
		f := newFixture(t)
		oracle := &stubOracle{ruling: domain.Ruling{Ruling: domain.SideNo, Confidence: 0.9, Reasoning: "sources say no"}}
		resolution := newResolutionService(f, oracle)
		m := seedDisputed(t, f)

		summary, err := resolution.ResolveDispute(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.SideNo, summary.Result)
		assert.Equal(t, domain.ResolutionProphet, summary.Method)
		assert.False(t, summary.OracleFallback)

		got := f.market(t, m.ID)
		assert.Equal(t, domain.MarketStatusResolved, got.Status)
		assert.Equal(t, domain.ResolutionProphet, got.ResolutionMethod)
	})

	t.Run("oracle failure falls back to majority", func(t *testing.T) {
		f := newFixture(t)
		oracle := &stubOracle{err: domain.ErrOracleUnavailable}
		resolution := newResolutionService(f, oracle)
		m := f.seedMarket(t, func(m *domain.Market) { m.Status = domain.MarketStatusDisputed })
		f.castBallot(t, m.ID, f.admin.ID, domain.SideYes)
		f.castBallot(t, m.ID, f.alice.ID, domain.SideYes)
		f.castBallot(t, m.ID, f.bob.ID, domain.SideNo)

		summary, err := resolution.ResolveDispute(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.SideYes, summary.Result)
		assert.True(t, summary.OracleFallback)
	})

	t.Run("tied fallback rules no", func(t *testing.T) {
		f := newFixture(t)
		resolution := newResolutionService(f, nil) // no oracle configured
		m := seedDisputed(t, f)

		summary, err := resolution.ResolveDispute(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.SideNo, summary.Result)
		assert.True(t, summary.OracleFallback)
	})

	t.Run("requires disputed status", func(t *testing.T) {
		f := newFixture(t)
		resolution := newResolutionService(f, nil)
		m := f.seedMarket(t, nil)

		_, err := resolution.ResolveDispute(ctx, m.ID)
		require.ErrorIs(t, err, domain.ErrStateConflict)
	})
}
