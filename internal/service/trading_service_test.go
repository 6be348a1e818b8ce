package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

func newTradingService(f *fixture) *TradingService {
	return NewTradingService(f.db, f.locks, nil, nil, nil, testLogger())
}

func TestPlaceTrade(t *testing.T) {
	ctx := context.Background()

	t.Run("debits balance and moves odds", func(t *testing.T) {
		f := newFixture(t)
		svc := newTradingService(f)
		m := f.seedMarket(t, nil)

		receipt, err := svc.PlaceTrade(ctx, m.ID, f.alice.ID, domain.SideYes, 50)
		require.NoError(t, err)

		assert.Greater(t, receipt.SharesReceived, 0.0)
		assert.Greater(t, receipt.OddsYes, 0.5)
		assert.InDelta(t, 1.0, receipt.OddsYes+receipt.OddsNo, 1e-9)
		assert.InDelta(t, 950, receipt.Balance, 1e-9)

		got := f.market(t, m.ID)
		assert.Equal(t, receipt.OddsYes, got.OddsYes)
		assert.InDelta(t, 50, got.TotalPool, 1e-9)
		assert.Greater(t, got.YesShares, 0.0)

		alice := f.account(t, f.alice.ID)
		assert.InDelta(t, 950, alice.Balance, 1e-9)
		assert.Equal(t, 1, alice.TradesPlaced)
	})

	t.Run("records pre-trade odds on the trade", func(t *testing.T) {
		f := newFixture(t)
		svc := newTradingService(f)
		m := f.seedMarket(t, nil)

		_, err := svc.PlaceTrade(ctx, m.ID, f.alice.ID, domain.SideYes, 50)
		require.NoError(t, err)

		var trades []domain.Trade
		err = f.db.Do(ctx, func(st domain.Stores) error {
			var err error
			trades, err = st.Trades.ListByMarket(ctx, m.ID, domain.ListOpts{})
			return err
		})
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.Equal(t, 0.5, trades[0].OddsAtTrade)
	})

	t.Run("rejects insufficient balance atomically", func(t *testing.T) {
		f := newFixture(t)
		svc := newTradingService(f)
		m := f.seedMarket(t, nil)

		// Drain alice close to zero first.
		_, err := svc.PlaceTrade(ctx, m.ID, f.alice.ID, domain.SideYes, 500)
		require.NoError(t, err)
		_, err = svc.PlaceTrade(ctx, m.ID, f.alice.ID, domain.SideYes, 480)
		require.NoError(t, err)

		before := f.market(t, m.ID)
		_, err = svc.PlaceTrade(ctx, m.ID, f.alice.ID, domain.SideYes, 100)
		require.ErrorIs(t, err, domain.ErrInsufficientFunds)

		after := f.market(t, m.ID)
		assert.Equal(t, before.YesShares, after.YesShares)
		assert.Equal(t, before.TotalPool, after.TotalPool)
		assert.InDelta(t, 20, f.account(t, f.alice.ID).Balance, 1e-9)
	})

	t.Run("rejects trades outside room bet range", func(t *testing.T) {
		f := newFixture(t)
		svc := newTradingService(f)
		m := f.seedMarket(t, nil)

		_, err := svc.PlaceTrade(ctx, m.ID, f.alice.ID, domain.SideYes, 0.5)
		require.ErrorIs(t, err, domain.ErrValidation)

		_, err = svc.PlaceTrade(ctx, m.ID, f.alice.ID, domain.SideYes, 501)
		require.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("rejects spectators", func(t *testing.T) {
		f := newFixture(t)
		svc := newTradingService(f)
		m := f.seedMarket(t, nil)

		_, err := svc.PlaceTrade(ctx, m.ID, f.spectator.ID, domain.SideYes, 10)
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("rejects accounts from another room", func(t *testing.T) {
		f := newFixture(t)
		other := newFixture(t)
		// Same backend, different room.
		err := f.db.Do(ctx, func(st domain.Stores) error {
			if err := st.Rooms.Create(ctx, other.room); err != nil {
				return err
			}
			return st.Accounts.Create(ctx, other.alice)
		})
		require.NoError(t, err)

		svc := newTradingService(f)
		m := f.seedMarket(t, nil)

		_, err = svc.PlaceTrade(ctx, m.ID, other.alice.ID, domain.SideYes, 10)
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("rejects non-active markets", func(t *testing.T) {
		f := newFixture(t)
		svc := newTradingService(f)

		for _, status := range []domain.MarketStatus{
			domain.MarketStatusPending,
			domain.MarketStatusVoting,
			domain.MarketStatusResolved,
			domain.MarketStatusCancelled,
		} {
			m := f.seedMarket(t, func(m *domain.Market) { m.Status = status })
			_, err := svc.PlaceTrade(ctx, m.ID, f.alice.ID, domain.SideYes, 10)
			assert.ErrorIs(t, err, domain.ErrStateConflict, "status %s", status)
		}
	})

	t.Run("rejects invalid side and amount", func(t *testing.T) {
		f := newFixture(t)
		svc := newTradingService(f)
		m := f.seedMarket(t, nil)

		_, err := svc.PlaceTrade(ctx, m.ID, f.alice.ID, domain.Side("maybe"), 10)
		require.ErrorIs(t, err, domain.ErrValidation)

		_, err = svc.PlaceTrade(ctx, m.ID, f.alice.ID, domain.SideYes, -5)
		require.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestPlaceProphetTrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newTradingService(f)
	m := f.seedMarket(t, nil)

	receipt, err := svc.PlaceProphetTrade(ctx, m.ID, domain.SideNo, 40)
	require.NoError(t, err)
	assert.Greater(t, receipt.SharesReceived, 0.0)
	assert.Less(t, receipt.OddsYes, 0.5)

	// No room account was touched.
	assert.InDelta(t, 1000, f.account(t, f.alice.ID).Balance, 1e-9)

	var trades []domain.Trade
	err = f.db.Do(ctx, func(st domain.Stores) error {
		var err error
		trades, err = st.Trades.ListByMarket(ctx, m.ID, domain.ListOpts{})
		return err
	})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].ProphetTrade)
	assert.Nil(t, trades[0].AccountID)
}
