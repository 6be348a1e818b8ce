package lmsr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

func TestNew(t *testing.T) {
	t.Run("rejects non-positive b", func(t *testing.T) {
		_, err := New(0, 0, 0)
		require.ErrorIs(t, err, domain.ErrValidation)

		_, err = New(-5, 0, 0)
		require.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("fresh market prices at even odds", func(t *testing.T) {
		e, err := New(100, 0, 0)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, e.PriceYes(), 1e-6)
		assert.InDelta(t, 0.5, e.PriceNo(), 1e-6)
	})
}

func TestPricesSumToOne(t *testing.T) {
	e, err := New(100, 0, 0)
	require.NoError(t, err)

	amounts := []float64{10, 50, 3.5, 120, 0.5, 77}
	sides := []domain.Side{domain.SideYes, domain.SideNo, domain.SideYes, domain.SideYes, domain.SideNo, domain.SideNo}

	for i, amount := range amounts {
		_, pYes, pNo, err := e.ExecuteTrade(sides[i], amount)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, pYes+pNo, 1e-6, "after trade %d", i)
	}
}

func TestBuyMonotonicity(t *testing.T) {
	e, err := New(100, 20, 35)
	require.NoError(t, err)

	before := e.PriceYes()
	_, after, _, err := e.ExecuteTrade(domain.SideYes, 25)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, after, before, "buying yes must not decrease the yes price")

	beforeNo := e.PriceNo()
	_, _, afterNo, err := e.ExecuteTrade(domain.SideNo, 25)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, afterNo, beforeNo, "buying no must not decrease the no price")
}

func TestCostToTrade(t *testing.T) {
	e, err := New(100, 0, 0)
	require.NoError(t, err)

	t.Run("buy costs money", func(t *testing.T) {
		c, err := e.CostToTrade(domain.SideYes, 50)
		require.NoError(t, err)
		assert.Positive(t, c)
	})

	t.Run("sell pays the trader", func(t *testing.T) {
		e2, err := New(100, 80, 0)
		require.NoError(t, err)
		c, err := e2.CostToTrade(domain.SideYes, -30)
		require.NoError(t, err)
		assert.Negative(t, c)
	})

	t.Run("rejects bad side", func(t *testing.T) {
		_, err := e.CostToTrade(domain.Side("maybe"), 10)
		require.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestSharesForAmount(t *testing.T) {
	t.Run("inverts the cost function within tolerance", func(t *testing.T) {
		e, err := New(100, 0, 0)
		require.NoError(t, err)

		shares, err := SharesForAmount(e, domain.SideYes, 50)
		require.NoError(t, err)
		require.Positive(t, shares)

		cost, err := e.CostToTrade(domain.SideYes, shares)
		require.NoError(t, err)
		assert.InDelta(t, 50, cost, CostTolerance*10)
	})

	t.Run("grows the bracket when shares are cheap", func(t *testing.T) {
		// Yes trades at ~0.007 here, so 5 coins buy far more than 50
		// shares and the initial amount*10 bound must be doubled until it
		// brackets the root.
		e, err := New(100, 0, 500)
		require.NoError(t, err)

		shares, err := SharesForAmount(e, domain.SideYes, 5)
		require.NoError(t, err)
		cost, err := e.CostToTrade(domain.SideYes, shares)
		require.NoError(t, err)
		assert.InDelta(t, 5, cost, CostTolerance*10)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		e, err := New(100, 0, 0)
		require.NoError(t, err)
		_, err = SharesForAmount(e, domain.SideYes, 0)
		require.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestExecuteTrade(t *testing.T) {
	t.Run("yes buy moves odds up", func(t *testing.T) {
		e, err := New(100, 0, 0)
		require.NoError(t, err)

		shares, pYes, pNo, err := e.ExecuteTrade(domain.SideYes, 50)
		require.NoError(t, err)
		assert.Positive(t, shares)
		assert.Greater(t, pYes, 0.5)
		assert.InDelta(t, 1.0, pYes+pNo, 1e-6)
	})

	t.Run("no buy moves odds down", func(t *testing.T) {
		e, err := New(100, 0, 0)
		require.NoError(t, err)

		_, pYes, _, err := e.ExecuteTrade(domain.SideNo, 50)
		require.NoError(t, err)
		assert.Less(t, pYes, 0.5)
	})

	t.Run("state unchanged on invalid input", func(t *testing.T) {
		e, err := New(100, 10, 10)
		require.NoError(t, err)

		_, _, _, err = e.ExecuteTrade(domain.SideYes, -1)
		require.Error(t, err)
		assert.Equal(t, 10.0, e.YesShares)
		assert.Equal(t, 10.0, e.NoShares)
	})
}

func TestOverflowClamping(t *testing.T) {
	// Share totals far beyond the exponent range: cost must fail with a
	// pricing error, while the reported price clamps to a bounded extreme.
	e, err := New(1, 1e6, 0)
	require.NoError(t, err)

	_, err = e.Cost(e.YesShares, e.NoShares)
	require.ErrorIs(t, err, domain.ErrPricing)

	assert.Equal(t, 0.999, e.PriceYes())

	e.YesShares, e.NoShares = 0, 1e6
	assert.Equal(t, 0.001, e.PriceYes())
}

func TestPayout(t *testing.T) {
	assert.Equal(t, 1.0, PayoutPerShare())
	assert.Equal(t, 10.0, CalculatePayout(10, domain.SideYes, domain.SideYes))
	assert.Equal(t, 0.0, CalculatePayout(10, domain.SideYes, domain.SideNo))
	assert.Equal(t, 42.5, CalculatePayout(42.5, domain.SideNo, domain.SideNo))
}
