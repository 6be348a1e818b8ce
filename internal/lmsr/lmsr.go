// Package lmsr implements the Logarithmic Market Scoring Rule market maker
// used to price every market. It is pure computation over (b, yes, no) share
// state; persistence and locking live with the callers.
package lmsr

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

const (
	// CostTolerance is the acceptable cost error when inverting the cost
	// function via binary search.
	CostTolerance = 1e-3

	// MaxIterations bounds the binary search.
	MaxIterations = 100

	// Prices reported after an exponent overflow are clamped to these
	// extremes instead of propagating Inf/NaN.
	priceFloor   = 0.001
	priceCeiling = 0.999
)

// Engine holds LMSR state for one market.
type Engine struct {
	B         float64
	YesShares float64
	NoShares  float64
}

// New creates an Engine with the given liquidity parameter and outstanding
// share totals. b must be positive.
func New(b, yesShares, noShares float64) (*Engine, error) {
	if b <= 0 {
		return nil, fmt.Errorf("lmsr: liquidity parameter must be positive, got %v: %w", b, domain.ErrValidation)
	}
	return &Engine{B: b, YesShares: yesShares, NoShares: noShares}, nil
}

// FromMarket builds an Engine from a market's persisted LMSR state.
func FromMarket(m domain.Market) (*Engine, error) {
	return New(m.LiquidityB, m.YesShares, m.NoShares)
}

// Cost is the LMSR cost function C(q) = b * ln(e^(qYes/b) + e^(qNo/b)).
// It returns ErrPricing when the exponentials overflow.
func (e *Engine) Cost(qYes, qNo float64) (float64, error) {
	expYes := math.Exp(qYes / e.B)
	expNo := math.Exp(qNo / e.B)
	c := e.B * math.Log(expYes+expNo)
	if math.IsInf(c, 0) || math.IsNaN(c) {
		return 0, fmt.Errorf("lmsr: cost overflow at qYes=%v qNo=%v b=%v: %w", qYes, qNo, e.B, domain.ErrPricing)
	}
	return c, nil
}

// PriceYes is the instantaneous yes-probability
// e^(qYes/b) / (e^(qYes/b) + e^(qNo/b)). On exponent overflow the price is
// clamped to a bounded extreme rather than returning Inf/NaN.
func (e *Engine) PriceYes() float64 {
	expYes := math.Exp(e.YesShares / e.B)
	expNo := math.Exp(e.NoShares / e.B)
	p := expYes / (expYes + expNo)
	if math.IsNaN(p) || math.IsInf(expYes, 0) || math.IsInf(expNo, 0) {
		if e.YesShares > e.NoShares {
			return priceCeiling
		}
		return priceFloor
	}
	return p
}

// PriceNo is the complement of PriceYes.
func (e *Engine) PriceNo() float64 {
	return 1.0 - e.PriceYes()
}

// CostToTrade returns the signed cost of moving the given side by delta
// shares: positive delta costs money, negative delta (a sell) yields a
// negative cost, i.e. a payment to the trader.
func (e *Engine) CostToTrade(side domain.Side, delta float64) (float64, error) {
	if !side.Valid() {
		return 0, fmt.Errorf("lmsr: side must be yes or no, got %q: %w", side, domain.ErrValidation)
	}

	oldCost, err := e.Cost(e.YesShares, e.NoShares)
	if err != nil {
		return 0, err
	}

	var newCost float64
	if side == domain.SideYes {
		newCost, err = e.Cost(e.YesShares+delta, e.NoShares)
	} else {
		newCost, err = e.Cost(e.YesShares, e.NoShares+delta)
	}
	if err != nil {
		return 0, err
	}

	return newCost - oldCost, nil
}

// SharesForAmount inverts the cost function: how many shares of side can be
// bought for amount. The cost function is monotonic and convex in the share
// count, so a bounded binary search converges; the search stops once the
// cost error is within CostTolerance or MaxIterations is hit, returning the
// best approximation. The initial upper bound amount*10 is doubled until it
// brackets the root.
func SharesForAmount(e *Engine, side domain.Side, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("lmsr: amount must be positive, got %v: %w", amount, domain.ErrValidation)
	}
	if !side.Valid() {
		return 0, fmt.Errorf("lmsr: side must be yes or no, got %q: %w", side, domain.ErrValidation)
	}

	low := 0.0
	high := amount * 10

	// Grow the bracket until the upper bound costs at least amount. A share
	// always costs less than 1, so amount shares are always affordable and
	// the loop terminates well before the exponent overflows for sane b.
	for {
		c, err := e.CostToTrade(side, high)
		if err != nil {
			return 0, err
		}
		if c >= amount {
			break
		}
		high *= 2
	}

	for i := 0; i < MaxIterations; i++ {
		mid := (low + high) / 2
		c, err := e.CostToTrade(side, mid)
		if err != nil {
			return 0, err
		}

		if math.Abs(c-amount) < CostTolerance {
			return mid, nil
		}
		if c < amount {
			low = mid
		} else {
			high = mid
		}
	}

	return (low + high) / 2, nil
}

// ExecuteTrade spends amount on side, applies the purchased shares to the
// engine state, and returns (shares, newPriceYes, newPriceNo). On error the
// engine state is unchanged.
func (e *Engine) ExecuteTrade(side domain.Side, amount float64) (shares, priceYes, priceNo float64, err error) {
	shares, err = SharesForAmount(e, side, amount)
	if err != nil {
		return 0, 0, 0, err
	}

	if side == domain.SideYes {
		e.YesShares += shares
	} else {
		e.NoShares += shares
	}

	priceYes = e.PriceYes()
	return shares, priceYes, 1.0 - priceYes, nil
}

// PayoutPerShare is the fixed payout of one winning share.
func PayoutPerShare() float64 {
	return 1.0
}

// CalculatePayout returns shares * 1.0 when the holder bet the winning side,
// zero otherwise.
func CalculatePayout(shares float64, winningSide, holderSide domain.Side) float64 {
	if winningSide == holderSide {
		return shares * PayoutPerShare()
	}
	return 0
}
