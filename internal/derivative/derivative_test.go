package derivative

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/prophecy/internal/domain"
	"github.com/alanyoungcy/prophecy/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingResolver marks markets resolved in storage and records the order
// of calls, standing in for the full resolution engine.
type recordingResolver struct {
	db    *memory.DB
	calls []uuid.UUID
}

func (r *recordingResolver) ResolveMarket(ctx context.Context, marketID uuid.UUID, result domain.Side, method domain.ResolutionMethod) (domain.ResolutionSummary, error) {
	var summary domain.ResolutionSummary
	err := r.db.Do(ctx, func(st domain.Stores) error {
		m, err := st.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}
		if m.IsResolved() {
			return domain.ErrStateConflict
		}
		m.Status = domain.MarketStatusResolved
		m.ResolutionResult = &result
		m.ResolutionMethod = method
		if err := st.Markets.Update(ctx, m); err != nil {
			return err
		}
		summary = domain.ResolutionSummary{MarketID: marketID, Result: result, Method: method}
		return nil
	})
	if err != nil {
		return domain.ResolutionSummary{}, err
	}
	r.calls = append(r.calls, marketID)
	return summary, nil
}

func seedMarket(t *testing.T, db *memory.DB, mutate func(*domain.Market)) domain.Market {
	t.Helper()
	now := time.Now().UTC()
	m := domain.Market{
		ID:         uuid.New(),
		RoomID:     uuid.New(),
		Title:      "reference question",
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
	require.NoError(t, db.Do(context.Background(), func(st domain.Stores) error {
		return st.Markets.Create(context.Background(), m)
	}))
	return m
}

func seedDerivative(t *testing.T, db *memory.DB, ref domain.Market, th domain.Threshold) domain.Market {
	t.Helper()
	return seedMarket(t, db, func(m *domain.Market) {
		m.RoomID = ref.RoomID
		m.Kind = domain.MarketKindDerivative
		m.ReferenceID = &ref.ID
		m.Threshold = &th
	})
}

func TestValidateCreation(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	mon := NewMonitor(db, nil, testLogger())
	ref := seedMarket(t, db, nil)
	future := time.Now().Add(time.Hour)

	t.Run("accepts well-formed thresholds", func(t *testing.T) {
		for _, th := range []domain.Threshold{
			{Type: domain.ThresholdOdds, Value: 0.8, Deadline: &future},
			{Type: domain.ThresholdVolume, Value: 10, Deadline: &future},
			{Type: domain.ThresholdMethod, Method: domain.ResolutionCommunity},
		} {
			assert.NoError(t, mon.ValidateCreation(ctx, ref.ID, th))
		}
	})

	t.Run("rejects malformed thresholds", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		for name, th := range map[string]domain.Threshold{
			"odds above one":          {Type: domain.ThresholdOdds, Value: 1.5, Deadline: &future},
			"odds at zero":            {Type: domain.ThresholdOdds, Value: 0, Deadline: &future},
			"odds without deadline":   {Type: domain.ThresholdOdds, Value: 0.8},
			"odds past deadline":      {Type: domain.ThresholdOdds, Value: 0.8, Deadline: &past},
			"volume below one":        {Type: domain.ThresholdVolume, Value: 0.5, Deadline: &future},
			"method with deadline":    {Type: domain.ThresholdMethod, Method: domain.ResolutionAdmin, Deadline: &future},
			"unknown method":          {Type: domain.ThresholdMethod, Method: "decree"},
			"unknown threshold type":  {Type: "vibes_threshold", Value: 1},
		} {
			assert.ErrorIs(t, mon.ValidateCreation(ctx, ref.ID, th), domain.ErrValidation, name)
		}
	})

	t.Run("rejects derivative references", func(t *testing.T) {
		deriv := seedDerivative(t, db, ref, domain.Threshold{Type: domain.ThresholdMethod, Method: domain.ResolutionCommunity})
		err := mon.ValidateCreation(ctx, deriv.ID, domain.Threshold{Type: domain.ThresholdMethod, Method: domain.ResolutionCommunity})
		require.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("rejects resolved references", func(t *testing.T) {
		resolved := seedMarket(t, db, func(m *domain.Market) { m.Status = domain.MarketStatusResolved })
		err := mon.ValidateCreation(ctx, resolved.ID, domain.Threshold{Type: domain.ThresholdMethod, Method: domain.ResolutionCommunity})
		require.ErrorIs(t, err, domain.ErrStateConflict)
	})
}

func TestCheckCondition(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	yes := domain.SideYes

	ref := domain.Market{OddsYes: 0.6, Status: domain.MarketStatusActive}
	resolvedRef := domain.Market{
		Status:           domain.MarketStatusResolved,
		ResolutionResult: &yes,
		ResolutionMethod: domain.ResolutionCommunity,
	}

	deriv := func(th domain.Threshold) domain.Market {
		return domain.Market{Kind: domain.MarketKindDerivative, Threshold: &th}
	}

	tests := []struct {
		name   string
		deriv  domain.Market
		ref    domain.Market
		trades int64
		want   *domain.Side
	}{
		{"odds met resolves yes", deriv(domain.Threshold{Type: domain.ThresholdOdds, Value: 0.6, Deadline: &future}), ref, 0, sidePtr(domain.SideYes)},
		{"odds unmet stays open", deriv(domain.Threshold{Type: domain.ThresholdOdds, Value: 0.7, Deadline: &future}), ref, 0, nil},
		{"odds unmet past deadline resolves no", deriv(domain.Threshold{Type: domain.ThresholdOdds, Value: 0.7, Deadline: &past}), ref, 0, sidePtr(domain.SideNo)},
		{"volume met resolves yes", deriv(domain.Threshold{Type: domain.ThresholdVolume, Value: 5, Deadline: &future}), ref, 5, sidePtr(domain.SideYes)},
		{"volume unmet stays open", deriv(domain.Threshold{Type: domain.ThresholdVolume, Value: 5, Deadline: &future}), ref, 4, nil},
		{"volume unmet past deadline resolves no", deriv(domain.Threshold{Type: domain.ThresholdVolume, Value: 5, Deadline: &past}), ref, 4, sidePtr(domain.SideNo)},
		{"fractional volume is not rounded down", deriv(domain.Threshold{Type: domain.ThresholdVolume, Value: 10.5, Deadline: &future}), ref, 10, nil},
		{"fractional volume met resolves yes", deriv(domain.Threshold{Type: domain.ThresholdVolume, Value: 10.5, Deadline: &future}), ref, 11, sidePtr(domain.SideYes)},
		{"method match resolves yes", deriv(domain.Threshold{Type: domain.ThresholdMethod, Method: domain.ResolutionCommunity}), resolvedRef, 0, sidePtr(domain.SideYes)},
		{"method mismatch resolves no", deriv(domain.Threshold{Type: domain.ThresholdMethod, Method: domain.ResolutionAdmin}), resolvedRef, 0, sidePtr(domain.SideNo)},
		{"method waits for resolution", deriv(domain.Threshold{Type: domain.ThresholdMethod, Method: domain.ResolutionCommunity}), ref, 0, nil},
		{"missing threshold stays open", domain.Market{Kind: domain.MarketKindDerivative}, ref, 0, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CheckCondition(tc.deriv, tc.ref, tc.trades, now)
			if tc.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tc.want, *got)
			}
		})
	}
}

func TestScanActive(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves met conditions with method automatic", func(t *testing.T) {
		db := memory.New()
		resolver := &recordingResolver{db: db}
		mon := NewMonitor(db, resolver, testLogger())

		ref := seedMarket(t, db, func(m *domain.Market) { m.OddsYes = 0.9 })
		future := time.Now().Add(time.Hour)
		met := seedDerivative(t, db, ref, domain.Threshold{Type: domain.ThresholdOdds, Value: 0.8, Deadline: &future})
		open := seedDerivative(t, db, ref, domain.Threshold{Type: domain.ThresholdVolume, Value: 100, Deadline: &future})

		resolved, err := mon.ScanActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, resolved)
		require.Len(t, resolver.calls, 1)
		assert.Equal(t, met.ID, resolver.calls[0])

		err = db.Do(ctx, func(st domain.Stores) error {
			got, err := st.Markets.GetByID(ctx, met.ID)
			if err != nil {
				return err
			}
			assert.Equal(t, domain.ResolutionAutomatic, got.ResolutionMethod)
			assert.Equal(t, domain.SideYes, *got.ResolutionResult)

			still, err := st.Markets.GetByID(ctx, open.ID)
			if err != nil {
				return err
			}
			assert.Equal(t, domain.MarketStatusActive, still.Status)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("second pass with no new data resolves nothing", func(t *testing.T) {
		db := memory.New()
		resolver := &recordingResolver{db: db}
		mon := NewMonitor(db, resolver, testLogger())

		ref := seedMarket(t, db, func(m *domain.Market) { m.OddsYes = 0.9 })
		future := time.Now().Add(time.Hour)
		seedDerivative(t, db, ref, domain.Threshold{Type: domain.ThresholdOdds, Value: 0.8, Deadline: &future})

		first, err := mon.ScanActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, first)

		second, err := mon.ScanActive(ctx)
		require.NoError(t, err)
		assert.Zero(t, second)
		assert.Len(t, resolver.calls, 1)
	})

	t.Run("skips derivatives with missing references", func(t *testing.T) {
		db := memory.New()
		resolver := &recordingResolver{db: db}
		mon := NewMonitor(db, resolver, testLogger())

		orphanRef := uuid.New()
		seedMarket(t, db, func(m *domain.Market) {
			m.Kind = domain.MarketKindDerivative
			m.ReferenceID = &orphanRef
			m.Threshold = &domain.Threshold{Type: domain.ThresholdMethod, Method: domain.ResolutionCommunity}
		})

		resolved, err := mon.ScanActive(ctx)
		require.NoError(t, err)
		assert.Zero(t, resolved)
	})
}
