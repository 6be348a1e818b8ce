// Package derivative manages meta-markets that bet on another market's
// measurable behavior: an odds level, a trade-count threshold, or the way
// the reference market ends up being resolved.
package derivative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

// Resolver is the slice of the resolution engine the monitor needs. Declared
// locally so this package does not depend on the concrete service.
type Resolver interface {
	ResolveMarket(ctx context.Context, marketID uuid.UUID, result domain.Side, method domain.ResolutionMethod) (domain.ResolutionSummary, error)
}

// Monitor validates derivative markets and sweeps active ones for met or
// expired conditions.
type Monitor struct {
	uow      domain.UnitOfWork
	resolver Resolver
	logger   *slog.Logger
	now      func() time.Time
}

// NewMonitor creates a Monitor.
func NewMonitor(uow domain.UnitOfWork, resolver Resolver, logger *slog.Logger) *Monitor {
	return &Monitor{
		uow:      uow,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "derivative")),
		now:      time.Now,
	}
}

// ValidateCreation checks that a derivative may be created against the given
// reference market. The reference must exist, must not itself be a
// derivative, and must not be resolved; the threshold payload must be
// well-formed for its type.
func (m *Monitor) ValidateCreation(ctx context.Context, referenceID uuid.UUID, th domain.Threshold) error {
	if err := validateThreshold(th, m.now()); err != nil {
		return err
	}

	var ref domain.Market
	err := m.uow.Do(ctx, func(st domain.Stores) error {
		var err error
		ref, err = st.Markets.GetByID(ctx, referenceID)
		return err
	})
	if err != nil {
		return fmt.Errorf("derivative: load reference %s: %w", referenceID, err)
	}

	if ref.Kind == domain.MarketKindDerivative {
		return fmt.Errorf("derivative: cannot create a derivative of a derivative (%s): %w", referenceID, domain.ErrValidation)
	}
	if ref.IsResolved() {
		return fmt.Errorf("derivative: reference %s already resolved: %w", referenceID, domain.ErrStateConflict)
	}

	return nil
}

func validateThreshold(th domain.Threshold, now time.Time) error {
	switch th.Type {
	case domain.ThresholdOdds:
		if th.Value <= 0 || th.Value > 1 {
			return fmt.Errorf("derivative: odds threshold value %v outside (0,1]: %w", th.Value, domain.ErrValidation)
		}
		if th.Deadline == nil || !th.Deadline.After(now) {
			return fmt.Errorf("derivative: odds threshold requires a future deadline: %w", domain.ErrValidation)
		}
	case domain.ThresholdVolume:
		if th.Value < 1 {
			return fmt.Errorf("derivative: volume threshold value %v below 1: %w", th.Value, domain.ErrValidation)
		}
		if th.Deadline == nil || !th.Deadline.After(now) {
			return fmt.Errorf("derivative: volume threshold requires a future deadline: %w", domain.ErrValidation)
		}
	case domain.ThresholdMethod:
		if !domain.ValidResolutionMethod(th.Method) {
			return fmt.Errorf("derivative: unknown resolution method %q: %w", th.Method, domain.ErrValidation)
		}
		if th.Deadline != nil {
			return fmt.Errorf("derivative: resolution_method threshold takes no deadline: %w", domain.ErrValidation)
		}
	default:
		return fmt.Errorf("derivative: unknown threshold type %q: %w", th.Type, domain.ErrValidation)
	}
	return nil
}

// CheckCondition decides a derivative's outcome from its reference market's
// current state. It never mutates anything. The returned pointer is nil
// while the condition is still open.
//
// odds/volume thresholds resolve yes the moment the threshold is met and no
// once the deadline passes unmet; resolution_method thresholds resolve
// either way as soon as the reference resolves.
func CheckCondition(deriv, ref domain.Market, refTradeCount int64, now time.Time) *domain.Side {
	if deriv.Threshold == nil {
		return nil
	}
	th := *deriv.Threshold

	switch th.Type {
	case domain.ThresholdOdds:
		if ref.OddsYes >= th.Value {
			return sidePtr(domain.SideYes)
		}
		if th.Deadline != nil && now.After(*th.Deadline) {
			return sidePtr(domain.SideNo)
		}
	case domain.ThresholdVolume:
		if float64(refTradeCount) >= th.Value {
			return sidePtr(domain.SideYes)
		}
		if th.Deadline != nil && now.After(*th.Deadline) {
			return sidePtr(domain.SideNo)
		}
	case domain.ThresholdMethod:
		if ref.IsResolved() {
			if ref.ResolutionMethod == th.Method {
				return sidePtr(domain.SideYes)
			}
			return sidePtr(domain.SideNo)
		}
	}
	return nil
}

func sidePtr(s domain.Side) *domain.Side {
	return &s
}

// ScanActive sweeps every active derivative and routes each decided one
// through the resolver with method=automatic. The sweep is idempotent: a
// derivative resolved by a previous pass is no longer active and is skipped,
// so re-running with no new data resolves nothing further. It returns how
// many derivatives were resolved this pass.
func (m *Monitor) ScanActive(ctx context.Context) (int, error) {
	type decision struct {
		id     uuid.UUID
		result domain.Side
	}

	var decided []decision
	err := m.uow.Do(ctx, func(st domain.Stores) error {
		derivs, err := st.Markets.ListActiveDerivatives(ctx)
		if err != nil {
			return err
		}

		now := m.now()
		for _, d := range derivs {
			if d.ReferenceID == nil {
				continue
			}
			ref, err := st.Markets.GetByID(ctx, *d.ReferenceID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					m.logger.WarnContext(ctx, "derivative references missing market",
						slog.String("derivative_id", d.ID.String()),
						slog.String("reference_id", d.ReferenceID.String()),
					)
					continue
				}
				return err
			}

			count, err := st.Trades.CountByMarket(ctx, ref.ID)
			if err != nil {
				return err
			}

			if result := CheckCondition(d, ref, count, now); result != nil {
				decided = append(decided, decision{id: d.ID, result: *result})
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("derivative: scan active: %w", err)
	}

	// Resolve outside the read pass; the resolver takes the per-market lock
	// and re-checks status, so a concurrent resolution just turns into a
	// state-conflict skip.
	resolved := 0
	for _, d := range decided {
		if _, err := m.resolver.ResolveMarket(ctx, d.id, d.result, domain.ResolutionAutomatic); err != nil {
			if errors.Is(err, domain.ErrStateConflict) {
				continue
			}
			return resolved, fmt.Errorf("derivative: resolve %s: %w", d.id, err)
		}
		resolved++
		m.logger.InfoContext(ctx, "derivative auto-resolved",
			slog.String("market_id", d.id.String()),
			slog.String("result", string(d.result)),
		)
	}

	return resolved, nil
}
