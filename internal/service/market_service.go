package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/prophecy/internal/chain"
	"github.com/alanyoungcy/prophecy/internal/derivative"
	"github.com/alanyoungcy/prophecy/internal/domain"
	"github.com/alanyoungcy/prophecy/internal/lifecycle"
	"github.com/alanyoungcy/prophecy/internal/lmsr"
)

const (
	// DefaultLiquidityB is the LMSR liquidity parameter used when the
	// creator does not override it. Higher b means flatter prices per trade.
	DefaultLiquidityB = 100.0

	// DefaultVotingWindow is how long a closed market accepts resolution
	// ballots before the deadline sweep settles or disputes it.
	DefaultVotingWindow = 24 * time.Hour

	maxTitleLen = 200
)

// CreateMarketParams carries everything needed to create a market of any
// kind. ParentID and Trigger make a chained market; ReferenceID and Threshold
// make a derivative; setting fields from both groups is rejected.
type CreateMarketParams struct {
	RoomID      uuid.UUID
	CreatorID   *uuid.UUID
	Title       string
	Description string
	Category    string
	ExpiresAt   time.Time
	LiquidityB  float64

	ParentID *uuid.UUID
	Trigger  domain.TriggerCondition

	ReferenceID *uuid.UUID
	Threshold   *domain.Threshold
}

// MarketService creates and manages markets through their pre-resolution
// lifecycle. Resolution itself belongs to the ResolutionService.
type MarketService struct {
	uow          domain.UnitOfWork
	locks        domain.LockManager
	cache        domain.MarketCache
	chains       *chain.Service
	derivs       *derivative.Monitor
	votingWindow time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewMarketService creates a MarketService. cache may be nil.
func NewMarketService(
	uow domain.UnitOfWork,
	locks domain.LockManager,
	cache domain.MarketCache,
	chains *chain.Service,
	derivs *derivative.Monitor,
	votingWindow time.Duration,
	logger *slog.Logger,
) *MarketService {
	if votingWindow <= 0 {
		votingWindow = DefaultVotingWindow
	}
	return &MarketService{
		uow:          uow,
		locks:        locks,
		cache:        cache,
		chains:       chains,
		derivs:       derivs,
		votingWindow: votingWindow,
		logger:       logger.With(slog.String("component", "markets")),
		now:          time.Now,
	}
}

// CreateMarket validates and persists a new market. Standard and derivative
// markets open active immediately; chained children start pending and
// activate only when the parent resolves matching their trigger.
func (s *MarketService) CreateMarket(ctx context.Context, p CreateMarketParams) (domain.Market, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" || len(title) > maxTitleLen {
		return domain.Market{}, fmt.Errorf("markets: title must be 1-%d characters: %w", maxTitleLen, domain.ErrValidation)
	}
	now := s.now().UTC()
	if !p.ExpiresAt.After(now) {
		return domain.Market{}, fmt.Errorf("markets: expiry must be in the future: %w", domain.ErrValidation)
	}
	if p.ParentID != nil && p.ReferenceID != nil {
		return domain.Market{}, fmt.Errorf("markets: a market cannot be both chained and derivative: %w", domain.ErrValidation)
	}

	b := p.LiquidityB
	if b == 0 {
		b = DefaultLiquidityB
	}
	if b <= 0 {
		return domain.Market{}, fmt.Errorf("markets: liquidity parameter must be positive, got %v: %w", b, domain.ErrValidation)
	}

	m := domain.Market{
		ID:          uuid.New(),
		RoomID:      p.RoomID,
		CreatorID:   p.CreatorID,
		Title:       title,
		Description: strings.TrimSpace(p.Description),
		Category:    p.Category,
		Kind:        domain.MarketKindStandard,
		LiquidityB:  b,
		OddsYes:     0.5,
		Status:      domain.MarketStatusActive,
		ExpiresAt:   p.ExpiresAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	switch {
	case p.ParentID != nil:
		depth, err := s.chains.ValidateCreation(ctx, *p.ParentID, p.Trigger)
		if err != nil {
			return domain.Market{}, err
		}
		m.Kind = domain.MarketKindChained
		m.ParentID = p.ParentID
		m.Trigger = p.Trigger
		m.ChainDepth = depth
		// Pending until the parent resolves; the stored expiry is replaced
		// with a fresh window at activation.
		m.Status = domain.MarketStatusPending

	case p.ReferenceID != nil:
		if p.Threshold == nil {
			return domain.Market{}, fmt.Errorf("markets: derivative requires a threshold: %w", domain.ErrValidation)
		}
		if err := s.derivs.ValidateCreation(ctx, *p.ReferenceID, *p.Threshold); err != nil {
			return domain.Market{}, err
		}
		m.Kind = domain.MarketKindDerivative
		m.ReferenceID = p.ReferenceID
		m.Threshold = p.Threshold
	}

	err := s.uow.Do(ctx, func(st domain.Stores) error {
		if _, err := st.Rooms.GetByID(ctx, p.RoomID); err != nil {
			return err
		}
		if p.CreatorID != nil {
			acct, err := st.Accounts.GetByID(ctx, *p.CreatorID)
			if err != nil {
				return err
			}
			if acct.RoomID != p.RoomID {
				return fmt.Errorf("markets: creator %s is not in room %s: %w", *p.CreatorID, p.RoomID, domain.ErrUnauthorized)
			}
			if !acct.Role.CanTrade() {
				return fmt.Errorf("markets: role %s may not create markets: %w", acct.Role, domain.ErrUnauthorized)
			}
		}
		if err := st.Markets.Create(ctx, m); err != nil {
			return err
		}
		return st.Audit.Log(ctx, "market_created", map[string]any{
			"market_id": m.ID.String(),
			"room_id":   m.RoomID.String(),
			"kind":      string(m.Kind),
			"title":     m.Title,
		})
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("markets: create: %w", err)
	}

	s.logger.InfoContext(ctx, "market created",
		slog.String("market_id", m.ID.String()),
		slog.String("kind", string(m.Kind)),
		slog.String("title", m.Title),
	)
	return m, nil
}

// GetMarket returns one market, preferring the cache. A cache miss falls
// through to storage and repopulates the cache best-effort.
func (s *MarketService) GetMarket(ctx context.Context, id uuid.UUID) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "markets: cache get failed",
				slog.String("market_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	var m domain.Market
	err := s.uow.Do(ctx, func(st domain.Stores) error {
		var err error
		m, err = st.Markets.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("markets: get %s: %w", id, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, m); err != nil {
			s.logger.WarnContext(ctx, "markets: cache set failed",
				slog.String("market_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return m, nil
}

// ListRoomMarkets lists a room's markets, newest first.
func (s *MarketService) ListRoomMarkets(ctx context.Context, roomID uuid.UUID, opts domain.ListOpts) ([]domain.Market, error) {
	var markets []domain.Market
	err := s.uow.Do(ctx, func(st domain.Stores) error {
		var err error
		markets, err = st.Markets.ListByRoom(ctx, roomID, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("markets: list room %s: %w", roomID, err)
	}
	return markets, nil
}

// ChainTree returns the full chain tree containing the given market.
func (s *MarketService) ChainTree(ctx context.Context, marketID uuid.UUID) (*chain.TreeNode, error) {
	return s.chains.Tree(ctx, marketID)
}

// Quote prices a hypothetical trade against the market's current pool
// without mutating anything.
func (s *MarketService) Quote(ctx context.Context, marketID uuid.UUID, side domain.Side, amount float64) (shares float64, err error) {
	if !side.Valid() || amount <= 0 {
		return 0, fmt.Errorf("markets: invalid quote (%q, %v): %w", side, amount, domain.ErrValidation)
	}
	m, err := s.GetMarket(ctx, marketID)
	if err != nil {
		return 0, err
	}
	engine, err := lmsr.FromMarket(m)
	if err != nil {
		return 0, err
	}
	return lmsr.SharesForAmount(engine, side, amount)
}

// CloseMarket moves an active market into its voting window. Only the
// creator or a room admin may close early; the expiry sweep closes the rest.
func (s *MarketService) CloseMarket(ctx context.Context, marketID, actorID uuid.UUID) (domain.Market, error) {
	unlock, err := s.locks.Acquire(ctx, domain.MarketLockKey(marketID), marketLockTTL)
	if err != nil {
		return domain.Market{}, fmt.Errorf("markets: lock market %s: %w", marketID, err)
	}
	defer unlock()

	var market domain.Market
	err = s.uow.Do(ctx, func(st domain.Stores) error {
		m, err := st.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}
		if err := s.authorizeManage(ctx, st, m, actorID); err != nil {
			return err
		}
		if err := lifecycle.GuardClose(m); err != nil {
			return err
		}
		market, err = s.beginVoting(ctx, st, m)
		return err
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("markets: close %s: %w", marketID, err)
	}

	s.invalidate(ctx, market.ID)
	return market, nil
}

// ExpireMarket is the sweep entry point for a market whose trading window has
// elapsed: it moves the market to voting with no actor check. A market
// already out of active status is a no-op conflict the sweep skips.
func (s *MarketService) ExpireMarket(ctx context.Context, marketID uuid.UUID) (domain.Market, error) {
	unlock, err := s.locks.Acquire(ctx, domain.MarketLockKey(marketID), marketLockTTL)
	if err != nil {
		return domain.Market{}, fmt.Errorf("markets: lock market %s: %w", marketID, err)
	}
	defer unlock()

	var market domain.Market
	err = s.uow.Do(ctx, func(st domain.Stores) error {
		m, err := st.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}
		if err := lifecycle.GuardClose(m); err != nil {
			return err
		}
		market, err = s.beginVoting(ctx, st, m)
		return err
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("markets: expire %s: %w", marketID, err)
	}

	s.invalidate(ctx, market.ID)
	return market, nil
}

func (s *MarketService) beginVoting(ctx context.Context, st domain.Stores, m domain.Market) (domain.Market, error) {
	if err := lifecycle.Transition(&m, domain.MarketStatusVoting); err != nil {
		return domain.Market{}, err
	}
	now := s.now().UTC()
	deadline := now.Add(s.votingWindow)
	m.VotingDeadline = &deadline
	m.UpdatedAt = now
	if err := st.Markets.Update(ctx, m); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// CancelMarket voids a pending or active market and refunds every
// participant's stake in full. Refunds do not count as lifetime earnings.
func (s *MarketService) CancelMarket(ctx context.Context, marketID, actorID uuid.UUID) (domain.Market, error) {
	unlock, err := s.locks.Acquire(ctx, domain.MarketLockKey(marketID), marketLockTTL)
	if err != nil {
		return domain.Market{}, fmt.Errorf("markets: lock market %s: %w", marketID, err)
	}
	defer unlock()

	var market domain.Market
	err = s.uow.Do(ctx, func(st domain.Stores) error {
		m, err := st.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}
		if err := s.authorizeManage(ctx, st, m, actorID); err != nil {
			return err
		}
		if err := lifecycle.GuardCancel(m); err != nil {
			return err
		}
		if err := lifecycle.Transition(&m, domain.MarketStatusCancelled); err != nil {
			return err
		}

		trades, err := st.Trades.ListByMarket(ctx, m.ID, domain.ListOpts{})
		if err != nil {
			return err
		}
		refunded := 0.0
		for _, t := range trades {
			if t.AccountID == nil {
				continue
			}
			if _, err := st.Accounts.AdjustBalance(ctx, *t.AccountID, t.Amount); err != nil {
				return err
			}
			refunded += t.Amount
		}

		now := s.now().UTC()
		m.UpdatedAt = now
		if err := st.Markets.Update(ctx, m); err != nil {
			return err
		}
		if err := st.Audit.Log(ctx, "market_cancelled", map[string]any{
			"market_id": m.ID.String(),
			"refunded":  refunded,
			"trades":    len(trades),
		}); err != nil {
			return err
		}
		market = m
		return nil
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("markets: cancel %s: %w", marketID, err)
	}

	s.invalidate(ctx, market.ID)
	return market, nil
}

// authorizeManage allows the market's creator and room admins to manage the
// market's lifecycle.
func (s *MarketService) authorizeManage(ctx context.Context, st domain.Stores, m domain.Market, actorID uuid.UUID) error {
	if m.CreatorID != nil && *m.CreatorID == actorID {
		return nil
	}
	acct, err := st.Accounts.GetByID(ctx, actorID)
	if err != nil {
		return err
	}
	if acct.RoomID != m.RoomID || acct.Role != domain.RoleAdmin {
		return fmt.Errorf("markets: account %s may not manage market %s: %w", actorID, m.ID, domain.ErrUnauthorized)
	}
	return nil
}

func (s *MarketService) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "markets: cache invalidate failed",
			slog.String("market_id", id.String()),
			slog.String("error", err.Error()),
		)
	}
}
