package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/prophecy/internal/chain"
	"github.com/alanyoungcy/prophecy/internal/domain"
	"github.com/alanyoungcy/prophecy/internal/lifecycle"
	"github.com/alanyoungcy/prophecy/internal/lmsr"
)

// SupermajorityRatio is the vote concentration required for community
// resolution without dispute.
const SupermajorityRatio = 0.75

// oracleTimeout bounds the dispute-ruling call. The call always runs outside
// any market lock.
const oracleTimeout = 60 * time.Second

// CheckSupermajority returns the winning side if one choice holds at least
// 75% of cast votes, nil otherwise. The exact boundary qualifies (9 of 12
// counts). Zero votes is always disputed.
func CheckSupermajority(t domain.Tally) *domain.Side {
	if t.Total == 0 {
		return nil
	}
	if float64(t.Yes)/float64(t.Total) >= SupermajorityRatio {
		s := domain.SideYes
		return &s
	}
	if float64(t.No)/float64(t.Total) >= SupermajorityRatio {
		s := domain.SideNo
		return &s
	}
	return nil
}

// ResolutionService tallies votes, decides outcomes, distributes payouts and
// reputation deltas, and triggers chained-market activation. Every resolve
// commits as one storage unit under the market's lock.
type ResolutionService struct {
	uow         domain.UnitOfWork
	locks       domain.LockManager
	cache       domain.MarketCache
	bus         domain.SignalBus
	oracle      domain.Oracle
	archiver    domain.Archiver
	chainWindow time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewResolutionService creates a ResolutionService. cache, bus, oracle, and
// archiver may be nil; the corresponding side effects are skipped (a nil
// oracle makes every dispute fall back to the majority ballot).
func NewResolutionService(
	uow domain.UnitOfWork,
	locks domain.LockManager,
	cache domain.MarketCache,
	bus domain.SignalBus,
	oracle domain.Oracle,
	archiver domain.Archiver,
	chainWindow time.Duration,
	logger *slog.Logger,
) *ResolutionService {
	if chainWindow <= 0 {
		chainWindow = chain.DefaultActivationWindow
	}
	return &ResolutionService{
		uow:         uow,
		locks:       locks,
		cache:       cache,
		bus:         bus,
		oracle:      oracle,
		archiver:    archiver,
		chainWindow: chainWindow,
		logger:      logger.With(slog.String("component", "resolution")),
		now:         time.Now,
	}
}

// TallyVotes groups a market's ballots by choice.
func (s *ResolutionService) TallyVotes(ctx context.Context, marketID uuid.UUID) (domain.Tally, error) {
	var t domain.Tally
	err := s.uow.Do(ctx, func(st domain.Stores) error {
		var err error
		t, err = st.Votes.Tally(ctx, marketID)
		return err
	})
	if err != nil {
		return domain.Tally{}, fmt.Errorf("resolution: tally votes for %s: %w", marketID, err)
	}
	return t, nil
}

// ResolveMarket resolves a market to the given result and settles it:
// terminal fields, payouts, streaks, reputation deltas, rank bands, and
// chained-child activation, all in one committed unit. Resolving an
// already-resolved market fails with ErrStateConflict.
func (s *ResolutionService) ResolveMarket(ctx context.Context, marketID uuid.UUID, result domain.Side, method domain.ResolutionMethod) (domain.ResolutionSummary, error) {
	if !result.Valid() {
		return domain.ResolutionSummary{}, fmt.Errorf("resolution: result must be yes or no, got %q: %w", result, domain.ErrValidation)
	}
	if !domain.ValidResolutionMethod(method) {
		return domain.ResolutionSummary{}, fmt.Errorf("resolution: unknown method %q: %w", method, domain.ErrValidation)
	}

	unlock, err := s.locks.Acquire(ctx, domain.MarketLockKey(marketID), marketLockTTL)
	if err != nil {
		return domain.ResolutionSummary{}, fmt.Errorf("resolution: lock market %s: %w", marketID, err)
	}
	defer unlock()

	var (
		summary domain.ResolutionSummary
		market  domain.Market
		trades  []domain.Trade
	)
	err = s.uow.Do(ctx, func(st domain.Stores) error {
		m, err := st.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}
		summary, trades, err = s.settle(ctx, st, &m, result, method)
		market = m
		return err
	})
	if err != nil {
		return domain.ResolutionSummary{}, fmt.Errorf("resolution: resolve %s: %w", marketID, err)
	}

	s.afterResolve(ctx, market, summary, trades)
	return summary, nil
}

// ProcessVotingDeadline handles a market whose voting deadline has elapsed:
// with a supermajority it resolves as community; without one it transitions
// to disputed and leaves the ruling to the oracle. A summary with an empty
// Result means the market is now disputed.
func (s *ResolutionService) ProcessVotingDeadline(ctx context.Context, marketID uuid.UUID) (domain.ResolutionSummary, error) {
	unlock, err := s.locks.Acquire(ctx, domain.MarketLockKey(marketID), marketLockTTL)
	if err != nil {
		return domain.ResolutionSummary{}, fmt.Errorf("resolution: lock market %s: %w", marketID, err)
	}
	defer unlock()

	var (
		summary  domain.ResolutionSummary
		market   domain.Market
		trades   []domain.Trade
		resolved bool
	)
	err = s.uow.Do(ctx, func(st domain.Stores) error {
		m, err := st.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}
		if err := lifecycle.GuardVote(m); err != nil {
			return err
		}

		tally, err := st.Votes.Tally(ctx, m.ID)
		if err != nil {
			return err
		}

		if result := CheckSupermajority(tally); result != nil {
			summary, trades, err = s.settle(ctx, st, &m, *result, domain.ResolutionCommunity)
			if err != nil {
				return err
			}
			summary.Tally = &tally
			market = m
			resolved = true
			return nil
		}

		if err := lifecycle.Transition(&m, domain.MarketStatusDisputed); err != nil {
			return err
		}
		m.UpdatedAt = s.now().UTC()
		if err := st.Markets.Update(ctx, m); err != nil {
			return err
		}
		if err := st.Audit.Log(ctx, "market_disputed", map[string]any{
			"market_id":   m.ID.String(),
			"yes_votes":   tally.Yes,
			"no_votes":    tally.No,
			"total_votes": tally.Total,
		}); err != nil {
			return err
		}

		summary = domain.ResolutionSummary{MarketID: m.ID, Tally: &tally}
		market = m
		return nil
	})
	if err != nil {
		return domain.ResolutionSummary{}, fmt.Errorf("resolution: process voting deadline for %s: %w", marketID, err)
	}

	if resolved {
		s.afterResolve(ctx, market, summary, trades)
	} else if s.cache != nil {
		_ = s.cache.Invalidate(ctx, market.ID)
	}
	return summary, nil
}

// ResolveDispute asks the oracle for a binding ruling on a disputed market
// and applies it with method=prophet. The oracle call runs outside any lock
// with a 60s timeout; on failure the ruling falls back to the majority of
// cast ballots and the fallback is recorded in the audit log.
func (s *ResolutionService) ResolveDispute(ctx context.Context, marketID uuid.UUID) (domain.ResolutionSummary, error) {
	var (
		market domain.Market
		tally  domain.Tally
	)
	err := s.uow.Do(ctx, func(st domain.Stores) error {
		m, err := st.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status != domain.MarketStatusDisputed {
			return fmt.Errorf("resolution: market %s is %s, dispute ruling requires disputed: %w", m.ID, m.Status, domain.ErrStateConflict)
		}
		market = m
		tally, err = st.Votes.Tally(ctx, m.ID)
		return err
	})
	if err != nil {
		return domain.ResolutionSummary{}, fmt.Errorf("resolution: load dispute %s: %w", marketID, err)
	}

	ruling := s.requestRuling(ctx, market, tally)

	summary, err := s.ResolveMarket(ctx, marketID, ruling.Ruling, domain.ResolutionProphet)
	if err != nil {
		return domain.ResolutionSummary{}, err
	}
	summary.Tally = &tally
	summary.OracleFallback = ruling.Fallback

	if ruling.Fallback {
		auditErr := s.uow.Do(ctx, func(st domain.Stores) error {
			return st.Audit.Log(ctx, "oracle_fallback", map[string]any{
				"market_id": marketID.String(),
				"ruling":    string(ruling.Ruling),
				"reasoning": ruling.Reasoning,
			})
		})
		if auditErr != nil {
			s.logger.WarnContext(ctx, "resolution: audit oracle fallback failed",
				slog.String("market_id", marketID.String()),
				slog.String("error", auditErr.Error()),
			)
		}
	}
	return summary, nil
}

// requestRuling calls the oracle with a bounded timeout and degrades to the
// majority of cast ballots when the call fails, times out, or returns an
// unusable side. Ties fall to no.
func (s *ResolutionService) requestRuling(ctx context.Context, m domain.Market, tally domain.Tally) domain.Ruling {
	majority := func(reason string) domain.Ruling {
		r := domain.SideNo
		if tally.Yes > tally.No {
			r = domain.SideYes
		}
		return domain.Ruling{Ruling: r, Confidence: 0.5, Reasoning: reason, Fallback: true}
	}

	if s.oracle == nil {
		return majority("no oracle configured, ruling by majority vote")
	}

	octx, cancel := context.WithTimeout(ctx, oracleTimeout)
	defer cancel()

	ruling, err := s.oracle.DisputeRuling(octx, m.Title, m.Description, tally.Yes, tally.No)
	if err != nil {
		s.logger.WarnContext(ctx, "resolution: oracle ruling failed, falling back to majority",
			slog.String("market_id", m.ID.String()),
			slog.String("error", err.Error()),
		)
		return majority("oracle unavailable, ruling by majority vote")
	}
	if !ruling.Ruling.Valid() {
		return majority("oracle returned an unusable ruling, ruling by majority vote")
	}
	return ruling
}

// settle performs resolution steps 2-6 against the caller's store scope: it
// must run inside a unit of work with the market lock held.
func (s *ResolutionService) settle(ctx context.Context, st domain.Stores, m *domain.Market, result domain.Side, method domain.ResolutionMethod) (domain.ResolutionSummary, []domain.Trade, error) {
	if err := lifecycle.GuardResolve(*m); err != nil {
		return domain.ResolutionSummary{}, nil, err
	}
	if err := lifecycle.Transition(m, domain.MarketStatusResolved); err != nil {
		return domain.ResolutionSummary{}, nil, err
	}

	now := s.now().UTC()
	m.ResolutionResult = &result
	m.ResolutionMethod = method
	m.ResolvedAt = &now
	m.UpdatedAt = now
	if err := st.Markets.Update(ctx, *m); err != nil {
		return domain.ResolutionSummary{}, nil, err
	}

	trades, err := st.Trades.ListByMarket(ctx, m.ID, domain.ListOpts{})
	if err != nil {
		return domain.ResolutionSummary{}, nil, err
	}

	summary := domain.ResolutionSummary{
		MarketID:        m.ID,
		Result:          result,
		Method:          method,
		TradesProcessed: len(trades),
	}

	// Accounts are loaded once and written once even when a participant has
	// several trades on the market; deltas accumulate in between.
	accounts := make(map[uuid.UUID]*domain.Account)
	for _, trade := range trades {
		won := trade.Side == result
		if won {
			summary.Winners++
		} else {
			summary.Losers++
		}

		// The prophet's own bets have no room account to settle.
		if trade.AccountID == nil {
			continue
		}

		acct, ok := accounts[*trade.AccountID]
		if !ok {
			loaded, err := st.Accounts.GetByID(ctx, *trade.AccountID)
			if err != nil {
				return domain.ResolutionSummary{}, nil, err
			}
			acct = &loaded
			accounts[*trade.AccountID] = acct
		}

		if won {
			payout := lmsr.CalculatePayout(trade.SharesReceived, result, trade.Side)
			if _, err := st.Accounts.AdjustBalance(ctx, acct.ID, payout); err != nil {
				return domain.ResolutionSummary{}, nil, err
			}
			if err := st.Accounts.AccrueEarned(ctx, acct.ID, payout); err != nil {
				return domain.ResolutionSummary{}, nil, err
			}
			summary.TotalPayout += payout
			acct.TradesWon++
		}
		applyStreak(acct, won)
		acct.ReputationScore += reputationDelta(won, trade.OddsAtTrade, trade.Side)
	}

	for _, acct := range accounts {
		acct.ReputationRank = rankForScore(acct.ReputationScore)
		acct.UpdatedAt = now
		if err := st.Accounts.Update(ctx, *acct); err != nil {
			return domain.ResolutionSummary{}, nil, err
		}
	}

	activated, err := chain.ActivateChildren(ctx, st.Markets, *m, result, s.chainWindow, now)
	if err != nil {
		return domain.ResolutionSummary{}, nil, err
	}
	for _, child := range activated {
		summary.ChildrenActivated = append(summary.ChildrenActivated, child.ID)
	}

	if err := st.Audit.Log(ctx, "market_resolved", map[string]any{
		"market_id":    m.ID.String(),
		"result":       string(result),
		"method":       string(method),
		"total_payout": summary.TotalPayout,
		"winners":      summary.Winners,
		"losers":       summary.Losers,
		"children":     len(summary.ChildrenActivated),
	}); err != nil {
		return domain.ResolutionSummary{}, nil, err
	}

	return summary, trades, nil
}

// afterResolve runs the non-transactional side effects of a resolution.
func (s *ResolutionService) afterResolve(ctx context.Context, m domain.Market, summary domain.ResolutionSummary, trades []domain.Trade) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, m.ID); err != nil {
			s.logger.WarnContext(ctx, "resolution: cache invalidate failed",
				slog.String("market_id", m.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		for _, id := range summary.ChildrenActivated {
			_ = s.cache.Invalidate(ctx, id)
		}
	}

	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":        "market_resolved",
			"market_id":    m.ID.String(),
			"room_id":      m.RoomID.String(),
			"title":        m.Title,
			"result":       summary.Result,
			"method":       summary.Method,
			"total_payout": summary.TotalPayout,
			"winners":      summary.Winners,
			"losers":       summary.Losers,
		})
		if err := s.bus.Publish(ctx, "resolutions", evt); err != nil {
			s.logger.WarnContext(ctx, "resolution: publish event failed",
				slog.String("market_id", m.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.archiver != nil {
		if err := s.archiver.ArchiveResolution(ctx, m, summary, trades); err != nil {
			s.logger.WarnContext(ctx, "resolution: archive failed",
				slog.String("market_id", m.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.oracle != nil && s.bus != nil && summary.Tally != nil {
		go func() {
			cctx, cancel := context.WithTimeout(context.Background(), commentaryTimeout)
			defer cancel()

			text, err := s.oracle.ResolutionCommentary(cctx, m.Title, summary.Result, *summary.Tally, summary.Winners, summary.Losers)
			if err != nil {
				s.logger.Warn("resolution: commentary failed",
					slog.String("market_id", m.ID.String()),
					slog.String("error", err.Error()),
				)
				return
			}

			evt, _ := json.Marshal(map[string]any{
				"event":     "prophet_commentary",
				"market_id": m.ID.String(),
				"room_id":   m.RoomID.String(),
				"text":      text,
			})
			_ = s.bus.Publish(cctx, "commentary", evt)
		}()
	}
}
