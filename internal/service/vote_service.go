package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/prophecy/internal/domain"
	"github.com/alanyoungcy/prophecy/internal/lifecycle"
)

// marketResolver is the slice of the resolution service the vote service
// needs for early community resolution.
type marketResolver interface {
	ResolveMarket(ctx context.Context, marketID uuid.UUID, result domain.Side, method domain.ResolutionMethod) (domain.ResolutionSummary, error)
}

// VoteSummary reports the state of a market's ballot after a vote lands.
type VoteSummary struct {
	MarketID uuid.UUID                 `json:"market_id"`
	Choice   domain.Side               `json:"choice"`
	Tally    domain.Tally              `json:"tally"`
	Resolved bool                      `json:"resolved"`
	Outcome  *domain.ResolutionSummary `json:"outcome,omitempty"`
}

// VoteService records resolution ballots during a market's voting window.
type VoteService struct {
	uow      domain.UnitOfWork
	locks    domain.LockManager
	bus      domain.SignalBus
	resolver marketResolver
	policy   domain.VotePolicy
	logger   *slog.Logger
}

// NewVoteService creates a VoteService. bus and resolver may be nil; without
// a resolver no early resolution is attempted and the sweep settles the
// market at its voting deadline.
func NewVoteService(
	uow domain.UnitOfWork,
	locks domain.LockManager,
	bus domain.SignalBus,
	resolver marketResolver,
	policy domain.VotePolicy,
	logger *slog.Logger,
) *VoteService {
	if policy == "" {
		policy = domain.VotePolicyReject
	}
	return &VoteService{
		uow:      uow,
		locks:    locks,
		bus:      bus,
		resolver: resolver,
		policy:   policy,
		logger:   logger.With(slog.String("component", "votes")),
	}
}

// CastVote records one ballot on a market in its voting window. Under the
// reject policy a second ballot from the same account fails with
// ErrDuplicateVote; under the overwrite policy it replaces the first. When
// the ballot pushes one side to a supermajority of the room's eligible
// voters, the market resolves immediately as a community resolution.
func (s *VoteService) CastVote(ctx context.Context, marketID, accountID uuid.UUID, choice domain.Side) (VoteSummary, error) {
	if !choice.Valid() {
		return VoteSummary{}, fmt.Errorf("votes: choice must be yes or no, got %q: %w", choice, domain.ErrValidation)
	}

	unlock, err := s.locks.Acquire(ctx, domain.MarketLockKey(marketID), marketLockTTL)
	if err != nil {
		return VoteSummary{}, fmt.Errorf("votes: lock market %s: %w", marketID, err)
	}
	defer unlock()

	var (
		market   domain.Market
		tally    domain.Tally
		eligible int
	)
	err = s.uow.Do(ctx, func(st domain.Stores) error {
		m, err := st.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}
		if err := lifecycle.GuardVote(m); err != nil {
			return err
		}

		acct, err := st.Accounts.GetByID(ctx, accountID)
		if err != nil {
			return err
		}
		if acct.RoomID != m.RoomID {
			return fmt.Errorf("votes: account %s is not in room %s: %w", accountID, m.RoomID, domain.ErrUnauthorized)
		}
		if !acct.Role.CanVote() {
			return fmt.Errorf("votes: role %s may not vote: %w", acct.Role, domain.ErrUnauthorized)
		}

		now := time.Now().UTC()
		vote := domain.Vote{
			ID:        uuid.New(),
			MarketID:  m.ID,
			AccountID: acct.ID,
			Choice:    choice,
			CreatedAt: now,
		}

		fresh := true
		switch s.policy {
		case domain.VotePolicyOverwrite:
			if _, err := st.Votes.Get(ctx, m.ID, acct.ID); err == nil {
				fresh = false
			} else if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			if err := st.Votes.Upsert(ctx, vote); err != nil {
				return err
			}
		default:
			if err := st.Votes.Insert(ctx, vote); err != nil {
				return err
			}
		}

		if fresh {
			acct.VotesCast++
			acct.UpdatedAt = now
			if err := st.Accounts.Update(ctx, acct); err != nil {
				return err
			}
		}

		tally, err = st.Votes.Tally(ctx, m.ID)
		if err != nil {
			return err
		}

		voters, err := st.Accounts.ListByRoom(ctx, m.RoomID, domain.ListOpts{})
		if err != nil {
			return err
		}
		for _, v := range voters {
			if v.Role.CanVote() {
				eligible++
			}
		}

		market = m
		return nil
	})
	// Released early; ResolveMarket takes its own lock. unlock is idempotent,
	// the deferred call covers the panic path.
	unlock()
	if err != nil {
		return VoteSummary{}, fmt.Errorf("votes: cast vote on %s: %w", marketID, err)
	}

	summary := VoteSummary{MarketID: market.ID, Choice: choice, Tally: tally}
	s.publishVote(ctx, market, choice, tally)

	if result := earlyResult(tally, eligible); result != nil && s.resolver != nil {
		res, err := s.resolver.ResolveMarket(ctx, market.ID, *result, domain.ResolutionCommunity)
		if err != nil {
			// A concurrent sweep or admin may have resolved it first.
			if errors.Is(err, domain.ErrStateConflict) {
				return summary, nil
			}
			return VoteSummary{}, fmt.Errorf("votes: early resolution of %s: %w", market.ID, err)
		}
		res.Tally = &tally
		summary.Resolved = true
		summary.Outcome = &res
	}

	return summary, nil
}

// GetBallot returns the account's recorded vote on a market.
func (s *VoteService) GetBallot(ctx context.Context, marketID, accountID uuid.UUID) (domain.Vote, error) {
	var v domain.Vote
	err := s.uow.Do(ctx, func(st domain.Stores) error {
		var err error
		v, err = st.Votes.Get(ctx, marketID, accountID)
		return err
	})
	if err != nil {
		return domain.Vote{}, fmt.Errorf("votes: get ballot for %s on %s: %w", accountID, marketID, err)
	}
	return v, nil
}

// earlyResult returns the winning side when one choice already holds a
// supermajority of the room's eligible voters, making the outcome certain no
// matter how the remaining ballots fall. A bare supermajority of cast votes
// alone is not enough before the deadline (one ballot is always 100% of
// itself).
func earlyResult(t domain.Tally, eligible int) *domain.Side {
	if eligible == 0 {
		return nil
	}
	if float64(t.Yes)/float64(eligible) >= SupermajorityRatio {
		s := domain.SideYes
		return &s
	}
	if float64(t.No)/float64(eligible) >= SupermajorityRatio {
		s := domain.SideNo
		return &s
	}
	return nil
}

func (s *VoteService) publishVote(ctx context.Context, m domain.Market, choice domain.Side, tally domain.Tally) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":     "vote_cast",
		"market_id": m.ID.String(),
		"room_id":   m.RoomID.String(),
		"choice":    choice,
		"yes_votes": tally.Yes,
		"no_votes":  tally.No,
	})
	if err := s.bus.Publish(ctx, "votes", evt); err != nil {
		s.logger.WarnContext(ctx, "votes: publish event failed",
			slog.String("market_id", m.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}
