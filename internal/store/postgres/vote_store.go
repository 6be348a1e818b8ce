package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

// VoteStore implements domain.VoteStore using PostgreSQL. The unique
// (market_id, account_id) constraint is the single source of the one-ballot
// rule; Insert surfaces it as ErrDuplicateVote.
type VoteStore struct {
	q querier
}

var _ domain.VoteStore = (*VoteStore)(nil)

// Insert stores a new vote, failing with ErrDuplicateVote if the account
// already voted on the market.
func (s *VoteStore) Insert(ctx context.Context, v domain.Vote) error {
	const query = `
		INSERT INTO votes (id, market_id, account_id, choice, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.q.Exec(ctx, query, v.ID, v.MarketID, v.AccountID, string(v.Choice), v.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "votes_one_per_account") {
			return fmt.Errorf("postgres: insert vote: %w", domain.ErrDuplicateVote)
		}
		return fmt.Errorf("postgres: insert vote %s: %w", v.ID, err)
	}
	return nil
}

// Upsert stores a vote, overwriting any previous ballot from the account.
func (s *VoteStore) Upsert(ctx context.Context, v domain.Vote) error {
	const query = `
		INSERT INTO votes (id, market_id, account_id, choice, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (market_id, account_id) DO UPDATE SET
			choice = EXCLUDED.choice,
			created_at = EXCLUDED.created_at`

	_, err := s.q.Exec(ctx, query, v.ID, v.MarketID, v.AccountID, string(v.Choice), v.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert vote %s: %w", v.ID, err)
	}
	return nil
}

// Get retrieves an account's ballot on a market.
func (s *VoteStore) Get(ctx context.Context, marketID, accountID uuid.UUID) (domain.Vote, error) {
	const query = `
		SELECT id, market_id, account_id, choice, created_at
		FROM votes WHERE market_id = $1 AND account_id = $2`

	var (
		v      domain.Vote
		choice string
	)
	err := s.q.QueryRow(ctx, query, marketID, accountID).
		Scan(&v.ID, &v.MarketID, &v.AccountID, &choice, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Vote{}, fmt.Errorf("postgres: get vote: %w", domain.ErrNotFound)
		}
		return domain.Vote{}, fmt.Errorf("postgres: get vote: %w", err)
	}
	v.Choice = domain.Side(choice)
	return v, nil
}

// Tally groups a market's ballots by choice.
func (s *VoteStore) Tally(ctx context.Context, marketID uuid.UUID) (domain.Tally, error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE choice = 'yes'),
			COUNT(*) FILTER (WHERE choice = 'no'),
			COUNT(*)
		FROM votes WHERE market_id = $1`

	var t domain.Tally
	err := s.q.QueryRow(ctx, query, marketID).Scan(&t.Yes, &t.No, &t.Total)
	if err != nil {
		return domain.Tally{}, fmt.Errorf("postgres: tally votes for %s: %w", marketID, err)
	}
	return t, nil
}
