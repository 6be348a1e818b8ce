package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL. The money
// columns move only through AdjustBalance and AccrueEarned; Update leaves
// them untouched so a stale struct can never clobber a balance.
type AccountStore struct {
	q querier
}

var _ domain.AccountStore = (*AccountStore)(nil)

const accountColumns = `
	id, room_id, display_name, role, balance, lifetime_earned,
	trades_placed, trades_won, votes_cast,
	reputation_score, reputation_rank, win_streak_current, win_streak_best,
	created_at, updated_at`

// Create inserts a new account.
func (s *AccountStore) Create(ctx context.Context, a domain.Account) error {
	const query = `
		INSERT INTO accounts (
			id, room_id, display_name, role, balance, lifetime_earned,
			trades_placed, trades_won, votes_cast,
			reputation_score, reputation_rank, win_streak_current, win_streak_best,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := s.q.Exec(ctx, query,
		a.ID, a.RoomID, a.DisplayName, string(a.Role), a.Balance, a.LifetimeEarned,
		a.TradesPlaced, a.TradesWon, a.VotesCast,
		a.ReputationScore, a.ReputationRank, a.WinStreakCurrent, a.WinStreakBest,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("postgres: create account %s: %w", a.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create account %s: %w", a.ID, err)
	}
	return nil
}

// GetByID retrieves an account.
func (s *AccountStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	row := s.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", id, domain.ErrNotFound)
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	return a, nil
}

// Update persists everything except the money columns.
func (s *AccountStore) Update(ctx context.Context, a domain.Account) error {
	const query = `
		UPDATE accounts SET
			display_name = $2, role = $3,
			trades_placed = $4, trades_won = $5, votes_cast = $6,
			reputation_score = $7, reputation_rank = $8,
			win_streak_current = $9, win_streak_best = $10,
			updated_at = $11
		WHERE id = $1`

	tag, err := s.q.Exec(ctx, query,
		a.ID, a.DisplayName, string(a.Role),
		a.TradesPlaced, a.TradesWon, a.VotesCast,
		a.ReputationScore, a.ReputationRank,
		a.WinStreakCurrent, a.WinStreakBest,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update account %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update account %s: %w", a.ID, domain.ErrNotFound)
	}
	return nil
}

// AdjustBalance applies a delta atomically and returns the new balance. A
// delta that would overdraw fails with ErrInsufficientFunds and changes
// nothing.
func (s *AccountStore) AdjustBalance(ctx context.Context, id uuid.UUID, delta float64) (float64, error) {
	const query = `
		UPDATE accounts
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1 AND balance + $2 >= 0
		RETURNING balance`

	var balance float64
	err := s.q.QueryRow(ctx, query, id, delta).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("postgres: adjust balance for %s: %w", id, err)
	}

	// No row matched: either the account is missing or the guard blocked an
	// overdraw.
	var exists bool
	if err := s.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return 0, fmt.Errorf("postgres: adjust balance for %s: %w", id, err)
	}
	if !exists {
		return 0, fmt.Errorf("postgres: adjust balance for %s: %w", id, domain.ErrNotFound)
	}
	return 0, fmt.Errorf("postgres: adjust balance for %s: %w", id, domain.ErrInsufficientFunds)
}

// AccrueEarned adds winnings to the lifetime-earned counter.
func (s *AccountStore) AccrueEarned(ctx context.Context, id uuid.UUID, amount float64) error {
	const query = `UPDATE accounts SET lifetime_earned = lifetime_earned + $2 WHERE id = $1`

	tag, err := s.q.Exec(ctx, query, id, amount)
	if err != nil {
		return fmt.Errorf("postgres: accrue earned for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: accrue earned for %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListByRoom returns a room's accounts ordered by reputation score
// descending.
func (s *AccountStore) ListByRoom(ctx context.Context, roomID uuid.UUID, opts domain.ListOpts) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE room_id = $1 ORDER BY reputation_score DESC`
	rows, err := s.q.Query(ctx, applyListOpts(query, opts), roomID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts for room %s: %w", roomID, err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list accounts for room %s: %w", roomID, err)
	}
	return accounts, nil
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		a    domain.Account
		role string
	)
	err := row.Scan(
		&a.ID, &a.RoomID, &a.DisplayName, &role, &a.Balance, &a.LifetimeEarned,
		&a.TradesPlaced, &a.TradesWon, &a.VotesCast,
		&a.ReputationScore, &a.ReputationRank, &a.WinStreakCurrent, &a.WinStreakBest,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Account{}, err
	}
	a.Role = domain.Role(role)
	return a, nil
}
