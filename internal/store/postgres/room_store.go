package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

// RoomStore implements domain.RoomStore using PostgreSQL.
type RoomStore struct {
	q querier
}

var _ domain.RoomStore = (*RoomStore)(nil)

const roomColumns = `id, name, description, join_code, creator_id, starting_balance, min_bet, max_bet, created_at`

// Create inserts a new room.
func (s *RoomStore) Create(ctx context.Context, r domain.Room) error {
	const query = `
		INSERT INTO rooms (id, name, description, join_code, creator_id, starting_balance, min_bet, max_bet, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.q.Exec(ctx, query,
		r.ID, r.Name, r.Description, r.JoinCode, r.CreatorID,
		r.StartingBalance, r.MinBet, r.MaxBet, r.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("postgres: create room %s: %w", r.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create room %s: %w", r.ID, err)
	}
	return nil
}

// GetByID retrieves a room.
func (s *RoomStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Room, error) {
	row := s.q.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id)
	r, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Room{}, fmt.Errorf("postgres: get room %s: %w", id, domain.ErrNotFound)
		}
		return domain.Room{}, fmt.Errorf("postgres: get room %s: %w", id, err)
	}
	return r, nil
}

// GetByJoinCode retrieves a room by its join code.
func (s *RoomStore) GetByJoinCode(ctx context.Context, code string) (domain.Room, error) {
	row := s.q.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE join_code = $1`, code)
	r, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Room{}, fmt.Errorf("postgres: get room by join code: %w", domain.ErrNotFound)
		}
		return domain.Room{}, fmt.Errorf("postgres: get room by join code: %w", err)
	}
	return r, nil
}

func scanRoom(row pgx.Row) (domain.Room, error) {
	var r domain.Room
	err := row.Scan(
		&r.ID, &r.Name, &r.Description, &r.JoinCode, &r.CreatorID,
		&r.StartingBalance, &r.MinBet, &r.MaxBet, &r.CreatedAt,
	)
	return r, err
}
