package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

// querier is the subset of pgx shared by pgxpool.Pool and pgx.Tx, so every
// store works identically inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UnitOfWork implements domain.UnitOfWork: every Do call runs fn against
// stores bound to a single transaction that commits only if fn returns nil.
type UnitOfWork struct {
	client *Client
}

var _ domain.UnitOfWork = (*UnitOfWork)(nil)

// NewUnitOfWork creates a UnitOfWork on the given Client.
func NewUnitOfWork(c *Client) *UnitOfWork {
	return &UnitOfWork{client: c}
}

// Do begins a transaction, binds every store to it, and runs fn. An error
// from fn rolls the transaction back and is returned unchanged.
func (u *UnitOfWork) Do(ctx context.Context, fn func(s domain.Stores) error) error {
	tx, err := u.client.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}

	err = fn(bindStores(tx))
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("postgres: rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func bindStores(q querier) domain.Stores {
	return domain.Stores{
		Markets:  &MarketStore{q: q},
		Trades:   &TradeStore{q: q},
		Votes:    &VoteStore{q: q},
		Rooms:    &RoomStore{q: q},
		Accounts: &AccountStore{q: q},
		Audit:    &AuditStore{q: q},
	}
}

// Stores returns stores bound directly to the pool, for reads that do not
// need transaction scope.
func (u *UnitOfWork) Stores() domain.Stores {
	return bindStores(u.client.pool)
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation, optionally on a specific constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
