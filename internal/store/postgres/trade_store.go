package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL. Trades are
// append-only; there is no update path.
type TradeStore struct {
	q querier
}

var _ domain.TradeStore = (*TradeStore)(nil)

const tradeColumns = `id, market_id, account_id, prophet_trade, side, amount, shares_received, odds_at_trade, created_at`

// Insert appends one trade to the log.
func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (id, market_id, account_id, prophet_trade, side, amount, shares_received, odds_at_trade, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.q.Exec(ctx, query,
		t.ID, t.MarketID, t.AccountID, t.ProphetTrade,
		string(t.Side), t.Amount, t.SharesReceived, t.OddsAtTrade, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

// ListByMarket returns a market's trades in execution order.
func (s *TradeStore) ListByMarket(ctx context.Context, marketID uuid.UUID, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE market_id = $1 ORDER BY created_at`
	return s.listTrades(ctx, applyListOpts(query, opts), marketID)
}

// CountByMarket returns the number of trades on a market.
func (s *TradeStore) CountByMarket(ctx context.Context, marketID uuid.UUID) (int64, error) {
	var count int64
	err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM trades WHERE market_id = $1`, marketID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count trades for %s: %w", marketID, err)
	}
	return count, nil
}

// ListByAccount returns an account's trades, newest first.
func (s *TradeStore) ListByAccount(ctx context.Context, accountID uuid.UUID, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE account_id = $1 ORDER BY created_at DESC`
	return s.listTrades(ctx, applyListOpts(query, opts), accountID)
}

func (s *TradeStore) listTrades(ctx context.Context, query string, args ...any) ([]domain.Trade, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	return trades, nil
}

func scanTrade(row pgx.Row) (domain.Trade, error) {
	var (
		t    domain.Trade
		side string
	)
	err := row.Scan(
		&t.ID, &t.MarketID, &t.AccountID, &t.ProphetTrade,
		&side, &t.Amount, &t.SharesReceived, &t.OddsAtTrade, &t.CreatedAt,
	)
	if err != nil {
		return domain.Trade{}, err
	}
	t.Side = domain.Side(side)
	return t, nil
}
