package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	q querier
}

var _ domain.MarketStore = (*MarketStore)(nil)

const marketColumns = `
	id, room_id, creator_id, title, description, category, kind,
	parent_id, trigger_condition, chain_depth, reference_id, threshold,
	liquidity_b, yes_shares, no_shares, odds_yes, total_pool,
	status, resolution_result, resolution_method,
	expires_at, voting_deadline, resolved_at, created_at, updated_at`

// Create inserts a new market.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	thresholdJSON, err := marshalThreshold(m.Threshold)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO markets (
			id, room_id, creator_id, title, description, category, kind,
			parent_id, trigger_condition, chain_depth, reference_id, threshold,
			liquidity_b, yes_shares, no_shares, odds_yes, total_pool,
			status, resolution_result, resolution_method,
			expires_at, voting_deadline, resolved_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17,
			$18, $19, $20,
			$21, $22, $23, $24, $25
		)`

	_, err = s.q.Exec(ctx, query,
		m.ID, m.RoomID, m.CreatorID, m.Title, m.Description, m.Category, string(m.Kind),
		m.ParentID, string(m.Trigger), m.ChainDepth, m.ReferenceID, thresholdJSON,
		m.LiquidityB, m.YesShares, m.NoShares, m.OddsYes, m.TotalPool,
		string(m.Status), sideText(m.ResolutionResult), string(m.ResolutionMethod),
		m.ExpiresAt, m.VotingDeadline, m.ResolvedAt, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("postgres: create market %s: %w", m.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// GetByID retrieves a single market.
func (s *MarketStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Market, error) {
	row := s.q.QueryRow(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// Update persists a market's mutable fields.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	thresholdJSON, err := marshalThreshold(m.Threshold)
	if err != nil {
		return err
	}

	const query = `
		UPDATE markets SET
			title = $2, description = $3, category = $4,
			threshold = $5,
			yes_shares = $6, no_shares = $7, odds_yes = $8, total_pool = $9,
			status = $10, resolution_result = $11, resolution_method = $12,
			expires_at = $13, voting_deadline = $14, resolved_at = $15,
			updated_at = $16
		WHERE id = $1`

	tag, err := s.q.Exec(ctx, query,
		m.ID, m.Title, m.Description, m.Category,
		thresholdJSON,
		m.YesShares, m.NoShares, m.OddsYes, m.TotalPool,
		string(m.Status), sideText(m.ResolutionResult), string(m.ResolutionMethod),
		m.ExpiresAt, m.VotingDeadline, m.ResolvedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, domain.ErrNotFound)
	}
	return nil
}

// ListByRoom returns a room's markets, newest first.
func (s *MarketStore) ListByRoom(ctx context.Context, roomID uuid.UUID, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE room_id = $1 ORDER BY created_at DESC`
	return s.listMarkets(ctx, applyListOpts(query, opts), roomID)
}

// ListByStatus returns markets in the given status, newest first.
func (s *MarketStore) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE status = $1 ORDER BY created_at DESC`
	return s.listMarkets(ctx, applyListOpts(query, opts), string(status))
}

// ListChildren returns every market whose parent is the given id.
func (s *MarketStore) ListChildren(ctx context.Context, parentID uuid.UUID) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE parent_id = $1 ORDER BY created_at`
	return s.listMarkets(ctx, query, parentID)
}

// ListActiveDerivatives returns derivative markets still in active status.
func (s *MarketStore) ListActiveDerivatives(ctx context.Context) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE kind = 'derivative' AND status = 'active' ORDER BY created_at`
	return s.listMarkets(ctx, query)
}

// ListExpired returns active markets whose trading window has elapsed.
func (s *MarketStore) ListExpired(ctx context.Context, now time.Time) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE status = 'active' AND expires_at <= $1 ORDER BY expires_at`
	return s.listMarkets(ctx, query, now)
}

// ListVotingExpired returns voting markets whose voting deadline has elapsed.
func (s *MarketStore) ListVotingExpired(ctx context.Context, now time.Time) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE status = 'voting' AND voting_deadline <= $1 ORDER BY voting_deadline`
	return s.listMarkets(ctx, query, now)
}

func (s *MarketStore) listMarkets(ctx context.Context, query string, args ...any) ([]domain.Market, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	return markets, nil
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m                domain.Market
		kind             string
		trigger          string
		status           string
		method           string
		resolutionResult *string
		thresholdJSON    []byte
	)

	err := row.Scan(
		&m.ID, &m.RoomID, &m.CreatorID, &m.Title, &m.Description, &m.Category, &kind,
		&m.ParentID, &trigger, &m.ChainDepth, &m.ReferenceID, &thresholdJSON,
		&m.LiquidityB, &m.YesShares, &m.NoShares, &m.OddsYes, &m.TotalPool,
		&status, &resolutionResult, &method,
		&m.ExpiresAt, &m.VotingDeadline, &m.ResolvedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}

	m.Kind = domain.MarketKind(kind)
	m.Trigger = domain.TriggerCondition(trigger)
	m.Status = domain.MarketStatus(status)
	m.ResolutionMethod = domain.ResolutionMethod(method)
	if resolutionResult != nil {
		side := domain.Side(*resolutionResult)
		m.ResolutionResult = &side
	}
	if len(thresholdJSON) > 0 {
		var th domain.Threshold
		if err := json.Unmarshal(thresholdJSON, &th); err != nil {
			return domain.Market{}, fmt.Errorf("unmarshal threshold: %w", err)
		}
		m.Threshold = &th
	}
	return m, nil
}

func marshalThreshold(th *domain.Threshold) ([]byte, error) {
	if th == nil {
		return nil, nil
	}
	data, err := json.Marshal(th)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal threshold: %w", err)
	}
	return data, nil
}

func sideText(s *domain.Side) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

// applyListOpts appends LIMIT/OFFSET as literals. Limit and Offset come from
// parsed integers, never raw request strings.
func applyListOpts(query string, opts domain.ListOpts) string {
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}
	return query
}
