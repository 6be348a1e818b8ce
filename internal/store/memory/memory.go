// Package memory is the in-process storage backend. It backs the test suite
// and the dependency-free dev mode with the same store contracts the
// postgres backend implements, including all-or-nothing units of work.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

// DB holds every table in process memory. One mutex serializes all units of
// work, which trivially satisfies the transaction isolation the contracts
// ask for.
type DB struct {
	mu sync.Mutex

	markets  map[uuid.UUID]domain.Market
	trades   map[uuid.UUID][]domain.Trade
	votes    map[uuid.UUID]map[uuid.UUID]domain.Vote
	rooms    map[uuid.UUID]domain.Room
	accounts map[uuid.UUID]domain.Account
	audit    []domain.AuditEntry
	auditSeq int64
}

var _ domain.UnitOfWork = (*DB)(nil)

// New creates an empty in-memory database.
func New() *DB {
	return &DB{
		markets:  make(map[uuid.UUID]domain.Market),
		trades:   make(map[uuid.UUID][]domain.Trade),
		votes:    make(map[uuid.UUID]map[uuid.UUID]domain.Vote),
		rooms:    make(map[uuid.UUID]domain.Room),
		accounts: make(map[uuid.UUID]domain.Account),
	}
}

// Do runs fn under the database mutex. On error every table is restored from
// a snapshot taken at entry, so a failing fn leaves no partial writes.
func (db *DB) Do(ctx context.Context, fn func(s domain.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	snap := db.snapshot()
	err := fn(domain.Stores{
		Markets:  &marketStore{db},
		Trades:   &tradeStore{db},
		Votes:    &voteStore{db},
		Rooms:    &roomStore{db},
		Accounts: &accountStore{db},
		Audit:    &auditStore{db},
	})
	if err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

type dbState struct {
	markets  map[uuid.UUID]domain.Market
	trades   map[uuid.UUID][]domain.Trade
	votes    map[uuid.UUID]map[uuid.UUID]domain.Vote
	rooms    map[uuid.UUID]domain.Room
	accounts map[uuid.UUID]domain.Account
	audit    []domain.AuditEntry
	auditSeq int64
}

func (db *DB) snapshot() dbState {
	s := dbState{
		markets:  make(map[uuid.UUID]domain.Market, len(db.markets)),
		trades:   make(map[uuid.UUID][]domain.Trade, len(db.trades)),
		votes:    make(map[uuid.UUID]map[uuid.UUID]domain.Vote, len(db.votes)),
		rooms:    make(map[uuid.UUID]domain.Room, len(db.rooms)),
		accounts: make(map[uuid.UUID]domain.Account, len(db.accounts)),
		audit:    db.audit[:len(db.audit):len(db.audit)],
		auditSeq: db.auditSeq,
	}
	for k, v := range db.markets {
		s.markets[k] = v
	}
	for k, v := range db.trades {
		s.trades[k] = v[:len(v):len(v)]
	}
	for k, v := range db.votes {
		inner := make(map[uuid.UUID]domain.Vote, len(v))
		for ak, av := range v {
			inner[ak] = av
		}
		s.votes[k] = inner
	}
	for k, v := range db.rooms {
		s.rooms[k] = v
	}
	for k, v := range db.accounts {
		s.accounts[k] = v
	}
	return s
}

func (db *DB) restore(s dbState) {
	db.markets = s.markets
	db.trades = s.trades
	db.votes = s.votes
	db.rooms = s.rooms
	db.accounts = s.accounts
	db.audit = s.audit
	db.auditSeq = s.auditSeq
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

type marketStore struct{ db *DB }

func (s *marketStore) Create(_ context.Context, m domain.Market) error {
	if _, ok := s.db.markets[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.db.markets[m.ID] = m
	return nil
}

func (s *marketStore) GetByID(_ context.Context, id uuid.UUID) (domain.Market, error) {
	m, ok := s.db.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *marketStore) Update(_ context.Context, m domain.Market) error {
	if _, ok := s.db.markets[m.ID]; !ok {
		return domain.ErrNotFound
	}
	s.db.markets[m.ID] = m
	return nil
}

func (s *marketStore) list(keep func(domain.Market) bool) []domain.Market {
	var out []domain.Market
	for _, m := range s.db.markets {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *marketStore) ListByRoom(_ context.Context, roomID uuid.UUID, opts domain.ListOpts) ([]domain.Market, error) {
	return paginate(s.list(func(m domain.Market) bool { return m.RoomID == roomID }), opts), nil
}

func (s *marketStore) ListByStatus(_ context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	return paginate(s.list(func(m domain.Market) bool { return m.Status == status }), opts), nil
}

func (s *marketStore) ListChildren(_ context.Context, parentID uuid.UUID) ([]domain.Market, error) {
	return s.list(func(m domain.Market) bool {
		return m.ParentID != nil && *m.ParentID == parentID
	}), nil
}

func (s *marketStore) ListActiveDerivatives(_ context.Context) ([]domain.Market, error) {
	return s.list(func(m domain.Market) bool {
		return m.Kind == domain.MarketKindDerivative && m.Status == domain.MarketStatusActive
	}), nil
}

func (s *marketStore) ListExpired(_ context.Context, now time.Time) ([]domain.Market, error) {
	return s.list(func(m domain.Market) bool {
		return m.Status == domain.MarketStatusActive && !m.ExpiresAt.After(now)
	}), nil
}

func (s *marketStore) ListVotingExpired(_ context.Context, now time.Time) ([]domain.Market, error) {
	return s.list(func(m domain.Market) bool {
		return m.Status == domain.MarketStatusVoting &&
			m.VotingDeadline != nil && !m.VotingDeadline.After(now)
	}), nil
}

type tradeStore struct{ db *DB }

func (s *tradeStore) Insert(_ context.Context, t domain.Trade) error {
	s.db.trades[t.MarketID] = append(s.db.trades[t.MarketID], t)
	return nil
}

func (s *tradeStore) ListByMarket(_ context.Context, marketID uuid.UUID, opts domain.ListOpts) ([]domain.Trade, error) {
	return paginate(s.db.trades[marketID], opts), nil
}

func (s *tradeStore) CountByMarket(_ context.Context, marketID uuid.UUID) (int64, error) {
	return int64(len(s.db.trades[marketID])), nil
}

func (s *tradeStore) ListByAccount(_ context.Context, accountID uuid.UUID, opts domain.ListOpts) ([]domain.Trade, error) {
	var out []domain.Trade
	for _, trades := range s.db.trades {
		for _, t := range trades {
			if t.AccountID != nil && *t.AccountID == accountID {
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, opts), nil
}

type voteStore struct{ db *DB }

func (s *voteStore) Insert(_ context.Context, v domain.Vote) error {
	ballots := s.db.votes[v.MarketID]
	if ballots == nil {
		ballots = make(map[uuid.UUID]domain.Vote)
		s.db.votes[v.MarketID] = ballots
	}
	if _, ok := ballots[v.AccountID]; ok {
		return domain.ErrDuplicateVote
	}
	ballots[v.AccountID] = v
	return nil
}

func (s *voteStore) Upsert(_ context.Context, v domain.Vote) error {
	ballots := s.db.votes[v.MarketID]
	if ballots == nil {
		ballots = make(map[uuid.UUID]domain.Vote)
		s.db.votes[v.MarketID] = ballots
	}
	ballots[v.AccountID] = v
	return nil
}

func (s *voteStore) Get(_ context.Context, marketID, accountID uuid.UUID) (domain.Vote, error) {
	v, ok := s.db.votes[marketID][accountID]
	if !ok {
		return domain.Vote{}, domain.ErrNotFound
	}
	return v, nil
}

func (s *voteStore) Tally(_ context.Context, marketID uuid.UUID) (domain.Tally, error) {
	var t domain.Tally
	for _, v := range s.db.votes[marketID] {
		switch v.Choice {
		case domain.SideYes:
			t.Yes++
		case domain.SideNo:
			t.No++
		}
		t.Total++
	}
	return t, nil
}

type roomStore struct{ db *DB }

func (s *roomStore) Create(_ context.Context, r domain.Room) error {
	if _, ok := s.db.rooms[r.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.db.rooms[r.ID] = r
	return nil
}

func (s *roomStore) GetByID(_ context.Context, id uuid.UUID) (domain.Room, error) {
	r, ok := s.db.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *roomStore) GetByJoinCode(_ context.Context, code string) (domain.Room, error) {
	for _, r := range s.db.rooms {
		if r.JoinCode == code {
			return r, nil
		}
	}
	return domain.Room{}, domain.ErrNotFound
}

type accountStore struct{ db *DB }

func (s *accountStore) Create(_ context.Context, a domain.Account) error {
	if _, ok := s.db.accounts[a.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.db.accounts[a.ID] = a
	return nil
}

func (s *accountStore) GetByID(_ context.Context, id uuid.UUID) (domain.Account, error) {
	a, ok := s.db.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

// Update persists everything except the money columns, matching the store
// contract.
func (s *accountStore) Update(_ context.Context, a domain.Account) error {
	cur, ok := s.db.accounts[a.ID]
	if !ok {
		return domain.ErrNotFound
	}
	a.Balance = cur.Balance
	a.LifetimeEarned = cur.LifetimeEarned
	s.db.accounts[a.ID] = a
	return nil
}

func (s *accountStore) AdjustBalance(_ context.Context, id uuid.UUID, delta float64) (float64, error) {
	a, ok := s.db.accounts[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	next := a.Balance + delta
	if next < 0 {
		return 0, domain.ErrInsufficientFunds
	}
	a.Balance = next
	s.db.accounts[id] = a
	return next, nil
}

func (s *accountStore) AccrueEarned(_ context.Context, id uuid.UUID, amount float64) error {
	a, ok := s.db.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.LifetimeEarned += amount
	s.db.accounts[id] = a
	return nil
}

func (s *accountStore) ListByRoom(_ context.Context, roomID uuid.UUID, opts domain.ListOpts) ([]domain.Account, error) {
	var out []domain.Account
	for _, a := range s.db.accounts {
		if a.RoomID == roomID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReputationScore > out[j].ReputationScore
	})
	return paginate(out, opts), nil
}

type auditStore struct{ db *DB }

func (s *auditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.db.auditSeq++
	s.db.audit = append(s.db.audit, domain.AuditEntry{
		ID:        s.db.auditSeq,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *auditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	out := make([]domain.AuditEntry, len(s.db.audit))
	copy(out, s.db.audit)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, opts), nil
}
