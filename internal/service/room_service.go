package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

const (
	defaultStartingBalance = 1000.0
	defaultMinBet          = 1.0
	defaultMaxBet          = 250.0

	joinCodeLen = 6
	// No 0/O or 1/I so codes survive being read aloud.
	joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// CreateRoomParams carries room creation input. Zero-valued limits fall back
// to the defaults.
type CreateRoomParams struct {
	Name            string
	Description     string
	CreatorName     string
	StartingBalance float64
	MinBet          float64
	MaxBet          float64
}

// RoomService manages rooms, memberships, and the leaderboard.
type RoomService struct {
	uow    domain.UnitOfWork
	logger *slog.Logger
}

// NewRoomService creates a RoomService.
func NewRoomService(uow domain.UnitOfWork, logger *slog.Logger) *RoomService {
	return &RoomService{
		uow:    uow,
		logger: logger.With(slog.String("component", "rooms")),
	}
}

// CreateRoom creates a room with a fresh join code and enrolls the creator
// as its admin. It returns the room and the creator's account.
func (s *RoomService) CreateRoom(ctx context.Context, p CreateRoomParams) (domain.Room, domain.Account, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return domain.Room{}, domain.Account{}, fmt.Errorf("rooms: name must not be empty: %w", domain.ErrValidation)
	}
	creatorName := strings.TrimSpace(p.CreatorName)
	if creatorName == "" {
		return domain.Room{}, domain.Account{}, fmt.Errorf("rooms: creator name must not be empty: %w", domain.ErrValidation)
	}

	starting := p.StartingBalance
	if starting == 0 {
		starting = defaultStartingBalance
	}
	minBet := p.MinBet
	if minBet == 0 {
		minBet = defaultMinBet
	}
	maxBet := p.MaxBet
	if maxBet == 0 {
		maxBet = defaultMaxBet
	}
	if starting < 0 || minBet <= 0 || maxBet < minBet {
		return domain.Room{}, domain.Account{}, fmt.Errorf("rooms: invalid balance/bet limits (start=%v min=%v max=%v): %w",
			starting, minBet, maxBet, domain.ErrValidation)
	}

	code, err := generateJoinCode()
	if err != nil {
		return domain.Room{}, domain.Account{}, fmt.Errorf("rooms: generate join code: %w", err)
	}

	now := time.Now().UTC()
	room := domain.Room{
		ID:              uuid.New(),
		Name:            name,
		Description:     strings.TrimSpace(p.Description),
		JoinCode:        code,
		StartingBalance: starting,
		MinBet:          minBet,
		MaxBet:          maxBet,
		CreatedAt:       now,
	}
	creator := domain.Account{
		ID:              uuid.New(),
		RoomID:          room.ID,
		DisplayName:     creatorName,
		Role:            domain.RoleAdmin,
		Balance:         starting,
		ReputationScore: ReputationBaseline,
		ReputationRank:  rankForScore(ReputationBaseline),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	room.CreatorID = creator.ID

	err = s.uow.Do(ctx, func(st domain.Stores) error {
		if err := st.Rooms.Create(ctx, room); err != nil {
			return err
		}
		if err := st.Accounts.Create(ctx, creator); err != nil {
			return err
		}
		return st.Audit.Log(ctx, "room_created", map[string]any{
			"room_id": room.ID.String(),
			"name":    room.Name,
		})
	})
	if err != nil {
		return domain.Room{}, domain.Account{}, fmt.Errorf("rooms: create: %w", err)
	}

	s.logger.InfoContext(ctx, "room created",
		slog.String("room_id", room.ID.String()),
		slog.String("name", room.Name),
	)
	return room, creator, nil
}

// JoinRoom enrolls a new account in the room matching the join code. An
// empty role defaults to participant; spectators get a zero balance since
// they cannot trade.
func (s *RoomService) JoinRoom(ctx context.Context, joinCode, displayName string, role domain.Role) (domain.Room, domain.Account, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return domain.Room{}, domain.Account{}, fmt.Errorf("rooms: display name must not be empty: %w", domain.ErrValidation)
	}
	if role == "" {
		role = domain.RoleParticipant
	}
	if role != domain.RoleParticipant && role != domain.RoleSpectator {
		return domain.Room{}, domain.Account{}, fmt.Errorf("rooms: cannot join as %s: %w", role, domain.ErrValidation)
	}

	var (
		room domain.Room
		acct domain.Account
	)
	err := s.uow.Do(ctx, func(st domain.Stores) error {
		var err error
		room, err = st.Rooms.GetByJoinCode(ctx, strings.ToUpper(strings.TrimSpace(joinCode)))
		if err != nil {
			return err
		}

		balance := room.StartingBalance
		if role == domain.RoleSpectator {
			balance = 0
		}

		now := time.Now().UTC()
		acct = domain.Account{
			ID:              uuid.New(),
			RoomID:          room.ID,
			DisplayName:     displayName,
			Role:            role,
			Balance:         balance,
			ReputationScore: ReputationBaseline,
			ReputationRank:  rankForScore(ReputationBaseline),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return st.Accounts.Create(ctx, acct)
	})
	if err != nil {
		return domain.Room{}, domain.Account{}, fmt.Errorf("rooms: join: %w", err)
	}

	return room, acct, nil
}

// GetRoom returns one room.
func (s *RoomService) GetRoom(ctx context.Context, id uuid.UUID) (domain.Room, error) {
	var room domain.Room
	err := s.uow.Do(ctx, func(st domain.Stores) error {
		var err error
		room, err = st.Rooms.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("rooms: get %s: %w", id, err)
	}
	return room, nil
}

// GetAccount returns one account.
func (s *RoomService) GetAccount(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	var acct domain.Account
	err := s.uow.Do(ctx, func(st domain.Stores) error {
		var err error
		acct, err = st.Accounts.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return domain.Account{}, fmt.Errorf("rooms: get account %s: %w", id, err)
	}
	return acct, nil
}

// Leaderboard returns the room's accounts ordered by reputation score, best
// first.
func (s *RoomService) Leaderboard(ctx context.Context, roomID uuid.UUID, opts domain.ListOpts) ([]domain.Account, error) {
	var accounts []domain.Account
	err := s.uow.Do(ctx, func(st domain.Stores) error {
		var err error
		accounts, err = st.Accounts.ListByRoom(ctx, roomID, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("rooms: leaderboard for %s: %w", roomID, err)
	}
	return accounts, nil
}

func generateJoinCode() (string, error) {
	buf := make([]byte, joinCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, joinCodeLen)
	for i, b := range buf {
		code[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(code), nil
}
