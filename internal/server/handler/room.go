package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/alanyoungcy/prophecy/internal/domain"
	"github.com/alanyoungcy/prophecy/internal/service"
)

// RoomService defines the methods the room handler requires.
type RoomService interface {
	CreateRoom(ctx context.Context, p service.CreateRoomParams) (domain.Room, domain.Account, error)
	JoinRoom(ctx context.Context, joinCode, displayName string, role domain.Role) (domain.Room, domain.Account, error)
	GetRoom(ctx context.Context, id uuid.UUID) (domain.Room, error)
	GetAccount(ctx context.Context, id uuid.UUID) (domain.Account, error)
	Leaderboard(ctx context.Context, roomID uuid.UUID, opts domain.ListOpts) ([]domain.Account, error)
}

// RoomHandler serves room and account endpoints.
type RoomHandler struct {
	rooms  RoomService
	logger *slog.Logger
}

// NewRoomHandler creates a RoomHandler.
func NewRoomHandler(rooms RoomService, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, logger: logger}
}

type createRoomRequest struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	CreatorName     string  `json:"creator_name"`
	StartingBalance float64 `json:"starting_balance"`
	MinBet          float64 `json:"min_bet"`
	MaxBet          float64 `json:"max_bet"`
}

type roomMembershipResponse struct {
	Room    domain.Room    `json:"room"`
	Account domain.Account `json:"account"`
}

// CreateRoom creates a room and enrolls the creator as admin.
// POST /api/rooms
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	room, account, err := h.rooms.CreateRoom(r.Context(), service.CreateRoomParams{
		Name:            req.Name,
		Description:     req.Description,
		CreatorName:     req.CreatorName,
		StartingBalance: req.StartingBalance,
		MinBet:          req.MinBet,
		MaxBet:          req.MaxBet,
	})
	if err != nil {
		writeDomainError(w, h.logger, err, "create room")
		return
	}

	writeJSON(w, http.StatusCreated, roomMembershipResponse{Room: room, Account: account})
}

type joinRoomRequest struct {
	JoinCode    string `json:"join_code"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// JoinRoom enrolls a new member via join code.
// POST /api/rooms/join
func (h *RoomHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	room, account, err := h.rooms.JoinRoom(r.Context(), req.JoinCode, req.DisplayName, domain.Role(req.Role))
	if err != nil {
		writeDomainError(w, h.logger, err, "join room")
		return
	}

	writeJSON(w, http.StatusCreated, roomMembershipResponse{Room: room, Account: account})
}

// GetRoom returns a room by ID.
// GET /api/rooms/{id}
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	room, err := h.rooms.GetRoom(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err, "get room")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// Leaderboard returns a room's accounts ranked by reputation.
// GET /api/rooms/{id}/leaderboard
func (h *RoomHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	accounts, err := h.rooms.Leaderboard(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeDomainError(w, h.logger, err, "leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": accounts})
}

// GetAccount returns a single account.
// GET /api/accounts/{id}
func (h *RoomHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	account, err := h.rooms.GetAccount(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err, "get account")
		return
	}
	writeJSON(w, http.StatusOK, account)
}
