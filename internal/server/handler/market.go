package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/prophecy/internal/chain"
	"github.com/alanyoungcy/prophecy/internal/domain"
	"github.com/alanyoungcy/prophecy/internal/service"
)

// MarketService defines the methods the market handler requires.
type MarketService interface {
	CreateMarket(ctx context.Context, p service.CreateMarketParams) (domain.Market, error)
	GetMarket(ctx context.Context, id uuid.UUID) (domain.Market, error)
	ListRoomMarkets(ctx context.Context, roomID uuid.UUID, opts domain.ListOpts) ([]domain.Market, error)
	ChainTree(ctx context.Context, marketID uuid.UUID) (*chain.TreeNode, error)
	Quote(ctx context.Context, marketID uuid.UUID, side domain.Side, amount float64) (float64, error)
	CloseMarket(ctx context.Context, marketID, actorID uuid.UUID) (domain.Market, error)
	CancelMarket(ctx context.Context, marketID, actorID uuid.UUID) (domain.Market, error)
}

// MarketHandler serves market lifecycle endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

type createMarketRequest struct {
	RoomID      uuid.UUID  `json:"room_id"`
	CreatorID   *uuid.UUID `json:"creator_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	ExpiresAt   time.Time  `json:"expires_at"`
	LiquidityB  float64    `json:"liquidity_b"`

	ParentID *uuid.UUID `json:"parent_id"`
	Trigger  string     `json:"trigger_condition"`

	ReferenceID *uuid.UUID        `json:"reference_id"`
	Threshold   *domain.Threshold `json:"threshold"`
}

// CreateMarket creates a standard, chained, or derivative market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	market, err := h.markets.CreateMarket(r.Context(), service.CreateMarketParams{
		RoomID:      req.RoomID,
		CreatorID:   req.CreatorID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		ExpiresAt:   req.ExpiresAt,
		LiquidityB:  req.LiquidityB,
		ParentID:    req.ParentID,
		Trigger:     domain.TriggerCondition(req.Trigger),
		ReferenceID: req.ReferenceID,
		Threshold:   req.Threshold,
	})
	if err != nil {
		writeDomainError(w, h.logger, err, "create market")
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// GetMarket returns a single market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err, "get market")
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// ListRoomMarkets returns a room's markets, newest first.
// GET /api/rooms/{id}/markets
func (h *MarketHandler) ListRoomMarkets(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	markets, err := h.markets.ListRoomMarkets(r.Context(), roomID, parseListOpts(r))
	if err != nil {
		writeDomainError(w, h.logger, err, "list markets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets})
}

// ChainTree returns the full chain tree containing the market.
// GET /api/markets/{id}/chain
func (h *MarketHandler) ChainTree(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	tree, err := h.markets.ChainTree(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err, "chain tree")
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// Quote prices a hypothetical trade without executing it.
// GET /api/markets/{id}/quote?side=yes&amount=50
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	side := domain.Side(r.URL.Query().Get("side"))
	amount, err := strconv.ParseFloat(r.URL.Query().Get("amount"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	shares, err := h.markets.Quote(r.Context(), id, side, amount)
	if err != nil {
		writeDomainError(w, h.logger, err, "quote")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"side":      side,
		"amount":    amount,
		"shares":    shares,
	})
}

type actorRequest struct {
	ActorID uuid.UUID `json:"actor_id"`
}

// CloseMarket ends trading early and opens the voting window.
// POST /api/markets/{id}/close
func (h *MarketHandler) CloseMarket(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.markets.CloseMarket, "close market")
}

// CancelMarket voids the market and refunds every trade.
// POST /api/markets/{id}/cancel
func (h *MarketHandler) CancelMarket(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.markets.CancelMarket, "cancel market")
}

func (h *MarketHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, marketID, actorID uuid.UUID) (domain.Market, error),
	name string,
) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req actorRequest
	if err := decodeBody(r, &req); err != nil || req.ActorID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return
	}

	market, err := op(r.Context(), id, req.ActorID)
	if err != nil {
		writeDomainError(w, h.logger, err, name)
		return
	}
	writeJSON(w, http.StatusOK, market)
}
