package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

// TradingService defines the methods the trade handler requires.
type TradingService interface {
	PlaceTrade(ctx context.Context, marketID, accountID uuid.UUID, side domain.Side, amount float64) (domain.TradeReceipt, error)
	ListMarketTrades(ctx context.Context, marketID uuid.UUID, opts domain.ListOpts) ([]domain.Trade, error)
	ListAccountTrades(ctx context.Context, accountID uuid.UUID, opts domain.ListOpts) ([]domain.Trade, error)
}

// TradeHandler serves trading endpoints.
type TradeHandler struct {
	trading TradingService
	logger  *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trading TradingService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trading: trading, logger: logger}
}

type placeTradeRequest struct {
	AccountID uuid.UUID `json:"account_id"`
	Side      string    `json:"side"`
	Amount    float64   `json:"amount"`
}

// PlaceTrade executes a buy on a market.
// POST /api/markets/{id}/trades
func (h *TradeHandler) PlaceTrade(w http.ResponseWriter, r *http.Request) {
	marketID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req placeTradeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccountID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	receipt, err := h.trading.PlaceTrade(r.Context(), marketID, req.AccountID, domain.Side(req.Side), req.Amount)
	if err != nil {
		writeDomainError(w, h.logger, err, "place trade")
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// ListMarketTrades returns a market's trades in execution order.
// GET /api/markets/{id}/trades
func (h *TradeHandler) ListMarketTrades(w http.ResponseWriter, r *http.Request) {
	marketID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	trades, err := h.trading.ListMarketTrades(r.Context(), marketID, parseListOpts(r))
	if err != nil {
		writeDomainError(w, h.logger, err, "list trades")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// ListAccountTrades returns an account's trades, newest first.
// GET /api/accounts/{id}/trades
func (h *TradeHandler) ListAccountTrades(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	trades, err := h.trading.ListAccountTrades(r.Context(), accountID, parseListOpts(r))
	if err != nil {
		writeDomainError(w, h.logger, err, "list trades")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}
