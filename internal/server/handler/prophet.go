package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

// ProphetService generates oracle-authored markets for a room.
type ProphetService interface {
	GenerateMarkets(ctx context.Context, roomID uuid.UUID) ([]domain.Market, error)
}

// ProphetHandler exposes the oracle's market generation endpoint.
type ProphetHandler struct {
	prophet ProphetService
	logger  *slog.Logger
}

// NewProphetHandler creates a ProphetHandler.
func NewProphetHandler(prophet ProphetService, logger *slog.Logger) *ProphetHandler {
	return &ProphetHandler{prophet: prophet, logger: logger}
}

// GenerateMarkets asks the oracle to create fresh markets for a room.
// POST /api/rooms/{id}/prophet/markets
func (h *ProphetHandler) GenerateMarkets(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	markets, err := h.prophet.GenerateMarkets(r.Context(), roomID)
	if err != nil {
		writeDomainError(w, h.logger, err, "generate markets")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"markets": markets})
}
