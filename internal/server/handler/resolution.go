package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

// ResolutionService defines the methods the resolution handler requires.
type ResolutionService interface {
	ResolveMarket(ctx context.Context, marketID uuid.UUID, result domain.Side, method domain.ResolutionMethod) (domain.ResolutionSummary, error)
}

// marketReader looks up markets for the authorization check.
type marketReader interface {
	GetMarket(ctx context.Context, id uuid.UUID) (domain.Market, error)
}

// accountReader looks up accounts for the authorization check.
type accountReader interface {
	GetAccount(ctx context.Context, id uuid.UUID) (domain.Account, error)
}

// ResolutionHandler serves the manual admin resolution endpoint. Community
// and oracle resolution run through the voting flow and the sweep loops, not
// through HTTP.
type ResolutionHandler struct {
	resolutions ResolutionService
	markets     marketReader
	accounts    accountReader
	logger      *slog.Logger
}

// NewResolutionHandler creates a ResolutionHandler.
func NewResolutionHandler(resolutions ResolutionService, markets marketReader, accounts accountReader, logger *slog.Logger) *ResolutionHandler {
	return &ResolutionHandler{
		resolutions: resolutions,
		markets:     markets,
		accounts:    accounts,
		logger:      logger,
	}
}

type resolveMarketRequest struct {
	ActorID uuid.UUID `json:"actor_id"`
	Result  string    `json:"result"`
}

// ResolveMarket applies an admin override resolution. The actor must be the
// market creator or a room admin.
// POST /api/markets/{id}/resolve
func (h *ResolutionHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	marketID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req resolveMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActorID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return
	}

	if err := h.authorize(r.Context(), marketID, req.ActorID); err != nil {
		writeDomainError(w, h.logger, err, "resolve market")
		return
	}

	summary, err := h.resolutions.ResolveMarket(r.Context(), marketID, domain.Side(req.Result), domain.ResolutionAdmin)
	if err != nil {
		writeDomainError(w, h.logger, err, "resolve market")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *ResolutionHandler) authorize(ctx context.Context, marketID, actorID uuid.UUID) error {
	m, err := h.markets.GetMarket(ctx, marketID)
	if err != nil {
		return err
	}
	actor, err := h.accounts.GetAccount(ctx, actorID)
	if err != nil {
		return err
	}
	if actor.RoomID != m.RoomID {
		return fmt.Errorf("actor %s is not in room %s: %w", actorID, m.RoomID, domain.ErrUnauthorized)
	}
	if m.CreatorID != nil && *m.CreatorID == actorID {
		return nil
	}
	if actor.Role == domain.RoleAdmin {
		return nil
	}
	return fmt.Errorf("actor %s may not resolve markets: %w", actorID, domain.ErrUnauthorized)
}
