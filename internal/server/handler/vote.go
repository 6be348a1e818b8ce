package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/alanyoungcy/prophecy/internal/domain"
	"github.com/alanyoungcy/prophecy/internal/service"
)

// VoteService defines the methods the vote handler requires.
type VoteService interface {
	CastVote(ctx context.Context, marketID, accountID uuid.UUID, choice domain.Side) (service.VoteSummary, error)
	GetBallot(ctx context.Context, marketID, accountID uuid.UUID) (domain.Vote, error)
}

// TallyService exposes the running vote tally.
type TallyService interface {
	TallyVotes(ctx context.Context, marketID uuid.UUID) (domain.Tally, error)
}

// VoteHandler serves voting endpoints.
type VoteHandler struct {
	votes   VoteService
	tallies TallyService
	logger  *slog.Logger
}

// NewVoteHandler creates a VoteHandler.
func NewVoteHandler(votes VoteService, tallies TallyService, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{votes: votes, tallies: tallies, logger: logger}
}

type castVoteRequest struct {
	AccountID uuid.UUID `json:"account_id"`
	Choice    string    `json:"choice"`
}

// CastVote records a resolution ballot. If the ballot completes a
// supermajority of the room's eligible voters, the market resolves
// immediately and the response carries the resolution outcome.
// POST /api/markets/{id}/votes
func (h *VoteHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	marketID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req castVoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccountID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	summary, err := h.votes.CastVote(r.Context(), marketID, req.AccountID, domain.Side(req.Choice))
	if err != nil {
		writeDomainError(w, h.logger, err, "cast vote")
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

// GetBallot returns an account's ballot on a market.
// GET /api/markets/{id}/votes/{account_id}
func (h *VoteHandler) GetBallot(w http.ResponseWriter, r *http.Request) {
	marketID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	accountID, err := pathUUID(r, "account_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	vote, err := h.votes.GetBallot(r.Context(), marketID, accountID)
	if err != nil {
		writeDomainError(w, h.logger, err, "get ballot")
		return
	}
	writeJSON(w, http.StatusOK, vote)
}

// Tally returns the current vote tally for a market.
// GET /api/markets/{id}/tally
func (h *VoteHandler) Tally(w http.ResponseWriter, r *http.Request) {
	marketID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	tally, err := h.tallies.TallyVotes(r.Context(), marketID)
	if err != nil {
		writeDomainError(w, h.logger, err, "tally votes")
		return
	}
	writeJSON(w, http.StatusOK, tally)
}
