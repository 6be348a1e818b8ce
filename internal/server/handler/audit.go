package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

// AuditHandler serves the audit log read endpoint.
type AuditHandler struct {
	uow    domain.UnitOfWork
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(uow domain.UnitOfWork, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{uow: uow, logger: logger}
}

// List returns audit entries, newest first.
// GET /api/audit
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var entries []domain.AuditEntry
	err := h.uow.Do(r.Context(), func(st domain.Stores) error {
		var err error
		entries, err = st.Audit.List(r.Context(), opts)
		return err
	})
	if err != nil {
		writeDomainError(w, h.logger, err, "list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
