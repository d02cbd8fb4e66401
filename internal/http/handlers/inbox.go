package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinicops/internal/assignment"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// InboxHandler serves GET /agents/{id}/inbox.
type InboxHandler struct {
	inbox  *assignment.Inbox
	logger *logging.Logger
}

func NewInboxHandler(inbox *assignment.Inbox, logger *logging.Logger) *InboxHandler {
	if inbox == nil {
		panic("handlers: inbox required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &InboxHandler{inbox: inbox, logger: logger}
}

func (h *InboxHandler) List(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent id required")
		return
	}
	items, err := h.inbox.List(r.Context(), agentID)
	if err != nil {
		respondError(w, h.logger, "failed to list inbox", err, "agent_id", agentID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
