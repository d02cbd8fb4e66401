package handlers

import (
	"net/http"

	"github.com/wolfman30/clinicops/internal/auth"
	"github.com/wolfman30/clinicops/internal/presence"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// PresenceHandler serves agent work sessions.
type PresenceHandler struct {
	presence *presence.Service
	logger   *logging.Logger
}

func NewPresenceHandler(svc *presence.Service, logger *logging.Logger) *PresenceHandler {
	if svc == nil {
		panic("handlers: presence service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PresenceHandler{presence: svc, logger: logger}
}

// Start handles POST /presence/start.
func (h *PresenceHandler) Start(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DisplayName string `json:"displayName"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &body) {
		return
	}
	st, err := h.presence.Start(r.Context(), body.DisplayName)
	if err != nil {
		respondError(w, h.logger, "failed to start session", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// UpdateStatus handles POST /presence/status.
func (h *PresenceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.presence.UpdateStatus(r.Context(), body.Status); err != nil {
		respondError(w, h.logger, "failed to update presence", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// End handles POST /presence/end.
func (h *PresenceHandler) End(w http.ResponseWriter, r *http.Request) {
	if err := h.presence.End(r.Context()); err != nil {
		respondError(w, h.logger, "failed to end session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /presence: the caller's state, or every Active agent with ?online=true.
func (h *PresenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("online") == "true" {
		online, err := h.presence.Online(r.Context())
		if err != nil {
			respondError(w, h.logger, "failed to list online agents", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"agents": online})
		return
	}
	p, err := auth.RequirePrincipal(r.Context())
	if err != nil {
		respondError(w, h.logger, "presence requires a user", err)
		return
	}
	st, err := h.presence.Status(r.Context(), p.UID)
	if err != nil {
		respondError(w, h.logger, "failed to read presence", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
