package handlers

import (
	"net/http"

	"github.com/wolfman30/clinicops/internal/stats"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// StatsHandler serves GET /stats.
type StatsHandler struct {
	repo   stats.Repository
	logger *logging.Logger
}

func NewStatsHandler(repo stats.Repository, logger *logging.Logger) *StatsHandler {
	if repo == nil {
		panic("handlers: stats repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StatsHandler{repo: repo, logger: logger}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s, err := h.repo.Statistics(r.Context())
	if err != nil {
		respondError(w, h.logger, "failed to compute statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
