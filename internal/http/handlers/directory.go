package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinicops/internal/directory"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// DirectoryHandler serves CRUD for one directory (patients, doctors or agents).
type DirectoryHandler struct {
	dir    *directory.Directory
	logger *logging.Logger
}

func NewDirectoryHandler(dir *directory.Directory, logger *logging.Logger) *DirectoryHandler {
	if dir == nil {
		panic("handlers: directory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DirectoryHandler{dir: dir, logger: logger}
}

// Routes mounts list/create and per-id handlers on r.
func (h *DirectoryHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// List returns every record, or the matches of ?q= when given.
func (h *DirectoryHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.dir.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondError(w, h.logger, "failed to list directory", err, "collection", h.dir.Collection())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(records)})
}

func (h *DirectoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.dir.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.logger, "failed to get record", err, "collection", h.dir.Collection())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Create accepts an optional "id" in the body to choose the document id.
func (h *DirectoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body docstore.Fields
	if !decodeJSON(w, r, &body) {
		return
	}
	id, err := h.dir.Create(r.Context(), body.String("id"), body)
	if err != nil {
		respondError(w, h.logger, "failed to create record", err, "collection", h.dir.Collection())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "id": id})
}

func (h *DirectoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body docstore.Fields
	if !decodeJSON(w, r, &body) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.dir.Update(r.Context(), id, body); err != nil {
		respondError(w, h.logger, "failed to update record", err, "collection", h.dir.Collection(), "id", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (h *DirectoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.dir.Delete(r.Context(), id); err != nil {
		respondError(w, h.logger, "failed to delete record", err, "collection", h.dir.Collection(), "id", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
