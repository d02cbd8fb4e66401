package handlers

import (
	"net/http"
	"strings"

	"github.com/wolfman30/clinicops/internal/auth"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/internal/http/middleware"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// AuthHandler serves sign-in, sign-out and the caller's profile.
type AuthHandler struct {
	provider auth.Provider
	store    docstore.Store
	logger   *logging.Logger
}

func NewAuthHandler(provider auth.Provider, store docstore.Store, logger *logging.Logger) *AuthHandler {
	if provider == nil {
		panic("handlers: auth provider required")
	}
	if store == nil {
		panic("handlers: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AuthHandler{provider: provider, store: store, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	State   auth.State    `json:"state"`
	Token   string        `json:"token,omitempty"`
	Profile *auth.Profile `json:"profile,omitempty"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}
	session := auth.NewSession(h.provider, h.store, h.logger)
	if err := session.SignIn(r.Context(), req.Email, req.Password); err != nil {
		respondError(w, h.logger, "sign in failed", err)
		return
	}
	st := session.Status()
	h.logger.Info("user signed in", "uid", st.Profile.UID)
	writeJSON(w, http.StatusOK, sessionResponse{State: st.State, Token: st.Token, Profile: st.Profile})
}

// Logout handles POST /auth/logout by revoking the bearer token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing authorization header")
		return
	}
	if err := h.provider.SignOut(r.Context(), token); err != nil {
		respondError(w, h.logger, "sign out failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session := auth.NewSession(h.provider, h.store, h.logger)
	if err := session.Restore(r.Context(), middleware.BearerToken(r)); err != nil {
		respondError(w, h.logger, "restore session failed", err)
		return
	}
	st := session.Status()
	writeJSON(w, http.StatusOK, sessionResponse{State: st.State, Profile: st.Profile})
}
