package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinicops/internal/appointments"
	"github.com/wolfman30/clinicops/internal/assignment"
	"github.com/wolfman30/clinicops/internal/auth"
	"github.com/wolfman30/clinicops/internal/blobstore"
	"github.com/wolfman30/clinicops/internal/chat"
	"github.com/wolfman30/clinicops/internal/directory"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/internal/docstore/memory"
	"github.com/wolfman30/clinicops/internal/http/handlers"
	"github.com/wolfman30/clinicops/internal/presence"
	"github.com/wolfman30/clinicops/internal/stats"
)

type testEnv struct {
	router http.Handler
	store  docstore.Store
}

func newTestRouter(t *testing.T) testEnv {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	provider := auth.NewLocalProvider(store, "router-secret", time.Hour)
	require.NoError(t, provider.Register(ctx, "a0", "agent@example.com", "pw"))

	container := appointments.New(store, time.UTC, nil)
	sub, err := container.Subscribe(ctx, appointments.Filter{}, nil)
	require.NoError(t, err)
	t.Cleanup(sub.Stop)

	cfg := &Config{
		Verifier:           provider,
		MetricsHandler:     http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		CORSAllowedOrigins: []string{"https://crm.example.com"},
		Auth:               handlers.NewAuthHandler(provider, store, nil),
		Stats:              handlers.NewStatsHandler(stats.NewDocRepository(store), nil),
		Appointments:       handlers.NewAppointmentsHandler(container, nil),
		Chats:              handlers.NewChatsHandler(chat.NewContainer(store, blobstore.NewMemoryStore(), nil), nil),
		Patients:           handlers.NewDirectoryHandler(directory.Patients(store, nil), nil),
		Doctors:            handlers.NewDirectoryHandler(directory.Doctors(store, nil), nil),
		Agents:             handlers.NewDirectoryHandler(directory.Agents(store, nil), nil),
		Inbox:              handlers.NewInboxHandler(assignment.NewInbox(store), nil),
		Presence:           handlers.NewPresenceHandler(presence.NewService(store, time.UTC, nil), nil),
	}
	return testEnv{router: New(cfg), store: store}
}

func (e testEnv) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e testEnv) login(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "agent@example.com", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestRouterHealthEndpoint(t *testing.T) {
	env := newTestRouter(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}

func TestRouterRequiresBearerToken(t *testing.T) {
	env := newTestRouter(t)

	for _, target := range []string{"/stats", "/appointments", "/chats/predefined", "/patients", "/presence", "/agents/a0/inbox"} {
		rec := env.do(t, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
	rec := env.do(t, http.MethodGet, "/stats", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterAuthenticatedRoutes(t *testing.T) {
	env := newTestRouter(t)
	ctx := context.Background()
	token := env.login(t)

	require.NoError(t, env.store.Set(ctx, "pacientes/p1", docstore.Fields{"name": "Laura"}))
	require.NoError(t, env.store.Set(ctx, "agentes/a0/citasRecibidas/c1", docstore.Fields{
		"citaId": "c1", "asignadoEn": time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC),
	}))

	rec := env.do(t, http.MethodGet, "/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st stats.Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 1, st.NumberOfPacientes)

	rec = env.do(t, http.MethodGet, "/appointments/report", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/patients/p1", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/patients/p1/appointments", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/agents/a0/inbox", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "c1")

	rec = env.do(t, http.MethodGet, "/agents/a1/inbox", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/agents/a0", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/chats/predefined", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/presence/start", token, map[string]string{"displayName": "Agente"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodGet, "/stats", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	env := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/appointments", nil)
	req.Header.Set("Origin", "https://crm.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, "https://crm.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewPanicsWithoutVerifier(t *testing.T) {
	assert.Panics(t, func() { New(&Config{}) })
}
