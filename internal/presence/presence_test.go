package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinicops/internal/auth"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/internal/docstore/memory"
)

func newTestService(clock *time.Time) (*Service, *memory.Store) {
	store := memory.New(memory.WithClock(func() time.Time { return *clock }))
	svc := NewService(store, time.UTC, nil)
	svc.now = func() time.Time { return *clock }
	return svc, store
}

func agentCtx() context.Context {
	return auth.WithPrincipal(context.Background(), auth.Principal{UID: "a1", Email: "ana@example.com"})
}

func TestSessionLifecycle(t *testing.T) {
	clock := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	svc, store := newTestService(&clock)
	ctx := agentCtx()

	st, err := svc.Status(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, st.Status)

	st, err = svc.Start(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, st.Status)
	assert.Equal(t, "Usuario", st.DisplayName)
	assert.Equal(t, "ana@example.com", st.Email)
	require.NotNil(t, st.StartTime)
	assert.True(t, st.StartTime.Equal(clock))

	require.NoError(t, svc.UpdateStatus(ctx, "Break"))
	st, _ = svc.Status(ctx, "a1")
	assert.Equal(t, "Break", st.Status)
	assert.Nil(t, st.StartTime, "start time only reported while Active")

	require.NoError(t, svc.End(ctx))
	doc, err := store.Get(ctx, "onlineAgent/a1")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, doc.Data.String("status"))
	assert.False(t, doc.Data.Time("endedAt").IsZero())
	assert.Equal(t, "ana@example.com", doc.Data.String("email"))
}

func TestStartTimeOnlyForToday(t *testing.T) {
	clock := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)
	svc, _ := newTestService(&clock)
	ctx := agentCtx()

	_, err := svc.Start(ctx, "Ana")
	require.NoError(t, err)

	clock = clock.Add(2 * time.Hour)
	st, err := svc.Status(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, st.Status)
	assert.Nil(t, st.StartTime)
}

func TestUpdateRequiresSessionAndPrincipal(t *testing.T) {
	clock := time.Now()
	svc, _ := newTestService(&clock)

	assert.ErrorIs(t, svc.UpdateStatus(agentCtx(), "Active"), docstore.ErrNotFound)
	assert.ErrorIs(t, svc.UpdateStatus(agentCtx(), " "), ErrInvalidStatus)
	assert.ErrorIs(t, svc.End(context.Background()), auth.ErrAuthenticationRequired)
	_, err := svc.Start(context.Background(), "x")
	assert.ErrorIs(t, err, auth.ErrAuthenticationRequired)
}

func TestOnlineListsActiveAgents(t *testing.T) {
	clock := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	svc, store := newTestService(&clock)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "onlineAgent/a1", docstore.Fields{"status": StatusActive}))
	require.NoError(t, store.Set(ctx, "onlineAgent/a2", docstore.Fields{"status": StatusOffline}))

	online, err := svc.Online(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, "a1", online[0].UID)
}
