package assignment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinicops/internal/auth"
	"github.com/wolfman30/clinicops/internal/counter"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/internal/docstore/memory"
	"github.com/wolfman30/clinicops/internal/observability/metrics"
)

func TestAssignIsTotal(t *testing.T) {
	for size := 1; size <= 7; size++ {
		idx, err := Assign(1, size)
		require.NoError(t, err)
		assert.Equal(t, 0, idx, "first count lands on index 0 for size %d", size)
		for count := int64(1); count <= 100; count++ {
			idx, err := Assign(count, size)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, idx, 0)
			assert.Less(t, idx, size)
		}
	}
}

func TestAssignErrors(t *testing.T) {
	_, err := Assign(3, 0)
	assert.ErrorIs(t, err, ErrNoAgentsAvailable)
	_, err = Assign(0, 3)
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func seedAgents(t *testing.T, store docstore.Store, ids ...string) {
	t.Helper()
	for i, id := range ids {
		require.NoError(t, store.Set(context.Background(), docstore.Join("agentes", id), docstore.Fields{
			"idAgente": i,
			"name":     strings.ToUpper(id),
			"email":    id + "@clinic.test",
		}))
	}
}

func newTestService(store docstore.Store, opts ...ServiceOption) *Service {
	ledger := counter.NewDocLedger(store, 0, nil)
	return NewService(store, ledger, nil, opts...)
}

func receivedBy(t *testing.T, store docstore.Store, agentID string) []string {
	t.Helper()
	docs, err := store.Query(context.Background(), docstore.Collection(docstore.Join("agentes", agentID, "citasRecibidas")))
	require.NoError(t, err)
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}

func TestRoundRobinOverThreeAgents(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedAgents(t, store, "a0", "a1", "a2")
	svc := newTestService(store)

	for i := 1; i <= 4; i++ {
		id := fmt.Sprintf("cita%d", i)
		require.NoError(t, store.Set(ctx, docstore.Join("citas", id), docstore.Fields{"patientId": "p1"}))
		require.NoError(t, svc.HandleAppointmentCreated(ctx, id))
	}

	assert.ElementsMatch(t, []string{"cita1", "cita4"}, receivedBy(t, store, "a0"))
	assert.ElementsMatch(t, []string{"cita2"}, receivedBy(t, store, "a1"))
	assert.ElementsMatch(t, []string{"cita3"}, receivedBy(t, store, "a2"))

	rec, err := store.Get(ctx, "agentes/a0/citasRecibidas/cita4")
	require.NoError(t, err)
	assert.Equal(t, "cita4", rec.Data.String("citaId"))
	assert.Equal(t, StatusInProgress, rec.Data.String("estado"))
	assert.False(t, rec.Data.Time("asignadoEn").IsZero())
}

func TestRosterOrderIsStable(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Set(ctx, "agentes/zeta", docstore.Fields{"idAgente": 1}))
	require.NoError(t, store.Set(ctx, "agentes/beta", docstore.Fields{"idAgente": 1}))
	require.NoError(t, store.Set(ctx, "agentes/alpha", docstore.Fields{"idAgente": 2}))
	require.NoError(t, store.Set(ctx, "agentes/first", docstore.Fields{"idAgente": 0}))

	agents, err := NewRoster(store).Agents(ctx)
	require.NoError(t, err)
	ids := make([]string, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	assert.Equal(t, []string{"first", "beta", "zeta", "alpha"}, ids)
}

func TestEmptyRosterWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	reg := prometheus.NewRegistry()
	svc := newTestService(store, WithMetrics(metrics.NewAssignmentMetrics(reg)))

	require.NoError(t, store.Set(ctx, "citas/c1", docstore.Fields{"patientId": "p1"}))
	assert.NoError(t, svc.HandleAppointmentCreated(ctx, "c1"))

	_, err := svc.Process(ctx, counter.Appointments, "c1")
	assert.ErrorIs(t, err, ErrNoAgentsAvailable)

	// Only the cita itself and the counter exist; no assignment record was written.
	assert.Equal(t, 2, store.Len())

	// The counter still advanced: the increment is orphaned, not rolled back.
	counterDoc, err := store.Get(ctx, "counters/citas")
	require.NoError(t, err)
	assert.EqualValues(t, 2, counterDoc.Data.Int64("count"))
	assert.Equal(t, 2.0, counterValue(t, reg, "clinicops_assignment_orphaned_total"))
}

func TestWriterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	w := NewWriter(store)
	require.NoError(t, w.WriteAssignment(ctx, counter.Appointments, "c1", "a0", 1))
	require.NoError(t, w.WriteAssignment(ctx, counter.Appointments, "c1", "a0", 1))
	assert.Equal(t, []string{"c1"}, receivedBy(t, store, "a0"))

	require.NoError(t, store.Set(ctx, "chats/x", docstore.Fields{"status": "active"}))
	require.NoError(t, w.WriteAssignment(ctx, counter.Chats, "x", "a1", 7))
	require.NoError(t, w.WriteAssignment(ctx, counter.Chats, "x", "a1", 7))
	chat, err := store.Get(ctx, "chats/x")
	require.NoError(t, err)
	assert.Equal(t, "a1", chat.Data.String("assignedAgent"))
	assert.EqualValues(t, 7, chat.Data.Int64("chatPosition"))
	assert.Equal(t, "active", chat.Data.String("status"))

	assert.ErrorIs(t, w.WriteAssignment(ctx, counter.Chats, "missing", "a1", 1), docstore.ErrNotFound)
	assert.ErrorIs(t, w.WriteAssignment(ctx, counter.Resource("x"), "id", "a1", 1), counter.ErrUnknownResource)
}

func TestChatAssignedOnceAndRedeliverySkipped(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedAgents(t, store, "a0", "a1")
	svc := newTestService(store)

	require.NoError(t, store.Set(ctx, "chats/c1", docstore.Fields{"participants": []string{"u1", "u2"}}))
	a, err := svc.Process(ctx, counter.Chats, "c1")
	require.NoError(t, err)
	assert.Equal(t, "a0", a.Agent.ID)

	_, err = svc.Process(ctx, counter.Chats, "c1")
	assert.ErrorIs(t, err, ErrAlreadyAssigned)

	counterDoc, err := store.Get(ctx, "counters/chats")
	require.NoError(t, err)
	assert.EqualValues(t, 1, counterDoc.Data.Int64("count"), "redelivery must not bump the counter")
}

func TestSourceMissingDoesNotIncrement(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedAgents(t, store, "a0")
	svc := newTestService(store)

	_, err := svc.Process(ctx, counter.Appointments, "ghost")
	assert.ErrorIs(t, err, ErrSourceMissing)
	_, err = store.Get(ctx, "counters/citas")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

type memAssignedLog struct {
	mu     sync.Mutex
	agents map[string]string
}

func (m *memAssignedLog) AssignedAgent(_ context.Context, collection, id string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[collection+"/"+id]
	return agent, ok, nil
}

func (m *memAssignedLog) RecordAssigned(_ context.Context, collection, id, agentID string, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[collection+"/"+id]; !ok {
		m.agents[collection+"/"+id] = agentID
	}
	return nil
}

func TestAssignedLogAbsorbsRedelivery(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedAgents(t, store, "a0", "a1")
	assigned := &memAssignedLog{agents: map[string]string{}}
	svc := newTestService(store, WithAssignedLog(assigned))

	require.NoError(t, store.Set(ctx, "citas/c1", docstore.Fields{}))
	_, err := svc.Process(ctx, counter.Appointments, "c1")
	require.NoError(t, err)
	assert.Equal(t, "a0", assigned.agents["citas/c1"])

	_, err = svc.Process(ctx, counter.Appointments, "c1")
	assert.ErrorIs(t, err, ErrAlreadyAssigned)
	assert.Equal(t, []string{"c1"}, receivedBy(t, store, "a0"))
	assert.Empty(t, receivedBy(t, store, "a1"))
}

type failingWriter struct{ err error }

func (f failingWriter) WriteAssignment(context.Context, counter.Resource, string, string, int64) error {
	return f.err
}

func TestWriteFailureIsOrphanedAndSwallowed(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedAgents(t, store, "a0")
	reg := prometheus.NewRegistry()
	boom := errors.New("write refused")
	svc := newTestService(store, WithWriter(failingWriter{err: boom}), WithMetrics(metrics.NewAssignmentMetrics(reg)))

	require.NoError(t, store.Set(ctx, "citas/c1", docstore.Fields{}))
	assert.NoError(t, svc.HandleAppointmentCreated(ctx, "c1"))
	assert.Equal(t, 1.0, counterValue(t, reg, "clinicops_assignment_orphaned_total"))

	_, err := svc.Process(ctx, counter.Appointments, "c1")
	assert.ErrorIs(t, err, boom)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []Assignment
}

func (r *recordingNotifier) AssignmentCreated(_ context.Context, a Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, a)
	return errors.New("smtp down")
}

func TestNotifierFailureDoesNotFailAssignment(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedAgents(t, store, "a0")
	n := &recordingNotifier{}
	svc := newTestService(store, WithNotifier(n))

	require.NoError(t, store.Set(ctx, "citas/c1", docstore.Fields{}))
	a, err := svc.Process(ctx, counter.Appointments, "c1")
	require.NoError(t, err)
	require.Len(t, n.calls, 1)
	assert.Equal(t, a, n.calls[0])
	assert.Equal(t, "a0@clinic.test", n.calls[0].Agent.Email)
}

func TestHandleCreatedDispatch(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedAgents(t, store, "a0")
	svc := newTestService(store)
	require.NoError(t, store.Set(ctx, "chats/c9", docstore.Fields{}))

	assert.NoError(t, svc.HandleCreated(ctx, "chats", "c9"))
	assert.NoError(t, svc.HandleCreated(ctx, "pacientes", "p1"))
	chat, err := store.Get(ctx, "chats/c9")
	require.NoError(t, err)
	assert.Equal(t, "a0", chat.Data.String("assignedAgent"))
}

func TestInboxListIsOwnerOrAdmin(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	store := memory.New()
	require.NoError(t, store.Set(ctx, "agentes/a0/citasRecibidas/old", docstore.Fields{"citaId": "old", "estado": StatusInProgress, "asignadoEn": now}))
	require.NoError(t, store.Set(ctx, "agentes/a0/citasRecibidas/new", docstore.Fields{"citaId": "new", "estado": StatusInProgress, "asignadoEn": now.Add(time.Hour)}))
	require.NoError(t, store.Set(ctx, "roles/boss", docstore.Fields{"nivel": auth.RoleAdmin}))
	require.NoError(t, store.Set(ctx, "roles/a1", docstore.Fields{"nivel": "agente"}))
	inbox := NewInbox(store)

	items, err := inbox.List(auth.WithPrincipal(ctx, auth.Principal{UID: "a0"}), "a0")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "new", items[0].CitaID)

	items, err = inbox.List(auth.WithPrincipal(ctx, auth.Principal{UID: "boss"}), "a0")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = inbox.List(auth.WithPrincipal(ctx, auth.Principal{UID: "a1"}), "a0")
	assert.ErrorIs(t, err, ErrInboxForbidden)

	_, err = inbox.List(auth.WithPrincipal(ctx, auth.Principal{UID: "nobody"}), "a0")
	assert.ErrorIs(t, err, ErrInboxForbidden)

	_, err = inbox.List(ctx, "a0")
	assert.ErrorIs(t, err, auth.ErrAuthenticationRequired)
}

func TestInboxSubscribe(t *testing.T) {
	ctx := auth.WithPrincipal(context.Background(), auth.Principal{UID: "a0"})
	store := memory.New()
	inbox := NewInbox(store)

	_, err := inbox.Subscribe(auth.WithPrincipal(context.Background(), auth.Principal{UID: "a1"}), "a0", func([]InboxItem, error) {
		t.Error("foreign subscriber must not receive snapshots")
	})
	require.ErrorIs(t, err, ErrInboxForbidden)

	var mu sync.Mutex
	var latest []InboxItem
	cancel, err := inbox.Subscribe(ctx, "a0", func(items []InboxItem, err error) {
		mu.Lock()
		defer mu.Unlock()
		latest = items
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, NewWriter(store).WriteAssignment(ctx, counter.Appointments, "c1", "a0", 1))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(latest) == 1 && latest[0].CitaID == "c1"
	}, time.Second, 5*time.Millisecond)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
