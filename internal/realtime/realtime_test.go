package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinicops/internal/assignment"
	"github.com/wolfman30/clinicops/internal/auth"
	"github.com/wolfman30/clinicops/internal/blobstore"
	"github.com/wolfman30/clinicops/internal/chat"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/internal/docstore/memory"
)

type fakeSource struct {
	opened  atomic.Int32
	stopped atomic.Int32
	emit    Emit
}

func (f *fakeSource) Open(_ context.Context, _ Request, emit Emit) (func(), error) {
	f.opened.Add(1)
	f.emit = emit
	emit([]string{"first"}, nil)
	return func() { f.stopped.Add(1) }, nil
}

func readFrame(t *testing.T, ch <-chan []byte) Frame {
	t.Helper()
	select {
	case data := <-ch:
		var f Frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return Frame{}
	}
}

func TestSessionSubscribeUnsubscribe(t *testing.T) {
	src := &fakeSource{}
	hub := NewHub(map[string]Source{TopicChat: src}, nil)
	s := hub.NewSession(context.Background())
	assert.Equal(t, 1, hub.SessionCount())

	s.Handle(Request{Action: "subscribe", Topic: TopicChat, ID: "chat1"})
	f := readFrame(t, s.Send)
	assert.Equal(t, "snapshot", f.Type)
	assert.Equal(t, "chat1", f.ID)
	assert.Equal(t, []any{"first"}, f.Data)

	s.Handle(Request{Action: "subscribe", Topic: TopicChat, ID: "chat1"})
	assert.Equal(t, int32(1), src.opened.Load(), "duplicate subscribe is ignored")
	assert.Equal(t, 1, s.Subscriptions())

	s.Handle(Request{Action: "unsubscribe", Topic: TopicChat, ID: "chat1"})
	assert.Equal(t, int32(1), src.stopped.Load())
	assert.Equal(t, 0, s.Subscriptions())

	s.Handle(Request{Action: "subscribe", Topic: "billing"})
	f = readFrame(t, s.Send)
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, ErrUnknownTopic.Error(), f.Error)

	s.Handle(Request{Action: "dance"})
	assert.Equal(t, "unknown action", readFrame(t, s.Send).Error)
}

func TestSessionCloseStopsSubscriptions(t *testing.T) {
	src := &fakeSource{}
	hub := NewHub(map[string]Source{TopicInbox: src}, nil)
	s := hub.NewSession(context.Background())
	s.Handle(Request{Action: "subscribe", Topic: TopicInbox, ID: "a1"})
	readFrame(t, s.Send)

	s.Close()
	s.Close()
	assert.Equal(t, int32(1), src.stopped.Load())
	assert.Equal(t, 0, hub.SessionCount())
	src.emit([]string{"late"}, nil)
	_, open := <-s.Send
	assert.False(t, open)
}

func withPrincipal(uid string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if uid != "" {
			r = r.WithContext(auth.WithPrincipal(r.Context(), auth.Principal{UID: uid}))
		}
		next.ServeHTTP(w, r)
	})
}

func TestHandlerStreamsChatSnapshots(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "chats/chat1", docstore.Fields{"participants": []string{"u1", "p1"}, "status": "active"}))
	chats := chat.NewContainer(store, blobstore.NewMemoryStore(), nil)

	hub := NewHub(map[string]Source{
		TopicChat:  ChatSource{Chats: chats},
		TopicInbox: InboxSource{Inbox: assignment.NewInbox(store)},
	}, nil)
	srv := httptest.NewServer(withPrincipal("u1", NewHandler(hub, nil, nil)))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Request{Action: "subscribe", Topic: TopicChat, ID: "chat1"}))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "snapshot", f.Type)

	_, err = chats.SendMessage(auth.WithPrincipal(ctx, auth.Principal{UID: "p1"}), "chat1", "hola")
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		require.NoError(t, conn.ReadJSON(&f))
		if list, ok := f.Data.([]any); ok && len(list) == 1 {
			assert.Equal(t, "hola", list[0].(map[string]any)["message"])
			break
		}
	}

	require.NoError(t, conn.WriteJSON(Request{Action: "subscribe", Topic: TopicChat, ID: "other"}))
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, "subscription failed", f.Error, "missing chats are not leaked as forbidden")
}

func TestInboxStreamIsLimitedToOwner(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "agentes/u1/citasRecibidas/c1", docstore.Fields{"citaId": "c1", "asignadoEn": time.Now()}))
	require.NoError(t, store.Set(ctx, "agentes/u2/citasRecibidas/c2", docstore.Fields{"citaId": "c2", "asignadoEn": time.Now()}))

	hub := NewHub(map[string]Source{TopicInbox: InboxSource{Inbox: assignment.NewInbox(store)}}, nil)
	s := hub.NewSession(auth.WithPrincipal(ctx, auth.Principal{UID: "u1"}))
	defer s.Close()

	s.Handle(Request{Action: "subscribe", Topic: TopicInbox, ID: "u1"})
	f := readFrame(t, s.Send)
	require.Equal(t, "snapshot", f.Type, f.Error)
	assert.Len(t, f.Data, 1)

	s.Handle(Request{Action: "subscribe", Topic: TopicInbox, ID: "u2"})
	f = readFrame(t, s.Send)
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, "forbidden", f.Error)
	assert.Equal(t, 1, s.Subscriptions())
}

func TestHandlerRejectsAnonymous(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(withPrincipal("", NewHandler(hub, nil, nil)))
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPublicError(t *testing.T) {
	assert.Equal(t, "forbidden", publicError(chat.ErrUnauthorizedParticipant))
	assert.Equal(t, "forbidden", publicError(assignment.ErrInboxForbidden))
	assert.Equal(t, "authentication required", publicError(auth.ErrAuthenticationRequired))
	assert.Equal(t, ErrMissingID.Error(), publicError(ErrMissingID))
}
