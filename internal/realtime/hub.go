// Package realtime pushes live snapshots of appointments, chats and agent
// inboxes to websocket clients. Every frame carries the full current view.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wolfman30/clinicops/internal/assignment"
	"github.com/wolfman30/clinicops/internal/auth"
	"github.com/wolfman30/clinicops/internal/chat"
	"github.com/wolfman30/clinicops/pkg/logging"
)

const (
	TopicAppointments = "appointments"
	TopicChat         = "chat"
	TopicInbox        = "inbox"
)

const (
	sendBuffer = 32
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// ErrUnknownTopic is reported to clients subscribing to an unsupported topic.
var ErrUnknownTopic = errors.New("realtime: unknown topic")

// Request is an inbound client message.
type Request struct {
	Action    string `json:"action"`
	Topic     string `json:"topic"`
	ID        string `json:"id,omitempty"`
	Date      string `json:"date,omitempty"`
	Specialty string `json:"specialty,omitempty"`
	DoctorID  string `json:"doctorId,omitempty"`
	Status    string `json:"status,omitempty"`
}

func (r Request) key() string {
	return r.Topic + "|" + r.ID + "|" + r.Date + "|" + r.Specialty + "|" + r.DoctorID + "|" + r.Status
}

// Frame is an outbound message.
type Frame struct {
	Type  string    `json:"type"`
	Topic string    `json:"topic"`
	ID    string    `json:"id,omitempty"`
	Data  any       `json:"data,omitempty"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

// Hub tracks connected sessions and routes their subscriptions to sources.
type Hub struct {
	sources map[string]Source
	logger  *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewHub(sources map[string]Source, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{sources: sources, logger: logger, sessions: make(map[string]*Session)}
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// NewSession registers a session whose subscriptions run under ctx. The
// caller must Close it.
func (h *Hub) NewSession(ctx context.Context) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:     uuid.NewString(),
		Send:   make(chan []byte, sendBuffer),
		hub:    h,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]func()),
	}
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
	return s
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID)
	h.mu.Unlock()
}

// Session is one client connection. Frames are queued on Send; a full buffer
// drops the frame since the next snapshot supersedes it.
type Session struct {
	ID   string
	Send chan []byte

	hub    *Hub
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	subs   map[string]func()
	closed bool
}

// Handle applies one client request.
func (s *Session) Handle(req Request) {
	switch req.Action {
	case "subscribe":
		s.subscribe(req)
	case "unsubscribe":
		s.unsubscribe(req)
	default:
		s.push(Frame{Type: "error", Topic: req.Topic, ID: req.ID, Error: "unknown action"})
	}
}

func (s *Session) subscribe(req Request) {
	source, ok := s.hub.sources[req.Topic]
	if !ok {
		s.push(Frame{Type: "error", Topic: req.Topic, ID: req.ID, Error: ErrUnknownTopic.Error()})
		return
	}
	key := req.key()
	s.mu.Lock()
	if _, dup := s.subs[key]; dup || s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	stop, err := source.Open(s.ctx, req, func(data any, err error) {
		if err != nil {
			s.push(Frame{Type: "error", Topic: req.Topic, ID: req.ID, Error: publicError(err)})
			return
		}
		s.push(Frame{Type: "snapshot", Topic: req.Topic, ID: req.ID, Data: data})
	})
	if err != nil {
		s.hub.logger.Warn("realtime subscribe failed", "session_id", s.ID, "topic", req.Topic, "error", err)
		s.push(Frame{Type: "error", Topic: req.Topic, ID: req.ID, Error: publicError(err)})
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stop()
		return
	}
	s.subs[key] = stop
	s.mu.Unlock()
}

func (s *Session) unsubscribe(req Request) {
	s.mu.Lock()
	stop, ok := s.subs[req.key()]
	delete(s.subs, req.key())
	s.mu.Unlock()
	if ok {
		stop()
	}
}

// Subscriptions returns the number of open views.
func (s *Session) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Session) push(f Frame) {
	f.At = time.Now().UTC()
	data, err := json.Marshal(f)
	if err != nil {
		s.hub.logger.Error("realtime: failed to marshal frame", "topic", f.Topic, "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.Send <- data:
	default:
		s.hub.logger.Warn("realtime: send buffer full, dropping frame", "session_id", s.ID, "topic", f.Topic)
	}
}

// Close stops every subscription and closes Send.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	close(s.Send)
	s.mu.Unlock()

	for _, stop := range subs {
		stop()
	}
	s.cancel()
	s.hub.remove(s)
}

func publicError(err error) string {
	switch {
	case errors.Is(err, auth.ErrAuthenticationRequired):
		return "authentication required"
	case errors.Is(err, chat.ErrUnauthorizedParticipant),
		errors.Is(err, assignment.ErrInboxForbidden):
		return "forbidden"
	case errors.Is(err, ErrUnknownTopic), errors.Is(err, ErrMissingID):
		return err.Error()
	default:
		return "subscription failed"
	}
}

// Handler upgrades GET /ws and serves one session per connection. The
// principal placed in the request context by the auth middleware travels into
// every subscription.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

// NewHandler accepts connections from allowedOrigins; an empty list allows any origin.
func NewHandler(hub *Hub, allowedOrigins []string, logger *logging.Logger) *Handler {
	if hub == nil {
		panic("realtime: hub required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
		logger: logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, `{"error": "authentication required"}`, http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	ctx := auth.WithPrincipal(context.Background(), principal)
	session := h.hub.NewSession(ctx)
	h.logger.Info("websocket connected", "session_id", session.ID, "uid", principal.UID)

	go h.writePump(conn, session)
	h.readPump(conn, session)
}

func (h *Handler) readPump(conn *websocket.Conn, s *Session) {
	defer func() {
		s.Close()
		conn.Close()
		h.logger.Info("websocket disconnected", "session_id", s.ID)
	}()
	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "session_id", s.ID, "error", err)
			}
			return
		}
		s.Handle(req)
	}
}

func (h *Handler) writePump(conn *websocket.Conn, s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case data, ok := <-s.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
