package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinicops/internal/chat"
	"github.com/wolfman30/clinicops/pkg/logging"
)

const maxUploadBytes = 25 << 20

// ChatsHandler exposes the chat container to signed-in users.
type ChatsHandler struct {
	chats  *chat.Container
	logger *logging.Logger
}

func NewChatsHandler(chats *chat.Container, logger *logging.Logger) *ChatsHandler {
	if chats == nil {
		panic("handlers: chat container required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatsHandler{chats: chats, logger: logger}
}

// Ensure handles POST /chats/{id}/ensure.
func (h *ChatsHandler) Ensure(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Participants []string `json:"participants"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	id := chi.URLParam(r, "id")
	c, err := h.chats.EnsureActiveChat(r.Context(), id, body.Participants)
	if err != nil {
		respondError(w, h.logger, "failed to ensure chat", err, "chat_id", id)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Messages handles GET /chats/{id}/messages.
func (h *ChatsHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msgs, err := h.chats.Messages(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, "failed to list messages", err, "chat_id", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": nonNil(msgs)})
}

// Send handles POST /chats/{id}/messages. Blank text is accepted and ignored.
func (h *ChatsHandler) Send(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	id := chi.URLParam(r, "id")
	msgID, err := h.chats.SendMessage(r.Context(), id, body.Message)
	if err != nil {
		respondError(w, h.logger, "failed to send message", err, "chat_id", id)
		return
	}
	if msgID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": msgID})
}

// SendDocument handles multipart POST /chats/{id}/documents with a "file" part.
func (h *ChatsHandler) SendDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart file field \"file\" required")
		return
	}
	defer file.Close()

	id := chi.URLParam(r, "id")
	msgID, err := h.chats.SendDocument(r.Context(), id, chat.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		respondError(w, h.logger, "failed to send document", err, "chat_id", id)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": msgID})
}

// DeleteMessage handles DELETE /chats/{id}/messages/{messageID}.
func (h *ChatsHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, msgID := chi.URLParam(r, "id"), chi.URLParam(r, "messageID")
	if err := h.chats.DeleteMessage(r.Context(), id, msgID); err != nil {
		respondError(w, h.logger, "failed to delete message", err, "chat_id", id, "message_id", msgID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Files handles GET /chats/{id}/files.
func (h *ChatsHandler) Files(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	files, err := h.chats.SharedFiles(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, "failed to list shared files", err, "chat_id", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// Predefined handles GET /chats/predefined. Defaults are served when the store fails.
func (h *ChatsHandler) Predefined(w http.ResponseWriter, r *http.Request) {
	p, _ := h.chats.PredefinedMessages(r.Context())
	writeJSON(w, http.StatusOK, p)
}

// Pins handles GET /chats/{id}/pins.
func (h *ChatsHandler) Pins(w http.ResponseWriter, r *http.Request) {
	pins, err := h.chats.Pins(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.logger, "failed to list pins", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pins": nonNil(pins)})
}

// TogglePin handles POST /chats/{id}/pins with the message to pin or unpin.
func (h *ChatsHandler) TogglePin(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.decodeTarget(w, r)
	if !ok {
		return
	}
	pinned, err := h.chats.TogglePin(r.Context(), chi.URLParam(r, "id"), msg)
	if err != nil {
		respondError(w, h.logger, "failed to toggle pin", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"pinned": pinned})
}

// SetReply handles PUT /chats/{id}/reply.
func (h *ChatsHandler) SetReply(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.decodeTarget(w, r)
	if !ok {
		return
	}
	if err := h.chats.SetReply(r.Context(), chi.URLParam(r, "id"), msg); err != nil {
		respondError(w, h.logger, "failed to set reply", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetForward handles PUT /chats/{id}/forward.
func (h *ChatsHandler) SetForward(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.decodeTarget(w, r)
	if !ok {
		return
	}
	if err := h.chats.SetForward(r.Context(), chi.URLParam(r, "id"), msg); err != nil {
		respondError(w, h.logger, "failed to set forward", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Compose handles GET /chats/{id}/compose: the pending reply and forward targets.
func (h *ChatsHandler) Compose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	out := map[string]any{}
	if msg, ok := h.chats.Reply(r.Context(), id); ok {
		out["reply"] = msg
	}
	if msg, ok := h.chats.Forward(r.Context(), id); ok {
		out["forward"] = msg
	}
	writeJSON(w, http.StatusOK, out)
}

// Close handles POST /chats/{id}/close, discarding pins and compose state.
func (h *ChatsHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.chats.Close(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatsHandler) decodeTarget(w http.ResponseWriter, r *http.Request) (chat.Message, bool) {
	var msg chat.Message
	if !decodeJSON(w, r, &msg) {
		return chat.Message{}, false
	}
	if msg.ID == "" {
		writeError(w, http.StatusBadRequest, "message id required")
		return chat.Message{}, false
	}
	return msg, true
}
