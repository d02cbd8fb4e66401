// Package chat is the state container for agent/patient conversations stored
// as chats/{id} with a messages subcollection.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/clinicops/internal/docstore"
)

// Collection holds chat documents.
const Collection = "chats"

// StatusActive is written when a chat is created on first open.
const StatusActive = "active"

var (
	// ErrUnauthorizedParticipant is returned when the caller is not a member of the chat.
	ErrUnauthorizedParticipant = errors.New("chat: caller is not a participant")
	// ErrInvalidParticipants is returned when a new chat is not between two distinct users.
	ErrInvalidParticipants = errors.New("chat: a chat needs two distinct participants")
	// ErrEmptyFile is returned by SendDocument for nameless files.
	ErrEmptyFile = errors.New("chat: file name required")
)

// Chat is one chats/{id} document.
type Chat struct {
	ID            string    `json:"id"`
	Participants  []string  `json:"participants"`
	Status        string    `json:"status"`
	AssignedAgent string    `json:"assignedAgent,omitempty"`
	ChatPosition  int64     `json:"chatPosition,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func chatFromDocument(doc docstore.Document) Chat {
	return Chat{
		ID:            doc.ID,
		Participants:  doc.Data.Strings("participants"),
		Status:        doc.Data.String("status"),
		AssignedAgent: doc.Data.String("assignedAgent"),
		ChatPosition:  doc.Data.Int64("chatPosition"),
		CreatedAt:     doc.Data.Time("createdAt"),
	}
}

// HasParticipant reports whether uid belongs to the chat.
func (c Chat) HasParticipant(uid string) bool {
	for _, p := range c.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// Message is one chats/{chatId}/messages/{id} document. Attachments persist
// their blob path; DocumentURL is signed each time messages are read.
type Message struct {
	ID           string    `json:"id"`
	SenderID     string    `json:"senderId"`
	Message      string    `json:"message"`
	DocumentPath string    `json:"-"`
	DocumentURL  string    `json:"documentUrl,omitempty"`
	FileName     string    `json:"fileName,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func messageFromDocument(doc docstore.Document) Message {
	return Message{
		ID:           doc.ID,
		SenderID:     doc.Data.String("senderId"),
		Message:      doc.Data.String("message"),
		DocumentPath: doc.Data.String("documentPath"),
		DocumentURL:  doc.Data.String("documentUrl"),
		FileName:     doc.Data.String("fileName"),
		Timestamp:    doc.Data.Time("timestamp"),
	}
}

func chatPath(chatID string) string {
	return docstore.Join(Collection, chatID)
}

func messagesPath(chatID string) string {
	return docstore.Join(Collection, chatID, "messages")
}

// Auditor records security-relevant chat events. Failures are logged by the caller.
type Auditor interface {
	ChatAccessDenied(ctx context.Context, uid, chatID string) error
	MessageDeleted(ctx context.Context, uid, chatID, messageID string) error
}
