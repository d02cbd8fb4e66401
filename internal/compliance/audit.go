// Package compliance keeps an append-only audit trail of security-relevant
// chat events in Postgres.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEventType names the kind of audit record.
type AuditEventType string

const (
	// EventChatAccessDenied is logged when a user opens a chat they are not part of.
	EventChatAccessDenied AuditEventType = "chat.access_denied"
	// EventMessageDeleted is logged when a participant deletes a message.
	EventMessageDeleted AuditEventType = "chat.message_deleted"
)

// AuditEvent is an immutable audit record.
type AuditEvent struct {
	ID        string          `json:"id"`
	EventType AuditEventType  `json:"event_type"`
	ActorUID  string          `json:"actor_uid"`
	ChatID    string          `json:"chat_id,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuditService writes and reads compliance_audit_events.
type AuditService struct {
	db *sql.DB
}

func NewAuditService(db *sql.DB) *AuditService {
	if db == nil {
		panic("compliance: db required")
	}
	return &AuditService{db: db}
}

// LogEvent inserts event, filling the id and creation time when unset.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO compliance_audit_events (
			id, event_type, actor_uid, chat_id, message_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.ActorUID,
		nullString(event.ChatID),
		nullString(event.MessageID),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}
	return nil
}

// ChatAccessDenied satisfies chat.Auditor.
func (s *AuditService) ChatAccessDenied(ctx context.Context, uid, chatID string) error {
	return s.LogEvent(ctx, AuditEvent{EventType: EventChatAccessDenied, ActorUID: uid, ChatID: chatID})
}

// MessageDeleted satisfies chat.Auditor.
func (s *AuditService) MessageDeleted(ctx context.Context, uid, chatID, messageID string) error {
	return s.LogEvent(ctx, AuditEvent{EventType: EventMessageDeleted, ActorUID: uid, ChatID: chatID, MessageID: messageID})
}

// AuditFilter narrows QueryEvents. Zero fields are ignored.
type AuditFilter struct {
	ActorUID  string
	ChatID    string
	EventType AuditEventType
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// QueryEvents returns matching events, newest first.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, actor_uid, chat_id, message_id, details, created_at
		FROM compliance_audit_events
		WHERE 1 = 1
	`
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}
	if filter.ActorUID != "" {
		add("actor_uid =", filter.ActorUID)
	}
	if filter.ChatID != "" {
		add("chat_id =", filter.ChatID)
	}
	if filter.EventType != "" {
		add("event_type =", filter.EventType)
	}
	if !filter.StartTime.IsZero() {
		add("created_at >=", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		add("created_at <=", filter.EndTime)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var chatID, messageID sql.NullString
		var details []byte
		if err := rows.Scan(&e.ID, &e.EventType, &e.ActorUID, &chatID, &messageID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.ChatID = chatID.String
		e.MessageID = messageID.String
		e.Details = details
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compliance: iterate audit events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
