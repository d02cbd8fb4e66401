package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/clinicops/internal/auth"
	"github.com/wolfman30/clinicops/internal/docstore"
)

// ErrInboxForbidden is returned when the caller is neither the inbox owner nor an admin.
var ErrInboxForbidden = errors.New("assignment: inbox belongs to another agent")

// InboxItem is one appointment assigned to an agent.
type InboxItem struct {
	CitaID     string    `json:"citaId"`
	Estado     string    `json:"estado"`
	AsignadoEn time.Time `json:"asignadoEn"`
}

// Inbox reads the citasRecibidas subcollection of an agent, newest first.
type Inbox struct {
	store docstore.Store
}

func NewInbox(store docstore.Store) *Inbox {
	if store == nil {
		panic("assignment: store required")
	}
	return &Inbox{store: store}
}

func inboxQuery(agentID string) docstore.Query {
	return docstore.Collection(docstore.Join(agentsCollection, agentID, "citasRecibidas")).OrderBy("asignadoEn", true)
}

func inboxItems(docs []docstore.Document) []InboxItem {
	items := make([]InboxItem, 0, len(docs))
	for _, doc := range docs {
		id := doc.Data.String("citaId")
		if id == "" {
			id = doc.ID
		}
		items = append(items, InboxItem{
			CitaID:     id,
			Estado:     doc.Data.String("estado"),
			AsignadoEn: doc.Data.Time("asignadoEn"),
		})
	}
	return items
}

// authorize lets an agent read their own inbox and an admin read any.
func (i *Inbox) authorize(ctx context.Context, agentID string) error {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return err
	}
	if p.UID == agentID {
		return nil
	}
	role, err := auth.RoleOf(ctx, i.store, p.UID)
	if err != nil {
		return fmt.Errorf("assignment: authorize inbox: %w", err)
	}
	if role != auth.RoleAdmin {
		return ErrInboxForbidden
	}
	return nil
}

// List returns the agent's assignments ordered by asignadoEn descending.
// Only the agent and admins may read it.
func (i *Inbox) List(ctx context.Context, agentID string) ([]InboxItem, error) {
	if agentID == "" {
		return nil, fmt.Errorf("assignment: agent id required")
	}
	if err := i.authorize(ctx, agentID); err != nil {
		return nil, err
	}
	docs, err := i.store.Query(ctx, inboxQuery(agentID))
	if err != nil {
		return nil, fmt.Errorf("assignment: list inbox: %w", err)
	}
	return inboxItems(docs), nil
}

// Subscribe pushes the full inbox to fn on every change until the returned
// cancel func is called or ctx ends.
func (i *Inbox) Subscribe(ctx context.Context, agentID string, fn func([]InboxItem, error)) (docstore.CancelFunc, error) {
	if agentID == "" {
		return nil, fmt.Errorf("assignment: agent id required")
	}
	if err := i.authorize(ctx, agentID); err != nil {
		return nil, err
	}
	return i.store.Subscribe(ctx, inboxQuery(agentID), func(snap docstore.Snapshot) {
		if snap.Err != nil {
			fn(nil, snap.Err)
			return
		}
		fn(inboxItems(snap.Docs), nil)
	})
}
