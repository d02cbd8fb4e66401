package assignment

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinicops/internal/counter"
	"github.com/wolfman30/clinicops/internal/docstore"
)

// StatusInProgress is the estado written on every new appointment assignment.
const StatusInProgress = "En Proceso"

// Writer persists assignment results. Every write is keyed by the source document
// so repeating it leaves the same final state.
type Writer struct {
	store docstore.Store
}

func NewWriter(store docstore.Store) *Writer {
	if store == nil {
		panic("assignment: store required")
	}
	return &Writer{store: store}
}

// WriteAssignment records that resourceID was assigned to agentID at position.
// Appointments get agentes/{agentID}/citasRecibidas/{resourceID}; chats get the
// assignment fields patched onto chats/{resourceID}.
func (w *Writer) WriteAssignment(ctx context.Context, resource counter.Resource, resourceID, agentID string, position int64) error {
	if resourceID == "" || agentID == "" {
		return fmt.Errorf("assignment: resource id and agent id required")
	}
	switch resource {
	case counter.Appointments:
		path := docstore.Join(agentsCollection, agentID, "citasRecibidas", resourceID)
		err := w.store.Set(ctx, path, docstore.Fields{
			"citaId":     resourceID,
			"estado":     StatusInProgress,
			"asignadoEn": docstore.ServerTimestamp,
		})
		if err != nil {
			return fmt.Errorf("assignment: write cita %s: %w", resourceID, err)
		}
		return nil
	case counter.Chats:
		path := docstore.Join(string(counter.Chats), resourceID)
		err := w.store.Update(ctx, path, docstore.Fields{
			"assignedAgent": agentID,
			"chatPosition":  position,
			"assignedAt":    docstore.ServerTimestamp,
		})
		if err != nil {
			return fmt.Errorf("assignment: write chat %s: %w", resourceID, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", counter.ErrUnknownResource, resource)
	}
}
