package triggers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outbox holds created events until they reach the trigger queue.
type Outbox interface {
	Insert(ctx context.Context, evt Event) error
	FetchPending(ctx context.Context, limit int32) ([]Event, error)
	MarkDelivered(ctx context.Context, eventID string) (bool, error)
}

// MemoryOutbox keeps pending events in process. Pending events do not survive a restart.
type MemoryOutbox struct {
	mu      sync.Mutex
	pending []Event
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{}
}

func (o *MemoryOutbox) Insert(_ context.Context, evt Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, p := range o.pending {
		if p.ID == evt.ID {
			return nil
		}
	}
	o.pending = append(o.pending, evt)
	return nil
}

func (o *MemoryOutbox) FetchPending(_ context.Context, limit int32) ([]Event, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.pending)
	if limit > 0 && int(limit) < n {
		n = int(limit)
	}
	return append([]Event(nil), o.pending[:n]...), nil
}

func (o *MemoryOutbox) MarkDelivered(_ context.Context, eventID string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, p := range o.pending {
		if p.ID == eventID {
			o.pending = append(o.pending[:i], o.pending[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Len reports the number of undelivered events.
func (o *MemoryOutbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

type outboxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresOutbox persists pending events in trigger_outbox so they outlive
// the API process that wrote the document.
type PostgresOutbox struct {
	pool outboxQuerier
}

func NewPostgresOutbox(pool *pgxpool.Pool) *PostgresOutbox {
	if pool == nil {
		panic("triggers: pgx pool required")
	}
	return &PostgresOutbox{pool: pool}
}

func newPostgresOutboxWithExec(exec outboxQuerier) *PostgresOutbox {
	if exec == nil {
		panic("triggers: exec required")
	}
	return &PostgresOutbox{pool: exec}
}

func (o *PostgresOutbox) Insert(ctx context.Context, evt Event) error {
	query := `
		INSERT INTO trigger_outbox (event_id, kind, collection, document_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING
	`
	if _, err := o.pool.Exec(ctx, query, evt.ID, evt.Kind, evt.Collection, evt.DocumentID, evt.OccurredAt); err != nil {
		return fmt.Errorf("triggers: insert outbox: %w", err)
	}
	return nil
}

func (o *PostgresOutbox) FetchPending(ctx context.Context, limit int32) ([]Event, error) {
	query := `
		SELECT event_id, kind, collection, document_id, occurred_at
		FROM trigger_outbox
		WHERE delivered_at IS NULL
		ORDER BY occurred_at
		LIMIT $1
	`
	rows, err := o.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("triggers: fetch pending: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var evt Event
		var occurred time.Time
		if err := rows.Scan(&evt.ID, &evt.Kind, &evt.Collection, &evt.DocumentID, &occurred); err != nil {
			return nil, fmt.Errorf("triggers: scan outbox: %w", err)
		}
		evt.OccurredAt = occurred.UTC()
		events = append(events, evt)
	}
	return events, rows.Err()
}

func (o *PostgresOutbox) MarkDelivered(ctx context.Context, eventID string) (bool, error) {
	query := `
		UPDATE trigger_outbox
		SET delivered_at = now()
		WHERE event_id = $1 AND delivered_at IS NULL
	`
	ct, err := o.pool.Exec(ctx, query, eventID)
	if err != nil {
		return false, fmt.Errorf("triggers: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}
