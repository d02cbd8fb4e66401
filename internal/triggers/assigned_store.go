package triggers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type assignedQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AssignedStore is the Postgres log of source documents that already received
// an agent. A trigger redelivered for a logged document is skipped before the
// counter moves.
type AssignedStore struct {
	db assignedQuerier
}

func NewAssignedStore(pool *pgxpool.Pool) *AssignedStore {
	if pool == nil {
		panic("triggers: pgx pool required")
	}
	return &AssignedStore{db: pool}
}

func newAssignedStoreWithDB(db assignedQuerier) *AssignedStore {
	if db == nil {
		panic("triggers: db required")
	}
	return &AssignedStore{db: db}
}

// AssignedAgent returns the agent logged for collection/documentID, if any.
func (s *AssignedStore) AssignedAgent(ctx context.Context, collection, documentID string) (string, bool, error) {
	var agentID string
	err := s.db.QueryRow(ctx,
		`SELECT agent_id FROM processed_triggers WHERE collection = $1 AND document_id = $2`,
		collection, documentID).Scan(&agentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("triggers: lookup %s/%s: %w", collection, documentID, err)
	}
	return agentID, true, nil
}

// RecordAssigned logs the assignment. The first record for a document wins.
func (s *AssignedStore) RecordAssigned(ctx context.Context, collection, documentID, agentID string, position int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO processed_triggers (collection, document_id, agent_id, position)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, document_id) DO NOTHING
	`, collection, documentID, agentID, position)
	if err != nil {
		return fmt.Errorf("triggers: record %s/%s: %w", collection, documentID, err)
	}
	return nil
}
