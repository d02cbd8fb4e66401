package assignment

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinicops/internal/docstore"
)

const agentsCollection = "agentes"

// Agent is one entry of the roster.
type Agent struct {
	ID         string `json:"id"`
	IDAgente   int64  `json:"idAgente"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Status     string `json:"status,omitempty"`
	ChatStatus string `json:"chatStatus,omitempty"`
}

// AgentFromDocument decodes an agentes/{id} document.
func AgentFromDocument(doc docstore.Document) Agent {
	return Agent{
		ID:         doc.ID,
		IDAgente:   doc.Data.Int64("idAgente"),
		Name:       doc.Data.String("name"),
		Email:      doc.Data.String("email"),
		Status:     doc.Data.String("status"),
		ChatStatus: doc.Data.String("chatStatus"),
	}
}

// RosterSource lists agents in assignment order.
type RosterSource interface {
	Agents(ctx context.Context) ([]Agent, error)
}

// Roster reads the agentes collection fresh on every call, ordered by idAgente
// ascending with ties broken by document id.
type Roster struct {
	store docstore.Store
}

var _ RosterSource = (*Roster)(nil)

func NewRoster(store docstore.Store) *Roster {
	if store == nil {
		panic("assignment: store required")
	}
	return &Roster{store: store}
}

func (r *Roster) Agents(ctx context.Context) ([]Agent, error) {
	docs, err := r.store.Query(ctx, docstore.Collection(agentsCollection).OrderBy("idAgente", false))
	if err != nil {
		return nil, fmt.Errorf("assignment: list agents: %w", err)
	}
	agents := make([]Agent, 0, len(docs))
	for _, doc := range docs {
		agents = append(agents, AgentFromDocument(doc))
	}
	return agents, nil
}
