package chat

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinicops/internal/docstore"
)

// PredefinedCollection holds canned greetings.
const PredefinedCollection = "pedismessage"

const (
	defaultFirstMessage = "Hola, bienvenido a nuestra clínica. ¿En qué puedo ayudarte?"
	defaultTimeMessage  = "Estamos trabajando en tu solicitud. Gracias por la espera."
)

// Predefined are the canned messages agents can send with one click.
type Predefined struct {
	FirstMessage string `json:"firstmessage"`
	TimeMessage  string `json:"timemessage"`
}

// DefaultPredefined is used for missing fields or when the store fails.
func DefaultPredefined() Predefined {
	return Predefined{FirstMessage: defaultFirstMessage, TimeMessage: defaultTimeMessage}
}

// PredefinedMessages reads the first pedismessage document. The result is
// always usable; a read error is returned alongside the defaults.
func (c *Container) PredefinedMessages(ctx context.Context) (Predefined, error) {
	out := DefaultPredefined()
	docs, err := c.store.Query(ctx, docstore.Collection(PredefinedCollection).WithLimit(1))
	if err != nil {
		c.logger.Warn("failed to load predefined messages", "error", err)
		return out, fmt.Errorf("chat: predefined messages: %w", err)
	}
	if len(docs) == 0 {
		return out, nil
	}
	if v := docs[0].Data.String("firstmessage"); v != "" {
		out.FirstMessage = v
	}
	if v := docs[0].Data.String("timemessage"); v != "" {
		out.TimeMessage = v
	}
	return out, nil
}
