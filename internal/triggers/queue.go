// Package triggers delivers document-created events from the API to the
// assignment handlers with at-least-once semantics.
package triggers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue is the transport trigger events travel over: in-process, SQS or AMQP.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// KindDocumentCreated is the only event kind the assignment flow reacts to.
const KindDocumentCreated = "document.created"

// Event announces that a document was created in a watched collection.
type Event struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Collection string    `json:"collection"`
	DocumentID string    `json:"document_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Handler receives decoded trigger events.
type Handler interface {
	HandleCreated(ctx context.Context, collection, id string) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, collection, id string) error

func (f HandlerFunc) HandleCreated(ctx context.Context, collection, id string) error {
	return f(ctx, collection, id)
}

var errMalformedEvent = errors.New("triggers: malformed event")

func encodeEvent(evt Event) (Event, string, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Kind == "" {
		evt.Kind = KindDocumentCreated
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return Event{}, "", fmt.Errorf("triggers: failed to encode event: %w", err)
	}
	return evt, string(body), nil
}

// DecodeEvent parses a queue message body.
func DecodeEvent(body string) (Event, error) {
	var evt Event
	if err := json.Unmarshal([]byte(body), &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %v", errMalformedEvent, err)
	}
	if evt.Collection == "" || evt.DocumentID == "" {
		return Event{}, fmt.Errorf("%w: collection and document_id required", errMalformedEvent)
	}
	return evt, nil
}

// Dispatch routes evt to h. Unknown kinds are ignored.
func Dispatch(ctx context.Context, h Handler, evt Event) error {
	if evt.Kind != KindDocumentCreated {
		return nil
	}
	return h.HandleCreated(ctx, evt.Collection, evt.DocumentID)
}
