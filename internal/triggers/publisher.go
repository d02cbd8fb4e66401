package triggers

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinicops/pkg/logging"
)

// Publisher enqueues trigger events for asynchronous processing.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("triggers: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// Publish enqueues evt, keeping its ID so redeliveries share it.
func (p *Publisher) Publish(ctx context.Context, evt Event) error {
	evt, body, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("triggers: failed to enqueue event: %w", err)
	}
	p.logger.Debug("trigger event enqueued", "event_id", evt.ID, "collection", evt.Collection, "document_id", evt.DocumentID)
	return nil
}

// PublishCreated announces collection/id as newly created.
func (p *Publisher) PublishCreated(ctx context.Context, collection, id string) error {
	return p.Publish(ctx, Event{Kind: KindDocumentCreated, Collection: collection, DocumentID: id})
}
