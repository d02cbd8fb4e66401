package triggers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/clinicops/pkg/logging"
)

// EventPublisher puts an event on the trigger queue.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Dispatcher records created events in an outbox and drains the outbox to the
// queue. An event leaves the outbox only after the queue accepted it, so a
// cancelled request or a briefly unavailable queue delays the trigger instead
// of losing it.
type Dispatcher struct {
	outbox    Outbox
	publisher EventPublisher
	logger    *logging.Logger

	batchSize      int32
	interval       time.Duration
	sendTimeout    time.Duration
	insertAttempts int
	insertBackoff  time.Duration

	kick chan struct{}
	wg   sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithDispatchInterval(d time.Duration) DispatcherOption {
	return func(ds *Dispatcher) {
		if d > 0 {
			ds.interval = d
		}
	}
}

func WithDispatchBatchSize(n int32) DispatcherOption {
	return func(ds *Dispatcher) {
		if n > 0 {
			ds.batchSize = n
		}
	}
}

// WithSendTimeout bounds a single queue send during a drain.
func WithSendTimeout(d time.Duration) DispatcherOption {
	return func(ds *Dispatcher) {
		if d > 0 {
			ds.sendTimeout = d
		}
	}
}

func NewDispatcher(outbox Outbox, publisher EventPublisher, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if outbox == nil {
		panic("triggers: outbox required")
	}
	if publisher == nil {
		panic("triggers: publisher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{
		outbox:         outbox,
		publisher:      publisher,
		logger:         logger,
		batchSize:      25,
		interval:       2 * time.Second,
		sendTimeout:    5 * time.Second,
		insertAttempts: 3,
		insertBackoff:  50 * time.Millisecond,
		kick:           make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Record stores a document.created event for collection/id. It runs detached
// from ctx's cancellation because the document write it follows has already
// committed.
func (d *Dispatcher) Record(ctx context.Context, collection, id string) error {
	evt, _, err := encodeEvent(Event{Kind: KindDocumentCreated, Collection: collection, DocumentID: id})
	if err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	for attempt := 1; ; attempt++ {
		err = d.outbox.Insert(ctx, evt)
		if err == nil {
			break
		}
		if attempt >= d.insertAttempts {
			return fmt.Errorf("triggers: record %s/%s: %w", collection, id, err)
		}
		d.logger.Warn("outbox insert failed, retrying", "collection", collection, "document_id", id, "attempt", attempt, "error", err)
		time.Sleep(time.Duration(attempt) * d.insertBackoff)
	}
	select {
	case d.kick <- struct{}{}:
	default:
	}
	return nil
}

// Start drains the outbox on every tick and after every Record until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-d.kick:
			}
			d.Drain(ctx)
		}
	}()
}

// Wait blocks until the drain loop exits.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Drain publishes pending events and returns how many were delivered. Events
// the queue rejects stay pending for the next drain.
func (d *Dispatcher) Drain(ctx context.Context) int {
	events, err := d.outbox.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return 0
	}
	delivered := 0
	for _, evt := range events {
		if ctx.Err() != nil {
			return delivered
		}
		sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		err := d.publisher.Publish(sendCtx, evt)
		cancel()
		if err != nil {
			d.logger.Warn("trigger delivery failed, will retry", "event_id", evt.ID, "collection", evt.Collection, "document_id", evt.DocumentID, "error", err)
			continue
		}
		if _, err := d.outbox.MarkDelivered(ctx, evt.ID); err != nil {
			d.logger.Error("failed to mark trigger delivered", "event_id", evt.ID, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}
