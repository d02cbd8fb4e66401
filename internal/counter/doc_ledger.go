package counter

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("clinicops.internal.counter")

// DocLedger stores counters as counters/{resource} documents and bumps them in a
// read-then-write transaction.
type DocLedger struct {
	store  docstore.Store
	retry  retrier
	logger *logging.Logger
}

var _ Ledger = (*DocLedger)(nil)

// NewDocLedger builds a ledger over store. maxAttempts <= 0 uses the default of 5.
func NewDocLedger(store docstore.Store, maxAttempts int, logger *logging.Logger) *DocLedger {
	if store == nil {
		panic("counter: docstore required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DocLedger{store: store, retry: newRetrier(maxAttempts), logger: logger}
}

// Increment reads the counter (missing means 0), writes count+1 and returns it.
// Conflicting transactions are retried from the read.
func (l *DocLedger) Increment(ctx context.Context, resource Resource) (int64, error) {
	if !resource.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
	ctx, span := tracer.Start(ctx, "counter.increment", trace.WithAttributes(
		attribute.String("counter.resource", string(resource)),
		attribute.String("counter.backend", "docstore"),
	))
	defer span.End()

	path := docstore.Join("counters", string(resource))
	n, err := l.retry.do(ctx, isDocConflict, func() (int64, error) {
		var next int64
		err := l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			doc, err := tx.Get(ctx, path)
			switch {
			case err == nil:
				next = doc.Data.Int64("count") + 1
			case errors.Is(err, docstore.ErrNotFound):
				next = 1
			default:
				return err
			}
			return tx.Set(path, docstore.Fields{"count": next})
		})
		if err != nil && isDocConflict(err) {
			l.logger.Debug("counter transaction conflict, retrying", "resource", resource)
		}
		return next, err
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrTransactionConflict) {
			return 0, err
		}
		return 0, fmt.Errorf("counter: increment %s: %w", resource, err)
	}
	span.SetAttributes(attribute.Int64("counter.value", n))
	return n, nil
}

func isDocConflict(err error) bool {
	return errors.Is(err, docstore.ErrConflict)
}
