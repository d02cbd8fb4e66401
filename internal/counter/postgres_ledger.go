package counter

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// rowQuerier is the pgx subset the ledger needs; satisfied by *pgxpool.Pool and pgxmock.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger keeps counters in the counters table and bumps them with a single
// atomic upsert.
type PostgresLedger struct {
	db    rowQuerier
	retry retrier
}

var _ Ledger = (*PostgresLedger)(nil)

func NewPostgresLedger(pool *pgxpool.Pool, maxAttempts int) *PostgresLedger {
	if pool == nil {
		panic("counter: pgx pool required")
	}
	return &PostgresLedger{db: pool, retry: newRetrier(maxAttempts)}
}

func newPostgresLedgerWithDB(db rowQuerier, maxAttempts int) *PostgresLedger {
	if db == nil {
		panic("counter: db required")
	}
	return &PostgresLedger{db: db, retry: newRetrier(maxAttempts)}
}

const incrementSQL = `
	INSERT INTO counters (resource, count)
	VALUES ($1, 1)
	ON CONFLICT (resource) DO UPDATE SET count = counters.count + 1, updated_at = now()
	RETURNING count
`

func (l *PostgresLedger) Increment(ctx context.Context, resource Resource) (int64, error) {
	if !resource.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
	ctx, span := tracer.Start(ctx, "counter.increment", trace.WithAttributes(
		attribute.String("counter.resource", string(resource)),
		attribute.String("counter.backend", "postgres"),
	))
	defer span.End()

	n, err := l.retry.do(ctx, isSerializationFailure, func() (int64, error) {
		var count int64
		err := l.db.QueryRow(ctx, incrementSQL, string(resource)).Scan(&count)
		return count, err
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrTransactionConflict) {
			return 0, err
		}
		return 0, fmt.Errorf("counter: increment %s: %w", resource, err)
	}
	return n, nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
