// Package counter keeps the monotonically increasing per-resource counters that
// drive round-robin assignment.
package counter

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Resource names the collection whose creations are counted.
type Resource string

const (
	Appointments Resource = "citas"
	Chats        Resource = "chats"
)

// Valid reports whether r is a known resource.
func (r Resource) Valid() bool {
	return r == Appointments || r == Chats
}

var (
	// ErrTransactionConflict is returned when the retry budget ran out under contention.
	ErrTransactionConflict = errors.New("counter: transaction conflict")
	// ErrUnknownResource is returned for resources other than citas and chats.
	ErrUnknownResource = errors.New("counter: unknown resource")
)

// Ledger increments a resource counter and returns the new value. N successful
// calls on a fresh counter return exactly 1..N.
type Ledger interface {
	Increment(ctx context.Context, resource Resource) (int64, error)
}

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 20 * time.Millisecond
)

type retrier struct {
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func newRetrier(maxAttempts int) retrier {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return retrier{maxAttempts: maxAttempts, baseDelay: defaultBaseDelay, sleep: sleepCtx}
}

// do runs fn until it succeeds, fails with something other than retryable, or the
// attempt budget is exhausted.
func (r retrier) do(ctx context.Context, retryable func(error) bool, fn func() (int64, error)) (int64, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		n, err := fn()
		if err == nil {
			return n, nil
		}
		if !retryable(err) {
			return 0, err
		}
		lastErr = err
		if attempt == r.maxAttempts {
			break
		}
		if err := r.sleep(ctx, r.backoff(attempt)); err != nil {
			return 0, err
		}
	}
	return 0, fmt.Errorf("%w after %d attempts: %v", ErrTransactionConflict, r.maxAttempts, lastErr)
}

func (r retrier) backoff(attempt int) time.Duration {
	d := r.baseDelay << (attempt - 1)
	if d <= 0 {
		return 0
	}
	return d/2 + rand.N(d/2+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
