// Package docstore is the narrow document-database contract the clinic core talks to.
// Documents live at slash-separated paths ("citas/abc", "chats/x/messages/y"); a
// collection path has an odd number of segments, a document path an even number.
package docstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a referenced document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrAlreadyExists is returned by Create when the document is already present.
	ErrAlreadyExists = errors.New("docstore: document already exists")
	// ErrConflict is returned when a transaction lost a race and must be retried
	// from its first read.
	ErrConflict = errors.New("docstore: transaction conflict")
	// ErrInvalidPath is returned for malformed document or collection paths.
	ErrInvalidPath = errors.New("docstore: invalid path")
)

type serverTimestamp struct{}

// ServerTimestamp is a sentinel field value replaced by the commit time of the write.
var ServerTimestamp any = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// Document is a snapshot of a stored document.
type Document struct {
	ID   string
	Path string
	Data Fields
}

// Snapshot is one emission of a live query: the full matching set, or an error.
type Snapshot struct {
	Docs []Document
	Err  error
}

// Listener receives every emission of a live query.
type Listener func(Snapshot)

// CancelFunc stops a live query. It is safe to call more than once.
type CancelFunc func()

// Tx is the view of the store available inside RunTransaction. Writes are buffered
// and applied atomically when the transaction function returns nil.
type Tx interface {
	Get(ctx context.Context, path string) (Document, error)
	Set(path string, data Fields) error
	Update(path string, patch Fields) error
}

// TxFunc is the body of a transaction. It may run more than once.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the document database used by every clinic component.
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	Set(ctx context.Context, path string, data Fields, opts ...SetOption) error
	Create(ctx context.Context, path string, data Fields) error
	Add(ctx context.Context, collection string, data Fields) (string, error)
	Update(ctx context.Context, path string, patch Fields) error
	Delete(ctx context.Context, path string) error
	RunTransaction(ctx context.Context, fn TxFunc) error
	Query(ctx context.Context, q Query) ([]Document, error)
	Subscribe(ctx context.Context, q Query, fn Listener) (CancelFunc, error)
}

// SetOption customises Set.
type SetOption func(*SetOptions)

// SetOptions is the resolved form of SetOption values.
type SetOptions struct {
	Merge bool
}

// Merge makes Set update only the provided fields instead of replacing the document.
func Merge() SetOption {
	return func(o *SetOptions) { o.Merge = true }
}

// ApplySetOptions resolves opts for store implementations.
func ApplySetOptions(opts ...SetOption) SetOptions {
	var o SetOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
