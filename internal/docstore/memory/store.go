// Package memory is an in-process docstore.Store used by tests and single-node
// development. Transactions are serialized; commits fail with docstore.ErrConflict
// when a document read inside the transaction was changed by a direct write.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/pkg/logging"
)

type entry struct {
	data    docstore.Fields
	version uint64
}

// Store keeps documents in a map keyed by full path.
type Store struct {
	mu        sync.Mutex
	txMu      sync.Mutex
	docs      map[string]*entry
	versions  map[string]uint64
	listeners map[uint64]*listener
	nextID    uint64
	now       func() time.Time
	logger    *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time used for ServerTimestamp values.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for listener diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		docs:      make(map[string]*entry),
		versions:  make(map[string]uint64),
		listeners: make(map[uint64]*listener),
		now:       time.Now,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ docstore.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, path string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}
	if !docstore.IsDocumentPath(path) {
		return docstore.Document{}, fmt.Errorf("%w: document %q", docstore.ErrInvalidPath, path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[path]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return snapshot(path, e.data), nil
}

func (s *Store) Set(ctx context.Context, path string, data docstore.Fields, opts ...docstore.SetOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !docstore.IsDocumentPath(path) {
		return fmt.Errorf("%w: document %q", docstore.ErrInvalidPath, path)
	}
	merge := docstore.ApplySetOptions(opts...).Merge
	s.mu.Lock()
	s.write(path, data, merge)
	s.mu.Unlock()
	s.notify(path)
	return nil
}

func (s *Store) Create(ctx context.Context, path string, data docstore.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !docstore.IsDocumentPath(path) {
		return fmt.Errorf("%w: document %q", docstore.ErrInvalidPath, path)
	}
	s.mu.Lock()
	if _, ok := s.docs[path]; ok {
		s.mu.Unlock()
		return docstore.ErrAlreadyExists
	}
	s.write(path, data, false)
	s.mu.Unlock()
	s.notify(path)
	return nil
}

func (s *Store) Add(ctx context.Context, collection string, data docstore.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !docstore.IsCollectionPath(collection) {
		return "", fmt.Errorf("%w: collection %q", docstore.ErrInvalidPath, collection)
	}
	id := NewID()
	path := docstore.Join(collection, id)
	s.mu.Lock()
	s.write(path, data, false)
	s.mu.Unlock()
	s.notify(path)
	return id, nil
}

func (s *Store) Update(ctx context.Context, path string, patch docstore.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !docstore.IsDocumentPath(path) {
		return fmt.Errorf("%w: document %q", docstore.ErrInvalidPath, path)
	}
	s.mu.Lock()
	if _, ok := s.docs[path]; !ok {
		s.mu.Unlock()
		return docstore.ErrNotFound
	}
	s.write(path, patch, true)
	s.mu.Unlock()
	s.notify(path)
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !docstore.IsDocumentPath(path) {
		return fmt.Errorf("%w: document %q", docstore.ErrInvalidPath, path)
	}
	s.mu.Lock()
	_, existed := s.docs[path]
	if existed {
		delete(s.docs, path)
		s.versions[path]++
	}
	s.mu.Unlock()
	if existed {
		s.notify(path)
	}
	return nil
}

// Query evaluates q against the current contents.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query(q), nil
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// write must be called with s.mu held.
func (s *Store) write(path string, data docstore.Fields, merge bool) {
	resolved := s.resolve(data)
	e, ok := s.docs[path]
	if ok && merge {
		for k, v := range resolved {
			e.data[k] = v
		}
	} else {
		e = &entry{data: resolved}
		s.docs[path] = e
	}
	s.versions[path]++
	e.version = s.versions[path]
}

func (s *Store) resolve(data docstore.Fields) docstore.Fields {
	out := data.Clone()
	if out == nil {
		out = docstore.Fields{}
	}
	now := s.now().UTC()
	for k, v := range out {
		if docstore.IsServerTimestamp(v) {
			out[k] = now
		}
	}
	return out
}

func (s *Store) query(q docstore.Query) []docstore.Document {
	var docs []docstore.Document
	for path, e := range s.docs {
		if parent(path) != q.Collection {
			continue
		}
		if !matches(e.data, q) {
			continue
		}
		docs = append(docs, snapshot(path, e.data))
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, o := range q.Orders {
			c := compare(docs[i].Data[o.Field], docs[j].Data[o.Field])
			if c == 0 {
				continue
			}
			if o.Descending {
				return c > 0
			}
			return c < 0
		}
		return docs[i].ID < docs[j].ID
	})
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs
}

func snapshot(path string, data docstore.Fields) docstore.Document {
	return docstore.Document{ID: path[strings.LastIndex(path, "/")+1:], Path: path, Data: data.Clone()}
}

func parent(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}

// NewID returns a 20 character document id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

func (s *Store) logListenerPanic(r any) {
	s.logger.Error("listener panicked", "panic", r)
}
