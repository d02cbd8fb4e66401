package memory

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinicops/internal/docstore"
)

type txWrite struct {
	path  string
	data  docstore.Fields
	merge bool
}

type memTx struct {
	store  *Store
	reads  map[string]uint64
	writes []txWrite
	staged map[string]bool
}

// RunTransaction runs fn with exclusive access among transactions. Direct writes
// are not blocked; a direct write to a document fn has read fails the commit with
// docstore.ErrConflict.
func (s *Store) RunTransaction(ctx context.Context, fn docstore.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{store: s, reads: make(map[string]uint64), staged: make(map[string]bool)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	for path, version := range tx.reads {
		if s.versions[path] != version {
			s.mu.Unlock()
			return docstore.ErrConflict
		}
	}
	for _, w := range tx.writes {
		s.write(w.path, w.data, w.merge)
	}
	s.mu.Unlock()

	for _, w := range tx.writes {
		s.notify(w.path)
	}
	return nil
}

func (t *memTx) Get(ctx context.Context, path string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}
	if !docstore.IsDocumentPath(path) {
		return docstore.Document{}, fmt.Errorf("%w: document %q", docstore.ErrInvalidPath, path)
	}
	if len(t.writes) > 0 {
		return docstore.Document{}, fmt.Errorf("docstore: transaction reads must precede writes")
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.reads[path] = t.store.versions[path]
	e, ok := t.store.docs[path]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return snapshot(path, e.data), nil
}

func (t *memTx) Set(path string, data docstore.Fields) error {
	if !docstore.IsDocumentPath(path) {
		return fmt.Errorf("%w: document %q", docstore.ErrInvalidPath, path)
	}
	t.writes = append(t.writes, txWrite{path: path, data: data.Clone()})
	t.staged[path] = true
	return nil
}

func (t *memTx) Update(path string, patch docstore.Fields) error {
	if !docstore.IsDocumentPath(path) {
		return fmt.Errorf("%w: document %q", docstore.ErrInvalidPath, path)
	}
	if !t.staged[path] {
		t.store.mu.Lock()
		_, ok := t.store.docs[path]
		t.store.mu.Unlock()
		if !ok {
			return docstore.ErrNotFound
		}
	}
	t.writes = append(t.writes, txWrite{path: path, data: patch.Clone(), merge: true})
	return nil
}
