// Package firestore adapts a Cloud Firestore client to docstore.Store.
package firestore

import (
	"context"
	"errors"
	"fmt"

	gfs "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var tracer = otel.Tracer("clinicops.internal.docstore.firestore")

// Store implements docstore.Store on top of Firestore.
type Store struct {
	client *gfs.Client
	logger *logging.Logger
}

// New wraps an existing client.
func New(client *gfs.Client, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{client: client, logger: logger}
}

// NewFromApp opens the Firestore client of a Firebase app.
func NewFromApp(ctx context.Context, app *firebase.App, logger *logging.Logger) (*Store, error) {
	if app == nil {
		return nil, errors.New("firestore: firebase app required")
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore: open client: %w", err)
	}
	return New(client, logger), nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ docstore.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, path string) (docstore.Document, error) {
	ctx, span := tracer.Start(ctx, "docstore.get", trace.WithAttributes(attribute.String("docstore.path", path)))
	defer span.End()
	if !docstore.IsDocumentPath(path) {
		return docstore.Document{}, fmt.Errorf("%w: document %q", docstore.ErrInvalidPath, path)
	}
	snap, err := s.client.Doc(path).Get(ctx)
	if err != nil {
		err = mapError(err)
		if !errors.Is(err, docstore.ErrNotFound) {
			span.RecordError(err)
		}
		return docstore.Document{}, err
	}
	return fromSnapshot(snap), nil
}

func (s *Store) Set(ctx context.Context, path string, data docstore.Fields, opts ...docstore.SetOption) error {
	ctx, span := tracer.Start(ctx, "docstore.set", trace.WithAttributes(attribute.String("docstore.path", path)))
	defer span.End()
	if !docstore.IsDocumentPath(path) {
		return fmt.Errorf("%w: document %q", docstore.ErrInvalidPath, path)
	}
	var setOpts []gfs.SetOption
	if docstore.ApplySetOptions(opts...).Merge {
		setOpts = append(setOpts, gfs.MergeAll)
	}
	if _, err := s.client.Doc(path).Set(ctx, toFirestore(data), setOpts...); err != nil {
		span.RecordError(err)
		return mapError(err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, path string, data docstore.Fields) error {
	ctx, span := tracer.Start(ctx, "docstore.create", trace.WithAttributes(attribute.String("docstore.path", path)))
	defer span.End()
	if !docstore.IsDocumentPath(path) {
		return fmt.Errorf("%w: document %q", docstore.ErrInvalidPath, path)
	}
	if _, err := s.client.Doc(path).Create(ctx, toFirestore(data)); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) Add(ctx context.Context, collection string, data docstore.Fields) (string, error) {
	ctx, span := tracer.Start(ctx, "docstore.add", trace.WithAttributes(attribute.String("docstore.collection", collection)))
	defer span.End()
	if !docstore.IsCollectionPath(collection) {
		return "", fmt.Errorf("%w: collection %q", docstore.ErrInvalidPath, collection)
	}
	ref, _, err := s.client.Collection(collection).Add(ctx, toFirestore(data))
	if err != nil {
		span.RecordError(err)
		return "", mapError(err)
	}
	return ref.ID, nil
}

func (s *Store) Update(ctx context.Context, path string, patch docstore.Fields) error {
	ctx, span := tracer.Start(ctx, "docstore.update", trace.WithAttributes(attribute.String("docstore.path", path)))
	defer span.End()
	if !docstore.IsDocumentPath(path) {
		return fmt.Errorf("%w: document %q", docstore.ErrInvalidPath, path)
	}
	if _, err := s.client.Doc(path).Update(ctx, toUpdates(patch)); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if !docstore.IsDocumentPath(path) {
		return fmt.Errorf("%w: document %q", docstore.ErrInvalidPath, path)
	}
	if _, err := s.client.Doc(path).Delete(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// RunTransaction runs fn in a single Firestore attempt; contention surfaces as
// docstore.ErrConflict so the caller owns the retry budget.
func (s *Store) RunTransaction(ctx context.Context, fn docstore.TxFunc) error {
	ctx, span := tracer.Start(ctx, "docstore.transaction")
	defer span.End()
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *gfs.Transaction) error {
		return fn(ctx, &transaction{client: s.client, tx: tx})
	}, gfs.MaxAttempts(1))
	if err != nil {
		span.RecordError(err)
		return mapError(err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	ctx, span := tracer.Start(ctx, "docstore.query", trace.WithAttributes(attribute.String("docstore.collection", q.Collection)))
	defer span.End()
	fq, err := s.buildQuery(q)
	if err != nil {
		return nil, err
	}
	snaps, err := fq.Documents(ctx).GetAll()
	if err != nil {
		span.RecordError(err)
		return nil, mapError(err)
	}
	docs := make([]docstore.Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, fromSnapshot(snap))
	}
	return docs, nil
}

// Subscribe follows q with a Firestore snapshot listener. The listener goroutine
// exits when ctx is cancelled, the returned CancelFunc is called, or the stream fails.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query, fn docstore.Listener) (docstore.CancelFunc, error) {
	if fn == nil {
		return nil, errors.New("docstore: listener required")
	}
	fq, err := s.buildQuery(q)
	if err != nil {
		return nil, err
	}
	listenCtx, cancel := context.WithCancel(ctx)
	it := fq.Snapshots(listenCtx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if listenCtx.Err() != nil || status.Code(err) == codes.Canceled || errors.Is(err, iterator.Done) {
					return
				}
				s.logger.Warn("firestore listener failed", "collection", q.Collection, "error", err)
				fn(docstore.Snapshot{Err: mapError(err)})
				return
			}
			all, err := snap.Documents.GetAll()
			if err != nil {
				fn(docstore.Snapshot{Err: mapError(err)})
				continue
			}
			docs := make([]docstore.Document, 0, len(all))
			for _, d := range all {
				docs = append(docs, fromSnapshot(d))
			}
			fn(docstore.Snapshot{Docs: docs})
		}
	}()

	return docstore.CancelFunc(cancel), nil
}

func (s *Store) buildQuery(q docstore.Query) (gfs.Query, error) {
	if err := q.Validate(); err != nil {
		return gfs.Query{}, err
	}
	fq := s.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, string(f.Op), f.Value)
	}
	for _, o := range q.Orders {
		dir := gfs.Asc
		if o.Descending {
			dir = gfs.Desc
		}
		fq = fq.OrderBy(o.Field, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq, nil
}

type transaction struct {
	client *gfs.Client
	tx     *gfs.Transaction
}

func (t *transaction) Get(_ context.Context, path string) (docstore.Document, error) {
	if !docstore.IsDocumentPath(path) {
		return docstore.Document{}, fmt.Errorf("%w: document %q", docstore.ErrInvalidPath, path)
	}
	snap, err := t.tx.Get(t.client.Doc(path))
	if err != nil {
		return docstore.Document{}, mapError(err)
	}
	return fromSnapshot(snap), nil
}

func (t *transaction) Set(path string, data docstore.Fields) error {
	if !docstore.IsDocumentPath(path) {
		return fmt.Errorf("%w: document %q", docstore.ErrInvalidPath, path)
	}
	return t.tx.Set(t.client.Doc(path), toFirestore(data))
}

func (t *transaction) Update(path string, patch docstore.Fields) error {
	if !docstore.IsDocumentPath(path) {
		return fmt.Errorf("%w: document %q", docstore.ErrInvalidPath, path)
	}
	return t.tx.Update(t.client.Doc(path), toUpdates(patch))
}

func fromSnapshot(snap *gfs.DocumentSnapshot) docstore.Document {
	doc := docstore.Document{Data: docstore.Fields(snap.Data())}
	if snap.Ref != nil {
		doc.ID = snap.Ref.ID
		doc.Path = relativePath(snap.Ref.Path)
	}
	return doc
}
