package triggers

import (
	"context"

	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// EventRecorder accepts created events for later delivery.
type EventRecorder interface {
	Record(ctx context.Context, collection, id string) error
}

// EmittingStore decorates a docstore.Store so that Add and Create on watched
// top-level collections record a document.created event after the write commits.
// A failed record is logged; the write is not rolled back.
type EmittingStore struct {
	docstore.Store
	recorder EventRecorder
	watched  map[string]bool
	logger   *logging.Logger
}

// NewEmittingStore wraps inner; collections defaults to citas and chats.
func NewEmittingStore(inner docstore.Store, recorder EventRecorder, logger *logging.Logger, collections ...string) *EmittingStore {
	if inner == nil {
		panic("triggers: store required")
	}
	if recorder == nil {
		panic("triggers: recorder required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if len(collections) == 0 {
		collections = []string{"citas", "chats"}
	}
	watched := make(map[string]bool, len(collections))
	for _, c := range collections {
		watched[c] = true
	}
	return &EmittingStore{Store: inner, recorder: recorder, watched: watched, logger: logger}
}

func (s *EmittingStore) Add(ctx context.Context, collection string, data docstore.Fields) (string, error) {
	id, err := s.Store.Add(ctx, collection, data)
	if err != nil {
		return "", err
	}
	s.emit(ctx, collection, id)
	return id, nil
}

func (s *EmittingStore) Create(ctx context.Context, path string, data docstore.Fields) error {
	if err := s.Store.Create(ctx, path, data); err != nil {
		return err
	}
	if collection, id, err := docstore.Split(path); err == nil {
		s.emit(ctx, collection, id)
	}
	return nil
}

func (s *EmittingStore) emit(ctx context.Context, collection, id string) {
	if !s.watched[collection] {
		return
	}
	if err := s.recorder.Record(ctx, collection, id); err != nil {
		s.logger.Error("created event not recorded, document will not be assigned", "collection", collection, "document_id", id, "error", err)
	}
}
