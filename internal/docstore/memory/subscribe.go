package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/wolfman30/clinicops/internal/docstore"
)

type listener struct {
	query docstore.Query
	fn    docstore.Listener
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// Subscribe delivers the full matching set once immediately and again after every
// change to the collection. Bursts of writes are coalesced into one emission.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query, fn docstore.Listener) (docstore.CancelFunc, error) {
	if fn == nil {
		return nil, errors.New("docstore: listener required")
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	l := &listener{
		query: q,
		fn:    fn,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	cancel := func() {
		l.once.Do(func() {
			close(l.done)
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}

	l.wake <- struct{}{}
	go s.run(ctx, l, cancel)
	return cancel, nil
}

func (s *Store) run(ctx context.Context, l *listener, cancel func()) {
	for {
		select {
		case <-l.done:
			return
		case <-ctx.Done():
			cancel()
			return
		case <-l.wake:
			s.mu.Lock()
			docs := s.query(l.query)
			s.mu.Unlock()

			select {
			case <-l.done:
				return
			default:
			}
			s.deliver(l, docstore.Snapshot{Docs: docs})
		}
	}
}

func (s *Store) deliver(l *listener, snap docstore.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.logListenerPanic(r)
		}
	}()
	l.fn(snap)
}

func (s *Store) notify(path string) {
	collection := parent(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listeners {
		if l.query.Collection != collection {
			continue
		}
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
}

// Listeners returns the number of active subscriptions.
func (s *Store) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}
