package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/wolfman30/clinicops/internal/docstore"
)

// ErrSubscriptionClosed is returned by Resume after Stop.
var ErrSubscriptionClosed = errors.New("chat: subscription closed")

// SubscriptionState is the lifecycle of a message subscription.
type SubscriptionState int

const (
	Subscribed SubscriptionState = iota
	Unsubscribed
	Closed
)

func (s SubscriptionState) String() string {
	switch s {
	case Subscribed:
		return "subscribed"
	case Unsubscribed:
		return "unsubscribed"
	default:
		return "closed"
	}
}

// Subscription is a live view of a chat's messages ordered by timestamp. Every
// emission replaces the message list. Suspend keeps the last list and stops
// listening; Resume re-attaches and receives a fresh full list.
type Subscription struct {
	store    docstore.Store
	query    docstore.Query
	ctx      context.Context
	sign     func(context.Context, []Message) []Message
	onChange func([]Message, error)

	mu       sync.Mutex
	state    SubscriptionState
	cancel   docstore.CancelFunc
	messages []Message
	gen      int
}

func newSubscription(ctx context.Context, store docstore.Store, chatID string, sign func(context.Context, []Message) []Message, onChange func([]Message, error)) *Subscription {
	return &Subscription{
		store:    store,
		query:    docstore.Collection(messagesPath(chatID)).OrderBy("timestamp", false),
		ctx:      ctx,
		sign:     sign,
		onChange: onChange,
		state:    Unsubscribed,
	}
}

func (s *Subscription) attach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Closed:
		return ErrSubscriptionClosed
	case Subscribed:
		return nil
	}
	s.gen++
	gen := s.gen
	cancel, err := s.store.Subscribe(s.ctx, s.query, func(snap docstore.Snapshot) {
		s.deliver(gen, snap)
	})
	if err != nil {
		return err
	}
	s.cancel = cancel
	s.state = Subscribed
	return nil
}

func (s *Subscription) deliver(gen int, snap docstore.Snapshot) {
	var list []Message
	if snap.Err == nil {
		list = make([]Message, 0, len(snap.Docs))
		for _, doc := range snap.Docs {
			list = append(list, messageFromDocument(doc))
		}
		if s.sign != nil {
			list = s.sign(s.ctx, list)
		}
	}
	s.mu.Lock()
	if gen != s.gen || s.state != Subscribed {
		s.mu.Unlock()
		return
	}
	if snap.Err == nil {
		s.messages = list
	}
	s.mu.Unlock()

	if s.onChange != nil {
		if snap.Err != nil {
			s.onChange(nil, snap.Err)
			return
		}
		s.onChange(append([]Message(nil), list...), nil)
	}
}

// Messages returns the last delivered list.
func (s *Subscription) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// State reports the current lifecycle state.
func (s *Subscription) State() SubscriptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Suspend detaches from the store. It is a no-op unless Subscribed.
func (s *Subscription) Suspend() {
	s.mu.Lock()
	if s.state != Subscribed {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.cancel = nil
	s.state = Unsubscribed
	s.mu.Unlock()
	cancel()
}

// Resume re-attaches a suspended subscription.
func (s *Subscription) Resume() error {
	return s.attach()
}

// Stop closes the subscription for good.
func (s *Subscription) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.state = Closed
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
