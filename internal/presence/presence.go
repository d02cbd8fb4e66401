// Package presence tracks which agents are working right now through
// onlineAgent/{uid} documents.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinicops/internal/auth"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// Collection holds one document per agent that ever started a session.
const Collection = "onlineAgent"

const (
	StatusActive   = "Active"
	StatusOffline  = "Offline"
	StatusInactive = "Inactive"
)

const defaultDisplayName = "Usuario"

// ErrInvalidStatus is returned for blank status updates.
var ErrInvalidStatus = errors.New("presence: status required")

// State is an agent's presence. StartTime is set only for an Active session
// that started today in the clinic's time zone.
type State struct {
	UID         string     `json:"uid"`
	Status      string     `json:"status"`
	Email       string     `json:"email,omitempty"`
	DisplayName string     `json:"displayName,omitempty"`
	StartTime   *time.Time `json:"startTime,omitempty"`
}

type Service struct {
	store  docstore.Store
	loc    *time.Location
	now    func() time.Time
	logger *logging.Logger
}

func NewService(store docstore.Store, loc *time.Location, logger *logging.Logger) *Service {
	if store == nil {
		panic("presence: store required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, loc: loc, now: time.Now, logger: logger}
}

func docPath(uid string) string { return docstore.Join(Collection, uid) }

// Start marks the caller Active, merging into any previous session document.
func (s *Service) Start(ctx context.Context, displayName string) (State, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return State{}, err
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = defaultDisplayName
	}
	err = s.store.Set(ctx, docPath(p.UID), docstore.Fields{
		"status":      StatusActive,
		"startedAt":   docstore.ServerTimestamp,
		"email":       p.Email,
		"displayName": displayName,
	}, docstore.Merge())
	if err != nil {
		return State{}, fmt.Errorf("presence: start %s: %w", p.UID, err)
	}
	s.logger.Info("agent session started", "uid", p.UID)
	return s.Status(ctx, p.UID)
}

// UpdateStatus changes the caller's status. The session document must exist.
func (s *Service) UpdateStatus(ctx context.Context, status string) error {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return err
	}
	status = strings.TrimSpace(status)
	if status == "" {
		return ErrInvalidStatus
	}
	err = s.store.Update(ctx, docPath(p.UID), docstore.Fields{
		"status":    status,
		"updatedAt": docstore.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("presence: update %s: %w", p.UID, err)
	}
	return nil
}

// End marks the caller Offline.
func (s *Service) End(ctx context.Context) error {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return err
	}
	err = s.store.Update(ctx, docPath(p.UID), docstore.Fields{
		"status":  StatusOffline,
		"endedAt": docstore.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("presence: end %s: %w", p.UID, err)
	}
	s.logger.Info("agent session ended", "uid", p.UID)
	return nil
}

// Status reads uid's presence. A missing document reads as Inactive.
func (s *Service) Status(ctx context.Context, uid string) (State, error) {
	doc, err := s.store.Get(ctx, docPath(uid))
	if errors.Is(err, docstore.ErrNotFound) {
		return State{UID: uid, Status: StatusInactive}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("presence: read %s: %w", uid, err)
	}
	return s.fromDocument(doc), nil
}

// Online lists agents whose status is Active.
func (s *Service) Online(ctx context.Context) ([]State, error) {
	docs, err := s.store.Query(ctx, docstore.Collection(Collection).Where("status", docstore.OpEqual, StatusActive))
	if err != nil {
		return nil, fmt.Errorf("presence: list online: %w", err)
	}
	out := make([]State, 0, len(docs))
	for _, doc := range docs {
		out = append(out, s.fromDocument(doc))
	}
	return out, nil
}

func (s *Service) fromDocument(doc docstore.Document) State {
	st := State{
		UID:         doc.ID,
		Status:      doc.Data.String("status"),
		Email:       doc.Data.String("email"),
		DisplayName: doc.Data.String("displayName"),
	}
	if st.Status == "" {
		st.Status = StatusInactive
	}
	started := doc.Data.Time("startedAt")
	if st.Status == StatusActive && !started.IsZero() && sameDay(started, s.now(), s.loc) {
		t := started.In(s.loc)
		st.StartTime = &t
	}
	return st
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
