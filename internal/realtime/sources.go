package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/clinicops/internal/appointments"
	"github.com/wolfman30/clinicops/internal/assignment"
	"github.com/wolfman30/clinicops/internal/chat"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// ErrMissingID is returned when a chat or inbox subscription names no id.
var ErrMissingID = errors.New("realtime: id required")

// Emit receives one full snapshot of a subscribed view.
type Emit func(data any, err error)

// Source opens live views for one topic. The returned stop func ends the view.
type Source interface {
	Open(ctx context.Context, req Request, emit Emit) (stop func(), err error)
}

// ChatSource streams a chat's messages to its participants.
type ChatSource struct {
	Chats *chat.Container
}

func (s ChatSource) Open(ctx context.Context, req Request, emit Emit) (func(), error) {
	if req.ID == "" {
		return nil, ErrMissingID
	}
	sub, err := s.Chats.Subscribe(ctx, req.ID, func(msgs []chat.Message, err error) { emit(msgs, err) })
	if err != nil {
		return nil, err
	}
	return sub.Stop, nil
}

// AppointmentSource streams a filtered appointment view. Each subscription
// owns its container so filters never interfere across clients.
type AppointmentSource struct {
	Store  docstore.Store
	Loc    *time.Location
	Logger *logging.Logger
}

func (s AppointmentSource) Open(ctx context.Context, req Request, emit Emit) (func(), error) {
	filter := appointments.Filter{Specialty: req.Specialty, DoctorID: req.DoctorID, Status: req.Status}
	if req.Date != "" {
		day, err := time.ParseInLocation("2006-01-02", req.Date, s.Loc)
		if err != nil {
			return nil, err
		}
		filter.Date = day
	}
	c := appointments.New(s.Store, s.Loc, s.Logger)
	sub, err := c.Subscribe(ctx, filter, func(list []appointments.Appointment, err error) { emit(list, err) })
	if err != nil {
		return nil, err
	}
	return sub.Stop, nil
}

// InboxSource streams an agent's assigned appointments.
type InboxSource struct {
	Inbox *assignment.Inbox
}

func (s InboxSource) Open(ctx context.Context, req Request, emit Emit) (func(), error) {
	if req.ID == "" {
		return nil, ErrMissingID
	}
	cancel, err := s.Inbox.Subscribe(ctx, req.ID, func(items []assignment.InboxItem, err error) { emit(items, err) })
	if err != nil {
		return nil, err
	}
	return func() { cancel() }, nil
}
