package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// ErrInvalidAppointment is returned for creates without a patient or date.
var ErrInvalidAppointment = errors.New("appointments: patientId and appointmentDate required")

// SpecialtiesCollection holds a single document with a specialties array.
const SpecialtiesCollection = "especialidadesclinica"

// Container mirrors the subscribed subset of citas and mediates every write.
// It is safe for concurrent use.
type Container struct {
	store  docstore.Store
	loc    *time.Location
	logger *logging.Logger

	mu      sync.RWMutex
	loaded  []Appointment
	lastErr error
	active  *Subscription
}

// New creates a container. Calendar math uses loc (UTC when nil).
func New(store docstore.Store, loc *time.Location, logger *logging.Logger) *Container {
	if store == nil {
		panic("appointments: store required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Container{store: store, loc: loc, logger: logger}
}

// Location is the clinic time zone used for day boundaries.
func (c *Container) Location() *time.Location { return c.loc }

// Subscription is a live appointment view.
type Subscription struct {
	mu      sync.Mutex
	cancel  docstore.CancelFunc
	stopped bool
}

// Stop cancels the live query. Safe to call more than once.
func (s *Subscription) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.stopped = true
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Subscription) bind(cancel docstore.CancelFunc) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()
}

func (s *Subscription) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Query builds the live query for filter, ordered by appointmentDate ascending.
func (c *Container) Query(filter Filter) docstore.Query {
	q := docstore.Collection(Collection)
	if !filter.Date.IsZero() {
		start, end := Window(ViewDaily, filter.Date, c.loc)
		q = q.Where("appointmentDate", docstore.OpGreaterEqual, start.UTC()).
			Where("appointmentDate", docstore.OpLess, end.UTC())
	}
	if filter.Specialty != "" {
		q = q.Where("specialty", docstore.OpEqual, filter.Specialty)
	}
	if filter.DoctorID != "" {
		q = q.Where("doctorId", docstore.OpEqual, filter.DoctorID)
	}
	if filter.Status != "" {
		q = q.Where("status", docstore.OpEqual, filter.Status)
	}
	return q.OrderBy("appointmentDate", false)
}

// Subscribe replaces the loaded set with every emission of the filtered live
// query until the subscription is stopped or ctx is done. A new Subscribe
// stops the previous one; emissions the superseded query still has in flight
// are dropped. onChange may be nil.
func (c *Container) Subscribe(ctx context.Context, filter Filter, onChange func([]Appointment, error)) (*Subscription, error) {
	sub := &Subscription{}
	c.mu.Lock()
	prev := c.active
	c.active = sub
	c.mu.Unlock()

	cancel, err := c.store.Subscribe(ctx, c.Query(filter), func(snap docstore.Snapshot) {
		c.deliver(sub, snap, onChange)
	})
	if err != nil {
		c.mu.Lock()
		if c.active == sub {
			c.active = prev
		}
		c.mu.Unlock()
		return nil, fmt.Errorf("appointments: subscribe: %w", err)
	}
	sub.bind(cancel)
	prev.Stop()
	return sub, nil
}

func (c *Container) deliver(sub *Subscription, snap docstore.Snapshot, onChange func([]Appointment, error)) {
	if sub.isStopped() {
		return
	}
	var list []Appointment
	if snap.Err == nil {
		list = fromDocuments(snap.Docs)
	}
	c.mu.Lock()
	if c.active != sub {
		c.mu.Unlock()
		return
	}
	if snap.Err != nil {
		c.lastErr = snap.Err
	} else {
		c.loaded = list
		c.lastErr = nil
	}
	c.mu.Unlock()

	if snap.Err != nil {
		c.logger.Error("appointment subscription failed", "error", snap.Err)
		if onChange != nil {
			onChange(nil, snap.Err)
		}
		return
	}
	if onChange != nil {
		onChange(clone(list), nil)
	}
}

// List runs the filtered query once without touching the loaded set.
func (c *Container) List(ctx context.Context, filter Filter) ([]Appointment, error) {
	docs, err := c.store.Query(ctx, c.Query(filter))
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	return fromDocuments(docs), nil
}

// Get reads one appointment.
func (c *Container) Get(ctx context.Context, id string) (Appointment, error) {
	doc, err := c.store.Get(ctx, docstore.Join(Collection, id))
	if err != nil {
		return Appointment{}, fmt.Errorf("appointments: get %s: %w", id, err)
	}
	return fromDocument(doc), nil
}

// Loaded returns a copy of the current loaded set and the last subscription error.
func (c *Container) Loaded() ([]Appointment, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.loaded), c.lastErr
}

// Create stores a new appointment with duration, status, color and createdAt filled in.
func (c *Container) Create(ctx context.Context, a Appointment) Result {
	if strings.TrimSpace(a.PatientID) == "" || a.AppointmentDate.IsZero() {
		return failed(ErrInvalidAppointment)
	}
	if a.Duration <= 0 {
		a.Duration = DefaultDuration
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	data := docstore.Fields{
		"patientId":       a.PatientID,
		"appointmentDate": a.AppointmentDate.UTC(),
		"duration":        a.Duration,
		"status":          a.Status,
		"color":           ColorForStatus(a.Status),
		"createdAt":       docstore.ServerTimestamp,
	}
	if a.DoctorID != "" {
		data["doctorId"] = a.DoctorID
	}
	if a.Specialty != "" {
		data["specialty"] = a.Specialty
	}
	id, err := c.store.Add(ctx, Collection, data)
	if err != nil {
		c.logger.Error("failed to create appointment", "patient_id", a.PatientID, "error", err)
		return failed(fmt.Errorf("appointments: create: %w", err))
	}
	return ok(id)
}

// Update applies patch; a status change always recomputes color.
func (c *Container) Update(ctx context.Context, id string, patch Patch) Result {
	if err := c.store.Update(ctx, docstore.Join(Collection, id), patch.fields()); err != nil {
		c.logger.Error("failed to update appointment", "cita_id", id, "error", err)
		return failed(fmt.Errorf("appointments: update %s: %w", id, err))
	}
	return ok(id)
}

// AssignToDoctor sets doctorId on the appointment.
func (c *Container) AssignToDoctor(ctx context.Context, id, doctorID string) Result {
	return c.Update(ctx, id, Patch{DoctorID: &doctorID})
}

// Delete removes the appointment.
func (c *Container) Delete(ctx context.Context, id string) Result {
	if err := c.store.Delete(ctx, docstore.Join(Collection, id)); err != nil {
		c.logger.Error("failed to delete appointment", "cita_id", id, "error", err)
		return failed(fmt.Errorf("appointments: delete %s: %w", id, err))
	}
	return ok(id)
}

// CountBySpecialty counts loaded appointments on date's calendar day with specialty.
func (c *Container) CountBySpecialty(date time.Time, specialty string) int {
	start, end := Window(ViewDaily, date, c.loc)
	n := 0
	c.each(func(a Appointment) {
		if a.Specialty == specialty && within(a.AppointmentDate, start, end) {
			n++
		}
	})
	return n
}

// ForView returns loaded appointments inside the view window around ref.
func (c *Container) ForView(view View, ref time.Time) []Appointment {
	start, end := Window(view, ref, c.loc)
	var out []Appointment
	c.each(func(a Appointment) {
		if within(a.AppointmentDate, start, end) {
			out = append(out, a)
		}
	})
	return out
}

// Filter narrows the loaded set by specialty, doctor and status. Date is ignored.
func (c *Container) Filter(f Filter) []Appointment {
	var out []Appointment
	c.each(func(a Appointment) {
		if f.Specialty != "" && a.Specialty != f.Specialty {
			return
		}
		if f.DoctorID != "" && a.DoctorID != f.DoctorID {
			return
		}
		if f.Status != "" && a.Status != f.Status {
			return
		}
		out = append(out, a)
	})
	return out
}

// PatientHistory returns the loaded appointments of one patient.
func (c *Container) PatientHistory(patientID string) []Appointment {
	var out []Appointment
	c.each(func(a Appointment) {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	})
	return out
}

// Report totals the loaded set by specialty, doctor and status.
func (c *Container) Report() Report {
	r := Report{BySpecialty: map[string]int{}, ByDoctor: map[string]int{}, ByStatus: map[string]int{}}
	c.each(func(a Appointment) {
		r.TotalAppointments++
		if a.Specialty != "" {
			r.BySpecialty[a.Specialty]++
		}
		if a.DoctorID != "" {
			r.ByDoctor[a.DoctorID]++
		}
		if a.Status != "" {
			r.ByStatus[a.Status]++
		}
	})
	return r
}

// Specialties reads the clinic's specialty list.
func (c *Container) Specialties(ctx context.Context) ([]string, error) {
	docs, err := c.store.Query(ctx, docstore.Collection(SpecialtiesCollection).WithLimit(1))
	if err != nil {
		return nil, fmt.Errorf("appointments: specialties: %w", err)
	}
	if len(docs) == 0 {
		return []string{}, nil
	}
	return docs[0].Data.Strings("specialties"), nil
}

func (c *Container) each(fn func(Appointment)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.loaded {
		fn(a)
	}
}

func clone(list []Appointment) []Appointment {
	return append([]Appointment(nil), list...)
}
