// Package appointments is the state container for the citas collection: live
// filtered views, CRUD with derived defaults and calendar projections.
package appointments

import (
	"time"

	"github.com/wolfman30/clinicops/internal/docstore"
)

// Collection holds appointment documents.
const Collection = "citas"

// DefaultDuration is applied when an appointment is created without a duration (minutes).
const DefaultDuration = 20

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	ColorScheduled = "#4caf50"
	ColorCompleted = "#2196f3"
	ColorCancelled = "#f44336"
	ColorDefault   = "#9e9e9e"
)

// ColorForStatus is the only source of an appointment's color. Unknown
// statuses render gray.
func ColorForStatus(status string) string {
	switch status {
	case StatusScheduled:
		return ColorScheduled
	case StatusCompleted:
		return ColorCompleted
	case StatusCancelled:
		return ColorCancelled
	default:
		return ColorDefault
	}
}

// Appointment is one citas/{id} document.
type Appointment struct {
	ID              string    `json:"id"`
	PatientID       string    `json:"patientId"`
	DoctorID        string    `json:"doctorId,omitempty"`
	AppointmentDate time.Time `json:"appointmentDate"`
	Duration        int       `json:"duration"`
	Status          string    `json:"status"`
	Color           string    `json:"color"`
	Specialty       string    `json:"specialty,omitempty"`
	CreatedAt       time.Time `json:"createdAt,omitempty"`
}

func fromDocument(doc docstore.Document) Appointment {
	return Appointment{
		ID:              doc.ID,
		PatientID:       doc.Data.String("patientId"),
		DoctorID:        doc.Data.String("doctorId"),
		AppointmentDate: doc.Data.Time("appointmentDate"),
		Duration:        doc.Data.Int("duration"),
		Status:          doc.Data.String("status"),
		Color:           doc.Data.String("color"),
		Specialty:       doc.Data.String("specialty"),
		CreatedAt:       doc.Data.Time("createdAt"),
	}
}

func fromDocuments(docs []docstore.Document) []Appointment {
	out := make([]Appointment, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromDocument(doc))
	}
	return out
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	PatientID       *string    `json:"patientId,omitempty"`
	DoctorID        *string    `json:"doctorId,omitempty"`
	AppointmentDate *time.Time `json:"appointmentDate,omitempty"`
	Duration        *int       `json:"duration,omitempty"`
	Status          *string    `json:"status,omitempty"`
	Specialty       *string    `json:"specialty,omitempty"`
}

func (p Patch) fields() docstore.Fields {
	f := docstore.Fields{}
	if p.PatientID != nil {
		f["patientId"] = *p.PatientID
	}
	if p.DoctorID != nil {
		f["doctorId"] = *p.DoctorID
	}
	if p.AppointmentDate != nil {
		f["appointmentDate"] = p.AppointmentDate.UTC()
	}
	if p.Duration != nil {
		f["duration"] = *p.Duration
	}
	if p.Specialty != nil {
		f["specialty"] = *p.Specialty
	}
	if p.Status != nil {
		f["status"] = *p.Status
		f["color"] = ColorForStatus(*p.Status)
	}
	return f
}

// Result is the tagged outcome of a write. Err is nil when Success is true.
type Result struct {
	Success bool
	ID      string
	Err     error
}

func ok(id string) Result { return Result{Success: true, ID: id} }

func failed(err error) Result { return Result{Err: err} }

// Filter narrows a live view. Zero fields do not filter.
type Filter struct {
	Date      time.Time
	Specialty string
	DoctorID  string
	Status    string
}

// Report totals the loaded appointments.
type Report struct {
	TotalAppointments int            `json:"totalAppointments"`
	BySpecialty       map[string]int `json:"bySpecialty"`
	ByDoctor          map[string]int `json:"byDoctor"`
	ByStatus          map[string]int `json:"byStatus"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return len(p.fields()) == 0
}
