package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinicops/internal/appointments"
	"github.com/wolfman30/clinicops/pkg/logging"
)

const dateLayout = "2006-01-02"

// AppointmentsHandler exposes the appointment container. The container is
// expected to hold a live subscription over all appointments so the view,
// report and history endpoints read the loaded set.
type AppointmentsHandler struct {
	container *appointments.Container
	logger    *logging.Logger
}

func NewAppointmentsHandler(container *appointments.Container, logger *logging.Logger) *AppointmentsHandler {
	if container == nil {
		panic("handlers: appointment container required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{container: container, logger: logger}
}

func (h *AppointmentsHandler) parseDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, true
	}
	t, err := time.ParseInLocation(dateLayout, value, h.container.Location())
	return t, err == nil
}

// List handles GET /appointments. With view=daily|weekly|monthly it returns
// the loaded appointments in that window around date (today by default);
// otherwise it queries by date, specialty, doctorId and status.
func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, ok := h.parseDate(q.Get("date"))
	if !ok {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if view := q.Get("view"); view != "" {
		ref := date
		if ref.IsZero() {
			ref = time.Now()
		}
		list := h.container.ForView(appointments.View(view), ref)
		writeJSON(w, http.StatusOK, map[string]any{"appointments": nonNil(list)})
		return
	}
	filter := appointments.Filter{
		Date:      date,
		Specialty: q.Get("specialty"),
		DoctorID:  q.Get("doctorId"),
		Status:    q.Get("status"),
	}
	list, err := h.container.List(r.Context(), filter)
	if err != nil {
		respondError(w, h.logger, "failed to list appointments", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": nonNil(list)})
}

// Get handles GET /appointments/{id}.
func (h *AppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := h.container.Get(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, "failed to get appointment", err, "cita_id", id)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Create handles POST /appointments.
func (h *AppointmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var a appointments.Appointment
	if !decodeJSON(w, r, &a) {
		return
	}
	res := h.container.Create(r.Context(), a)
	if !res.Success {
		respondError(w, h.logger, "failed to create appointment", res.Err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "id": res.ID})
}

// Update handles PATCH /appointments/{id}.
func (h *AppointmentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch appointments.Patch
	if !decodeJSON(w, r, &patch) {
		return
	}
	if patch.IsEmpty() {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	h.writeResult(w, h.container.Update(r.Context(), id, patch), "failed to update appointment")
}

// Delete handles DELETE /appointments/{id}.
func (h *AppointmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.writeResult(w, h.container.Delete(r.Context(), chi.URLParam(r, "id")), "failed to delete appointment")
}

// AssignDoctor handles POST /appointments/{id}/doctor.
func (h *AppointmentsHandler) AssignDoctor(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DoctorID string `json:"doctorId"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.DoctorID) == "" {
		writeError(w, http.StatusBadRequest, "doctorId required")
		return
	}
	h.writeResult(w, h.container.AssignToDoctor(r.Context(), chi.URLParam(r, "id"), body.DoctorID), "failed to assign doctor")
}

func (h *AppointmentsHandler) writeResult(w http.ResponseWriter, res appointments.Result, msg string) {
	if !res.Success {
		respondError(w, h.logger, msg, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": res.ID})
}

// Report handles GET /appointments/report. specialty, doctorId and status
// narrow the loaded set before totalling.
func (h *AppointmentsHandler) Report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("specialty") == "" && q.Get("doctorId") == "" && q.Get("status") == "" {
		writeJSON(w, http.StatusOK, h.container.Report())
		return
	}
	list := h.container.Filter(appointments.Filter{Specialty: q.Get("specialty"), DoctorID: q.Get("doctorId"), Status: q.Get("status")})
	writeJSON(w, http.StatusOK, map[string]any{"totalAppointments": len(list), "appointments": nonNil(list)})
}

// CountBySpecialty handles GET /appointments/count?date=&specialty=.
func (h *AppointmentsHandler) CountBySpecialty(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, ok := h.parseDate(q.Get("date"))
	if !ok || date.IsZero() || q.Get("specialty") == "" {
		writeError(w, http.StatusBadRequest, "date (YYYY-MM-DD) and specialty required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": h.container.CountBySpecialty(date, q.Get("specialty"))})
}

// PatientHistory handles GET /patients/{id}/appointments.
func (h *AppointmentsHandler) PatientHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"appointments": nonNil(h.container.PatientHistory(chi.URLParam(r, "id")))})
}

// Specialties handles GET /specialties.
func (h *AppointmentsHandler) Specialties(w http.ResponseWriter, r *http.Request) {
	list, err := h.container.Specialties(r.Context())
	if err != nil {
		respondError(w, h.logger, "failed to load specialties", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"specialties": list})
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
