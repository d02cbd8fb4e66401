package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/clinicops/internal/appointments"
	"github.com/wolfman30/clinicops/internal/assignment"
	"github.com/wolfman30/clinicops/internal/auth"
	"github.com/wolfman30/clinicops/internal/chat"
	"github.com/wolfman30/clinicops/internal/counter"
	"github.com/wolfman30/clinicops/internal/directory"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/internal/presence"
	"github.com/wolfman30/clinicops/pkg/logging"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// statusFor maps domain sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrAuthenticationRequired),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, chat.ErrUnauthorizedParticipant),
		errors.Is(err, assignment.ErrInboxForbidden):
		return http.StatusForbidden
	case errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, docstore.ErrAlreadyExists),
		errors.Is(err, docstore.ErrConflict),
		errors.Is(err, counter.ErrTransactionConflict):
		return http.StatusConflict
	case errors.Is(err, appointments.ErrInvalidAppointment),
		errors.Is(err, chat.ErrInvalidParticipants),
		errors.Is(err, chat.ErrEmptyFile),
		errors.Is(err, directory.ErrEmptyRecord),
		errors.Is(err, presence.ErrInvalidStatus),
		errors.Is(err, docstore.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrSignInUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a sanitized error body. Internal failures are logged
// with their cause and reported generically.
func respondError(w http.ResponseWriter, logger *logging.Logger, msg string, err error, kv ...any) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, append(kv, "error", err)...)
		writeError(w, status, "internal server error")
		return
	}
	text := http.StatusText(status)
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized:
		text = publicMessage(err)
	}
	writeError(w, status, text)
}

func publicMessage(err error) string {
	for _, known := range []error{
		auth.ErrAuthenticationRequired, auth.ErrInvalidCredentials, auth.ErrInvalidToken,
		appointments.ErrInvalidAppointment, chat.ErrInvalidParticipants, chat.ErrEmptyFile,
		directory.ErrEmptyRecord, presence.ErrInvalidStatus,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "bad request"
}
