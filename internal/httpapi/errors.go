package httpapi

import (
	"encoding/json"
	"net/http"

	"starweaved/internal/manager"
	"starweaved/pkg/types"
)

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusForError maps well-known manager errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case manager.IsInvalidRequest(err):
		return http.StatusBadRequest
	case manager.IsModelNotFound(err):
		return http.StatusNotFound
	case manager.IsModelNotReady(err):
		return http.StatusServiceUnavailable
	case manager.IsModelUnavailable(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps a manager error to its status and payload. Not-
// yet-ready responses carry a Retry-After hint.
func writeServiceError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "2")
	}
	writeJSONError(w, status, err.Error())
}
