package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/steeplehq/steeple/internal/auth"
	"github.com/steeplehq/steeple/internal/identity"
	"github.com/steeplehq/steeple/internal/model"
	"github.com/steeplehq/steeple/internal/resource"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope.
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// writeServiceError maps a service-layer error onto the HTTP status space and
// writes the envelope. Unrecognized errors become 500 with a generic message
// so internal detail never leaks to clients.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, identity.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
	case errors.Is(err, identity.ErrUserExists):
		writeError(w, http.StatusConflict, "A user with this email already exists")
	case errors.Is(err, identity.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, auth.ErrAdminExists):
		writeError(w, http.StatusConflict, "An admin account already exists")
	case errors.Is(err, auth.ErrNoResetRequest):
		writeError(w, http.StatusBadRequest, "Invalid or expired reset code")
	case errors.Is(err, auth.ErrInvalidResetCode):
		writeError(w, http.StatusBadRequest, "Invalid reset code")
	case errors.Is(err, auth.ErrResetCodeExpired):
		writeError(w, http.StatusBadRequest, "Reset code has expired")
	case errors.Is(err, auth.ErrPasswordMismatch):
		writeError(w, http.StatusUnauthorized, "Current password is incorrect")
	case errors.Is(err, resource.ErrNotFound):
		writeError(w, http.StatusNotFound, "Resource not found")
	case errors.Is(err, resource.ErrUnknownCollection):
		writeError(w, http.StatusNotFound, "Unknown collection")
	case errors.Is(err, resource.ErrImmutable):
		writeError(w, http.StatusMethodNotAllowed, "Collection does not support this operation")
	default:
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}
