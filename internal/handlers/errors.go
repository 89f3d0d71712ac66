// Package handlers holds what the route packages share: turning service
// errors into HTTP responses.
package handlers

import (
	"errors"
	"net/http"

	httputil "homedash/internal/http"
	"homedash/internal/services/montecarlo"
	"homedash/internal/services/portfolio"
	"homedash/internal/services/storage"
)

// StatusForError maps a service error onto an HTTP status code
func StatusForError(err error) int {
	switch {
	case errors.Is(err, montecarlo.ErrInputValidation):
		return http.StatusBadRequest
	case errors.Is(err, montecarlo.ErrNumericDegeneracy):
		return http.StatusUnprocessableEntity
	case errors.Is(err, portfolio.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrIncorrectPassword):
		return http.StatusUnauthorized
	case errors.Is(err, storage.ErrLocked):
		return http.StatusLocked
	case errors.Is(err, storage.ErrAlreadyEncrypted), errors.Is(err, storage.ErrNotEncrypted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as a JSON error body. Validation errors carry the
// offending field so forms can highlight it.
func Error(w http.ResponseWriter, err error) {
	field := ""
	var verr *montecarlo.ValidationError
	if errors.As(err, &verr) {
		field = verr.Field
	}
	httputil.FieldErrorResponse(w, err.Error(), field, StatusForError(err))
}
