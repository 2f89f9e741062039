// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-lms/odyssey-lms/internal/shared"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Credential failures never echo the underlying error.
func RespondError(w http.ResponseWriter, err error) {
	code := shared.CodeOf(err)
	switch {
	case errors.Is(err, shared.ErrUnauthenticated), errors.Is(err, shared.ErrInvalidCredentials), errors.Is(err, ErrUnauthorized):
		Coded(w, http.StatusUnauthorized, "Unauthorized", shared.CodeUnauthenticated, "authentication required")
	case errors.Is(err, shared.ErrInvalidEscalationCredential):
		Coded(w, http.StatusUnauthorized, "Unauthorized", code, "escalation failed")
	case errors.Is(err, shared.ErrDepartmentNotFound):
		Coded(w, http.StatusNotFound, "Not Found", code, err.Error())
	case errors.Is(err, shared.ErrNotAMember), errors.Is(err, shared.ErrDepartmentInactive),
		errors.Is(err, shared.ErrNoActiveAdminSession), errors.Is(err, shared.ErrAuthorizationDenied):
		Coded(w, http.StatusForbidden, "Forbidden", code, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
