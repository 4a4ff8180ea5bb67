// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/rolegate/rolegate/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	detail := shared.UserSafeMessage(err)
	switch {
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", detail)
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Invalid Credentials", detail)
	case errors.Is(err, shared.ErrUnauthenticated):
		w.Header().Set("WWW-Authenticate", `Bearer realm="rolegate"`)
		Problem(w, http.StatusUnauthorized, "Unauthorized", detail)
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", detail)
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", detail)
	case errors.Is(err, shared.ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", detail)
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// RespondUnavailable writes the fail-closed response used when authorization cannot be decided.
func RespondUnavailable(w http.ResponseWriter) {
	Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "authorization check failed")
}

// IsClientError reports whether err belongs to a 4xx class and need not be logged as a fault.
func IsClientError(err error) bool {
	return shared.UserSafeMessage(err) != ""
}
