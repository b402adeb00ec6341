// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrInvalidData  = errors.New("invalid data")
	ErrUnavailable  = errors.New("upstream unavailable")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// FieldErrorer is implemented by validation errors that know which input
// fields failed.
type FieldErrorer interface {
	FieldErrors() map[string]string
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status, title := Classify(err)
	p := ProblemDetail{Title: title, Status: status}
	if status != http.StatusInternalServerError {
		p.Detail = err.Error()
	}
	var fe FieldErrorer
	if errors.As(err, &fe) {
		p.Errors = fe.FieldErrors()
	}
	WriteProblem(w, p)
}

// Classify returns the status code and problem title for err.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict, "Duplicate"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, "Validation Failed"
	case errors.Is(err, ErrInvalidData):
		return http.StatusUnprocessableEntity, "Invalid Data"
	case errors.Is(err, ErrUnavailable):
		return http.StatusBadGateway, "Upstream Unavailable"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}
