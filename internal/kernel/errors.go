package kernel

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mesh-intelligence/stage/pkg/collection"
	"github.com/mesh-intelligence/stage/pkg/types"
)

// Error is a failure that carries its own HTTP status.
type Error struct {
	Status int
	Reason string
	Err    error
}

// NewError returns an Error with the given status and reason.
func NewError(status int, reason string) *Error {
	return &Error{Status: status, Reason: reason}
}

// Errorf returns an Error whose reason is formatted from format and args.
// A %w verb is kept as the wrapped error.
func Errorf(status int, format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)
	return &Error{Status: status, Reason: err.Error(), Err: errors.Unwrap(err)}
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return http.StatusText(e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// invalidInput lists the errors reported as 400 Bad Request.
var invalidInput = []error{
	types.ErrInvalidID,
	types.ErrInvalidData,
	types.ErrInvalidName,
	types.ErrInvalidKind,
}

// StatusOf maps err to an HTTP status and the reason shown to the client.
func StatusOf(err error) (int, string) {
	var ke *Error
	if errors.As(err, &ke) {
		status := ke.Status
		if status < 400 || status > 599 {
			status = http.StatusInternalServerError
		}
		return status, ke.Error()
	}

	switch {
	case errors.Is(err, collection.ErrTypeMismatch), errors.Is(err, collection.ErrInvalidKey):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, err.Error()
	}
	for _, target := range invalidInput {
		if errors.Is(err, target) {
			return http.StatusBadRequest, err.Error()
		}
	}
	return http.StatusInternalServerError, err.Error()
}
