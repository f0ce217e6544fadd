package deletion

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cyp0633/caldelete/internal/xml"
	"github.com/cyp0633/caldelete/server/storage"
)

// Error is a delete failure that maps to a specific HTTP status, optionally
// with a DAV precondition element for the response body.
type Error struct {
	Status    int
	Condition *xml.Error
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func illegalDepth(depth storage.Depth) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("Client sent illegal depth header value for DELETE: %s", depth),
	}
}

func scheduleTagMismatch(uri string) *Error {
	return &Error{
		Status:  http.StatusPreconditionFailed,
		Message: fmt.Sprintf("If-Schedule-Tag-Match failed for %s", uri),
	}
}

func etagMismatch(uri string) *Error {
	return &Error{
		Status:  http.StatusPreconditionFailed,
		Message: fmt.Sprintf("If-Match failed for %s", uri),
	}
}

func defaultCalendarProtected(uri string) *Error {
	return &Error{
		Status:    http.StatusForbidden,
		Condition: &xml.Error{Namespace: xml.CalDAV, Tag: "default-calendar-delete-allowed"},
		Message:   fmt.Sprintf("Cannot DELETE default calendar: %s", uri),
	}
}

func shareeCannotSchedule(uri string) *Error {
	return &Error{
		Status:    http.StatusForbidden,
		Condition: &xml.Error{Namespace: xml.CalendarServer, Tag: "sharee-privilege-needed"},
		Message:   fmt.Sprintf("Sharee's cannot schedule: %s", uri),
	}
}

func resourceInUse(uri string, err error) *Error {
	return &Error{
		Status:  http.StatusConflict,
		Message: fmt.Sprintf("Resource: %s currently in use on the server.", uri),
		Err:     err,
	}
}

// StatusOf maps an error returned by Run to an HTTP status.
func StatusOf(err error) int {
	var delErr *Error
	switch {
	case errors.As(err, &delErr):
		return delErr.Status
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, storage.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// childStatus is the status recorded for a child that failed inside a
// recursive delete. Errors without a specific status become 400.
func childStatus(err error) int {
	var delErr *Error
	switch {
	case errors.As(err, &delErr):
		return delErr.Status
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}
