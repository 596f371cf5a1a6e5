package remote

import (
	"errors"
	"fmt"
)

// ErrUnavailable indicates the remote catalog could not be reached or did not
// report itself healthy.
var ErrUnavailable = errors.New("remote catalog unavailable")

// ErrBookNotFound indicates no remote record matches a title and author.
var ErrBookNotFound = errors.New("book not found in remote catalog")

// RequestError is a non-2xx response from the remote catalog.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote catalog %s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("remote catalog %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsServerError reports whether the failure is on the server side.
func (e *RequestError) IsServerError() bool {
	return e.StatusCode >= 500
}
