package httpclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/logiride/client/internal/domain/shared"
)

// ErrSessionExpired is returned by every call that failed with HTTP 401.
// The session store has been cleared by the time the caller sees it.
var ErrSessionExpired = shared.ErrSessionExpired

// ErrMalformedResponse is wrapped when a 2xx body is not a valid envelope
var ErrMalformedResponse = errors.New("malformed response envelope")

// APIError is a business error signalled by the server, either with a non-2xx
// status or with an envelope code other than 200.
type APIError struct {
	Status  int
	Code    int
	Message string
}

// Error returns the server message verbatim
func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if text := http.StatusText(e.Status); text != "" {
		return text
	}
	return fmt.Sprintf("request failed with code %d", e.Code)
}

// IsNotFound reports whether the server answered 404
func (e *APIError) IsNotFound() bool {
	return e.Status == http.StatusNotFound || e.Code == http.StatusNotFound
}

// TransportError means the request never produced an HTTP response
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsAPIError reports whether err carries a server business error
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// IsTransportError reports whether err is a network failure
func IsTransportError(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}
