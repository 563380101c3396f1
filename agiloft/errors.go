package agiloft

import "fmt"

// APIError reports a failed resource API call. It carries the HTTP status
// code and response body so callers can diagnose failures without inspecting
// logs. A StatusCode of 0 means the request never produced a response.
type APIError struct {
	// StatusCode is the HTTP status returned by the API, or 0 for
	// transport-level failures.
	StatusCode int

	// Body is the raw response body, when one was received.
	Body string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("agiloft: request failed: status %d: %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("agiloft: request failed: %v", e.Err)
	default:
		return fmt.Sprintf("agiloft: request failed: %s", e.Body)
	}
}

// Unwrap returns the underlying cause for use with errors.Is and errors.As.
func (e *APIError) Unwrap() error { return e.Err }
