package session

import "fmt"

// AuthError reports a failed token acquisition: the identity provider
// rejected the credentials, returned a malformed payload, or the call timed
// out. It carries enough context to diagnose without inspecting logs.
type AuthError struct {
	// Op is the acquisition step that failed: "login", "token" or "refresh".
	Op string

	// StatusCode is the HTTP status returned by the identity provider,
	// or 0 when no response was received.
	StatusCode int

	// Body is the raw response body, when one was received.
	Body string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("session: %s failed: status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("session: %s failed: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("session: %s failed: %s", e.Op, e.Body)
	}
}

// Unwrap returns the underlying cause for use with errors.Is and errors.As.
func (e *AuthError) Unwrap() error { return e.Err }
