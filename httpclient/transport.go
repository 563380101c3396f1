package httpclient

import (
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/hjtapia74/agiloft-api-example/session"
)

// AuthTransport is an http.RoundTripper that attaches the session's bearer
// token to outgoing requests and recovers from a single authorization
// failure.
//
// On a 401 response it invalidates the session, acquires a fresh token, and
// retries the request exactly once. A second 401 is returned to the caller
// untouched. Requests whose body cannot be replayed (GetBody is nil) are
// never retried.
type AuthTransport struct {
	// Base is the underlying HTTP transport. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	// Session provides bearer tokens.
	Session *session.Manager
}

// NewAuthTransport creates an AuthTransport backed by the given session
// manager. The base transport defaults to http.DefaultTransport if not
// specified.
func NewAuthTransport(mgr *session.Manager, base http.RoundTripper) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &AuthTransport{
		Base:    base,
		Session: mgr,
	}
}

// RoundTrip implements http.RoundTripper. It fetches a valid token, adds it
// as "Authorization: Bearer <token>" together with an X-Request-ID
// correlation header, and delegates to the base transport. The token fetch
// respects the request context's cancellation and deadline.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Session == nil {
		return nil, fmt.Errorf("httpclient: Session is nil")
	}

	token, err := t.Session.Token(req.Context())
	if err != nil {
		return nil, fmt.Errorf("httpclient: failed to get token: %w", err)
	}

	resp, err := t.send(req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// The request body has been consumed; without GetBody the retry would
	// send a truncated request.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	drain(resp)

	t.Session.Invalidate()
	token, err = t.Session.Token(req.Context())
	if err != nil {
		return nil, fmt.Errorf("httpclient: failed to re-acquire token after 401: %w", err)
	}

	retry := req
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("httpclient: failed to rewind request body: %w", err)
		}
		retry = req.Clone(req.Context())
		retry.Body = body
	}

	return t.send(retry, token)
}

// send issues one attempt with the given token attached.
func (t *AuthTransport) send(req *http.Request, token string) (*http.Response, error) {
	// Clone the request to avoid modifying the original.
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	if clone.Header.Get("X-Request-ID") == "" {
		clone.Header.Set("X-Request-ID", uuid.NewString())
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	return base.RoundTrip(clone)
}

// drain discards and closes a response body so the connection can be reused.
func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
