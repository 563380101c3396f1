package authcode

import (
	"context"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// DefaultCallbackTimeout is how long to wait for the browser callback.
const DefaultCallbackTimeout = 5 * time.Minute

const callbackSuccessHTML = `<html><body><h1>Authorization Successful!</h1>
<p>You can close this window and return to the application.</p></body></html>`

const callbackErrorHTML = `<html><body><h1>Authorization Failed</h1>
<p>Error: %s</p><p>You can close this window.</p></body></html>`

// CallbackResult is what the provider delivered to the redirect URI.
type CallbackResult struct {
	// Code is the authorization code.
	Code string

	// State is the state parameter to verify against the original request.
	State string

	// APIAccessPoint is the API host the provider assigned, if any. It
	// overrides the token endpoint for the code exchange.
	APIAccessPoint string

	// Error and ErrorDescription are set when authorization failed.
	Error            string
	ErrorDescription string
}

// IsError returns true if the callback result represents an error.
func (r *CallbackResult) IsError() bool {
	return r.Error != ""
}

// CallbackServer is a temporary loopback HTTP server for receiving the
// OAuth2 redirect. It serves a single callback, then shuts down.
type CallbackServer struct {
	port     int
	path     string
	server   *http.Server
	listener net.Listener
	resultCh chan *CallbackResult
	errorCh  chan error
	once     sync.Once
}

// NewCallbackServer creates a callback server for the given redirect URI
// (e.g. "http://localhost:8080/callback"). The URI's port and path decide
// where the server listens.
func NewCallbackServer(redirectURI string) (*CallbackServer, error) {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("authcode: invalid redirect URI: %w", err)
	}

	port := 8080
	if p := parsed.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("authcode: invalid redirect URI port: %w", err)
		}
	}

	path := parsed.Path
	if path == "" {
		path = "/callback"
	}

	return &CallbackServer{
		port:     port,
		path:     path,
		resultCh: make(chan *CallbackResult, 1),
		errorCh:  make(chan error, 1),
	}, nil
}

// Start begins listening for the callback. The server stops when the context
// is cancelled or after the first callback is delivered.
func (s *CallbackServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	listener, err := net.Listen("tcp4", addr)
	if err != nil {
		return fmt.Errorf("authcode: failed to start callback server on %s: %w", addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// WaitForCallback blocks until the callback arrives, the context is
// cancelled, or the timeout elapses.
func (s *CallbackServer) WaitForCallback(ctx context.Context, timeout time.Duration) (*CallbackResult, error) {
	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errorCh:
		return nil, fmt.Errorf("authcode: callback server failed: %w", err)
	case <-timer.C:
		return nil, fmt.Errorf("authcode: authorization timeout, no code received")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Addr returns the address the server is listening on. Only valid after
// Start has returned.
func (s *CallbackServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down. Safe to call more than once.
func (s *CallbackServer) Stop() {
	s.once.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
	})
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	result := &CallbackResult{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		APIAccessPoint:   query.Get("api_access_point"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	w.Header().Set("Content-Type", "text/html")
	switch {
	case result.IsError():
		fmt.Fprintf(w, callbackErrorHTML, html.EscapeString(result.Error))
	case result.Code == "":
		result.Error = "missing_code"
		fmt.Fprintf(w, callbackErrorHTML, "no authorization code received")
	default:
		fmt.Fprint(w, callbackSuccessHTML)
	}

	select {
	case s.resultCh <- result:
	default:
		// A second callback; the first one wins.
	}
}
