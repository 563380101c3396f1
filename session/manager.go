package session

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// defaultLeeway is how long before expiry a token is refreshed.
	defaultLeeway = time.Minute

	// defaultTTL is assumed when the provider omits expires_in. Agiloft
	// tokens live 15 minutes.
	defaultTTL = 900 * time.Second
)

// Logger is an interface for optional logging in Manager.
// Implementations can log token refresh events if desired.
type Logger interface {
	Printf(format string, args ...any)
}

// Manager holds the current bearer token for one Agiloft session and
// (re)acquires it as needed. It is safe for concurrent use: acquisition is
// single-flight, so concurrent callers share one round-trip and observe the
// same token or the same error.
type Manager struct {
	creds  Credentials
	client *http.Client
	leeway time.Duration
	logger Logger

	mu  sync.RWMutex
	tok *token

	sf singleflight.Group
}

// Option is a functional option for configuring Manager.
type Option func(*Manager)

// WithHTTPClient sets the HTTP client used for identity-provider calls.
// If not set, http.DefaultClient is used.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		m.client = client
	}
}

// WithLeeway sets how long before expiry a token is considered stale and
// refreshed proactively. The default is one minute.
func WithLeeway(leeway time.Duration) Option {
	return func(m *Manager) {
		m.leeway = leeway
	}
}

// WithLogger sets a custom logger for token acquisition events.
// If not set, no logging will occur.
func WithLogger(logger Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithLoggingEnabled enables logging using the default Go log package.
// This is a convenience option that sets the logger to log.Default().
func WithLoggingEnabled() Option {
	return func(m *Manager) {
		m.logger = log.Default()
	}
}

// NewManager creates a session manager for the given credentials. The
// session starts empty; the first call to Token performs the initial
// acquisition.
func NewManager(creds Credentials, opts ...Option) *Manager {
	m := &Manager{
		creds:  creds,
		leeway: defaultLeeway,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Token returns a valid bearer token, acquiring or refreshing one if the
// cached token is missing or within the leeway window of its expiry.
//
// Acquisition is serialized: if a fetch is already underway, concurrent
// callers wait for its result instead of issuing duplicate requests. All
// failures surface as *AuthError.
func (m *Manager) Token(ctx context.Context) (string, error) {
	// Fast path: a valid cached token needs no write access.
	m.mu.RLock()
	if m.valid() {
		access := m.tok.access
		m.mu.RUnlock()
		return access, nil
	}
	m.mu.RUnlock()

	v, err, _ := m.sf.Do("token", func() (any, error) {
		// Re-check: a flight that completed between the fast path and
		// Do may already have stored a fresh token.
		m.mu.RLock()
		if m.valid() {
			access := m.tok.access
			m.mu.RUnlock()
			return access, nil
		}
		var refresh string
		if m.tok != nil {
			refresh = m.tok.refresh
		}
		m.mu.RUnlock()

		tok, err := m.fetch(ctx, refresh)
		if err != nil {
			return "", err
		}
		if tok.expiry.IsZero() {
			tok.expiry = time.Now().Add(defaultTTL)
		}

		m.mu.Lock()
		m.tok = tok
		m.mu.Unlock()

		if m.logger != nil {
			m.logger.Printf("session: acquired token (expires %s)", tok.expiry.Format(time.RFC3339))
		}
		return tok.access, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate clears the cached access token so the next Token call
// re-acquires. A held refresh token survives, allowing the next acquisition
// to use the refresh_token grant. Used after a 401 response.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	if m.tok != nil {
		m.tok = &token{refresh: m.tok.refresh}
	}
	m.mu.Unlock()
}

// Clear drops all cached token state, including any refresh token. Used on
// logout; the next Token call performs a full re-authentication.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.tok = nil
	m.mu.Unlock()
}

// SetToken seeds the manager with an externally obtained token, e.g. from
// the authorization-code flow. A zero expiry means the default TTL.
func (m *Manager) SetToken(access, refresh string, expiry time.Time) {
	if expiry.IsZero() {
		expiry = time.Now().Add(defaultTTL)
	}
	m.mu.Lock()
	m.tok = &token{access: access, refresh: refresh, expiry: expiry}
	m.mu.Unlock()
}

// fetch performs one acquisition, preferring the refresh_token grant when a
// refresh token is held and falling back to the primary grant.
func (m *Manager) fetch(ctx context.Context, refresh string) (*token, error) {
	if refresh != "" {
		if endpoint := m.creds.refreshEndpoint(); endpoint != "" {
			tok, err := refreshGrant(ctx, m.client, endpoint, m.creds.refreshClientID(), refresh)
			if err == nil {
				return tok, nil
			}
			if m.logger != nil {
				m.logger.Printf("session: token refresh failed, re-authenticating: %v", err)
			}
		}
	}
	return m.creds.acquire(ctx, m.client)
}

// valid reports whether the cached token is still usable outside the leeway
// window. Callers must hold m.mu.
func (m *Manager) valid() bool {
	if m.tok == nil || m.tok.access == "" {
		return false
	}
	return time.Until(m.tok.expiry) > m.leeway
}
