package agiloft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hjtapia74/agiloft-api-example/httpclient"
	"github.com/hjtapia74/agiloft-api-example/session"
)

// Logger is an interface for optional request logging in Client.
type Logger interface {
	Printf(format string, args ...any)
}

// Client is an Agiloft REST API client. Authentication and the single 401
// retry live in the underlying transport; Client maps responses to decoded
// bodies or *APIError.
type Client struct {
	baseURL    string
	language   string
	httpClient *http.Client
	session    *session.Manager
	logger     Logger
}

// ClientOption is a functional option for configuring Client.
type ClientOption func(*Client)

// WithHTTPClient sets a pre-built HTTP client. Without this option the
// client builds one from the session manager with default settings.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLanguage sets the lang query parameter added to every request.
// Defaults to "en".
func WithLanguage(lang string) ClientOption {
	return func(c *Client) {
		c.language = lang
	}
}

// WithLogger sets a custom logger for request events.
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates an Agiloft API client.
//
// Parameters:
//   - baseURL: the REST API root, including the knowledge base
//     (e.g. "https://example.agiloft.com/ewws/alrest/Demo")
//   - mgr: session manager supplying bearer tokens
//   - opts: optional configuration (WithHTTPClient, WithLanguage, WithLogger)
func NewClient(baseURL string, mgr *session.Manager, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: "en",
		session:  mgr,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = httpclient.NewHTTPClient(mgr)
	}

	return c
}

// Execute issues an authenticated request against the resource API.
//
// The path is resolved below the base URL, a lang parameter is added when
// absent, and a non-nil body is marshaled as JSON. Any non-2xx response
// surfaces as *APIError carrying status code and body; 204 yields a nil
// payload. The bearer token and the single 401 retry are handled by the
// transport.
func (c *Client) Execute(ctx context.Context, method, path string, params url.Values, body any) (json.RawMessage, error) {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")

	query := url.Values{}
	for k, vs := range params {
		query[k] = vs
	}
	if query.Get("lang") == "" {
		query.Set("lang", c.language)
	}
	target += "?" + query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("agiloft: marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("agiloft: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.logger != nil {
		c.logger.Printf("agiloft: %s %s", method, target)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Err: err}
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return data, nil
	case http.StatusNoContent:
		return nil, nil
	default:
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
}

// Logout invalidates the server-side session and drops all cached token
// state. The local state is cleared even when the logout call fails.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.Execute(ctx, http.MethodPost, "/logout", nil, nil)
	if c.session != nil {
		c.session.Clear()
	}
	if err != nil {
		return fmt.Errorf("agiloft: logout: %w", err)
	}
	return nil
}
