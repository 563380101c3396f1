package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Credentials selects the authentication method for a Manager. The two
// implementations are OAuth2Credentials and LegacyCredentials; the interface
// is closed and cannot be implemented outside this package.
type Credentials interface {
	// acquire performs a full token acquisition round-trip.
	acquire(ctx context.Context, client *http.Client) (*token, error)

	// refreshEndpoint returns the token endpoint used for the
	// refresh_token grant, or "" when refresh is unavailable.
	refreshEndpoint() string

	// refreshClientID returns the client_id sent with refresh requests,
	// or "" when the method has none.
	refreshClientID() string
}

// token is the cached result of an acquisition.
type token struct {
	access  string
	refresh string
	expiry  time.Time
}

// OAuth2Credentials authenticates with the OAuth2 client-credentials grant.
type OAuth2Credentials struct {
	// ClientID is the OAuth2 client identifier.
	ClientID string

	// ClientSecret is the OAuth2 client secret.
	ClientSecret string

	// TokenURL is the OAuth2 token endpoint
	// (e.g. "https://example.agiloft.com/ewws/otoken").
	TokenURL string

	// KB is the Agiloft knowledge base name, sent as an extra token
	// endpoint parameter.
	KB string

	// Scope is an optional space-separated list of OAuth2 scopes.
	Scope string
}

func (c OAuth2Credentials) acquire(ctx context.Context, client *http.Client) (*token, error) {
	cfg := &clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       strings.Fields(c.Scope),
	}
	if c.KB != "" {
		cfg.EndpointParams = url.Values{"kb": {c.KB}}
	}

	if client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	}

	tok, err := cfg.Token(ctx)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			return nil, &AuthError{
				Op:         "token",
				StatusCode: rErr.Response.StatusCode,
				Body:       string(rErr.Body),
				Err:        err,
			}
		}
		return nil, &AuthError{Op: "token", Err: err}
	}

	if tok.AccessToken == "" {
		return nil, &AuthError{Op: "token", Body: "no access token in response"}
	}

	return &token{
		access:  tok.AccessToken,
		refresh: tok.RefreshToken,
		expiry:  tok.Expiry,
	}, nil
}

func (c OAuth2Credentials) refreshEndpoint() string { return c.TokenURL }

func (c OAuth2Credentials) refreshClientID() string { return c.ClientID }

// LegacyCredentials authenticates against the legacy Agiloft login endpoint
// with a username and password.
type LegacyCredentials struct {
	// BaseURL is the REST API base URL
	// (e.g. "https://example.agiloft.com/ewws/alrest/Demo").
	BaseURL string

	// Username and Password are the login credentials.
	Username string
	Password string

	// KB is the Agiloft knowledge base name.
	KB string

	// Language is the session language; defaults to "en" when empty.
	Language string
}

func (c LegacyCredentials) acquire(ctx context.Context, client *http.Client) (*token, error) {
	lang := c.Language
	if lang == "" {
		lang = "en"
	}

	payload, err := json.Marshal(map[string]string{
		"login":    c.Username,
		"password": c.Password,
		"KB":       c.KB,
		"lang":     lang,
	})
	if err != nil {
		return nil, &AuthError{Op: "login", Err: err}
	}

	loginURL := strings.TrimRight(c.BaseURL, "/") + "/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &AuthError{Op: "login", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return doTokenRequest(client, req, "login")
}

func (c LegacyCredentials) refreshEndpoint() string { return tokenEndpointFor(c.BaseURL) }

func (c LegacyCredentials) refreshClientID() string { return "" }

// tokenEndpointFor derives the OAuth2 token endpoint from a REST base URL.
// Agiloft serves tokens at /ewws/otoken next to the /ewws/alrest API root.
func tokenEndpointFor(baseURL string) string {
	if baseURL == "" {
		return ""
	}
	if i := strings.Index(baseURL, "/ewws/alrest"); i >= 0 {
		baseURL = baseURL[:i]
	}
	return strings.TrimRight(baseURL, "/") + "/ewws/otoken"
}

// refreshGrant exchanges a refresh token for a new token set.
func refreshGrant(ctx context.Context, client *http.Client, endpoint, clientID, refreshToken string) (*token, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	if clientID != "" {
		form.Set("client_id", clientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{Op: "refresh", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	return doTokenRequest(client, req, "refresh")
}

// doTokenRequest issues a token request and parses the response envelope.
func doTokenRequest(client *http.Client, req *http.Request, op string) (*token, error) {
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &AuthError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AuthError{Op: op, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	tok, err := parseTokenResponse(body)
	if err != nil {
		return nil, &AuthError{Op: op, Body: string(body), Err: err}
	}
	return tok, nil
}

// tokenFields are the fields a token response may carry, at the top level or
// nested under "result". Agiloft responses use "access_token"; some login
// endpoints return a bare "token".
type tokenFields struct {
	AccessToken  string  `json:"access_token"`
	Token        string  `json:"token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresIn    float64 `json:"expires_in"`
}

type tokenEnvelope struct {
	Success *bool        `json:"success"`
	Message string       `json:"message"`
	Result  *tokenFields `json:"result"`
	tokenFields
}

// parseTokenResponse extracts a token from the provider response. The legacy
// login endpoint wraps the token in a {"success":..,"result":{..}} envelope;
// OAuth2 endpoints return the fields at the top level.
func parseTokenResponse(body []byte) (*token, error) {
	var env tokenEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	if env.Success != nil && !*env.Success {
		msg := env.Message
		if msg == "" {
			msg = "request rejected"
		}
		return nil, fmt.Errorf("provider rejected request: %s", msg)
	}

	fields := env.tokenFields
	if env.Result != nil {
		fields = *env.Result
	}

	access := fields.AccessToken
	if access == "" {
		access = fields.Token
	}
	if access == "" {
		return nil, errors.New("no access token in response")
	}

	tok := &token{
		access:  access,
		refresh: fields.RefreshToken,
	}
	if fields.ExpiresIn > 0 {
		tok.expiry = time.Now().Add(time.Duration(fields.ExpiresIn) * time.Second)
	}
	return tok, nil
}
