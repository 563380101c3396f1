package authcode

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/hjtapia74/agiloft-api-example/session"
)

// Flow performs the OAuth2 authorization-code flow: it opens the provider's
// authorization page, receives the redirect on a loopback callback server,
// verifies the state parameter, exchanges the code, and seeds a session
// manager with the resulting token.
type Flow struct {
	// ClientID and ClientSecret identify the OAuth2 client. The secret is
	// optional for public clients.
	ClientID     string
	ClientSecret string

	// AuthorizationEndpoint is where the user's browser is sent.
	AuthorizationEndpoint string

	// TokenURL is the endpoint for the code exchange. The callback's
	// api_access_point overrides it when present.
	TokenURL string

	// RedirectURI must match the client registration
	// (e.g. "http://localhost:8080/callback").
	RedirectURI string

	// Scope is an optional space-separated list of scopes.
	Scope string

	// OpenURL delivers the authorization URL to the user. When nil the
	// URL is printed to stdout for manual opening.
	OpenURL func(url string) error

	// HTTPClient is used for the code exchange. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// CallbackTimeout bounds the wait for the browser redirect.
	// Defaults to DefaultCallbackTimeout.
	CallbackTimeout time.Duration
}

// Authenticate runs the flow and seeds mgr with the obtained token.
func (f *Flow) Authenticate(ctx context.Context, mgr *session.Manager) error {
	state, err := randomState()
	if err != nil {
		return fmt.Errorf("authcode: generate state: %w", err)
	}

	server, err := NewCallbackServer(f.RedirectURI)
	if err != nil {
		return err
	}
	if err := server.Start(ctx); err != nil {
		return err
	}
	defer server.Stop()

	cfg := f.oauthConfig(f.TokenURL)
	authURL := cfg.AuthCodeURL(state)

	if err := f.openURL(authURL); err != nil {
		return fmt.Errorf("authcode: open authorization URL: %w", err)
	}

	result, err := server.WaitForCallback(ctx, f.CallbackTimeout)
	if err != nil {
		return err
	}
	if result.IsError() {
		return fmt.Errorf("authcode: authorization failed: %s (%s)", result.Error, result.ErrorDescription)
	}

	// State mismatch means the callback did not originate from our
	// authorization request.
	if result.State != state {
		return fmt.Errorf("authcode: state parameter mismatch")
	}

	tokenURL := f.TokenURL
	if result.APIAccessPoint != "" {
		tokenURL = strings.TrimRight(result.APIAccessPoint, "/") + "/ewws/otoken"
	}

	if f.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.HTTPClient)
	}

	tok, err := f.oauthConfig(tokenURL).Exchange(ctx, result.Code)
	if err != nil {
		return fmt.Errorf("authcode: token exchange failed: %w", err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("authcode: no access token in exchange response")
	}

	mgr.SetToken(tok.AccessToken, tok.RefreshToken, tok.Expiry)
	return nil
}

func (f *Flow) oauthConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     f.ClientID,
		ClientSecret: f.ClientSecret,
		RedirectURL:  f.RedirectURI,
		Scopes:       strings.Fields(f.Scope),
		Endpoint: oauth2.Endpoint{
			AuthURL:  f.AuthorizationEndpoint,
			TokenURL: tokenURL,
		},
	}
}

func (f *Flow) openURL(url string) error {
	if f.OpenURL != nil {
		return f.OpenURL(url)
	}
	fmt.Printf("Open the following URL in your browser to log in:\n\n  %s\n\n", url)
	return nil
}

// randomState produces an unguessable state parameter.
func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
