package authcode

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hjtapia74/agiloft-api-example/internal/testutil"
	"github.com/hjtapia74/agiloft-api-example/session"
)

// reserveRedirectURI picks a free loopback port and returns a redirect URI
// bound to it, so the flow's callback server and the test agree on the
// address in advance.
func reserveRedirectURI(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	return fmt.Sprintf("http://localhost:%d/callback", port)
}

// browse returns an OpenURL func that plays the user's browser: it parses
// the authorization URL and immediately delivers the callback with the
// given query values, carrying over the state unless one is forced.
func browse(t *testing.T, redirectURI string, values url.Values) func(string) error {
	t.Helper()

	return func(authURL string) error {
		parsed, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		query := parsed.Query()
		if query.Get("redirect_uri") != redirectURI {
			t.Errorf("redirect_uri = %q, want %q", query.Get("redirect_uri"), redirectURI)
		}

		callback := values
		if callback.Get("state") == "" {
			callback.Set("state", query.Get("state"))
		}

		resp, err := http.Get(redirectURI + "?" + callback.Encode())
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
}

func TestFlow_Authenticate(t *testing.T) {
	var exchanges []*http.Request
	tokenSrv := testutil.NewLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		exchanges = append(exchanges, r)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"access_token": "exchanged-token",
			"refresh_token": "exchanged-refresh",
			"token_type": "Bearer",
			"expires_in": 900
		}`)
	}))
	defer tokenSrv.Close()

	redirectURI := reserveRedirectURI(t)
	flow := &Flow{
		ClientID:              "test-client",
		AuthorizationEndpoint: "https://idp.example.com/oauth/authorize",
		TokenURL:              tokenSrv.URL + "/ewws/otoken",
		RedirectURI:           redirectURI,
		OpenURL:               browse(t, redirectURI, url.Values{"code": {"test-code"}}),
		HTTPClient:            tokenSrv.Client(),
		CallbackTimeout:       5 * time.Second,
	}

	mgr := session.NewManager(session.OAuth2Credentials{})
	if err := flow.Authenticate(context.Background(), mgr); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	tok, err := mgr.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok != "exchanged-token" {
		t.Errorf("token = %q, want exchanged-token", tok)
	}

	if len(exchanges) != 1 {
		t.Fatalf("expected 1 exchange, got %d", len(exchanges))
	}
	form := exchanges[0].Form
	if form.Get("grant_type") != "authorization_code" || form.Get("code") != "test-code" {
		t.Errorf("unexpected exchange form: %v", form)
	}
}

func TestFlow_Authenticate_StateMismatch(t *testing.T) {
	redirectURI := reserveRedirectURI(t)
	flow := &Flow{
		ClientID:              "test-client",
		AuthorizationEndpoint: "https://idp.example.com/oauth/authorize",
		TokenURL:              "https://example.agiloft.com/ewws/otoken",
		RedirectURI:           redirectURI,
		OpenURL: browse(t, redirectURI, url.Values{
			"code":  {"test-code"},
			"state": {"forged-state"},
		}),
		CallbackTimeout: 5 * time.Second,
	}

	err := flow.Authenticate(context.Background(), session.NewManager(session.OAuth2Credentials{}))
	if err == nil || !strings.Contains(err.Error(), "state parameter mismatch") {
		t.Fatalf("expected state mismatch error, got %v", err)
	}
}

func TestFlow_Authenticate_ProviderError(t *testing.T) {
	redirectURI := reserveRedirectURI(t)
	flow := &Flow{
		ClientID:              "test-client",
		AuthorizationEndpoint: "https://idp.example.com/oauth/authorize",
		RedirectURI:           redirectURI,
		OpenURL: browse(t, redirectURI, url.Values{
			"error":             {"access_denied"},
			"error_description": {"user cancelled"},
		}),
		CallbackTimeout: 5 * time.Second,
	}

	err := flow.Authenticate(context.Background(), session.NewManager(session.OAuth2Credentials{}))
	if err == nil || !strings.Contains(err.Error(), "access_denied") {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestFlow_Authenticate_APIAccessPointOverridesTokenURL(t *testing.T) {
	var exchangePath string
	tokenSrv := testutil.NewLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchangePath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "exchanged-token", "token_type": "Bearer", "expires_in": 900}`)
	}))
	defer tokenSrv.Close()

	redirectURI := reserveRedirectURI(t)
	flow := &Flow{
		ClientID:              "test-client",
		AuthorizationEndpoint: "https://idp.example.com/oauth/authorize",
		TokenURL:              "https://wrong.example.com/ewws/otoken",
		RedirectURI:           redirectURI,
		OpenURL: browse(t, redirectURI, url.Values{
			"code":             {"test-code"},
			"api_access_point": {tokenSrv.URL + "/"},
		}),
		HTTPClient:      tokenSrv.Client(),
		CallbackTimeout: 5 * time.Second,
	}

	if err := flow.Authenticate(context.Background(), session.NewManager(session.OAuth2Credentials{})); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if exchangePath != "/ewws/otoken" {
		t.Errorf("exchange path = %q, want /ewws/otoken", exchangePath)
	}
}

func TestFlow_Authenticate_NoAccessToken(t *testing.T) {
	tokenSrv := testutil.NewLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"token_type": "Bearer"}`)
	}))
	defer tokenSrv.Close()

	redirectURI := reserveRedirectURI(t)
	flow := &Flow{
		ClientID:              "test-client",
		AuthorizationEndpoint: "https://idp.example.com/oauth/authorize",
		TokenURL:              tokenSrv.URL + "/ewws/otoken",
		RedirectURI:           redirectURI,
		OpenURL:               browse(t, redirectURI, url.Values{"code": {"test-code"}}),
		HTTPClient:            tokenSrv.Client(),
		CallbackTimeout:       5 * time.Second,
	}

	err := flow.Authenticate(context.Background(), session.NewManager(session.OAuth2Credentials{}))
	if err == nil {
		t.Fatal("expected error for missing access token")
	}
}
