package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hjtapia74/agiloft-api-example/internal/testutil"
)

func legacyCreds(baseURL string) LegacyCredentials {
	return LegacyCredentials{
		BaseURL:  baseURL,
		Username: "api-user",
		Password: "secret",
		KB:       "Demo",
	}
}

func TestManager_Token_Legacy(t *testing.T) {
	server := testutil.NewMockTokenServer(t, testutil.StaticJSONResponse(http.StatusOK,
		`{"token": "abc", "expires_in": 900}`))

	mgr := NewManager(legacyCreds(server.URL+"/ewws/alrest/Demo"), WithHTTPClient(server.Client))

	token, err := mgr.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "abc" {
		t.Errorf("expected token abc, got %s", token)
	}
	if len(server.Requests) != 1 {
		t.Fatalf("expected 1 acquisition call, got %d", len(server.Requests))
	}

	// A token with plenty of lifetime left is reused without a network call.
	token, err = mgr.Token(context.Background())
	if err != nil {
		t.Fatalf("second Token failed: %v", err)
	}
	if token != "abc" {
		t.Errorf("expected cached token abc, got %s", token)
	}
	if len(server.Requests) != 1 {
		t.Errorf("expected no extra acquisition call, got %d total", len(server.Requests))
	}
}

func TestManager_Token_SignedAccessToken(t *testing.T) {
	access := testutil.SignedToken(t, "api-user", 15*time.Minute)
	server := testutil.NewMockTokenServer(t, testutil.StaticJSONResponse(http.StatusOK,
		fmt.Sprintf(`{"access_token": %q, "expires_in": 900}`, access)))

	mgr := NewManager(legacyCreds(server.URL+"/ewws/alrest/Demo"), WithHTTPClient(server.Client))

	token, err := mgr.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	// The manager carries the token opaquely; the JWT comes back unaltered.
	if token != access {
		t.Errorf("expected the signed token verbatim, got %s", token)
	}
}

func TestManager_Token_LegacyEnvelope(t *testing.T) {
	server := testutil.NewMockTokenServer(t, testutil.StaticJSONResponse(http.StatusOK,
		`{"success": true, "result": {"access_token": "env-token", "refresh_token": "r1", "expires_in": 900}}`))

	mgr := NewManager(legacyCreds(server.URL+"/ewws/alrest/Demo"), WithHTTPClient(server.Client))

	token, err := mgr.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "env-token" {
		t.Errorf("expected env-token, got %s", token)
	}
}

func TestManager_Token_OAuth2Rejected(t *testing.T) {
	server := testutil.NewMockTokenServer(t, testutil.StaticJSONResponse(http.StatusBadRequest,
		`{"error": "invalid_client"}`))

	mgr := NewManager(OAuth2Credentials{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     server.URL + "/ewws/otoken",
		KB:           "Demo",
	}, WithHTTPClient(server.Client))

	_, err := mgr.Token(context.Background())
	if err == nil {
		t.Fatal("expected error for rejected credentials")
	}

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %T: %v", err, err)
	}
	if authErr.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", authErr.StatusCode)
	}
}

func TestManager_Token_MissingAccessToken(t *testing.T) {
	server := testutil.NewMockTokenServer(t, testutil.StaticJSONResponse(http.StatusOK,
		`{"expires_in": 900}`))

	mgr := NewManager(legacyCreds(server.URL+"/ewws/alrest/Demo"), WithHTTPClient(server.Client))

	_, err := mgr.Token(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError for missing token, got %v", err)
	}
}

func TestManager_Token_SingleFlight(t *testing.T) {
	var calls atomic.Int32
	rt := testutil.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond) // keep the flight open so callers pile up
		return testutil.StaticJSONResponse(http.StatusOK,
			`{"token": "shared", "expires_in": 900}`)(req)
	})
	client := &http.Client{Transport: rt}

	mgr := NewManager(legacyCreds("https://mock-idp.example.com/ewws/alrest/Demo"), WithHTTPClient(client))

	const workers = 16
	tokens := make([]string, workers)
	errs := make([]error, workers)

	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait()
			tokens[i], errs[i] = mgr.Token(context.Background())
		}(i)
	}
	start.Done()
	done.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		if tokens[i] != "shared" {
			t.Errorf("worker %d got token %q, want \"shared\"", i, tokens[i])
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 acquisition call, got %d", got)
	}
}

func TestManager_Token_SingleFlightError(t *testing.T) {
	var calls atomic.Int32
	rt := testutil.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return testutil.StaticJSONResponse(http.StatusUnauthorized, `{"error": "bad credentials"}`)(req)
	})
	client := &http.Client{Transport: rt}

	mgr := NewManager(legacyCreds("https://mock-idp.example.com/ewws/alrest/Demo"), WithHTTPClient(client))

	const workers = 8
	errs := make([]error, workers)

	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait()
			_, errs[i] = mgr.Token(context.Background())
		}(i)
	}
	start.Done()
	done.Wait()

	for i := 0; i < workers; i++ {
		var authErr *AuthError
		if !errors.As(errs[i], &authErr) {
			t.Errorf("worker %d: expected *AuthError, got %v", i, errs[i])
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 acquisition attempt, got %d", got)
	}
}

func TestManager_Token_ProactiveRefresh(t *testing.T) {
	server := testutil.NewMockTokenServer(t, testutil.StaticJSONResponse(http.StatusOK,
		`{"token": "fresh", "expires_in": 900}`))

	mgr := NewManager(legacyCreds(server.URL+"/ewws/alrest/Demo"), WithHTTPClient(server.Client))

	// A token inside the 60s leeway window is stale.
	mgr.SetToken("stale", "", time.Now().Add(30*time.Second))

	token, err := mgr.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "fresh" {
		t.Errorf("expected refreshed token, got %s", token)
	}
	if len(server.Requests) != 1 {
		t.Errorf("expected exactly 1 refresh call, got %d", len(server.Requests))
	}
}

func TestManager_Token_NoRefreshOutsideLeeway(t *testing.T) {
	server := testutil.NewMockTokenServer(t, nil)

	mgr := NewManager(legacyCreds(server.URL+"/ewws/alrest/Demo"), WithHTTPClient(server.Client))
	mgr.SetToken("still-good", "", time.Now().Add(5*time.Minute))

	token, err := mgr.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "still-good" {
		t.Errorf("expected cached token, got %s", token)
	}
	if len(server.Requests) != 0 {
		t.Errorf("expected no acquisition calls, got %d", len(server.Requests))
	}
}

func TestManager_Invalidate(t *testing.T) {
	server := testutil.NewMockTokenServer(t, testutil.StaticJSONResponse(http.StatusOK,
		`{"access_token": "second", "expires_in": 900}`))

	mgr := NewManager(legacyCreds(server.URL+"/ewws/alrest/Demo"), WithHTTPClient(server.Client))
	mgr.SetToken("first", "", time.Now().Add(10*time.Minute))

	mgr.Invalidate()

	token, err := mgr.Token(context.Background())
	if err != nil {
		t.Fatalf("Token after Invalidate failed: %v", err)
	}
	if token != "second" {
		t.Errorf("expected re-acquired token, got %s", token)
	}
	if len(server.Requests) != 1 {
		t.Errorf("expected 1 re-acquisition call, got %d", len(server.Requests))
	}
}

func TestManager_Invalidate_KeepsRefreshToken(t *testing.T) {
	server := testutil.NewMockTokenServer(t, testutil.StaticJSONResponse(http.StatusOK,
		`{"access_token": "refreshed", "expires_in": 900}`))

	mgr := NewManager(OAuth2Credentials{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     server.URL + "/ewws/otoken",
	}, WithHTTPClient(server.Client))
	mgr.SetToken("expired", "refresh-1", time.Now().Add(10*time.Minute))

	mgr.Invalidate()

	token, err := mgr.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "refreshed" {
		t.Errorf("expected refreshed token, got %s", token)
	}

	if len(server.Requests) != 1 {
		t.Fatalf("expected 1 call, got %d", len(server.Requests))
	}
	req := server.Requests[0]
	if err := req.ParseForm(); err != nil {
		t.Fatalf("parse form: %v", err)
	}
	if got := req.PostForm.Get("grant_type"); got != "refresh_token" {
		t.Errorf("expected refresh_token grant, got %q", got)
	}
	if got := req.PostForm.Get("refresh_token"); got != "refresh-1" {
		t.Errorf("expected refresh token refresh-1, got %q", got)
	}
}

func TestManager_RefreshFallsBackToPrimaryGrant(t *testing.T) {
	var requests []*http.Request
	rt := testutil.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		requests = append(requests, req)
		if len(requests) == 1 {
			// Refresh grant rejected; the manager should re-authenticate.
			return testutil.StaticJSONResponse(http.StatusBadRequest, `{"error": "invalid_grant"}`)(req)
		}
		return testutil.StaticJSONResponse(http.StatusOK, `{"token": "relogin", "expires_in": 900}`)(req)
	})
	client := &http.Client{Transport: rt}

	mgr := NewManager(legacyCreds("https://mock-idp.example.com/ewws/alrest/Demo"), WithHTTPClient(client))
	mgr.SetToken("old", "stale-refresh", time.Now().Add(10*time.Second))

	token, err := mgr.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "relogin" {
		t.Errorf("expected token from fallback login, got %s", token)
	}
	if len(requests) != 2 {
		t.Fatalf("expected refresh attempt plus login, got %d calls", len(requests))
	}
	if requests[0].URL.Path != "/ewws/otoken" {
		t.Errorf("first call should hit the token endpoint, got %s", requests[0].URL.Path)
	}
	if requests[1].URL.Path != "/ewws/alrest/Demo/login" {
		t.Errorf("second call should hit the login endpoint, got %s", requests[1].URL.Path)
	}
}

func TestManager_Clear(t *testing.T) {
	server := testutil.NewMockTokenServer(t, testutil.StaticJSONResponse(http.StatusOK,
		`{"token": "new-session", "expires_in": 900}`))

	mgr := NewManager(legacyCreds(server.URL+"/ewws/alrest/Demo"), WithHTTPClient(server.Client))
	mgr.SetToken("t", "r", time.Now().Add(10*time.Minute))

	mgr.Clear()

	if _, err := mgr.Token(context.Background()); err != nil {
		t.Fatalf("Token after Clear failed: %v", err)
	}

	// Clear drops the refresh token, so the acquisition is a full login.
	if len(server.Requests) != 1 {
		t.Fatalf("expected 1 call, got %d", len(server.Requests))
	}
	if server.Requests[0].URL.Path != "/ewws/alrest/Demo/login" {
		t.Errorf("expected login endpoint, got %s", server.Requests[0].URL.Path)
	}
}

func TestManager_DefaultTTLWhenExpiryMissing(t *testing.T) {
	server := testutil.NewMockTokenServer(t, testutil.StaticJSONResponse(http.StatusOK,
		`{"token": "no-expiry"}`))

	mgr := NewManager(legacyCreds(server.URL+"/ewws/alrest/Demo"), WithHTTPClient(server.Client))

	if _, err := mgr.Token(context.Background()); err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	// The assumed 15 minute TTL keeps the token cached.
	if _, err := mgr.Token(context.Background()); err != nil {
		t.Fatalf("second Token failed: %v", err)
	}
	if len(server.Requests) != 1 {
		t.Errorf("expected the default TTL to keep the token cached, got %d calls", len(server.Requests))
	}
}
