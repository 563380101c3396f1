// Package session manages Agiloft bearer tokens with automatic refresh.
//
// A Manager caches the current access token, refreshes it proactively before
// expiry, and serializes acquisition so that any number of concurrent callers
// trigger at most one round-trip to the identity provider. Two credential
// variants are supported: OAuth2 client credentials and the legacy
// username/password login endpoint. Both share the same caching and
// single-flight wrapper.
//
// # Quick Start
//
//	mgr := session.NewManager(session.OAuth2Credentials{
//	    ClientID:     "client-id",
//	    ClientSecret: "client-secret",
//	    TokenURL:     "https://example.agiloft.com/ewws/otoken",
//	    KB:           "Demo",
//	})
//
//	token, err := mgr.Token(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Notes
//
//   - Token is safe for concurrent use; waiters on an in-flight acquisition
//     all observe the same token or the same error.
//   - Invalidate clears the cached access token but keeps any refresh token,
//     so the next acquisition can use the refresh_token grant.
package session
