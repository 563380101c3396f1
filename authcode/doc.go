// Package authcode implements the OAuth2 authorization-code flow for
// interactive Agiloft logins.
//
// A Flow sends the user's browser to the provider's authorization page,
// receives the redirect on a short-lived loopback callback server, verifies
// the state parameter, exchanges the authorization code for a token, and
// seeds a session.Manager so the rest of the client works unchanged.
//
//	flow := &authcode.Flow{
//	    ClientID:              "client-id",
//	    AuthorizationEndpoint: "https://example.agiloft.com/ui/oauth2",
//	    TokenURL:              "https://example.agiloft.com/ewws/otoken",
//	    RedirectURI:           "http://localhost:8080/callback",
//	}
//
//	mgr := session.NewManager(creds)
//	if err := flow.Authenticate(ctx, mgr); err != nil {
//	    log.Fatal(err)
//	}
package authcode
