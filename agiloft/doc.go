// Package agiloft is a client for the Agiloft REST API.
//
// Client wraps every call with token handling (via the session and
// httpclient packages) and maps responses to decoded bodies or typed errors.
// The contract operations mirror the Agiloft contract table endpoints:
// paginated search, get, create, update, delete.
//
// # Quick Start
//
//	mgr := session.NewManager(session.LegacyCredentials{
//	    BaseURL:  "https://example.agiloft.com/ewws/alrest/Demo",
//	    Username: "api-user",
//	    Password: "secret",
//	    KB:       "Demo",
//	})
//
//	client := agiloft.NewClient("https://example.agiloft.com/ewws/alrest/Demo", mgr)
//
//	records, err := client.SearchContracts(ctx, agiloft.SearchQuery{Limit: 100})
//
// # Errors
//
// Non-2xx API responses surface as *APIError with the status code and
// response body. Token acquisition failures surface as *session.AuthError
// wrapped in the returned error.
package agiloft
