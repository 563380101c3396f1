// Package httpclient builds HTTP clients that authenticate against the
// Agiloft REST API.
//
// It wraps the base transport in an AuthTransport that injects the session's
// bearer token into every request and, on a 401 response, forces one token
// re-acquisition and retries the request exactly once.
//
// # Quick Start
//
//	mgr := session.NewManager(creds)
//
//	client, err := httpclient.NewBuilder().
//	    WithSession(mgr).
//	    WithTimeout(15 * time.Second).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Notes
//
//   - Token fetches use the request context, so per-request deadlines bound
//     token acquisition as well.
//   - The 401 retry requires a replayable body; requests built with
//     http.NewRequest from a bytes.Reader get GetBody set automatically.
package httpclient
