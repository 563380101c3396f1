// Package testutil provides test helpers shared across packages.
//
// It includes utilities to spin up IPv4-only local HTTP servers (avoiding IPv6 in sandboxes),
// mock identity-provider token endpoints without real sockets, mint signed test tokens,
// and generate self-signed certificates for TLS/mTLS tests.
//
// # Utilities
//
//   - NewLocalHTTPServer: start httptest server bound to 127.0.0.1
//   - MockTokenServer and StaticJSONResponse: stub token endpoints and capture requests
//   - RoundTripFunc: inline http.RoundTripper implementations
//   - SignedToken: mint HS256-signed JWTs for use as access tokens in mocks
//   - WriteTestCACert / WriteTestCertAndKey: generate temporary CA and leaf certificates for tests
package testutil
