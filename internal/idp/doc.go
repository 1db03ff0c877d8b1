// Package idp provides the identity-provider client used to validate
// bearer tokens and resolve group membership.
//
// The provider exposes two HTTP operations:
//   - POST {baseURL}/introspect — validates an access token and returns
//     the owning principal
//   - POST {baseURL}/groups — lists the groups a principal belongs to
//
// Requests are authenticated with the configured pool id and client id,
// plus an optional client secret sent as HTTP basic auth. Calls are made
// exactly once per request: a failed call surfaces immediately and is
// never retried, so end-to-end latency stays bounded by the configured
// timeout.
//
// A StaticClient backed by in-memory tables is provided for tests and
// local development.
package idp
