// Package auth validates the bearer credential carried on inbound
// requests.
//
// Validation is stateless: every request presents its Authorization
// header, the header is parsed into a bearer token, and the token is
// checked against the identity provider. Nothing is cached between
// requests, so a revoked token stops working on the very next call.
//
// The package distinguishes three failure classes:
//   - ErrMissingAuthHeader / ErrMalformedAuthHeader — the request never
//     carried a usable credential
//   - ErrInvalidToken — the provider definitively rejected the token
//   - ProviderError — the provider could not be consulted
package auth
