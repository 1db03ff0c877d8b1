// Package forward sends policy-approved requests to their target
// backend and buffers the backend's answer.
//
// Each target (protected, default) carries its own base URL, timeout,
// HTTP client, optional circuit breaker, and optional outbound header
// decoration. The forwarded request keeps the original path and query
// string but never the Host or Authorization headers: the credential
// that authenticated the caller stays inside the gateway.
//
// Bodies flagged with Content-Transfer-Encoding: base64 are decoded
// before forwarding and the marker header is consumed. A body that fails
// to decode is the caller's error, not the backend's.
//
// A forward is attempted exactly once. Network and timeout failures
// surface as a BadGatewayError carrying the underlying error text; the
// backend's own responses, including error statuses, pass through
// unmodified.
package forward
