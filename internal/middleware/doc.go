// Package middleware provides the HTTP middleware applied around the
// gateway handler: request-id propagation, request logging, panic
// recovery, CORS, rate limiting, and the ops API-key guard. All
// middlewares use the func(http.Handler) http.Handler shape and are
// composed innermost-first at startup.
package middleware
