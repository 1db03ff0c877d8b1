// Package ratelimit provides request rate limiting for the gateway.
//
// Two limiter implementations are available: an in-memory token bucket
// built on golang.org/x/time/rate for single-instance deployments, and
// a fixed-window counter over a pluggable Store for deployments where
// several gateway instances must share one budget. The redis-backed
// store keeps window counters atomic with a small Lua script.
package ratelimit
