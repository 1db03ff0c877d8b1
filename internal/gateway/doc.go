// Package gateway drives requests through the access-control pipeline
// and owns the serving surface.
//
// The Orchestrator is the pipeline: it authenticates the bearer
// credential, evaluates the policy rules, and forwards allowed requests
// to the selected backend, converting every failure into a structured
// JSON error response. The Gateway wraps the orchestrator in a gin
// engine, manages the configured listeners, and exposes lifecycle
// operations including hot reload of the policy rule set.
package gateway
