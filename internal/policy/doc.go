// Package policy decides where an authenticated request may go.
//
// A rule set is an ordered list of rules. Each rule names a path prefix
// and the attributes a caller must present: required group memberships,
// a required device identifier, and an optional CEL condition over the
// request. Evaluation is first-match-wins on the path prefix; the first
// rule whose prefix matches decides the request, either denying it with
// a reason or allowing it toward the rule's target backend.
//
// The engine always appends a catch-all rule targeting the default
// backend, so evaluation produces a decision for every path: requests
// outside any configured prefix are allowed through to the default
// target once authenticated.
//
// Engines are immutable after construction. Configuration reload builds
// a new engine and swaps it through a Provider; requests already holding
// the old engine finish against it.
package policy
