// Package core contains the shared domain types of the planloop runtime:
// messages, capability calls, the append-only transcript and per-run state.
// Higher layers (capability registry, middleware, budget manager, loop,
// runner) depend on core; core depends on nothing but the standard library
// and uuid.
package core
