// Package runner implements the run supervisor.
//
// The Runner owns one orchestration loop per started run and wraps it with
// the run-level policy the loop itself stays free of: a finite iteration
// cap, a wall-clock timeout, cooperative cancellation, bounded retries of
// failed model calls, and archiving of terminal runs.
//
// A caller starts a run with Start and gets back a Handle; Handle.Result
// blocks until the run terminates and returns either the final answer or a
// structured RunError carrying the taxonomy kind and the partial transcript.
// There is no scenario where a run disappears without a terminal status.
//
// Runners are safe for concurrent use: each run owns its own transcript and
// state, while the capability registry and middleware configuration are
// read-only after construction and shared across runs.
package runner
