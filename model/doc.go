// Package model defines the planner-side contract of the runtime: a
// synchronous Model interface that receives the rendered transcript plus the
// capability definitions available for the run and returns either plain text
// (a final answer) or text plus ordered capability-call requests.
//
// Provider adapters live in the subpackages anthropic and openai. MockModel
// offers a scripted in-memory implementation for tests and examples.
package model
