// Package capability implements the named, schema-validated units of work
// the planner may request: the Capability interface, a generic function
// adapter and the closed Registry used for dispatch-by-name.
package capability

import (
	"context"
	"errors"
	"fmt"
)

// Capability defines a unit of external work the planner can invoke.
//
// Implementations should:
//   - provide clear, descriptive names and descriptions (the description is
//     the only thing nudging the model toward or away from the capability)
//   - define a proper JSON schema for arguments
//   - be safe for concurrent use; a registry is shared across runs
type Capability interface {
	// Name returns the unique identifier for this capability.
	// Names should follow function naming conventions (snake_case).
	Name() string

	// Description returns the natural-language text the model uses to decide
	// when to invoke this capability.
	Description() string

	// Schema returns a JSON schema describing the expected arguments.
	Schema() map[string]any

	// Invoke executes the capability with already-validated arguments and
	// returns a text result formatted for the planner to consume.
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// Error codes used across capability implementations.
const (
	// CodeSchemaViolation marks argument/schema mismatches.
	CodeSchemaViolation = "SCHEMA_VIOLATION"
	// CodeExecutionError marks handler failures.
	CodeExecutionError = "EXECUTION_ERROR"
	// CodeTimeout marks per-call handler timeouts.
	CodeTimeout = "TIMEOUT"
)

// Error represents a failure tied to one capability, with a code for
// categorization. From the orchestration loop's perspective these errors are
// data: they become transcript content so the planner can adapt.
type Error struct {
	Capability string `json:"capability"`
	Message    string `json:"message"`
	Code       string `json:"code"`
	Details    any    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("capability error [%s] in %s: %s", e.Code, e.Capability, e.Message)
	}
	return fmt.Sprintf("capability error in %s: %s", e.Capability, e.Message)
}

// NewError creates a capability Error with the given details.
func NewError(capability, message, code string) *Error {
	return &Error{Capability: capability, Message: message, Code: code}
}

var (
	// ErrDuplicateCapability is returned when registering a name twice.
	// A configuration error, fatal immediately.
	ErrDuplicateCapability = errors.New("duplicate capability")

	// ErrUnknownCapability is returned when resolving an unregistered name.
	// When the name came from the model, the loop recovers by feeding the
	// planner an error result instead of aborting.
	ErrUnknownCapability = errors.New("unknown capability")
)
