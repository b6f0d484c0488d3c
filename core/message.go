package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author category of a transcript message.
type Role string

const (
	// RoleSystem marks the optional leading instruction message. It is never
	// condensed away by the budget manager.
	RoleSystem Role = "system"

	// RoleUser marks caller-supplied input.
	RoleUser Role = "user"

	// RoleAssistant marks planner output: answer text and/or capability calls.
	RoleAssistant Role = "assistant"

	// RoleCapabilityResult marks the outcome of one capability call. Each
	// result message references the call it answers via CallRef.
	RoleCapabilityResult Role = "capability-result"
)

// CapabilityCall is a structured request emitted by the planner to invoke a
// named capability. Created when a model response is parsed, consumed exactly
// once by the orchestration loop, never mutated.
type CapabilityCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ArgumentsJSON renders the call arguments as a compact JSON string, mainly
// for logging and size estimation.
func (c CapabilityCall) ArgumentsJSON() string {
	if len(c.Arguments) == 0 {
		return "{}"
	}
	b, err := json.Marshal(c.Arguments)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Message is one transcript entry. After appending it should be treated as
// immutable.
//
// Invariants enforced by Transcript.Append:
//   - CapabilityCalls may only be present on assistant messages
//   - a capability-result message's CallRef must match exactly one
//     unanswered call earlier in the transcript
type Message struct {
	ID              string           `json:"id"`
	Role            Role             `json:"role"`
	Content         string           `json:"content,omitempty"`
	CapabilityCalls []CapabilityCall `json:"capability_calls,omitempty"`
	CallRef         string           `json:"capability_call_ref,omitempty"`
	// IsError marks a capability-result that carries an error description
	// instead of a handler result. Such results are data for the planner,
	// not control flow; the loop never aborts on them.
	IsError   bool      `json:"is_error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// Summary marks a synthetic message produced by condensation.
	Summary bool `json:"summary,omitempty"`
}

// NewID generates a unique identifier for messages, calls and runs.
func NewID() string { return uuid.NewString() }

func newMessage(role Role, content string) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewSystemMessage creates the instruction message placed at the head of a
// transcript.
func NewSystemMessage(content string) Message { return newMessage(RoleSystem, content) }

// NewUserMessage creates a user-authored text message.
func NewUserMessage(content string) Message { return newMessage(RoleUser, content) }

// NewAssistantMessage creates a planner message carrying answer text and zero
// or more capability calls in emission order.
func NewAssistantMessage(content string, calls ...CapabilityCall) Message {
	m := newMessage(RoleAssistant, content)
	m.CapabilityCalls = calls
	return m
}

// NewCapabilityResultMessage records the successful outcome of the call
// identified by callRef.
func NewCapabilityResultMessage(callRef, content string) Message {
	m := newMessage(RoleCapabilityResult, content)
	m.CallRef = callRef
	return m
}

// NewCapabilityErrorMessage records a failed capability call as transcript
// data so the planner can adapt on the next planning step.
func NewCapabilityErrorMessage(callRef, description string) Message {
	m := NewCapabilityResultMessage(callRef, description)
	m.IsError = true
	return m
}

// NewSummaryMessage creates the synthetic assistant message that replaces a
// condensed transcript prefix.
func NewSummaryMessage(content string) Message {
	m := newMessage(RoleAssistant, content)
	m.Summary = true
	return m
}

// HasCapabilityCalls reports whether the message requests at least one
// capability invocation.
func (m Message) HasCapabilityCalls() bool { return len(m.CapabilityCalls) > 0 }
