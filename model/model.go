package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/planloop/planloop/core"
)

// CapabilityDefinition declaratively exposes a callable capability to the
// model. Schema is a minimal JSON Schema object (type/properties/required).
type CapabilityDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}

// Request captures the normalized model input produced by the orchestration
// loop: the transcript rendering plus the capabilities available this run.
type Request struct {
	Messages     []core.Message         `json:"messages"`
	Capabilities []CapabilityDefinition `json:"capabilities,omitempty"`
}

// TokenUsage captures token accounting reported by a provider.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the planner's reply to one Request. Zero capability calls means
// Content is the final answer; one or more calls means the loop must execute
// them in emission order before planning again.
type Response struct {
	Content         string                `json:"content"`
	CapabilityCalls []core.CapabilityCall `json:"capability_calls,omitempty"`
	Usage           *TokenUsage           `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name                 string `json:"name"`
	Provider             string `json:"provider"`
	SupportsCapabilities bool   `json:"supports_capabilities"`
}

// Model is the external planning collaborator. Complete blocks for the
// duration of one model invocation; it is one of the two suspension points
// of the orchestration loop.
//
// Implementations must surface transport, auth and rate-limit failures as a
// *ServiceError so the run supervisor can distinguish retryable conditions
// from terminal ones.
type Model interface {
	Complete(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrorKind categorizes model service failures.
type ErrorKind string

const (
	// ErrorKindTransport covers network and protocol failures. Retryable.
	ErrorKindTransport ErrorKind = "transport"
	// ErrorKindAuth covers authentication/authorization failures.
	ErrorKindAuth ErrorKind = "auth"
	// ErrorKindRateLimit covers quota and rate-limit rejections. Retryable.
	ErrorKindRateLimit ErrorKind = "rate_limit"
	// ErrorKindInvalidResponse covers replies the adapter cannot interpret.
	ErrorKindInvalidResponse ErrorKind = "invalid_response"
)

// ServiceError is the distinguishable error kind for model invocation
// failures required by the runtime's error taxonomy.
type ServiceError struct {
	Kind ErrorKind
	Err  error
}

// NewServiceError wraps err with a failure kind.
func NewServiceError(kind ErrorKind, err error) *ServiceError {
	return &ServiceError{Kind: kind, Err: err}
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("model service failure (%s): %v", e.Kind, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *ServiceError) Unwrap() error { return e.Err }

// Retryable reports whether the failure kind is worth retrying.
func (e *ServiceError) Retryable() bool {
	return e.Kind == ErrorKindTransport || e.Kind == ErrorKindRateLimit
}

// AsServiceError extracts a *ServiceError from an error chain.
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	ok := errors.As(err, &se)
	return se, ok
}
