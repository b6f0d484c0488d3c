// Package middleware implements the two interceptor chains wrapped around
// the runtime's outbound calls: one for model invocations, one for
// capability invocations.
//
// Each chain is an explicit ordered list of stages composed via nested
// invocation: the first registered stage is the outermost wrapper. A stage
// must either call next (optionally rewriting the request on the way in or
// post-processing the result on the way out) or short-circuit by returning a
// synthetic result without invoking downstream stages. A stage that neither
// returns a result nor an error is a defect (hang); nothing in the chain can
// guard against that.
//
// Chain configuration is fixed for a run's lifetime and safe to share across
// concurrent runs as long as individual stages are.
package middleware

import (
	"context"

	"github.com/planloop/planloop/core"
	"github.com/planloop/planloop/model"
)

// ModelHandler processes one model invocation.
type ModelHandler func(ctx context.Context, req model.Request) (*model.Response, error)

// ModelMiddleware wraps a ModelHandler to add cross-cutting behavior around
// model calls: request rewriting, cost-based model substitution, caching,
// instrumentation. Call next to continue the chain or return early to
// short-circuit.
type ModelMiddleware func(next ModelHandler) ModelHandler

// CapabilityHandler processes one capability invocation and returns the text
// result that becomes the capability-result message.
type CapabilityHandler func(ctx context.Context, call core.CapabilityCall) (string, error)

// CapabilityMiddleware wraps a CapabilityHandler. Stages may rewrite the
// call's arguments, short-circuit with a cached or synthetic result, or
// catch handler failures and substitute a fallback result.
type CapabilityMiddleware func(next CapabilityHandler) CapabilityHandler

// ChainModel applies middleware in order (first in list = outermost wrapper).
func ChainModel(handler ModelHandler, mws ...ModelMiddleware) ModelHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	return handler
}

// ChainCapability applies middleware in order (first in list = outermost
// wrapper).
func ChainCapability(handler CapabilityHandler, mws ...CapabilityMiddleware) CapabilityHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	return handler
}
