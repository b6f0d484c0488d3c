package capability

import (
	"context"
	"errors"
	"time"

	"github.com/planloop/planloop/internal/util"
)

// HandlerFunc is the executable behavior of a function capability. Arguments
// have already passed schema validation when the handler runs.
type HandlerFunc func(ctx context.Context, args map[string]any) (string, error)

// FunctionCapability adapts a plain Go function into a Capability.
//
// It holds a minimal JSON-Schema-like argument specification, validates
// supplied arguments before execution and normalizes failures into *Error
// values with consistent codes:
//
//	SCHEMA_VIOLATION -> argument/schema mismatch (handler never runs)
//	TIMEOUT          -> per-call timeout elapsed before the handler returned
//	EXECUTION_ERROR  -> handler returned a non-*Error failure
//	(custom codes preserved if the handler returns *Error directly)
//
// A FunctionCapability has no mutable state after construction and is safe
// for concurrent use across runs.
type FunctionCapability struct {
	name        string
	description string
	schema      map[string]any
	fn          HandlerFunc
	timeout     time.Duration
}

// FunctionOptions configures optional behavior of a FunctionCapability.
type FunctionOptions struct {
	// Timeout bounds a single handler invocation. Zero means no per-call
	// limit; the run-level deadline still applies through ctx.
	Timeout time.Duration
}

// NewFunction constructs a FunctionCapability from explicit schema and
// handler.
//
// Example:
//
//	add := capability.NewFunction(
//	  "add",
//	  "Add two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any) (string, error) {
//	    return strconv.FormatFloat(args["a"].(float64)+args["b"].(float64), 'f', -1, 64), nil
//	  },
//	)
func NewFunction(name, description string, schema map[string]any, fn HandlerFunc, optFns ...func(o *FunctionOptions)) *FunctionCapability {
	opts := FunctionOptions{}
	for _, f := range optFns {
		f(&opts)
	}
	return &FunctionCapability{
		name:        name,
		description: description,
		schema:      schema,
		fn:          fn,
		timeout:     opts.Timeout,
	}
}

// NewFunctionFromStruct derives the argument schema from a struct via
// reflection; a convenience for simple argument containers.
func NewFunctionFromStruct(name, description string, structType any, fn HandlerFunc, optFns ...func(o *FunctionOptions)) *FunctionCapability {
	return NewFunction(name, description, util.SchemaFromStruct(structType), fn, optFns...)
}

// Name returns the unique capability name used for dispatch.
func (c *FunctionCapability) Name() string { return c.name }

// Description returns the description exposed to models.
func (c *FunctionCapability) Description() string { return c.description }

// Schema returns the JSON schema describing expected arguments.
func (c *FunctionCapability) Schema() map[string]any { return c.schema }

// Invoke validates args against the declared schema then runs the handler,
// honoring the configured per-call timeout. Failures are wrapped (or passed
// through) as *Error for uniform downstream handling.
func (c *FunctionCapability) Invoke(ctx context.Context, args map[string]any) (string, error) {
	if err := util.ValidateArguments(args, c.schema); err != nil {
		return "", &Error{
			Capability: c.name,
			Message:    err.Error(),
			Code:       CodeSchemaViolation,
			Details:    err,
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	result, err := c.fn(ctx, args)
	if err != nil {
		var capErr *Error
		if errors.As(err, &capErr) {
			return "", capErr
		}
		code := CodeExecutionError
		if errors.Is(err, context.DeadlineExceeded) {
			code = CodeTimeout
		}
		return "", &Error{
			Capability: c.name,
			Message:    err.Error(),
			Code:       code,
		}
	}

	return result, nil
}

// compile-time interface assertion
var _ Capability = (*FunctionCapability)(nil)
