// Package loop implements the orchestration state machine driving one run:
// ask the planner, execute the capability calls it requests, append results,
// consult the budget manager, repeat until the planner answers with plain
// text.
//
// The machine is explicit:
//
//	PLANNING -> EXECUTING_CAPABILITIES -> PLANNING -> ... -> DONE | ABORTED
//
// One goroutine drives one loop; the only suspension points are the two I/O
// boundaries (the model call and each capability call). Capability failures
// are data: they become error-flagged capability-result messages so the
// planner can adapt, and never abort the run. Model failures are run-level
// and terminal.
package loop

import (
	"context"
	"fmt"

	"github.com/planloop/planloop/budget"
	"github.com/planloop/planloop/capability"
	"github.com/planloop/planloop/core"
	"github.com/planloop/planloop/logging"
	"github.com/planloop/planloop/middleware"
	"github.com/planloop/planloop/model"
)

// State identifies where the machine currently is.
type State string

const (
	StatePlanning  State = "PLANNING"
	StateExecuting State = "EXECUTING_CAPABILITIES"
	StateDone      State = "DONE"
	StateAborted   State = "ABORTED"
)

// Options configures optional loop behavior.
type Options struct {
	// ModelMiddleware wraps every model call, first stage outermost.
	ModelMiddleware []middleware.ModelMiddleware
	// CapabilityMiddleware wraps every capability call, first stage outermost.
	CapabilityMiddleware []middleware.CapabilityMiddleware
	// Budget, when set, is consulted after each completed iteration.
	Budget *budget.Manager
	// Logger receives loop events. Defaults to a no-op logger.
	Logger logging.Logger
}

// IterationResult reports the outcome of one completed iteration.
type IterationResult struct {
	// Done is true when the planner answered without requesting capabilities.
	Done bool
	// FinalAnswer carries the planner's text when Done is true.
	FinalAnswer string
	// CapabilityCalls is how many calls this iteration executed.
	CapabilityCalls int
}

// Loop is the per-run state machine. It owns its transcript for the duration
// of the run and is not safe for concurrent Iterate calls.
type Loop struct {
	transcript  *core.Transcript
	registry    *capability.Registry
	modelCall   middleware.ModelHandler
	capCall     middleware.CapabilityHandler
	definitions []model.CapabilityDefinition
	budget      *budget.Manager
	logger      logging.Logger
	state       State
}

// New constructs a loop over the given model, registry and transcript.
func New(m model.Model, registry *capability.Registry, transcript *core.Transcript, optFns ...func(o *Options)) *Loop {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, f := range optFns {
		f(&opts)
	}

	l := &Loop{
		transcript: transcript,
		registry:   registry,
		budget:     opts.Budget,
		logger:     opts.Logger,
		state:      StatePlanning,
	}

	l.modelCall = middleware.ChainModel(func(ctx context.Context, req model.Request) (*model.Response, error) {
		return m.Complete(ctx, req)
	}, opts.ModelMiddleware...)

	l.capCall = middleware.ChainCapability(func(ctx context.Context, call core.CapabilityCall) (string, error) {
		c, err := registry.Resolve(call.Name)
		if err != nil {
			return "", err
		}
		return c.Invoke(ctx, call.Arguments)
	}, opts.CapabilityMiddleware...)

	for _, c := range registry.List() {
		l.definitions = append(l.definitions, model.CapabilityDefinition{
			Name:        c.Name(),
			Description: c.Description(),
			Schema:      c.Schema(),
		})
	}

	return l
}

// State returns the machine's current state.
func (l *Loop) State() State { return l.state }

// Transcript returns the transcript the loop mutates.
func (l *Loop) Transcript() *core.Transcript { return l.transcript }

// Iterate drives the machine through one full iteration: one planning call
// plus the execution of every capability call that planning step emitted.
//
// A returned error means the run is over (ABORTED): model failure, context
// cancellation between calls, or a transcript invariant violation. Every
// capability call of the iteration is answered in the transcript before
// Iterate returns nil, so the next planning step always sees a complete
// call/result pairing.
func (l *Loop) Iterate(ctx context.Context) (*IterationResult, error) {
	if l.state == StateDone || l.state == StateAborted {
		return nil, fmt.Errorf("iterate on terminal state %s", l.state)
	}

	if err := ctx.Err(); err != nil {
		l.state = StateAborted
		return nil, err
	}

	l.state = StatePlanning
	resp, err := l.modelCall(ctx, model.Request{
		Messages:     l.transcript.Render(),
		Capabilities: l.definitions,
	})
	if err != nil {
		l.state = StateAborted
		return nil, fmt.Errorf("model call: %w", err)
	}

	if len(resp.CapabilityCalls) == 0 {
		if err := l.transcript.Append(core.NewAssistantMessage(resp.Content)); err != nil {
			l.state = StateAborted
			return nil, err
		}
		l.state = StateDone
		l.logger.Info("loop.done", "answer_len", len(resp.Content))
		return &IterationResult{Done: true, FinalAnswer: resp.Content}, nil
	}

	if err := l.transcript.Append(core.NewAssistantMessage(resp.Content, resp.CapabilityCalls...)); err != nil {
		l.state = StateAborted
		return nil, err
	}

	l.state = StateExecuting
	for _, call := range resp.CapabilityCalls {
		// Cooperative cancellation between calls only. A handler already in
		// flight runs to completion (or its own timeout) so external side
		// effects are never left half-applied.
		if err := ctx.Err(); err != nil {
			l.state = StateAborted
			return nil, err
		}

		result, err := l.capCall(context.WithoutCancel(ctx), call)

		var msg core.Message
		if err != nil {
			l.logger.Warn("loop.capability.failed", "capability", call.Name, "call_id", call.ID, "error", err.Error())
			msg = core.NewCapabilityErrorMessage(call.ID, err.Error())
		} else {
			msg = core.NewCapabilityResultMessage(call.ID, result)
		}
		if err := l.transcript.Append(msg); err != nil {
			l.state = StateAborted
			return nil, err
		}
	}

	l.state = StatePlanning
	if l.budget != nil {
		l.budget.Check(ctx, l.transcript)
	}

	return &IterationResult{CapabilityCalls: len(resp.CapabilityCalls)}, nil
}
