// Package planloop provides a high-level façade over the run supervisor and
// its collaborators (capability registry, middleware chains, budget manager,
// run store) enabling rapid construction of planner-driven runtimes. Most
// applications interact with this package by:
//  1. Creating a Planloop via New() around a model adapter
//  2. Registering capabilities (plain functions or a retrieval corpus)
//  3. Starting runs asynchronously (Run) or synchronously (RunSync)
//
// The façade delegates orchestration to runner.Runner while keeping setup
// and usage ergonomics concise. All defaults are safe for local development
// and testing; production deployments typically supply a durable run store
// and a structured logger.
package planloop

import (
	"context"
	"time"

	"github.com/planloop/planloop/budget"
	"github.com/planloop/planloop/capability"
	"github.com/planloop/planloop/core"
	"github.com/planloop/planloop/logging"
	"github.com/planloop/planloop/middleware"
	"github.com/planloop/planloop/model"
	"github.com/planloop/planloop/runner"
	"github.com/planloop/planloop/store"
)

// Options configures the Planloop instance. Unset fields keep the runner's
// defaults.
type Options struct {
	// SystemPrompt, when non-empty, is placed at the head of every run's
	// transcript.
	SystemPrompt string

	// Capabilities available to the planner in every run.
	Capabilities []capability.Capability

	// IterationCap bounds loop iterations per run; zero keeps the default.
	IterationCap int
	// Timeout is the per-run wall-clock deadline; zero disables it.
	Timeout time.Duration

	// ModelMiddleware and CapabilityMiddleware wrap the two outbound call
	// sites, first stage outermost.
	ModelMiddleware      []middleware.ModelMiddleware
	CapabilityMiddleware []middleware.CapabilityMiddleware

	// BudgetTrigger enables transcript condensation; KeepCount messages are
	// exempt.
	BudgetTrigger budget.Trigger
	KeepCount     int

	// ModelRetry bounds retries of failed model calls.
	ModelRetry runner.RetryPolicy

	// Store archives terminal runs when set.
	Store store.RunStore

	// Logger defaults to a no-op logger.
	Logger logging.Logger
}

// Planloop is the high-level façade aggregating the run supervisor and its
// configuration.
type Planloop struct {
	opts   Options
	runner *runner.Runner
}

// New creates a Planloop over the given model with optional overrides.
func New(m model.Model, optFns ...func(o *Options)) (*Planloop, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	r, err := runner.New(m, func(o *runner.Options) {
		o.Capabilities = opts.Capabilities
		if opts.IterationCap > 0 {
			o.IterationCap = opts.IterationCap
		}
		o.Timeout = opts.Timeout
		o.ModelMiddleware = opts.ModelMiddleware
		o.CapabilityMiddleware = opts.CapabilityMiddleware
		o.BudgetTrigger = opts.BudgetTrigger
		if opts.KeepCount > 0 {
			o.KeepCount = opts.KeepCount
		}
		o.ModelRetry = opts.ModelRetry
		o.Store = opts.Store
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	return &Planloop{opts: opts, runner: r}, nil
}

// Run starts an asynchronous run for the given user prompt and returns its
// handle.
func (p *Planloop) Run(ctx context.Context, prompt string) (*runner.Handle, error) {
	transcript, err := p.newTranscript(prompt)
	if err != nil {
		return nil, err
	}
	return p.runner.Start(ctx, transcript), nil
}

// RunSync is a synchronous helper: it starts a run and blocks until the
// terminal state, returning the final result or the structured run error.
func (p *Planloop) RunSync(ctx context.Context, prompt string) (*runner.Result, error) {
	h, err := p.Run(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return h.Result()
}

// RunTranscript starts an asynchronous run over a caller-built transcript,
// for resuming prior conversations or multi-message setups.
func (p *Planloop) RunTranscript(ctx context.Context, transcript *core.Transcript) *runner.Handle {
	return p.runner.Start(ctx, transcript)
}

// Cancel cancels a running run by ID.
func (p *Planloop) Cancel(runID string) error { return p.runner.Cancel(runID) }

func (p *Planloop) newTranscript(prompt string) (*core.Transcript, error) {
	var initial []core.Message
	if p.opts.SystemPrompt != "" {
		initial = append(initial, core.NewSystemMessage(p.opts.SystemPrompt))
	}
	initial = append(initial, core.NewUserMessage(prompt))
	return core.NewTranscript(initial...)
}
