package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/planloop/planloop/budget"
	"github.com/planloop/planloop/capability"
	"github.com/planloop/planloop/core"
	"github.com/planloop/planloop/logging"
	"github.com/planloop/planloop/loop"
	"github.com/planloop/planloop/middleware"
	"github.com/planloop/planloop/model"
	"github.com/planloop/planloop/store"
)

// Run-level terminal errors. Always fatal to the run, never silently
// retried.
var (
	// ErrIterationLimitExceeded marks runs that hit the iteration cap while
	// the planner was still requesting capabilities.
	ErrIterationLimitExceeded = errors.New("iteration limit exceeded")
	// ErrRunTimeout marks runs whose wall-clock deadline passed.
	ErrRunTimeout = errors.New("run timeout")
	// ErrCancelled marks runs the caller cancelled.
	ErrCancelled = errors.New("run cancelled")
)

// ErrorKind categorizes terminal run failures for callers and archives.
type ErrorKind string

const (
	ErrorKindModelService      ErrorKind = "ModelServiceFailure"
	ErrorKindIterationLimit    ErrorKind = "IterationLimitExceeded"
	ErrorKindTimeout           ErrorKind = "RunTimeout"
	ErrorKindCancelled         ErrorKind = "Cancelled"
	ErrorKindInvalidTranscript ErrorKind = "InvalidTranscriptState"
)

// RunError is the structured failure a caller receives when a run ends in
// anything but a final answer. It carries the partial transcript up to the
// failure point; a run never disappears without a terminal status.
type RunError struct {
	RunID      string
	Kind       ErrorKind
	Err        error
	Iterations int
	Transcript []core.Message
}

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("run %s failed after %d iterations [%s]: %v", e.RunID, e.Iterations, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *RunError) Unwrap() error { return e.Err }

// Result is the successful outcome of a run.
type Result struct {
	RunID       string
	FinalAnswer string
	Iterations  int
	Transcript  []core.Message
	Duration    time.Duration
}

// RetryPolicy bounds supervisor-level retries of failed model calls. Only
// retryable service errors (transport, rate limit) are retried; auth and
// malformed-response failures surface immediately.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries including the first. Values
	// below 2 disable retrying.
	MaxAttempts int
	// Delay is the pause between attempts.
	Delay time.Duration
}

// Options holds dependency and configuration overrides passed to New.
type Options struct {
	// IterationCap bounds loop iterations per run. Always finite; an
	// unbounded loop against a model that never stops requesting
	// capabilities would never terminate.
	IterationCap int
	// Timeout is the per-run wall-clock deadline. Zero disables it.
	Timeout time.Duration
	// Capabilities to register for every run started by this runner.
	Capabilities []capability.Capability
	// ModelMiddleware wraps every model call, first stage outermost.
	ModelMiddleware []middleware.ModelMiddleware
	// CapabilityMiddleware wraps every capability call, first stage
	// outermost.
	CapabilityMiddleware []middleware.CapabilityMiddleware
	// BudgetTrigger enables transcript condensation when configured.
	BudgetTrigger budget.Trigger
	// KeepCount is how many recent messages condensation must preserve.
	KeepCount int
	// Condenser produces summaries; defaults to a ModelCondenser over the
	// runner's model when a budget trigger is configured.
	Condenser budget.Condenser
	// ModelRetry bounds retries of failed model calls.
	ModelRetry RetryPolicy
	// Store, when set, archives every terminal run.
	Store store.RunStore
	// Logger receives supervisor events.
	Logger logging.Logger
}

// Runner is the run supervisor: it owns one orchestration loop per started
// run, applies the iteration cap, timeout and cancellation policy, and
// produces the final structured result or error. Public methods are safe for
// concurrent use; the registry and middleware configuration are fixed at
// construction and shared read-only across runs.
type Runner struct {
	model    model.Model
	registry *capability.Registry
	opts     Options

	activeRuns map[string]context.CancelFunc
	mu         sync.Mutex
}

// New constructs a Runner over the given model. It fails if two configured
// capabilities share a name.
func New(m model.Model, optFns ...func(o *Options)) (*Runner, error) {
	opts := Options{
		IterationCap: 10,
		KeepCount:    4,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.IterationCap <= 0 {
		opts.IterationCap = 10
	}

	registry, err := capability.NewRegistry(opts.Capabilities...)
	if err != nil {
		return nil, err
	}

	return &Runner{
		model:      m,
		registry:   registry,
		opts:       opts,
		activeRuns: make(map[string]context.CancelFunc),
	}, nil
}

// Handle tracks one started run. Result blocks until the run reaches a
// terminal state; Cancel requests cooperative cancellation honored at the
// next safe checkpoint, never mid-handler.
type Handle struct {
	runID  string
	cancel context.CancelFunc
	done   chan struct{}

	result *Result
	runErr *RunError
}

// RunID returns the run's unique identifier.
func (h *Handle) RunID() string { return h.runID }

// Done is closed when the run reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result blocks until the run terminates, then returns the final answer or
// the structured run error.
func (h *Handle) Result() (*Result, error) {
	<-h.done
	if h.runErr != nil {
		return nil, h.runErr
	}
	return h.result, nil
}

// Cancel requests cooperative cancellation. The transcript up to the
// cancellation point stays available through Result's returned RunError.
func (h *Handle) Cancel() { h.cancel() }

// Start begins an asynchronous run over the given initial transcript. The
// transcript must not be used by another run.
func (r *Runner) Start(ctx context.Context, transcript *core.Transcript) *Handle {
	state := core.NewRunState(transcript)

	var cancel context.CancelFunc
	if r.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	h := &Handle{
		runID:  state.RunID,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.activeRuns[state.RunID] = cancel
	r.mu.Unlock()

	go r.execute(ctx, state, h)

	return h
}

// Cancel cancels a running run by ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[runID]
	r.mu.Unlock()
	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}
	cancel()
	return nil
}

func (r *Runner) execute(ctx context.Context, state *core.RunState, h *Handle) {
	defer func() {
		h.cancel()
		r.mu.Lock()
		delete(r.activeRuns, state.RunID)
		r.mu.Unlock()
		close(h.done)
	}()

	logger := r.opts.Logger
	logger.Info("run.start", "run_id", state.RunID, "iteration_cap", r.opts.IterationCap)

	l := loop.New(r.model, r.registry, state.Transcript, func(o *loop.Options) {
		o.ModelMiddleware = r.modelMiddleware()
		o.CapabilityMiddleware = r.opts.CapabilityMiddleware
		o.Budget = r.budgetManager()
		o.Logger = logger
	})

	for state.Iterations < r.opts.IterationCap {
		res, err := l.Iterate(ctx)
		if err != nil {
			r.finishFailed(ctx, state, h, err)
			return
		}
		state.Iterations++

		if res.Done {
			r.finishCompleted(ctx, state, h, res.FinalAnswer)
			return
		}
	}

	r.finishFailed(ctx, state, h, ErrIterationLimitExceeded)
}

func (r *Runner) modelMiddleware() []middleware.ModelMiddleware {
	if r.opts.ModelRetry.MaxAttempts < 2 {
		return r.opts.ModelMiddleware
	}
	// Retry sits outermost so every inner stage sees each attempt.
	out := make([]middleware.ModelMiddleware, 0, len(r.opts.ModelMiddleware)+1)
	out = append(out, retryModelCalls(r.opts.ModelRetry, r.opts.Logger))
	return append(out, r.opts.ModelMiddleware...)
}

func (r *Runner) budgetManager() *budget.Manager {
	if r.opts.BudgetTrigger.Tokens <= 0 && r.opts.BudgetTrigger.Messages <= 0 {
		return nil
	}
	condenser := r.opts.Condenser
	if condenser == nil {
		condenser = budget.NewModelCondenser(r.model)
	}
	return budget.NewManager(r.opts.BudgetTrigger, r.opts.KeepCount, condenser, func(o *budget.Options) {
		o.Logger = r.opts.Logger
	})
}

func (r *Runner) finishCompleted(ctx context.Context, state *core.RunState, h *Handle, answer string) {
	state.Status = core.RunStatusCompleted
	state.FinishedAt = time.Now().UTC()

	h.result = &Result{
		RunID:       state.RunID,
		FinalAnswer: answer,
		Iterations:  state.Iterations,
		Transcript:  state.Transcript.Render(),
		Duration:    state.FinishedAt.Sub(state.StartedAt),
	}

	r.opts.Logger.Info("run.complete", "run_id", state.RunID, "iterations", state.Iterations)
	r.archive(ctx, state, answer, "")
}

func (r *Runner) finishFailed(ctx context.Context, state *core.RunState, h *Handle, cause error) {
	kind, status, cause := classify(ctx, cause)
	state.Status = status
	state.FinishedAt = time.Now().UTC()

	h.runErr = &RunError{
		RunID:      state.RunID,
		Kind:       kind,
		Err:        cause,
		Iterations: state.Iterations,
		Transcript: state.Transcript.Render(),
	}

	r.opts.Logger.Warn("run.failed", "run_id", state.RunID, "kind", string(kind), "iterations", state.Iterations, "error", cause.Error())
	r.archive(ctx, state, "", string(kind))
}

// classify maps a loop failure onto the error taxonomy. Context errors take
// the run context's own state into account: a deadline expiry observed as a
// generic cancellation still counts as a timeout.
func classify(ctx context.Context, err error) (ErrorKind, core.RunStatus, error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrorKindTimeout, core.RunStatusTimedOut, fmt.Errorf("%w: %v", ErrRunTimeout, err)
	case errors.Is(err, context.Canceled):
		return ErrorKindCancelled, core.RunStatusCancelled, fmt.Errorf("%w: %v", ErrCancelled, err)
	case errors.Is(err, ErrIterationLimitExceeded):
		return ErrorKindIterationLimit, core.RunStatusFailed, err
	case errors.Is(err, core.ErrInvalidTranscriptState):
		return ErrorKindInvalidTranscript, core.RunStatusFailed, err
	default:
		return ErrorKindModelService, core.RunStatusFailed, err
	}
}

// archive persists the terminal run when a store is configured. Archive
// failures are logged, never surfaced; the caller already holds the result.
func (r *Runner) archive(ctx context.Context, state *core.RunState, answer, errorKind string) {
	if r.opts.Store == nil {
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	rec := &store.Record{
		RunID:       state.RunID,
		Status:      state.Status,
		Iterations:  state.Iterations,
		FinalAnswer: answer,
		ErrorKind:   errorKind,
		Messages:    state.Transcript.Render(),
		StartedAt:   state.StartedAt,
		FinishedAt:  state.FinishedAt,
	}
	if err := r.opts.Store.Save(saveCtx, rec); err != nil {
		r.opts.Logger.Error("run.archive.failed", "run_id", state.RunID, "error", err.Error())
	}
}

func retryModelCalls(policy RetryPolicy, logger logging.Logger) middleware.ModelMiddleware {
	return func(next middleware.ModelHandler) middleware.ModelHandler {
		return func(ctx context.Context, req model.Request) (*model.Response, error) {
			var lastErr error
			for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
				if attempt > 1 {
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(policy.Delay):
					}
				}

				resp, err := next(ctx, req)
				if err == nil {
					return resp, nil
				}
				lastErr = err

				svcErr, ok := model.AsServiceError(err)
				if !ok || !svcErr.Retryable() {
					return nil, err
				}
				logger.Warn("run.model.retry", "attempt", attempt, "max_attempts", policy.MaxAttempts, "error", err.Error())
			}
			return nil, lastErr
		}
	}
}
