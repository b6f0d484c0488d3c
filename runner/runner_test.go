package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planloop/planloop/budget"
	"github.com/planloop/planloop/capability"
	"github.com/planloop/planloop/core"
	"github.com/planloop/planloop/model"
	"github.com/planloop/planloop/store"
)

func userTranscript(t *testing.T, prompt string) *core.Transcript {
	t.Helper()
	tr, err := core.NewTranscript(core.NewUserMessage(prompt))
	require.NoError(t, err)
	return tr
}

func emptySchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func TestRunner_TextAnswerCompletes(t *testing.T) {
	mock := model.NewMockModel("mock").EnqueueText("Paris")
	r, err := New(mock)
	require.NoError(t, err)

	h := r.Start(context.Background(), userTranscript(t, "Capital of France?"))
	res, err := h.Result()
	require.NoError(t, err)

	assert.Equal(t, "Paris", res.FinalAnswer)
	assert.Equal(t, 1, res.Iterations)
	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.Transcript, 2)
}

func TestRunner_IterationCapTerminatesRun(t *testing.T) {
	var handlerRuns atomic.Int32
	ping := capability.NewFunction("ping", "Always available", emptySchema(),
		func(_ context.Context, _ map[string]any) (string, error) {
			handlerRuns.Add(1)
			return "pong", nil
		})

	// Script is exhausted after one entry; the last response repeats, so the
	// model requests a capability forever.
	mock := model.NewMockModel("mock").
		EnqueueCalls("", core.CapabilityCall{ID: "c1", Name: "ping", Arguments: map[string]any{}})

	r, err := New(mock, func(o *Options) {
		o.IterationCap = 3
		o.Capabilities = []capability.Capability{ping}
	})
	require.NoError(t, err)

	h := r.Start(context.Background(), userTranscript(t, "loop forever"))
	_, err = h.Result()
	require.Error(t, err)

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, ErrorKindIterationLimit, runErr.Kind)
	assert.ErrorIs(t, err, ErrIterationLimitExceeded)
	assert.Equal(t, 3, runErr.Iterations)
	assert.Equal(t, int32(3), handlerRuns.Load(), "exactly three capability executions, not four")
	assert.Equal(t, 3, mock.Calls())
	assert.NotEmpty(t, runErr.Transcript, "partial transcript must be preserved")
}

func TestRunner_DuplicateCapabilityIsConstructionError(t *testing.T) {
	mk := func() capability.Capability {
		return capability.NewFunction("dup", "d", emptySchema(),
			func(_ context.Context, _ map[string]any) (string, error) { return "", nil })
	}
	_, err := New(model.NewMockModel("mock"), func(o *Options) {
		o.Capabilities = []capability.Capability{mk(), mk()}
	})
	assert.ErrorIs(t, err, capability.ErrDuplicateCapability)
}

func TestRunner_CancelPreservesTranscript(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	slow := capability.NewFunction("slow", "Blocks until released", emptySchema(),
		func(_ context.Context, _ map[string]any) (string, error) {
			close(started)
			<-release
			return "finished anyway", nil
		})

	mock := model.NewMockModel("mock").
		EnqueueCalls("",
			core.CapabilityCall{ID: "c1", Name: "slow", Arguments: map[string]any{}},
			core.CapabilityCall{ID: "c2", Name: "slow2", Arguments: map[string]any{}},
		)

	slow2 := capability.NewFunction("slow2", "Must never run", emptySchema(),
		func(_ context.Context, _ map[string]any) (string, error) {
			t.Error("capability ran after cancellation")
			return "", nil
		})

	r, err := New(mock, func(o *Options) {
		o.Capabilities = []capability.Capability{slow, slow2}
	})
	require.NoError(t, err)

	h := r.Start(context.Background(), userTranscript(t, "go"))
	<-started
	h.Cancel()
	close(release)

	_, err = h.Result()
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, ErrorKindCancelled, runErr.Kind)
	assert.ErrorIs(t, err, ErrCancelled)

	// The in-flight handler completed and its result is in the transcript.
	last := runErr.Transcript[len(runErr.Transcript)-1]
	assert.Equal(t, "c1", last.CallRef)
	assert.Equal(t, "finished anyway", last.Content)
}

func TestRunner_CancelByRunID(t *testing.T) {
	started := make(chan struct{})
	block := capability.NewFunction("block", "Blocks until cancelled", emptySchema(),
		func(ctx context.Context, _ map[string]any) (string, error) {
			close(started)
			time.Sleep(20 * time.Millisecond)
			return "ok", nil
		})

	mock := model.NewMockModel("mock").
		EnqueueCalls("", core.CapabilityCall{ID: "c1", Name: "block", Arguments: map[string]any{}})

	r, err := New(mock, func(o *Options) {
		o.Capabilities = []capability.Capability{block}
		o.IterationCap = 100
	})
	require.NoError(t, err)

	h := r.Start(context.Background(), userTranscript(t, "go"))
	<-started
	require.NoError(t, r.Cancel(h.RunID()))

	_, err = h.Result()
	assert.ErrorIs(t, err, ErrCancelled)

	assert.Error(t, r.Cancel(h.RunID()), "finished runs are no longer cancellable")
	assert.Error(t, r.Cancel("nonexistent"))
}

func TestRunner_TimeoutAbortsRun(t *testing.T) {
	sleepy := capability.NewFunction("sleepy", "Sleeps", emptySchema(),
		func(_ context.Context, _ map[string]any) (string, error) {
			time.Sleep(50 * time.Millisecond)
			return "ok", nil
		})

	mock := model.NewMockModel("mock").
		EnqueueCalls("", core.CapabilityCall{ID: "c1", Name: "sleepy", Arguments: map[string]any{}})

	r, err := New(mock, func(o *Options) {
		o.Capabilities = []capability.Capability{sleepy}
		o.Timeout = 20 * time.Millisecond
		o.IterationCap = 100
	})
	require.NoError(t, err)

	h := r.Start(context.Background(), userTranscript(t, "go"))
	_, err = h.Result()

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, ErrorKindTimeout, runErr.Kind)
	assert.ErrorIs(t, err, ErrRunTimeout)
}

func TestRunner_RetriesRetryableModelErrors(t *testing.T) {
	mock := model.NewMockModel("mock")
	mock.EnqueueError(model.NewServiceError(model.ErrorKindRateLimit, errors.New("429")))
	mock.EnqueueText("recovered")

	r, err := New(mock, func(o *Options) {
		o.ModelRetry = RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond}
	})
	require.NoError(t, err)

	res, err := r.Start(context.Background(), userTranscript(t, "hi")).Result()
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.FinalAnswer)
	assert.Equal(t, 2, mock.Calls())
}

func TestRunner_DoesNotRetryAuthErrors(t *testing.T) {
	mock := model.NewMockModel("mock")
	mock.EnqueueError(model.NewServiceError(model.ErrorKindAuth, errors.New("bad key")))
	mock.EnqueueText("never reached")

	r, err := New(mock, func(o *Options) {
		o.ModelRetry = RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}
	})
	require.NoError(t, err)

	_, err = r.Start(context.Background(), userTranscript(t, "hi")).Result()
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, ErrorKindModelService, runErr.Kind)
	assert.Equal(t, 1, mock.Calls())
}

func TestRunner_ArchivesTerminalRuns(t *testing.T) {
	mock := model.NewMockModel("mock").EnqueueText("42")
	archive := store.NewInMemoryStore()

	r, err := New(mock, func(o *Options) { o.Store = archive })
	require.NoError(t, err)

	res, err := r.Start(context.Background(), userTranscript(t, "meaning of life?")).Result()
	require.NoError(t, err)

	rec, err := archive.Get(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, rec.Status)
	assert.Equal(t, "42", rec.FinalAnswer)
	assert.Len(t, rec.Messages, 2)
}

func TestRunner_ArchivesFailedRunsWithErrorKind(t *testing.T) {
	mock := model.NewMockModel("mock")
	mock.EnqueueError(model.NewServiceError(model.ErrorKindAuth, errors.New("bad key")))
	archive := store.NewInMemoryStore()

	r, err := New(mock, func(o *Options) { o.Store = archive })
	require.NoError(t, err)

	h := r.Start(context.Background(), userTranscript(t, "hi"))
	_, err = h.Result()
	require.Error(t, err)

	rec, err := archive.Get(context.Background(), h.RunID())
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailed, rec.Status)
	assert.Equal(t, string(ErrorKindModelService), rec.ErrorKind)
}

func TestRunner_BudgetCondensationDuringRun(t *testing.T) {
	noop := capability.NewFunction("noop", "Does nothing", emptySchema(),
		func(_ context.Context, _ map[string]any) (string, error) { return "ok", nil })

	mock := model.NewMockModel("mock").
		EnqueueCalls("", core.CapabilityCall{ID: "c1", Name: "noop", Arguments: map[string]any{}}).
		EnqueueCalls("", core.CapabilityCall{ID: "c2", Name: "noop", Arguments: map[string]any{}}).
		EnqueueText("done")

	r, err := New(mock, func(o *Options) {
		o.Capabilities = []capability.Capability{noop}
		o.BudgetTrigger = budget.Trigger{Messages: 4, Mode: budget.ModeOR}
		o.KeepCount = 2
		o.Condenser = budget.WindowCondenser{}
	})
	require.NoError(t, err)

	res, err := r.Start(context.Background(), userTranscript(t, "work")).Result()
	require.NoError(t, err)
	assert.Equal(t, "done", res.FinalAnswer)

	var summaries int
	for _, m := range res.Transcript {
		if m.Summary {
			summaries++
		}
	}
	assert.GreaterOrEqual(t, summaries, 1, "condensation must have collapsed the prefix")
}

func TestRunner_ConcurrentRunsAreIndependent(t *testing.T) {
	mock := model.NewMockModel("mock").EnqueueText("same answer")
	r, err := New(mock)
	require.NoError(t, err)

	h1 := r.Start(context.Background(), userTranscript(t, "one"))
	h2 := r.Start(context.Background(), userTranscript(t, "two"))

	res1, err := h1.Result()
	require.NoError(t, err)
	res2, err := h2.Result()
	require.NoError(t, err)

	assert.NotEqual(t, res1.RunID, res2.RunID)
	assert.Len(t, res1.Transcript, 2)
	assert.Len(t, res2.Transcript, 2)
}
