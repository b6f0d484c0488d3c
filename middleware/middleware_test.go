package middleware

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planloop/planloop/core"
	"github.com/planloop/planloop/model"
)

func TestChainModel_OrderingAndRewrite(t *testing.T) {
	var trace []string

	outer := func(next ModelHandler) ModelHandler {
		return func(ctx context.Context, req model.Request) (*model.Response, error) {
			trace = append(trace, "outer.before")
			resp, err := next(ctx, req)
			trace = append(trace, "outer.after")
			return resp, err
		}
	}
	inner := func(next ModelHandler) ModelHandler {
		return func(ctx context.Context, req model.Request) (*model.Response, error) {
			trace = append(trace, "inner.before")
			req.Messages = append(req.Messages, core.NewUserMessage("injected"))
			resp, err := next(ctx, req)
			trace = append(trace, "inner.after")
			return resp, err
		}
	}

	var seen int
	handler := ChainModel(func(ctx context.Context, req model.Request) (*model.Response, error) {
		trace = append(trace, "handler")
		seen = len(req.Messages)
		return &model.Response{Content: "ok"}, nil
	}, outer, inner)

	resp, err := handler(context.Background(), model.Request{Messages: []core.Message{core.NewUserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 2, seen, "rewritten request must reach the handler")
	assert.Equal(t, []string{"outer.before", "inner.before", "handler", "inner.after", "outer.after"}, trace)
}

func TestChainModel_ShortCircuitSkipsDownstream(t *testing.T) {
	short := func(next ModelHandler) ModelHandler {
		return func(ctx context.Context, req model.Request) (*model.Response, error) {
			return &model.Response{Content: "cached"}, nil
		}
	}

	handlerRuns := 0
	handler := ChainModel(func(ctx context.Context, req model.Request) (*model.Response, error) {
		handlerRuns++
		return &model.Response{Content: "real"}, nil
	}, short)

	resp, err := handler(context.Background(), model.Request{})
	require.NoError(t, err)
	assert.Equal(t, "cached", resp.Content)
	assert.Equal(t, 0, handlerRuns)
}

func TestChainCapability_ArgumentRewrite(t *testing.T) {
	clamp := func(next CapabilityHandler) CapabilityHandler {
		return func(ctx context.Context, call core.CapabilityCall) (string, error) {
			if limit, ok := call.Arguments["limit"].(float64); ok && limit > 10 {
				call.Arguments = map[string]any{"limit": 10.0}
			}
			return next(ctx, call)
		}
	}

	handler := ChainCapability(func(ctx context.Context, call core.CapabilityCall) (string, error) {
		return fmt.Sprintf("limit=%v", call.Arguments["limit"]), nil
	}, clamp)

	result, err := handler(context.Background(), core.CapabilityCall{
		ID: "c1", Name: "search", Arguments: map[string]any{"limit": 500.0},
	})
	require.NoError(t, err)
	assert.Equal(t, "limit=10", result)
}

func TestCacheCapabilityResults(t *testing.T) {
	handlerRuns := 0
	handler := ChainCapability(func(ctx context.Context, call core.CapabilityCall) (string, error) {
		handlerRuns++
		return fmt.Sprintf("result-%d", handlerRuns), nil
	}, CacheCapabilityResults())

	call := core.CapabilityCall{ID: "c1", Name: "lookup", Arguments: map[string]any{"key": "k"}}

	first, err := handler(context.Background(), call)
	require.NoError(t, err)
	second, err := handler(context.Background(), core.CapabilityCall{ID: "c2", Name: "lookup", Arguments: map[string]any{"key": "k"}})
	require.NoError(t, err)

	assert.Equal(t, "result-1", first)
	assert.Equal(t, "result-1", second, "identical name+arguments must be served from cache")
	assert.Equal(t, 1, handlerRuns)

	third, err := handler(context.Background(), core.CapabilityCall{ID: "c3", Name: "lookup", Arguments: map[string]any{"key": "other"}})
	require.NoError(t, err)
	assert.Equal(t, "result-2", third)
	assert.Equal(t, 2, handlerRuns)
}

func TestCacheCapabilityResults_DoesNotCacheFailures(t *testing.T) {
	handlerRuns := 0
	handler := ChainCapability(func(ctx context.Context, call core.CapabilityCall) (string, error) {
		handlerRuns++
		if handlerRuns == 1 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	}, CacheCapabilityResults())

	call := core.CapabilityCall{ID: "c1", Name: "flaky", Arguments: map[string]any{}}

	_, err := handler(context.Background(), call)
	require.Error(t, err)

	result, err := handler(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, handlerRuns)
}

func TestRecoverCapabilityFailures(t *testing.T) {
	handler := ChainCapability(func(ctx context.Context, call core.CapabilityCall) (string, error) {
		return "", errors.New("backend down")
	}, RecoverCapabilityFailures(func(call core.CapabilityCall, err error) string {
		return fmt.Sprintf("%s is temporarily unavailable: %v", call.Name, err)
	}))

	result, err := handler(context.Background(), core.CapabilityCall{ID: "c1", Name: "search"})
	require.NoError(t, err)
	assert.Equal(t, "search is temporarily unavailable: backend down", result)
}
