package capability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberSchema(fields ...string) map[string]any {
	props := map[string]any{}
	for _, f := range fields {
		props[f] = map[string]any{"type": "number"}
	}
	return map[string]any{"type": "object", "properties": props, "required": fields}
}

func TestFunctionCapability_Success(t *testing.T) {
	calls := 0
	add := NewFunction("add", "Add two numbers", numberSchema("a", "b"),
		func(_ context.Context, args map[string]any) (string, error) {
			calls++
			return "4", nil
		})

	result, err := add.Invoke(context.Background(), map[string]any{"a": 2.0, "b": 2.0})
	require.NoError(t, err)
	assert.Equal(t, "4", result)
	assert.Equal(t, 1, calls)
}

func TestFunctionCapability_SchemaViolationSkipsHandler(t *testing.T) {
	calls := 0
	add := NewFunction("add", "Add two numbers", numberSchema("a", "b"),
		func(_ context.Context, _ map[string]any) (string, error) {
			calls++
			return "", nil
		})

	_, err := add.Invoke(context.Background(), map[string]any{"a": 2.0})
	require.Error(t, err)

	var capErr *Error
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, CodeSchemaViolation, capErr.Code)
	assert.Equal(t, 0, calls, "handler must never run on schema violation")
}

func TestFunctionCapability_ExecutionError(t *testing.T) {
	boom := NewFunction("boom", "Always fails", map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ context.Context, _ map[string]any) (string, error) {
			return "", errors.New("backend unavailable")
		})

	_, err := boom.Invoke(context.Background(), map[string]any{})
	var capErr *Error
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, CodeExecutionError, capErr.Code)
	assert.Contains(t, capErr.Message, "backend unavailable")
}

func TestFunctionCapability_CustomErrorPassedThrough(t *testing.T) {
	custom := NewFunction("c", "Custom error", map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ context.Context, _ map[string]any) (string, error) {
			return "", NewError("c", "rate limited upstream", "UPSTREAM_LIMIT")
		})

	_, err := custom.Invoke(context.Background(), map[string]any{})
	var capErr *Error
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "UPSTREAM_LIMIT", capErr.Code)
}

func TestFunctionCapability_Timeout(t *testing.T) {
	slow := NewFunction("slow", "Sleeps past its deadline", map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, _ map[string]any) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(5 * time.Second):
				return "done", nil
			}
		},
		func(o *FunctionOptions) { o.Timeout = 10 * time.Millisecond })

	_, err := slow.Invoke(context.Background(), map[string]any{})
	var capErr *Error
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, CodeTimeout, capErr.Code)
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	echo := NewFunction("echo", "Echo input", map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ context.Context, _ map[string]any) (string, error) { return "", nil })

	require.NoError(t, reg.Register(echo))
	assert.ErrorIs(t, reg.Register(echo), ErrDuplicateCapability)

	resolved, err := reg.Resolve("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", resolved.Name())

	_, err = reg.Resolve("missing")
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

func TestRegistry_ValidateArguments(t *testing.T) {
	add := NewFunction("add", "Add", numberSchema("a", "b"),
		func(_ context.Context, _ map[string]any) (string, error) { return "", nil })
	reg, err := NewRegistry(add)
	require.NoError(t, err)

	assert.NoError(t, reg.ValidateArguments("add", map[string]any{"a": 1.0, "b": 2.0}))

	err = reg.ValidateArguments("add", map[string]any{"a": "one"})
	var capErr *Error
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, CodeSchemaViolation, capErr.Code)

	assert.ErrorIs(t, reg.ValidateArguments("nope", nil), ErrUnknownCapability)
}

func TestRegistry_ListPreservesRegistrationOrder(t *testing.T) {
	mk := func(name string) Capability {
		return NewFunction(name, name, map[string]any{"type": "object", "properties": map[string]any{}},
			func(_ context.Context, _ map[string]any) (string, error) { return "", nil })
	}
	reg, err := NewRegistry(mk("c"), mk("a"), mk("b"))
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "a", "b"}, reg.Names())
	assert.Equal(t, 3, reg.Len())
}
