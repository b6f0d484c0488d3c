package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchArgs struct {
	Query string  `json:"query" description:"Search query"`
	Limit *int    `json:"limit" description:"Maximum results"`
	Mode  string  `json:"mode,omitempty"`
	Score float64 `json:"score"`
}

func TestSchemaFromStruct(t *testing.T) {
	schema := SchemaFromStruct(searchArgs{})

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "query")
	assert.Contains(t, props, "limit")
	assert.Contains(t, props, "mode")

	query := props["query"].(map[string]any)
	assert.Equal(t, "string", query["type"])
	assert.Equal(t, "Search query", query["description"])

	req, _ := schema["required"].([]string)
	assert.ElementsMatch(t, []string{"query", "score"}, req)
}

func TestValidateArguments_CollectsAllViolations(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a":    map[string]any{"type": "number"},
			"mode": map[string]any{"type": "string", "enum": []string{"fast", "slow"}},
		},
		"required": []string{"a", "mode"},
	}

	err := ValidateArguments(map[string]any{"mode": "sideways"}, schema)
	require.Error(t, err)

	var se *SchemaError
	require.ErrorAs(t, err, &se)
	require.Len(t, se.Violations, 2)
	fields := []string{se.Violations[0].Field, se.Violations[1].Field}
	assert.ElementsMatch(t, []string{"a", "mode"}, fields)
}

func TestValidateArguments_TypeChecks(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"n": map[string]any{"type": "integer"},
		},
		"required": []any{"n"},
	}

	assert.NoError(t, ValidateArguments(map[string]any{"n": 3}, schema))
	// JSON decoding yields float64; whole values still count as integers.
	assert.NoError(t, ValidateArguments(map[string]any{"n": float64(3)}, schema))
	assert.Error(t, ValidateArguments(map[string]any{"n": 3.5}, schema))
	assert.Error(t, ValidateArguments(map[string]any{"n": "three"}, schema))
	assert.Error(t, ValidateArguments(map[string]any{}, schema))
}

func TestValidateArguments_AllowsExtraFields(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"a": map[string]any{"type": "string"}},
	}
	assert.NoError(t, ValidateArguments(map[string]any{"a": "x", "extra": 1}, schema))
}
