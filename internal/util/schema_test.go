package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchArgs struct {
	Query string   `json:"query" description:"Search terms"`
	Limit *int     `json:"limit" description:"Maximum hits"`
	Mode  string   `json:"mode,omitempty" enum:"fast, exact"`
	Tags  []string `json:"tags,omitempty"`
	skip  string
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(searchArgs{})
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)

	assert.Contains(t, props, "query")
	assert.Contains(t, props, "limit")
	assert.NotContains(t, props, "skip")
	assert.Equal(t, []string{"query"}, schema["required"])

	mode := props["mode"].(map[string]any)
	assert.Equal(t, []string{"fast", "exact"}, mode["enum"])

	tags := props["tags"].(map[string]any)
	assert.Equal(t, "array", tags["type"])
	assert.Equal(t, map[string]any{"type": "string"}, tags["items"])

	limit := props["limit"].(map[string]any)
	assert.Equal(t, "integer", limit["type"])
	assert.Equal(t, "Maximum hits", limit["description"])
}

func TestCreateSchemaNonStruct(t *testing.T) {
	assert.Equal(t, "object", CreateSchema(42)["type"])
	assert.Equal(t, "object", CreateSchema(nil)["type"])
}

func TestValidateParameters(t *testing.T) {
	schema := CreateSchema(searchArgs{})

	assert.NoError(t, ValidateParameters(map[string]any{"query": "go", "limit": 3.0, "tags": []any{"a"}}, schema))

	err := ValidateParameters(map[string]any{}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "query", vErr.Field)

	err = ValidateParameters(map[string]any{"query": 1}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "expected type string")

	err = ValidateParameters(map[string]any{"query": "go", "limit": 1.5}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "limit", vErr.Field)

	err = ValidateParameters(map[string]any{"query": "go", "mode": "slow"}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "must be one of [fast, exact]", vErr.Message)
}

func TestValidateParametersRequiredAsAny(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"x": map[string]any{"type": "integer"}},
		"required":   []any{"x"},
	}
	assert.NoError(t, ValidateParameters(map[string]any{"x": 5}, schema))
	assert.Error(t, ValidateParameters(map[string]any{}, schema))
}

func TestDecodeArguments(t *testing.T) {
	var args searchArgs
	require.NoError(t, DecodeArguments(map[string]any{"query": "go", "limit": 2.0}, &args))
	assert.Equal(t, "go", args.Query)
	require.NotNil(t, args.Limit)
	assert.Equal(t, 2, *args.Limit)
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	out, err = RenderTemplate(`You are {{.agent}} <{{upper .tone}}>, run {{default "n/a" .missing}}`, map[string]any{"agent": "helper", "tone": "calm"})
	require.NoError(t, err)
	assert.Equal(t, "You are helper <CALM>, run n/a", out)

	_, err = RenderTemplate("{{.broken", nil)
	assert.Error(t, err)
}
