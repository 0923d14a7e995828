// File: internal/model/parse_test.go
package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
)

// -- JSON Extraction --

func TestExtractJSONObject(t *testing.T) {
	testCases := []struct {
		name     string
		text     string
		expected string
		found    bool
	}{
		{
			name:     "bare object",
			text:     `{"a":1}`,
			expected: `{"a":1}`,
			found:    true,
		},
		{
			name:     "wrapped in prose",
			text:     "Sure! Here is the plan:\n```json\n{\"a\":{\"b\":2}}\n```\nLet me know.",
			expected: `{"a":{"b":2}}`,
			found:    true,
		},
		{
			name:     "braces inside string literals",
			text:     `prefix {"reasoning":"click the } button","x":1} suffix`,
			expected: `{"reasoning":"click the } button","x":1}`,
			found:    true,
		},
		{
			name:     "escaped quotes inside strings",
			text:     `{"text":"say \"hi\" {now}"}`,
			expected: `{"text":"say \"hi\" {now}"}`,
			found:    true,
		},
		{
			name:  "no object at all",
			text:  "I could not decide on any actions.",
			found: false,
		},
		{
			name:  "unbalanced object",
			text:  `{"a": {"b": 1}`,
			found: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := extractJSONObject(tc.text)
			assert.Equal(t, tc.found, ok)
			if tc.found {
				assert.Equal(t, tc.expected, got)
			}
		})
	}
}

// -- Plan Parsing --

func TestParsePlan(t *testing.T) {
	t.Run("valid plan in prose", func(t *testing.T) {
		text := `The user wants to log in.
{"reasoning":"click login then type","actions":[
  {"type":"click","x":100,"y":200,"reasoning":"the login button"},
  {"type":"type","text":"alice"}
],"confidence":0.85}`

		resp, err := parsePlan("openai", text)
		require.NoError(t, err)
		assert.Equal(t, "click login then type", resp.Reasoning)
		assert.InDelta(t, 0.85, resp.Confidence, 1e-9)
		require.Len(t, resp.Actions, 2)

		first := resp.Actions[0]
		assert.Equal(t, schemas.ActionClick, first.Type)
		assert.NotEmpty(t, first.ID, "every parsed action gets an id")
		x, y, ok := first.Coordinates()
		require.True(t, ok)
		assert.Equal(t, 100.0, x)
		assert.Equal(t, 200.0, y)

		assert.Equal(t, schemas.ActionTypeText, resp.Actions[1].Type)
		assert.Equal(t, "alice", resp.Actions[1].Text)
	})

	t.Run("confidence is clamped", func(t *testing.T) {
		resp, err := parsePlan("openai", `{"reasoning":"r","actions":[],"confidence":1.4}`)
		require.NoError(t, err)
		assert.Equal(t, 1.0, resp.Confidence)

		resp, err = parsePlan("openai", `{"reasoning":"r","actions":[],"confidence":-0.2}`)
		require.NoError(t, err)
		assert.Equal(t, 0.0, resp.Confidence)
	})

	t.Run("empty actions is a valid plan, not an error", func(t *testing.T) {
		resp, err := parsePlan("openai", `{"reasoning":"done already","actions":[],"confidence":0.9}`)
		require.NoError(t, err)
		assert.Empty(t, resp.Actions)
	})

	t.Run("prose without JSON is a typed failure", func(t *testing.T) {
		_, err := parsePlan("openai", "I am not sure what to do next.")
		require.Error(t, err)

		var modelErr *schemas.ModelError
		require.True(t, errors.As(err, &modelErr))
		assert.Equal(t, schemas.ErrCodeUnparseableResponse, modelErr.Code)
		assert.Equal(t, "openai", modelErr.Provider)
	})

	t.Run("action without a type is a typed failure", func(t *testing.T) {
		_, err := parsePlan("openai", `{"reasoning":"r","actions":[{"x":1,"y":2}],"confidence":0.5}`)
		require.Error(t, err)

		var modelErr *schemas.ModelError
		require.True(t, errors.As(err, &modelErr))
		assert.Equal(t, schemas.ErrCodeUnparseableResponse, modelErr.Code)
	})

	t.Run("type casing is normalized", func(t *testing.T) {
		resp, err := parsePlan("openai", `{"actions":[{"type":" CLICK ","x":1,"y":2}],"confidence":0.5}`)
		require.NoError(t, err)
		require.Len(t, resp.Actions, 1)
		assert.Equal(t, schemas.ActionClick, resp.Actions[0].Type)
	})
}

// -- History Digest --

func TestHistoryDigest(t *testing.T) {
	assert.Equal(t, "(none)", historyDigest(nil, 5))

	x, y := 1.0, 2.0
	actions := []schemas.Action{
		{Type: schemas.ActionClick, X: &x, Y: &y},
		{Type: schemas.ActionTypeText, Text: "a very long text payload that should be truncated for the prompt digest"},
		{Type: schemas.ActionScroll},
	}
	digest := historyDigest(actions, 2)
	assert.NotContains(t, digest, "click", "digest keeps only the trailing entries")
	assert.Contains(t, digest, "type")
	assert.Contains(t, digest, "scroll")
	assert.Contains(t, digest, "...", "long text payloads are truncated")
}
