// File: api/schemas/schemas_test.go
package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Confidence Clamping --

func TestClampConfidence(t *testing.T) {
	testCases := []struct {
		in       float64
		expected float64
	}{
		{0.5, 0.5},
		{0, 0},
		{1, 1},
		{1.4, 1},  // providers overshoot
		{-0.2, 0}, // and undershoot
		{100, 1},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, ClampConfidence(tc.in), "input %v", tc.in)
	}
}

// -- Image Format Detection --

func TestDetectImageFormat(t *testing.T) {
	pngHeader := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0}
	jpegHeader := []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0, 0, 0}

	format, ok := DetectImageFormat(pngHeader)
	require.True(t, ok)
	assert.Equal(t, FormatPNG, format)

	format, ok = DetectImageFormat(jpegHeader)
	require.True(t, ok)
	assert.Equal(t, FormatJPEG, format)

	_, ok = DetectImageFormat([]byte("<html>not an image</html>"))
	assert.False(t, ok)

	_, ok = DetectImageFormat(nil)
	assert.False(t, ok)
}

// -- ExecutionContext Cloning --

func TestExecutionContextClone(t *testing.T) {
	original := ExecutionContext{
		SessionID:       "s1",
		PreviousActions: []Action{{ID: "a1", Type: ActionClick}},
		Environment:     map[string]string{EnvironmentMode: string(ModeDesktop)},
	}

	clone := original.Clone()
	clone.PreviousActions = append(clone.PreviousActions, Action{ID: "a2", Type: ActionKey})
	clone.Environment[EnvironmentMode] = string(ModeBrowser)

	assert.Len(t, original.PreviousActions, 1, "appending to the clone must not grow the original")
	assert.Equal(t, string(ModeDesktop), original.Environment[EnvironmentMode])
}

// -- Status Semantics --

func TestSessionStatusIsTerminal(t *testing.T) {
	assert.False(t, SessionRunning.IsTerminal())
	assert.True(t, SessionCompleted.IsTerminal())
	assert.True(t, SessionError.IsTerminal())
	assert.True(t, SessionCancelled.IsTerminal())
}
