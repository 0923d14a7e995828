package schemas

import (
	"bytes"
	"time"
)

// ImageFormat identifies the raster encoding of a screenshot.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
)

var (
	pngSignature  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegSignature = []byte{0xFF, 0xD8, 0xFF}
)

// DetectImageFormat sniffs the magic bytes of raw image data. Only PNG and
// JPEG are supported rasters for model input.
func DetectImageFormat(data []byte) (ImageFormat, bool) {
	switch {
	case bytes.HasPrefix(data, pngSignature):
		return FormatPNG, true
	case bytes.HasPrefix(data, jpegSignature):
		return FormatJPEG, true
	default:
		return "", false
	}
}

// Screenshot is one captured frame of whichever control surface the agent is
// observing.
type Screenshot struct {
	ID        string      `json:"id"`
	Data      []byte      `json:"data"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Format    ImageFormat `json:"format"`
	Timestamp time.Time   `json:"timestamp"`
}

// ModelResponse is the parsed plan returned by one analyze round trip.
// Confidence is guaranteed to be within [0,1] by the model layer.
type ModelResponse struct {
	Reasoning  string                 `json:"reasoning"`
	Actions    []Action               `json:"actions"`
	Confidence float64                `json:"confidence"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ClampConfidence forces a provider-reported confidence into [0,1].
// Providers routinely return values like 1.4 or -0.2; never trust them.
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ValidationResult is the outcome of a structural check on a single action.
// Errors make the action invalid; warnings and suggestions do not.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ExecutionContext travels with every analyze and validate call. It carries
// the run identity, the latest observed state, and the executed (never the
// skipped) action history.
type ExecutionContext struct {
	SessionID       string            `json:"session_id"`
	Screenshot      *Screenshot       `json:"screenshot,omitempty"`
	PreviousActions []Action          `json:"previous_actions,omitempty"`
	Environment     map[string]string `json:"environment,omitempty"`
}

// Clone returns a copy whose PreviousActions slice is independent, so loop
// iterations can append without aliasing a caller's slice.
func (c ExecutionContext) Clone() ExecutionContext {
	out := c
	out.PreviousActions = make([]Action, len(c.PreviousActions))
	copy(out.PreviousActions, c.PreviousActions)
	if c.Environment != nil {
		out.Environment = make(map[string]string, len(c.Environment))
		for k, v := range c.Environment {
			out.Environment[k] = v
		}
	}
	return out
}

// SessionStatus is the lifecycle state of one recorded run.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionError     SessionStatus = "error"
	SessionCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether the status ends the session.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionError || s == SessionCancelled
}

// Session records one run of one instruction from start to terminal status.
type Session struct {
	ID          string         `json:"id"`
	Instruction string         `json:"instruction"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     *time.Time     `json:"end_time,omitempty"`
	Status      SessionStatus  `json:"status"`
	Results     []ActionResult `json:"results"`
	Error       string         `json:"error,omitempty"`
}

// AgentStatus is the lifecycle state of an Agent instance, distinct from the
// per-run SessionStatus.
type AgentStatus string

const (
	StatusIdle         AgentStatus = "idle"
	StatusInitializing AgentStatus = "initializing"
	StatusRunning      AgentStatus = "running"
	StatusPaused       AgentStatus = "paused"
	StatusError        AgentStatus = "error"
	StatusStopped      AgentStatus = "stopped"
)

// Mode selects which control surface the next action targets. It is
// loop-local state of the hybrid agent, never global.
type Mode string

const (
	ModeDesktop Mode = "desktop"
	ModeBrowser Mode = "browser"
)

// EnvironmentMode is the ExecutionContext.Environment key under which the
// hybrid agent publishes its current mode.
const EnvironmentMode = "mode"
