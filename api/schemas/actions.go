// Package schemas defines the data model shared by the agent, model,
// operator and executor layers. Everything the orchestration loop passes
// between components lives here so that no internal package needs to import
// another internal package just for its types.
package schemas

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType is an enumeration of every atomic automation instruction the
// model may emit. It is the structured vocabulary shared by the model
// (which plans actions), the operators (which perform them) and the
// executor (which dispatches them).
type ActionType string

const (
	// -- Pointer actions --
	ActionClick       ActionType = "click"
	ActionDoubleClick ActionType = "double_click"
	ActionRightClick  ActionType = "right_click"
	ActionDrag        ActionType = "drag"

	// -- Keyboard actions --
	ActionTypeText ActionType = "type"
	ActionKey      ActionType = "key"

	// -- Page / viewport actions --
	ActionScroll     ActionType = "scroll"
	ActionWait       ActionType = "wait"
	ActionScreenshot ActionType = "screenshot"
	ActionNavigate   ActionType = "navigate"

	// -- Terminal actions --
	// ActionFinished signals the model believes the instruction is complete.
	ActionFinished ActionType = "finished"
	// ActionCallUser yields control back to the human before resubmitting.
	ActionCallUser ActionType = "call_user"
)

// AllActionTypes lists every known action type in a stable order. Used by
// validation tables and exhaustiveness tests.
var AllActionTypes = []ActionType{
	ActionClick, ActionDoubleClick, ActionRightClick, ActionDrag,
	ActionTypeText, ActionKey, ActionScroll, ActionWait,
	ActionScreenshot, ActionNavigate, ActionFinished, ActionCallUser,
}

// IsTerminal reports whether the action ends the run instead of producing a
// side effect.
func (t ActionType) IsTerminal() bool {
	return t == ActionFinished || t == ActionCallUser
}

// Action is a single, concrete step decided by the model. Coordinates and
// text are lifted into dedicated fields when the model provides them; any
// additional parameters (selector, url, direction, duration_ms, ...) ride in
// the Params map.
type Action struct {
	ID     string                 `json:"id"`
	Type   ActionType             `json:"type"`
	Params map[string]interface{} `json:"params,omitempty"`

	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`

	Text string `json:"text,omitempty"`

	// Reasoning carries the model's chain of thought for this step, kept for
	// debugging and for the history fed back on the next analyze call.
	Reasoning string    `json:"reasoning,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StringParam returns a string parameter, tolerating absence.
func (a Action) StringParam(key string) (string, bool) {
	v, ok := a.Params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// FloatParam returns a numeric parameter. JSON unmarshaling can hand us any
// of several numeric types depending on the decoder, so coerce them all.
func (a Action) FloatParam(key string) (float64, bool) {
	v, ok := a.Params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// HasParam reports whether a parameter is present at all.
func (a Action) HasParam(key string) bool {
	_, ok := a.Params[key]
	return ok
}

// Coordinates resolves the action's target point, preferring the dedicated
// X/Y fields over "x"/"y" params.
func (a Action) Coordinates() (x, y float64, ok bool) {
	if a.X != nil && a.Y != nil {
		return *a.X, *a.Y, true
	}
	px, okX := a.FloatParam("x")
	py, okY := a.FloatParam("y")
	if okX && okY {
		return px, py, true
	}
	return 0, 0, false
}

// String renders a compact human-readable form for logs.
func (a Action) String() string {
	if x, y, ok := a.Coordinates(); ok {
		return fmt.Sprintf("%s(%.0f,%.0f)", a.Type, x, y)
	}
	if sel, ok := a.StringParam("selector"); ok {
		return fmt.Sprintf("%s(%s)", a.Type, sel)
	}
	return string(a.Type)
}

// ActionResult is the standardized outcome of one dispatched action.
// ActionID references the Action the model emitted; the max-iterations
// marker is the one result with no action to reference and leaves it empty.
// Failures carry the error text rather than an error value so results stay
// serializable.
type ActionResult struct {
	ActionID   string        `json:"action_id,omitempty"`
	Marker     string        `json:"marker,omitempty"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Data       interface{}   `json:"data,omitempty"`
	Screenshot *Screenshot   `json:"screenshot,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Meta markers tag results the loop appends itself (terminal actions and the
// iteration cap) so stats derivation can skip them.
const (
	MetaResultMaxIterations = "meta:max_iterations_reached"
	MetaResultUserInput     = "meta:user_input_requested"
	MetaResultFinished      = "meta:finished"
)

// IsMeta reports whether the result is a loop marker rather than the outcome
// of a real dispatched action.
func (r ActionResult) IsMeta() bool {
	return r.Marker != ""
}
