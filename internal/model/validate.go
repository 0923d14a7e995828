package model

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
)

// ValidateAction performs per-type structural checks on a candidate action.
// Errors make the action invalid and the loop will skip it; warnings (such as
// coordinates outside the current screenshot) do not.
func (c *client) ValidateAction(action schemas.Action, execCtx schemas.ExecutionContext) schemas.ValidationResult {
	res := schemas.ValidationResult{Valid: true}

	addErr := func(format string, args ...interface{}) {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}
	addWarn := func(format string, args ...interface{}) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
	}

	switch action.Type {
	case schemas.ActionClick, schemas.ActionDoubleClick, schemas.ActionRightClick:
		x, y, hasCoords := action.Coordinates()
		_, hasSelector := action.StringParam("selector")
		if !hasCoords && !hasSelector {
			addErr("%s requires numeric x/y coordinates or a selector", action.Type)
			res.Suggestions = append(res.Suggestions, "include x and y, or a CSS selector param")
			break
		}
		if hasCoords {
			warnIfOutOfBounds(&res, addWarn, x, y, execCtx.Screenshot)
		}

	case schemas.ActionDrag:
		for _, key := range []string{"from_x", "from_y", "to_x", "to_y"} {
			if _, ok := action.FloatParam(key); !ok {
				addErr("drag requires numeric param %q", key)
			}
		}

	case schemas.ActionTypeText:
		if text := actionText(action); text == "" {
			addErr("type requires non-empty text")
		}

	case schemas.ActionKey:
		if key, ok := action.StringParam("key"); !ok || key == "" {
			addErr("key requires a non-empty params.key")
		}

	case schemas.ActionWait:
		if dur, ok := action.FloatParam("duration_ms"); ok && dur < 0 {
			addErr("wait duration must be non-negative, got %v", dur)
		}

	case schemas.ActionNavigate:
		target := actionURL(action)
		if target == "" {
			addErr("navigate requires a URL string")
			break
		}
		if u, err := url.Parse(target); err != nil || u.Host == "" && !strings.Contains(target, ".") {
			addWarn("navigate target %q does not look like a URL", target)
		}

	case schemas.ActionScroll, schemas.ActionScreenshot, schemas.ActionFinished, schemas.ActionCallUser:
		// No structural requirements.

	default:
		addErr("unknown action type %q", action.Type)
	}

	return res
}

func warnIfOutOfBounds(res *schemas.ValidationResult, addWarn func(string, ...interface{}), x, y float64, shot *schemas.Screenshot) {
	if shot == nil || shot.Width <= 0 || shot.Height <= 0 {
		return
	}
	if x < 0 || y < 0 || x > float64(shot.Width) || y > float64(shot.Height) {
		addWarn("coordinates (%.0f,%.0f) fall outside the %dx%d screenshot", x, y, shot.Width, shot.Height)
	}
}

// actionText resolves the text payload from the dedicated field or params.
func actionText(a schemas.Action) string {
	if a.Text != "" {
		return a.Text
	}
	if t, ok := a.StringParam("text"); ok {
		return t
	}
	return ""
}

// actionURL resolves the navigation target from params or the text field.
func actionURL(a schemas.Action) string {
	if u, ok := a.StringParam("url"); ok && u != "" {
		return u
	}
	return a.Text
}
