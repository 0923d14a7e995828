package model

import (
	"fmt"
	"strings"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
	"github.com/goelayush89/robin-ai-sub000/internal/config"
)

// systemPrompt is the instruction set shared by all providers. The response
// contract (a single JSON object) is what parsePlan depends on.
func systemPrompt(cfg config.ModelConfig) string {
	lang := ""
	// Language only affects the reasoning text, never the action schema.
	if p, ok := cfg.Parameters["language"]; ok {
		if s, ok := p.(string); ok && s != "" && s != "en" {
			lang = fmt.Sprintf("\nWrite the reasoning field in %q.", s)
		}
	}
	return `You are Robin, an automation agent controlling a computer through screenshots.
You receive the current screen, the user's instruction, and the actions executed so far.
Respond with exactly one JSON object: {"reasoning": string, "actions": [...], "confidence": number between 0 and 1}.

Each action is {"type": ..., "params": {...}} plus optional "x", "y", "text", "reasoning".

Available action types:
- click, double_click, right_click: press at coordinates (x, y) or at a CSS "selector" param.
- drag: params from_x, from_y, to_x, to_y (numbers).
- type: write the "text" field into the focused element, or into a "selector" param.
- key: press the key named in params.key (e.g. "Enter", "ctrl+s").
- scroll: params.direction "up" or "down", params.clicks count.
- wait: params.duration_ms pause, or params.selector to wait for.
- screenshot: capture the current state without acting.
- navigate: open params.url in the browser.
- finished: the instruction is fully accomplished. Terminal.
- call_user: you need human input to proceed. Terminal.

Return an empty actions array only when there is genuinely nothing left to do.
Lower your confidence when the screen does not match what you expected.` + lang
}

// userPrompt renders the instruction, environment and executed history.
func userPrompt(instruction string, execCtx schemas.ExecutionContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Instruction: %s\n\n", instruction)
	if mode, ok := execCtx.Environment[schemas.EnvironmentMode]; ok {
		fmt.Fprintf(&b, "Current mode: %s\n", mode)
	}
	fmt.Fprintf(&b, "Actions executed so far:\n%s\n", historyDigest(execCtx.PreviousActions, 12))
	b.WriteString("The current screenshot is attached. Decide the next actions.")
	return b.String()
}
