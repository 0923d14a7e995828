package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
)

// planWire mirrors the JSON object the providers are prompted to return.
type planWire struct {
	Reasoning  string                 `json:"reasoning"`
	Actions    []actionWire           `json:"actions"`
	Confidence float64                `json:"confidence"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

type actionWire struct {
	Type      string                 `json:"type"`
	Params    map[string]interface{} `json:"params,omitempty"`
	X         *float64               `json:"x,omitempty"`
	Y         *float64               `json:"y,omitempty"`
	Text      string                 `json:"text,omitempty"`
	Reasoning string                 `json:"reasoning,omitempty"`
}

// extractJSONObject returns the first balanced {...} block in the text.
// Models routinely wrap their JSON in prose or markdown fences; a balanced
// scan (string-literal aware) is more reliable than first-"{" to last-"}".
func extractJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// parsePlan turns raw provider text into a ModelResponse. Confidence is
// clamped before the response leaves this function.
func parsePlan(provider, text string) (*schemas.ModelResponse, error) {
	raw, ok := extractJSONObject(text)
	if !ok {
		return nil, schemas.NewModelError(schemas.ErrCodeUnparseableResponse, provider,
			"no JSON object found in model response", nil)
	}

	var wire planWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, schemas.NewModelError(schemas.ErrCodeUnparseableResponse, provider,
			"failed to unmarshal model response", err)
	}

	resp := &schemas.ModelResponse{
		Reasoning:  wire.Reasoning,
		Actions:    make([]schemas.Action, 0, len(wire.Actions)),
		Confidence: schemas.ClampConfidence(wire.Confidence),
		Metadata:   wire.Metadata,
	}

	now := time.Now().UTC()
	for _, aw := range wire.Actions {
		t := schemas.ActionType(strings.ToLower(strings.TrimSpace(aw.Type)))
		if t == "" {
			return nil, schemas.NewModelError(schemas.ErrCodeUnparseableResponse, provider,
				"action in model response is missing its type", nil)
		}
		resp.Actions = append(resp.Actions, schemas.Action{
			ID:        uuid.NewString(),
			Type:      t,
			Params:    aw.Params,
			X:         aw.X,
			Y:         aw.Y,
			Text:      aw.Text,
			Reasoning: aw.Reasoning,
			Timestamp: now,
		})
	}
	return resp, nil
}

// historyDigest renders the tail of the executed-action history for the user
// prompt. Long param values are truncated; the model needs shape, not bulk.
func historyDigest(actions []schemas.Action, max int) string {
	if len(actions) == 0 {
		return "(none)"
	}
	if len(actions) > max {
		actions = actions[len(actions)-max:]
	}
	var b strings.Builder
	for i, a := range actions {
		fmt.Fprintf(&b, "%d. %s", i+1, a.String())
		if a.Text != "" {
			fmt.Fprintf(&b, " text=%q", truncate(a.Text, 48))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
