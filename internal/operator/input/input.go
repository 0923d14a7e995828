// Package input implements the desktop input operator: mouse and keyboard
// injection on the local machine. Each capability declares its parameter
// contract; the platform backend is selected once at initialize and cached.
package input

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
	"github.com/goelayush89/robin-ai-sub000/internal/config"
	"github.com/goelayush89/robin-ai-sub000/internal/operator"
)

const operatorName = "input"

// capabilities is the full declared contract of the input surface.
var capabilities = []operator.Capability{
	{Type: schemas.ActionClick, Required: []string{"x", "y"}, Optional: []string{"button"},
		Defaults: map[string]interface{}{"button": "left"}},
	{Type: schemas.ActionDoubleClick, Required: []string{"x", "y"}},
	{Type: schemas.ActionRightClick, Required: []string{"x", "y"}},
	{Type: schemas.ActionDrag, Required: []string{"from_x", "from_y", "to_x", "to_y"}},
	{Type: schemas.ActionTypeText, Required: []string{"text"}},
	{Type: schemas.ActionKey, Required: []string{"key"}},
	{Type: schemas.ActionScroll, Optional: []string{"direction", "clicks"},
		Defaults: map[string]interface{}{"direction": "down", "clicks": 3}},
	{Type: schemas.ActionWait, Optional: []string{"duration_ms"},
		Defaults: map[string]interface{}{"duration_ms": 1000}},
}

// Operator injects mouse and keyboard events. It can never capture.
type Operator struct {
	logger *zap.Logger

	mu      sync.Mutex
	cfg     config.InputSettings
	backend inputBackend
	ready   bool
}

var _ operator.Operator = (*Operator)(nil)

// New returns an uninitialized input operator.
func New(logger *zap.Logger) *Operator {
	return &Operator{logger: logger.Named("operator.input")}
}

// Initialize selects the platform backend. Once-only.
func (o *Operator) Initialize(ctx context.Context, cfg config.OperatorConfig) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ready {
		return schemas.NewOperatorError(schemas.ErrCodeInvalidParameters, operatorName, "",
			"operator already initialized", nil)
	}

	for _, b := range backendChain() {
		if b.available() {
			o.backend = b
			break
		}
	}
	if o.backend == nil {
		return schemas.NewOperatorError(schemas.ErrCodeBackendUnavailable, operatorName, "",
			"no input injection backend available on this platform", nil)
	}

	o.cfg = cfg.Input
	o.ready = true
	o.logger.Info("Input operator initialized", zap.String("backend", o.backend.name()))
	return nil
}

func (o *Operator) Name() string { return operatorName }

func (o *Operator) Capabilities() []operator.Capability { return capabilities }

func (o *Operator) Supports(t schemas.ActionType) bool {
	return operator.SupportsType(capabilities, t)
}

// Capture always fails: the input surface cannot observe the screen.
func (o *Operator) Capture(ctx context.Context) (*schemas.Screenshot, error) {
	return nil, schemas.NewOperatorError(schemas.ErrCodeCaptureUnsupported, operatorName, "",
		"input operator cannot capture screenshots", nil)
}

// Execute performs one input action. Failures become failed results.
func (o *Operator) Execute(ctx context.Context, action schemas.Action) *schemas.ActionResult {
	if !o.Supports(action.Type) {
		return operator.UnsupportedResult(operatorName, action)
	}

	o.mu.Lock()
	backend := o.backend
	cfg := o.cfg
	ready := o.ready
	o.mu.Unlock()

	if !ready {
		return operator.FailedResult(action, schemas.NewOperatorError(
			schemas.ErrCodeInvalidParameters, operatorName, action.Type, "operator not initialized", nil))
	}

	execCtx := ctx
	if action.Type != schemas.ActionWait {
		// Waits run as long as the action says; commands get a hard bound.
		timeout := cfg.CommandTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := o.perform(execCtx, backend, cfg, action); err != nil {
		return operator.FailedResult(action, schemas.NewOperatorError(
			schemas.ErrCodeCommandFailed, operatorName, action.Type, "backend "+backend.name()+" failed", err))
	}
	return operator.OKResult(action, nil)
}

func (o *Operator) perform(ctx context.Context, backend inputBackend, cfg config.InputSettings, action schemas.Action) error {
	switch action.Type {
	case schemas.ActionClick, schemas.ActionDoubleClick, schemas.ActionRightClick:
		x, y, ok := action.Coordinates()
		if !ok {
			return schemas.NewOperatorError(schemas.ErrCodeInvalidParameters, operatorName, action.Type,
				"click requires numeric x/y", nil)
		}
		button := "left"
		count := 1
		switch action.Type {
		case schemas.ActionDoubleClick:
			count = 2
		case schemas.ActionRightClick:
			button = "right"
		default:
			if b, ok := action.StringParam("button"); ok && b != "" {
				button = b
			}
		}
		return backend.click(ctx, int(x), int(y), button, count)

	case schemas.ActionDrag:
		fx, okFX := action.FloatParam("from_x")
		fy, okFY := action.FloatParam("from_y")
		tx, okTX := action.FloatParam("to_x")
		ty, okTY := action.FloatParam("to_y")
		if !okFX || !okFY || !okTX || !okTY {
			return schemas.NewOperatorError(schemas.ErrCodeInvalidParameters, operatorName, action.Type,
				"drag requires numeric from_x/from_y/to_x/to_y", nil)
		}
		return backend.drag(ctx, int(fx), int(fy), int(tx), int(ty))

	case schemas.ActionTypeText:
		text := action.Text
		if text == "" {
			text, _ = action.StringParam("text")
		}
		if text == "" {
			return schemas.NewOperatorError(schemas.ErrCodeInvalidParameters, operatorName, action.Type,
				"type requires non-empty text", nil)
		}
		return backend.typeText(ctx, text, cfg.TypeDelay)

	case schemas.ActionKey:
		key, _ := action.StringParam("key")
		if key == "" {
			return schemas.NewOperatorError(schemas.ErrCodeInvalidParameters, operatorName, action.Type,
				"key requires params.key", nil)
		}
		return backend.key(ctx, key)

	case schemas.ActionScroll:
		direction := cfg.DefaultScrollDirection
		if direction == "" {
			direction = "down"
		}
		if d, ok := action.StringParam("direction"); ok && d != "" {
			direction = d
		}
		clicks := cfg.DefaultScrollClicks
		if clicks <= 0 {
			clicks = 3
		}
		if c, ok := action.FloatParam("clicks"); ok && c > 0 {
			clicks = int(c)
		}
		return backend.scroll(ctx, direction, clicks)

	case schemas.ActionWait:
		durationMs := 1000.0
		if d, ok := action.FloatParam("duration_ms"); ok {
			durationMs = d
		}
		if durationMs < 0 {
			return schemas.NewOperatorError(schemas.ErrCodeInvalidParameters, operatorName, action.Type,
				"wait duration must be non-negative", nil)
		}
		select {
		case <-time.After(time.Duration(durationMs) * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}

	default:
		// Unreachable: Supports already filtered.
		return schemas.NewOperatorError(schemas.ErrCodeUnsupportedAction, operatorName, action.Type,
			"action type not handled", nil)
	}
}

// Cleanup drops the cached backend. Repeat-safe.
func (o *Operator) Cleanup() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.backend = nil
	o.ready = false
	return nil
}

func init() {
	operator.Register(config.OperatorInput, func(logger *zap.Logger) operator.Operator {
		return New(logger)
	})
}
