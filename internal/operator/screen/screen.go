// Package screen implements the capture-only operator for the local
// display. Capture is platform specific, so backends form an ordered
// strategy chain tried once at initialize; the first working strategy is
// cached for the life of the operator.
package screen

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
	"github.com/goelayush89/robin-ai-sub000/internal/config"
	"github.com/goelayush89/robin-ai-sub000/internal/operator"
)

const operatorName = "screen"

// Operator captures the local display. Its single capability is the
// screenshot action; it can never perform input.
type Operator struct {
	logger *zap.Logger

	mu       sync.Mutex
	cfg      config.ScreenSettings
	strategy captureStrategy
	ready    bool
}

var _ operator.Operator = (*Operator)(nil)

// New returns an uninitialized screen operator.
func New(logger *zap.Logger) *Operator {
	return &Operator{logger: logger.Named("operator.screen")}
}

// Initialize walks the platform's strategy chain and caches the first
// available backend. Once-only.
func (o *Operator) Initialize(ctx context.Context, cfg config.OperatorConfig) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ready {
		return schemas.NewOperatorError(schemas.ErrCodeInvalidParameters, operatorName, "",
			"operator already initialized", nil)
	}

	for _, s := range strategyChain() {
		if s.available() {
			o.strategy = s
			break
		}
	}
	if o.strategy == nil {
		return schemas.NewOperatorError(schemas.ErrCodeBackendUnavailable, operatorName, "",
			"no screen capture backend available on this platform", nil)
	}

	o.cfg = cfg.Screen
	o.ready = true
	o.logger.Info("Screen operator initialized", zap.String("backend", o.strategy.name()))
	return nil
}

func (o *Operator) Name() string { return operatorName }

// Capabilities declares the single screenshot capability.
func (o *Operator) Capabilities() []operator.Capability {
	return []operator.Capability{{Type: schemas.ActionScreenshot}}
}

func (o *Operator) Supports(t schemas.ActionType) bool {
	return operator.SupportsType(o.Capabilities(), t)
}

// Execute handles the screenshot action; everything else is rejected as
// unsupported inside the result, never thrown.
func (o *Operator) Execute(ctx context.Context, action schemas.Action) *schemas.ActionResult {
	if !o.Supports(action.Type) {
		return operator.UnsupportedResult(operatorName, action)
	}

	shot, err := o.Capture(ctx)
	if err != nil {
		return operator.FailedResult(action, err)
	}
	res := operator.OKResult(action, nil)
	res.Screenshot = shot
	return res
}

// Capture grabs one frame via the cached strategy.
func (o *Operator) Capture(ctx context.Context) (*schemas.Screenshot, error) {
	o.mu.Lock()
	strategy := o.strategy
	cfg := o.cfg
	ready := o.ready
	o.mu.Unlock()

	if !ready {
		return nil, schemas.NewOperatorError(schemas.ErrCodeInvalidParameters, operatorName, "",
			"operator not initialized", nil)
	}

	timeout := cfg.CommandTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	captureCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := strategy.capture(captureCtx, cfg)
	if err != nil {
		return nil, schemas.NewOperatorError(schemas.ErrCodeCommandFailed, operatorName, schemas.ActionScreenshot,
			"capture backend "+strategy.name()+" failed", err)
	}

	format, ok := schemas.DetectImageFormat(data)
	if !ok {
		return nil, schemas.NewOperatorError(schemas.ErrCodeCommandFailed, operatorName, schemas.ActionScreenshot,
			"capture backend produced an unrecognized image format", nil)
	}
	width, height := imageDimensions(data)

	return &schemas.Screenshot{
		ID:        uuid.NewString(),
		Data:      data,
		Width:     width,
		Height:    height,
		Format:    format,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Cleanup releases nothing real but resets the cached strategy. Repeat-safe.
func (o *Operator) Cleanup() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.strategy = nil
	o.ready = false
	return nil
}

func init() {
	operator.Register(config.OperatorScreen, func(logger *zap.Logger) operator.Operator {
		return New(logger)
	})
}
