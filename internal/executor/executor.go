// Package executor routes planned actions to the operator that can carry
// them out. It is the seam between the agent loop, which thinks in actions,
// and operators, which think in control surfaces.
package executor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
	"github.com/goelayush89/robin-ai-sub000/internal/operator"
)

// Executor dispatches actions across a fixed set of operators. The routing
// table is built once at construction: for each action type, the first
// operator (in registration order) that declares the capability wins.
type Executor struct {
	logger    *zap.Logger
	operators []operator.Operator

	mu    sync.RWMutex
	table map[schemas.ActionType]operator.Operator
}

// New builds an executor over the given operators. Order matters: earlier
// operators take precedence when two declare the same capability.
func New(logger *zap.Logger, operators ...operator.Operator) *Executor {
	e := &Executor{
		logger:    logger.Named("executor"),
		operators: operators,
		table:     make(map[schemas.ActionType]operator.Operator),
	}
	for _, op := range operators {
		for _, cap := range op.Capabilities() {
			if _, taken := e.table[cap.Type]; !taken {
				e.table[cap.Type] = op
			}
		}
	}
	return e
}

// Supports reports whether any operator can handle the action type.
// Terminal actions are always supported: they end the run instead of
// touching a control surface.
func (e *Executor) Supports(t schemas.ActionType) bool {
	if t.IsTerminal() {
		return true
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.table[t]
	return ok
}

// OperatorFor exposes the routing decision, mainly for tests and logging.
func (e *Executor) OperatorFor(t schemas.ActionType) (operator.Operator, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	op, ok := e.table[t]
	return op, ok
}

// Execute runs one action and always returns a result; failures are
// reported inside it. Terminal actions succeed without side effects so the
// loop can record them before stopping.
func (e *Executor) Execute(ctx context.Context, action schemas.Action) *schemas.ActionResult {
	if action.Type.IsTerminal() {
		return &schemas.ActionResult{
			ActionID:  action.ID,
			Success:   true,
			Data:      action.Text,
			Timestamp: time.Now().UTC(),
		}
	}

	e.mu.RLock()
	op, ok := e.table[action.Type]
	e.mu.RUnlock()
	if !ok {
		e.logger.Warn("No operator can execute action.",
			zap.String("type", string(action.Type)))
		err := schemas.NewOperatorError(schemas.ErrCodeUnsupportedAction, "executor",
			action.Type, "no registered operator supports this action type", nil)
		return operator.FailedResult(action, err)
	}

	e.logger.Debug("Dispatching action.",
		zap.String("type", string(action.Type)),
		zap.String("operator", op.Name()))

	start := time.Now()
	result := op.Execute(ctx, action)
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}
	return result
}

// Capture returns a screenshot from the first operator able to produce one.
func (e *Executor) Capture(ctx context.Context) (*schemas.Screenshot, error) {
	var lastErr error
	for _, op := range e.operators {
		shot, err := op.Capture(ctx)
		if err == nil {
			return shot, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = schemas.NewOperatorError(schemas.ErrCodeCaptureUnsupported, "executor", "",
			"no operators registered", nil)
	}
	return nil, lastErr
}

// Cleanup tears down every operator, returning the first error seen.
func (e *Executor) Cleanup() error {
	var firstErr error
	for _, op := range e.operators {
		if err := op.Cleanup(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
