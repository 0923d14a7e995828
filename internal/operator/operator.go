// Package operator defines the capability-described executor contract over
// the control surfaces the agent can act on: the screen (capture only), the
// local input devices, and a browser. Concrete operators live in
// subpackages and register themselves with the factory registry here.
package operator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
	"github.com/goelayush89/robin-ai-sub000/internal/config"
)

// Capability describes one action type an operator can perform, with its
// parameter contract and defaults.
type Capability struct {
	Type     schemas.ActionType
	Required []string
	Optional []string
	Defaults map[string]interface{}
}

// Operator is a side-effecting executor over one control surface.
//
// Execute never returns a Go error for an execution failure: failures are
// reported inside the ActionResult so the loop can keep going. Capture
// fails with a typed OperatorError when the variant cannot produce a
// screenshot. Cleanup is safe to call repeatedly.
type Operator interface {
	Initialize(ctx context.Context, cfg config.OperatorConfig) error
	Name() string
	Capabilities() []Capability
	Supports(t schemas.ActionType) bool
	Execute(ctx context.Context, action schemas.Action) *schemas.ActionResult
	Capture(ctx context.Context) (*schemas.Screenshot, error)
	Cleanup() error
}

// Factory builds an uninitialized Operator.
type Factory func(logger *zap.Logger) Operator

var (
	registryMu sync.RWMutex
	registry   = make(map[config.OperatorType]Factory)
)

// Register installs an operator factory, replacing any previous one.
func Register(t config.OperatorType, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = f
}

// New creates and initializes an operator of the given type.
func New(ctx context.Context, t config.OperatorType, cfg config.OperatorConfig, logger *zap.Logger) (Operator, error) {
	registryMu.RLock()
	factory, ok := registry[t]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown operator type %q (registered: %v)", t, Types())
	}

	op := factory(logger)
	if err := op.Initialize(ctx, cfg); err != nil {
		return nil, err
	}
	return op, nil
}

// Types lists the registered operator types, sorted for stable errors.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for t := range registry {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return names
}

// SupportsType is the common capability check concrete operators share.
func SupportsType(caps []Capability, t schemas.ActionType) bool {
	for _, c := range caps {
		if c.Type == t {
			return true
		}
	}
	return false
}

// FailedResult wraps an execution failure into a result the loop can record.
func FailedResult(action schemas.Action, err error) *schemas.ActionResult {
	return &schemas.ActionResult{
		ActionID:  action.ID,
		Success:   false,
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	}
}

// OKResult wraps a successful execution.
func OKResult(action schemas.Action, data interface{}) *schemas.ActionResult {
	return &schemas.ActionResult{
		ActionID:  action.ID,
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// UnsupportedResult is the standard rejection for an action outside the
// operator's declared capabilities.
func UnsupportedResult(operatorName string, action schemas.Action) *schemas.ActionResult {
	err := schemas.NewOperatorError(schemas.ErrCodeUnsupportedAction, operatorName, action.Type,
		"action type not in declared capabilities", nil)
	return FailedResult(action, err)
}
