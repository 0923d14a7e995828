// Package agent implements the orchestration loop: capture the current
// state, ask the model for a plan, validate and execute each planned
// action, and decide whether to keep going. Three variants exist over the
// same loop, differing only in which control surfaces they drive: local
// (screen + input), browser, and hybrid (both, with mode arbitration).
package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
	"github.com/goelayush89/robin-ai-sub000/internal/config"
	"github.com/goelayush89/robin-ai-sub000/internal/events"
	"github.com/goelayush89/robin-ai-sub000/internal/session"
)

// Agent is one orchestrator instance. Instances are single-flight: Execute
// must not be called again while a run is in progress. Independent agents
// may run concurrently; they never share operators or models.
type Agent interface {
	// Initialize builds the model and operators. Once-only.
	Initialize(ctx context.Context) error

	// Execute runs one instruction to a terminal state and returns every
	// action result collected, including loop markers. On a thrown failure
	// the partial results are attached to the returned AgentError.
	Execute(ctx context.Context, instruction string, execCtx schemas.ExecutionContext) ([]schemas.ActionResult, error)

	// Pause and Resume are cooperative: the loop finishes the action in
	// flight, then blocks at the next checkpoint until resumed or stopped.
	Pause() error
	Resume() error

	// Stop is idempotent, always ends in StatusStopped, and releases the
	// model and operator resources.
	Stop() error

	Status() schemas.AgentStatus
	Events() *events.Bus
	Sessions() *session.Manager
}

// Factory builds an uninitialized Agent for one variant.
type Factory func(cfg config.AgentConfig, logger *zap.Logger) Agent

var (
	registryMu sync.RWMutex
	registry   = make(map[config.AgentVariant]Factory)
)

// Register installs a variant factory. Called from variant init funcs.
func Register(variant config.AgentVariant, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[variant] = f
}

// New creates an agent for the configured variant. The caller owns the
// Initialize call, so lifecycle errors stay observable.
func New(cfg config.AgentConfig, logger *zap.Logger) (Agent, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Variant]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown agent variant %q (registered: %v)", cfg.Variant, Variants())
	}
	return factory(cfg, logger), nil
}

// Variants lists the registered variant names, sorted for stable errors.
func Variants() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for v := range registry {
		names = append(names, string(v))
	}
	sort.Strings(names)
	return names
}
