// Package model abstracts the vision-capable chat backends that turn a
// screenshot plus an instruction into an ordered action plan. Provider
// variants share one HTTP core and differ only in wire dialect.
package model

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
	"github.com/goelayush89/robin-ai-sub000/internal/config"
)

// Model is the contract the agents program against.
type Model interface {
	// Initialize validates the credential and prepares the HTTP client.
	// It fails on an empty API key and is once-only.
	Initialize(cfg config.ModelConfig) error

	// Analyze performs one prompted round trip: screenshot + instruction +
	// history in, parsed action plan out. Unparseable provider output is an
	// error, never an empty plan; a well-formed empty actions array is the
	// caller's clean-stop signal.
	Analyze(ctx context.Context, shot *schemas.Screenshot, instruction string, execCtx schemas.ExecutionContext) (*schemas.ModelResponse, error)

	// GenerateActions is sugar for Analyze(...).Actions using the context's
	// last screenshot.
	GenerateActions(ctx context.Context, instruction string, execCtx schemas.ExecutionContext) ([]schemas.Action, error)

	// ValidateAction performs per-type structural checks on one candidate
	// action. It never calls the provider.
	ValidateAction(action schemas.Action, execCtx schemas.ExecutionContext) schemas.ValidationResult

	// Cleanup clears credentials from memory. Safe to call repeatedly.
	Cleanup() error
}

// Factory builds an uninitialized Model for one provider.
type Factory func(logger *zap.Logger) Model

var (
	registryMu sync.RWMutex
	registry   = make(map[config.ModelProvider]Factory)
)

// Register installs a provider factory. Called from provider init funcs;
// re-registering a provider replaces it, which tests rely on.
func Register(provider config.ModelProvider, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[provider] = f
}

// New creates and initializes a Model for the configured provider.
func New(cfg config.ModelConfig, logger *zap.Logger) (Model, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown model provider %q (registered: %v)", cfg.Provider, Providers())
	}

	m := factory(logger)
	if err := m.Initialize(cfg); err != nil {
		return nil, err
	}
	return m, nil
}

// Providers lists the registered provider names, sorted for stable errors.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for p := range registry {
		names = append(names, string(p))
	}
	sort.Strings(names)
	return names
}
