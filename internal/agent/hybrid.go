package agent

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
	"github.com/goelayush89/robin-ai-sub000/internal/config"
	"github.com/goelayush89/robin-ai-sub000/internal/events"
	"github.com/goelayush89/robin-ai-sub000/internal/executor"
	"github.com/goelayush89/robin-ai-sub000/internal/operator"
)

func init() {
	Register(config.VariantHybrid, func(cfg config.AgentConfig, logger *zap.Logger) Agent {
		return NewHybrid(cfg, logger, nil)
	})
}

// ModePolicy decides which control surface handles the run and each action.
// The keyword policy below is a heuristic, not a classifier; swap it out
// when the host knows better.
type ModePolicy interface {
	// InitialMode picks the starting surface from the raw instruction.
	InitialMode(instruction string) schemas.Mode

	// ModeFor picks the surface for one action. The only hard guarantees
	// are navigate/selector/url to browser and numeric coordinates to
	// desktop; everything else keeps the current mode.
	ModeFor(action schemas.Action, current schemas.Mode) schemas.Mode
}

// KeywordPolicy is the default ModePolicy: substring tallies over the
// instruction, plus per-action parameter shape.
type KeywordPolicy struct{}

var webKeywords = []string{
	"website", "browser", "url", "http", "www",
	"search online", "web page", "navigate to",
}

var desktopKeywords = []string{
	"file", "folder", "desktop", "application", "window", "system",
}

func (KeywordPolicy) InitialMode(instruction string) schemas.Mode {
	lower := strings.ToLower(instruction)
	webScore, desktopScore := 0, 0
	for _, kw := range webKeywords {
		if strings.Contains(lower, kw) {
			webScore++
		}
	}
	for _, kw := range desktopKeywords {
		if strings.Contains(lower, kw) {
			desktopScore++
		}
	}
	if webScore > desktopScore {
		return schemas.ModeBrowser
	}
	return schemas.ModeDesktop
}

func (KeywordPolicy) ModeFor(action schemas.Action, current schemas.Mode) schemas.Mode {
	switch {
	case action.Type == schemas.ActionNavigate:
		return schemas.ModeBrowser
	case action.HasParam("selector") || action.HasParam("url"):
		return schemas.ModeBrowser
	}
	if _, _, ok := action.Coordinates(); ok {
		return schemas.ModeDesktop
	}
	return current
}

// HybridAgent drives both surfaces and arbitrates between them per action.
// Capture and dispatch always route through the surface matching the
// current mode.
type HybridAgent struct {
	*base
	policy  ModePolicy
	desktop *executor.Executor
	browser *executor.Executor

	modeMu  sync.Mutex
	current schemas.Mode
}

// NewHybrid builds a hybrid agent. A nil policy selects KeywordPolicy.
func NewHybrid(cfg config.AgentConfig, logger *zap.Logger, policy ModePolicy) *HybridAgent {
	if policy == nil {
		policy = KeywordPolicy{}
	}
	a := &HybridAgent{policy: policy, current: schemas.ModeDesktop}
	a.base = newBase(cfg, logger.Named("hybrid_agent"), a)
	return a
}

func (a *HybridAgent) open(ctx context.Context) error {
	screenOp, err := operator.New(ctx, config.OperatorScreen, a.cfg.Operator, a.logger)
	if err != nil {
		return err
	}
	inputOp, err := operator.New(ctx, config.OperatorInput, a.cfg.Operator, a.logger)
	if err != nil {
		_ = screenOp.Cleanup()
		return err
	}
	browserOp, err := operator.New(ctx, config.OperatorBrowser, a.cfg.Operator, a.logger)
	if err != nil {
		_ = inputOp.Cleanup()
		_ = screenOp.Cleanup()
		return err
	}
	a.desktop = executor.New(a.logger, screenOp, inputOp)
	a.browser = executor.New(a.logger, browserOp)
	return nil
}

func (a *HybridAgent) begin(instruction string) {
	initial := a.policy.InitialMode(instruction)
	a.modeMu.Lock()
	a.current = initial
	a.modeMu.Unlock()
	a.logger.Info("Initial mode selected.", zap.String("mode", string(initial)))
}

func (a *HybridAgent) mode() schemas.Mode {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.current
}

func (a *HybridAgent) capture(ctx context.Context) (*schemas.Screenshot, error) {
	return a.executorFor(a.mode()).Capture(ctx)
}

// prepare arbitrates the mode for one action and announces a switch before
// the action executes.
func (a *HybridAgent) prepare(_ context.Context, sessionID string, action schemas.Action) {
	previous := a.mode()
	next := a.policy.ModeFor(action, previous)
	if next == previous {
		return
	}

	a.modeMu.Lock()
	a.current = next
	a.modeMu.Unlock()

	a.logger.Info("Switching mode.",
		zap.String("from", string(previous)),
		zap.String("to", string(next)),
		zap.String("action", string(action.Type)))
	a.publish(events.Event{
		Type:         events.EventModeSwitched,
		SessionID:    sessionID,
		Action:       &action,
		Mode:         next,
		PreviousMode: previous,
	})
}

func (a *HybridAgent) dispatch(ctx context.Context, action schemas.Action) *schemas.ActionResult {
	return a.executorFor(a.mode()).Execute(ctx, action)
}

func (a *HybridAgent) executorFor(m schemas.Mode) *executor.Executor {
	if m == schemas.ModeBrowser {
		return a.browser
	}
	return a.desktop
}

func (a *HybridAgent) close() error {
	var firstErr error
	if a.browser != nil {
		firstErr = a.browser.Cleanup()
	}
	if a.desktop != nil {
		if err := a.desktop.Cleanup(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
