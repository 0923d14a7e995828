package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
	"github.com/goelayush89/robin-ai-sub000/internal/config"
	"github.com/goelayush89/robin-ai-sub000/internal/executor"
	"github.com/goelayush89/robin-ai-sub000/internal/operator"
)

func init() {
	Register(config.VariantBrowser, func(cfg config.AgentConfig, logger *zap.Logger) Agent {
		return NewBrowser(cfg, logger)
	})
}

// BrowserAgent drives a single browser tab. Desktop-only actions like drag
// are outside its capabilities and fail at dispatch.
type BrowserAgent struct {
	*base
	exec *executor.Executor
}

func NewBrowser(cfg config.AgentConfig, logger *zap.Logger) *BrowserAgent {
	a := &BrowserAgent{}
	a.base = newBase(cfg, logger.Named("browser_agent"), a)
	return a
}

func (a *BrowserAgent) open(ctx context.Context) error {
	browserOp, err := operator.New(ctx, config.OperatorBrowser, a.cfg.Operator, a.logger)
	if err != nil {
		return err
	}
	a.exec = executor.New(a.logger, browserOp)
	return nil
}

func (a *BrowserAgent) begin(string) {}

func (a *BrowserAgent) mode() schemas.Mode { return schemas.ModeBrowser }

func (a *BrowserAgent) capture(ctx context.Context) (*schemas.Screenshot, error) {
	return a.exec.Capture(ctx)
}

func (a *BrowserAgent) prepare(context.Context, string, schemas.Action) {}

func (a *BrowserAgent) dispatch(ctx context.Context, action schemas.Action) *schemas.ActionResult {
	return a.exec.Execute(ctx, action)
}

func (a *BrowserAgent) close() error {
	if a.exec == nil {
		return nil
	}
	return a.exec.Cleanup()
}
