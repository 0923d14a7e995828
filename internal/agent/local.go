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
	Register(config.VariantLocal, func(cfg config.AgentConfig, logger *zap.Logger) Agent {
		return NewLocal(cfg, logger)
	})
}

// LocalAgent drives the desktop: screen capture plus OS-level input. It has
// no browser, so navigate actions fail at dispatch.
type LocalAgent struct {
	*base
	exec *executor.Executor
}

func NewLocal(cfg config.AgentConfig, logger *zap.Logger) *LocalAgent {
	a := &LocalAgent{}
	a.base = newBase(cfg, logger.Named("local_agent"), a)
	return a
}

func (a *LocalAgent) open(ctx context.Context) error {
	screenOp, err := operator.New(ctx, config.OperatorScreen, a.cfg.Operator, a.logger)
	if err != nil {
		return err
	}
	inputOp, err := operator.New(ctx, config.OperatorInput, a.cfg.Operator, a.logger)
	if err != nil {
		_ = screenOp.Cleanup()
		return err
	}
	a.exec = executor.New(a.logger, screenOp, inputOp)
	return nil
}

func (a *LocalAgent) begin(string) {}

func (a *LocalAgent) mode() schemas.Mode { return schemas.ModeDesktop }

func (a *LocalAgent) capture(ctx context.Context) (*schemas.Screenshot, error) {
	return a.exec.Capture(ctx)
}

func (a *LocalAgent) prepare(context.Context, string, schemas.Action) {}

func (a *LocalAgent) dispatch(ctx context.Context, action schemas.Action) *schemas.ActionResult {
	return a.exec.Execute(ctx, action)
}

func (a *LocalAgent) close() error {
	if a.exec == nil {
		return nil
	}
	return a.exec.Cleanup()
}
