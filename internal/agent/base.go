package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
	"github.com/goelayush89/robin-ai-sub000/internal/config"
	"github.com/goelayush89/robin-ai-sub000/internal/events"
	"github.com/goelayush89/robin-ai-sub000/internal/model"
	"github.com/goelayush89/robin-ai-sub000/internal/session"
)

// errStopRequested flows out of the loop when Stop was called mid-run. The
// run ends without an error: Stop already owns the final status.
var errStopRequested = errors.New("stop requested")

const defaultEventBuffer = 64

// surface is what a variant contributes to the shared loop: the control
// surfaces it drives and, for hybrid, the mode bookkeeping around them.
type surface interface {
	// open builds the variant's operators. Called once from Initialize.
	open(ctx context.Context) error

	// begin resets per-run state from the instruction, before the first
	// iteration.
	begin(instruction string)

	// mode reports which surface the next action will target.
	mode() schemas.Mode

	capture(ctx context.Context) (*schemas.Screenshot, error)

	// prepare runs before dispatching one validated action. Hybrid uses it
	// to arbitrate and announce mode switches.
	prepare(ctx context.Context, sessionID string, action schemas.Action)

	dispatch(ctx context.Context, action schemas.Action) *schemas.ActionResult

	close() error
}

// base carries the lifecycle, the event stream, and the canonical loop.
// Variants embed a *base and plug in as its surface.
type base struct {
	cfg      config.AgentConfig
	logger   *zap.Logger
	bus      *events.Bus
	sessions *session.Manager
	model    model.Model
	surface  surface

	mu          sync.Mutex
	status      schemas.AgentStatus
	initialized bool
	stopped     bool
	unpause     chan struct{}
}

func newBase(cfg config.AgentConfig, logger *zap.Logger, s surface) *base {
	return &base{
		cfg:      cfg,
		logger:   logger,
		bus:      events.NewBus(logger, defaultEventBuffer),
		sessions: session.NewManager(logger),
		surface:  s,
		status:   schemas.StatusIdle,
	}
}

func (a *base) Events() *events.Bus        { return a.bus }
func (a *base) Sessions() *session.Manager { return a.sessions }

func (a *base) Status() schemas.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// setStatus transitions the agent and announces it. Callers must not hold
// the mutex.
func (a *base) setStatus(status schemas.AgentStatus) {
	a.mu.Lock()
	a.status = status
	a.mu.Unlock()
	a.publish(events.Event{Type: events.EventStatusChanged, Status: status})
}

func (a *base) publish(ev events.Event) {
	ev.AgentID = a.cfg.ID
	a.bus.Publish(ev)
}

// Initialize builds the model and the variant's operators. It fails if the
// agent was already initialized or stopped.
func (a *base) Initialize(ctx context.Context) error {
	a.mu.Lock()
	if a.initialized {
		a.mu.Unlock()
		return schemas.NewAgentError(schemas.ErrCodeAlreadyInitialized,
			"agent already initialized", nil)
	}
	if a.stopped {
		a.mu.Unlock()
		return schemas.NewAgentError(schemas.ErrCodeInvalidStatus,
			"agent is stopped", nil)
	}
	a.mu.Unlock()

	a.setStatus(schemas.StatusInitializing)

	m, err := model.New(a.cfg.Model, a.logger)
	if err != nil {
		a.setStatus(schemas.StatusError)
		return schemas.NewAgentError(schemas.ErrCodeExecutionFailed,
			"model initialization failed", err)
	}
	if err := a.surface.open(ctx); err != nil {
		_ = m.Cleanup()
		a.setStatus(schemas.StatusError)
		return schemas.NewAgentError(schemas.ErrCodeExecutionFailed,
			"operator initialization failed", err)
	}

	a.mu.Lock()
	a.model = m
	a.initialized = true
	a.mu.Unlock()
	a.setStatus(schemas.StatusIdle)

	a.logger.Info("Agent initialized.",
		zap.String("agent_id", a.cfg.ID),
		zap.String("variant", string(a.cfg.Variant)))
	return nil
}

// Execute runs one instruction through the loop. Requires StatusIdle or
// StatusPaused. Partial results survive every failure path.
func (a *base) Execute(ctx context.Context, instruction string, execCtx schemas.ExecutionContext) ([]schemas.ActionResult, error) {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return nil, schemas.NewAgentError(schemas.ErrCodeNotInitialized,
			"agent not initialized", nil)
	}
	if a.status != schemas.StatusIdle && a.status != schemas.StatusPaused {
		status := a.status
		a.mu.Unlock()
		return nil, schemas.NewAgentError(schemas.ErrCodeInvalidStatus,
			"cannot execute while "+string(status), nil)
	}
	a.status = schemas.StatusRunning
	a.mu.Unlock()
	a.publish(events.Event{Type: events.EventStatusChanged, Status: schemas.StatusRunning})

	results, err := a.runLoop(ctx, instruction, execCtx)

	switch {
	case errors.Is(err, errStopRequested):
		// Stop already moved the agent to StatusStopped.
		return results, nil
	case err != nil && a.isStopped():
		// The failure is fallout from a concurrent Stop tearing down the
		// operators; Stop's status and cleanup win.
		return results, nil
	case err != nil:
		a.setStatus(schemas.StatusError)
		a.publish(events.Event{Type: events.EventError, Error: err.Error()})
		var agentErr *schemas.AgentError
		if !errors.As(err, &agentErr) {
			agentErr = schemas.NewAgentError(schemas.ErrCodeExecutionFailed,
				"execution failed", err)
		}
		agentErr.PartialResults = results
		return results, agentErr
	default:
		a.setStatus(schemas.StatusIdle)
		return results, nil
	}
}

// Pause asks the loop to hold at its next checkpoint.
func (a *base) Pause() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != schemas.StatusRunning {
		return schemas.NewAgentError(schemas.ErrCodeInvalidStatus,
			"can only pause while running", nil)
	}
	a.status = schemas.StatusPaused
	a.unpause = make(chan struct{})
	a.publish(events.Event{Type: events.EventStatusChanged, Status: schemas.StatusPaused})
	return nil
}

// Resume releases a paused loop.
func (a *base) Resume() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != schemas.StatusPaused {
		return schemas.NewAgentError(schemas.ErrCodeInvalidStatus,
			"can only resume while paused", nil)
	}
	a.status = schemas.StatusRunning
	if a.unpause != nil {
		close(a.unpause)
		a.unpause = nil
	}
	a.publish(events.Event{Type: events.EventStatusChanged, Status: schemas.StatusRunning})
	return nil
}

// Stop ends the agent and releases its resources. Idempotent: every call
// leaves the agent in StatusStopped and returns nil for repeat calls.
func (a *base) Stop() error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	a.status = schemas.StatusStopped
	if a.unpause != nil {
		close(a.unpause)
		a.unpause = nil
	}
	m := a.model
	a.model = nil
	a.mu.Unlock()

	a.publish(events.Event{Type: events.EventStatusChanged, Status: schemas.StatusStopped})

	var firstErr error
	if err := a.surface.close(); err != nil {
		firstErr = err
	}
	if m != nil {
		if err := m.Cleanup(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.bus.Close()
	a.logger.Info("Agent stopped.", zap.String("agent_id", a.cfg.ID))
	return firstErr
}

// checkpoint is the cooperative cancellation point between actions and
// iterations. It blocks while paused and reports a requested stop.
func (a *base) checkpoint(ctx context.Context) error {
	for {
		a.mu.Lock()
		if a.stopped {
			a.mu.Unlock()
			return errStopRequested
		}
		if a.status != schemas.StatusPaused {
			a.mu.Unlock()
			return nil
		}
		gate := a.unpause
		a.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-gate:
		}
	}
}

func (a *base) isStopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

func (a *base) maxIterations() int {
	if n := a.cfg.Settings.MaxIterations; n > 0 {
		return n
	}
	return 25
}

// runLoop is the canonical perceive-analyze-validate-act loop shared by all
// variants.
func (a *base) runLoop(ctx context.Context, instruction string, execCtx schemas.ExecutionContext) ([]schemas.ActionResult, error) {
	sess, err := a.sessions.Create(instruction)
	if err != nil {
		return nil, schemas.NewAgentError(schemas.ErrCodeExecutionFailed,
			"could not create session", err)
	}
	sessionID := sess.ID
	logger := a.logger.With(zap.String("session_id", sessionID))

	// Snapshot the model: Stop nils the field while releasing resources, and
	// the loop must never dereference it mid-teardown. A cleaned-up model
	// returns a typed error instead of panicking.
	a.mu.Lock()
	mdl := a.model
	a.mu.Unlock()

	a.surface.begin(instruction)

	execCtx = execCtx.Clone()
	execCtx.SessionID = sessionID
	if execCtx.Environment == nil {
		execCtx.Environment = make(map[string]string)
	}
	execCtx.Environment[schemas.EnvironmentMode] = string(a.surface.mode())

	var results []schemas.ActionResult
	record := func(r schemas.ActionResult) {
		results = append(results, r)
		if err := a.sessions.AppendResult(sessionID, r); err != nil {
			logger.Warn("Could not record result.", zap.Error(err))
		}
	}
	finish := func(status schemas.SessionStatus, msg string) {
		if err := a.sessions.Update(sessionID, status, msg); err != nil {
			logger.Warn("Could not finalize session.", zap.Error(err))
		}
	}
	fail := func(err error) ([]schemas.ActionResult, error) {
		if errors.Is(err, errStopRequested) || errors.Is(err, context.Canceled) || a.isStopped() {
			finish(schemas.SessionCancelled, "")
		} else {
			finish(schemas.SessionError, err.Error())
		}
		return results, err
	}

	maxIterations := a.maxIterations()
	iteration := 0
	for iteration < maxIterations {
		iteration++
		a.publish(events.Event{Type: events.EventIterationStarted,
			SessionID: sessionID, Iteration: iteration})

		if err := a.checkpoint(ctx); err != nil {
			return fail(err)
		}

		if a.cfg.Settings.AutoScreenshot {
			shot, err := a.surface.capture(ctx)
			if err != nil {
				return fail(err)
			}
			execCtx.Screenshot = shot
			a.publish(events.Event{Type: events.EventScreenshotCaptured,
				SessionID: sessionID, Iteration: iteration, Screenshot: shot})
		}

		response, err := mdl.Analyze(ctx, execCtx.Screenshot, instruction, execCtx)
		if err != nil {
			return fail(err)
		}
		a.publish(events.Event{Type: events.EventAnalysisCompleted,
			SessionID: sessionID, Iteration: iteration, Response: response})

		// No actions is the model's clean-stop signal, never a failure.
		if len(response.Actions) == 0 {
			logger.Info("Model returned an empty plan; stopping.",
				zap.Int("iteration", iteration))
			finish(schemas.SessionCompleted, "")
			return results, nil
		}

		for i := range response.Actions {
			action := response.Actions[i]

			if err := a.checkpoint(ctx); err != nil {
				return fail(err)
			}

			if action.Type.IsTerminal() {
				marker := a.recordTerminal(sessionID, action, record)
				finish(schemas.SessionCompleted, "")
				logger.Info("Run ended by terminal action.",
					zap.String("type", string(action.Type)),
					zap.String("marker", marker))
				return results, nil
			}

			if v := mdl.ValidateAction(action, execCtx); !v.Valid {
				// Skip just this action; the rest of the plan still runs.
				failed := schemas.ActionResult{
					ActionID:  action.ID,
					Success:   false,
					Error:     "validation failed: " + strings.Join(v.Errors, "; "),
					Timestamp: time.Now().UTC(),
				}
				record(failed)
				a.publish(events.Event{Type: events.EventActionCompleted,
					SessionID: sessionID, Action: &action, Result: &failed})
				continue
			}

			a.surface.prepare(ctx, sessionID, action)
			execCtx.Environment[schemas.EnvironmentMode] = string(a.surface.mode())

			a.publish(events.Event{Type: events.EventActionStarted,
				SessionID: sessionID, Action: &action})

			result := a.surface.dispatch(ctx, action)
			record(*result)
			execCtx.PreviousActions = append(execCtx.PreviousActions, action)
			a.publish(events.Event{Type: events.EventActionCompleted,
				SessionID: sessionID, Action: &action, Result: result})

			if delay := a.cfg.Settings.IterationDelay; delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return fail(ctx.Err())
				}
			}
		}

		a.publish(events.Event{Type: events.EventIterationCompleted,
			SessionID: sessionID, Iteration: iteration})

		if !a.shouldContinue(results, response) {
			logger.Info("Continuation policy stopped the run.",
				zap.Int("iteration", iteration),
				zap.Float64("confidence", response.Confidence))
			break
		}
	}

	if iteration == maxIterations {
		// The one marker with no emitted action behind it.
		marker := schemas.ActionResult{
			Marker:    schemas.MetaResultMaxIterations,
			Success:   true,
			Data:      "maximum iterations reached",
			Timestamp: time.Now().UTC(),
		}
		record(marker)
		a.publish(events.Event{Type: events.EventMaxIterationsReached,
			SessionID: sessionID, Iteration: iteration, Result: &marker})
	}

	finish(schemas.SessionCompleted, "")
	return results, nil
}

// recordTerminal appends the marker for a finished or call_user action and
// fires the matching event. Returns the marker id used.
func (a *base) recordTerminal(sessionID string, action schemas.Action, record func(schemas.ActionResult)) string {
	markerID := schemas.MetaResultFinished
	if action.Type == schemas.ActionCallUser {
		markerID = schemas.MetaResultUserInput
	}
	marker := schemas.ActionResult{
		ActionID:  action.ID,
		Marker:    markerID,
		Success:   true,
		Data:      action.Reasoning,
		Timestamp: time.Now().UTC(),
	}
	record(marker)

	if action.Type == schemas.ActionCallUser {
		a.publish(events.Event{Type: events.EventUserInputRequested,
			SessionID: sessionID, Action: &action, Result: &marker})
	} else {
		a.publish(events.Event{Type: events.EventActionCompleted,
			SessionID: sessionID, Action: &action, Result: &marker})
	}
	return markerID
}

// shouldContinue applies the continuation policy after each iteration:
// confidence floor first, then the trailing success-rate window, then the
// failure-streak guard. Too few results is not a stop signal.
func (a *base) shouldContinue(results []schemas.ActionResult, response *schemas.ModelResponse) bool {
	s := a.cfg.Settings

	if response.Confidence < s.MinConfidence {
		return false
	}

	window := s.SuccessRateWindow
	if window <= 0 {
		window = 5
	}
	tail := make([]schemas.ActionResult, 0, window)
	for i := len(results) - 1; i >= 0 && len(tail) < window; i-- {
		if results[i].IsMeta() {
			continue
		}
		tail = append(tail, results[i])
	}
	if len(tail) < window {
		return true
	}

	succeeded := 0
	for _, r := range tail {
		if r.Success {
			succeeded++
		}
	}
	if float64(succeeded)/float64(len(tail)) < s.MinSuccessRate {
		return false
	}
	if t := s.FailureStreakThreshold; t > 0 && len(tail)-succeeded >= t {
		return false
	}
	return true
}
