// File: internal/agent/base_test.go
package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
	"github.com/goelayush89/robin-ai-sub000/internal/config"
	"github.com/goelayush89/robin-ai-sub000/internal/events"
	"github.com/goelayush89/robin-ai-sub000/internal/model"
)

// -- Test doubles --

// stubSurface is a surface that succeeds at everything and records what was
// dispatched to it.
type stubSurface struct {
	mu           sync.Mutex
	openErr      error
	captureErr   error
	dispatched   []schemas.Action
	failActions  map[string]bool
	closes       int
	instructions []string

	// When set, capture signals entry once and then parks on the gate so
	// tests can interleave Stop with an in-flight perception call.
	captureEntered chan struct{}
	captureGate    chan struct{}
	enteredOnce    sync.Once
}

func (s *stubSurface) open(ctx context.Context) error { return s.openErr }

func (s *stubSurface) begin(instruction string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instructions = append(s.instructions, instruction)
}

func (s *stubSurface) mode() schemas.Mode { return schemas.ModeDesktop }

func (s *stubSurface) capture(ctx context.Context) (*schemas.Screenshot, error) {
	if s.captureEntered != nil {
		s.enteredOnce.Do(func() { close(s.captureEntered) })
	}
	if s.captureGate != nil {
		<-s.captureGate
	}
	if s.captureErr != nil {
		return nil, s.captureErr
	}
	return &schemas.Screenshot{
		ID:        uuid.NewString(),
		Data:      []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
		Format:    schemas.FormatPNG,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (s *stubSurface) prepare(ctx context.Context, sessionID string, action schemas.Action) {}

func (s *stubSurface) dispatch(ctx context.Context, action schemas.Action) *schemas.ActionResult {
	s.mu.Lock()
	s.dispatched = append(s.dispatched, action)
	fail := s.failActions[action.ID]
	s.mu.Unlock()

	res := &schemas.ActionResult{ActionID: action.ID, Success: !fail, Timestamp: time.Now().UTC()}
	if fail {
		res.Error = "dispatch refused"
	}
	return res
}

func (s *stubSurface) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *stubSurface) dispatchedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.dispatched))
	for _, a := range s.dispatched {
		ids = append(ids, a.ID)
	}
	return ids
}

// scriptedModel returns a canned response per Analyze call, keyed by call
// number starting at 1.
type scriptedModel struct {
	mu         sync.Mutex
	calls      int
	script     func(call int, execCtx schemas.ExecutionContext) (*schemas.ModelResponse, error)
	invalidIDs map[string]bool
	cleanups   int
}

var _ model.Model = (*scriptedModel)(nil)

func (m *scriptedModel) Initialize(cfg config.ModelConfig) error { return nil }

func (m *scriptedModel) Analyze(ctx context.Context, shot *schemas.Screenshot, instruction string, execCtx schemas.ExecutionContext) (*schemas.ModelResponse, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()
	return m.script(call, execCtx)
}

func (m *scriptedModel) GenerateActions(ctx context.Context, instruction string, execCtx schemas.ExecutionContext) ([]schemas.Action, error) {
	resp, err := m.Analyze(ctx, execCtx.Screenshot, instruction, execCtx)
	if err != nil {
		return nil, err
	}
	return resp.Actions, nil
}

func (m *scriptedModel) ValidateAction(action schemas.Action, execCtx schemas.ExecutionContext) schemas.ValidationResult {
	if m.invalidIDs[action.ID] {
		return schemas.ValidationResult{Valid: false, Errors: []string{"scripted rejection"}}
	}
	return schemas.ValidationResult{Valid: true}
}

func (m *scriptedModel) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups++
	return nil
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// -- Builders --

func testAgentConfig() config.AgentConfig {
	cfg := config.NewDefaultConfig().Agent
	cfg.ID = "agent-test"
	cfg.Settings.IterationDelay = 0
	return cfg
}

// newTestAgent wires a base past Initialize so the loop can be exercised
// without real operators or HTTP.
func newTestAgent(cfg config.AgentConfig, s *stubSurface, m model.Model) *base {
	b := newBase(cfg, zap.NewNop(), s)
	b.model = m
	b.initialized = true
	return b
}

func clickAt(x, y float64) schemas.Action {
	return schemas.Action{ID: uuid.NewString(), Type: schemas.ActionClick, X: &x, Y: &y}
}

func planOf(confidence float64, actions ...schemas.Action) *schemas.ModelResponse {
	return &schemas.ModelResponse{Actions: actions, Confidence: confidence}
}

func metaCount(results []schemas.ActionResult, marker string) int {
	n := 0
	for _, r := range results {
		if r.Marker == marker {
			n++
		}
	}
	return n
}

// -- Lifecycle guards --

func TestExecuteRequiresInitialize(t *testing.T) {
	b := newBase(testAgentConfig(), zap.NewNop(), &stubSurface{})

	_, err := b.Execute(context.Background(), "do something", schemas.ExecutionContext{})

	var agentErr *schemas.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, schemas.ErrCodeNotInitialized, agentErr.Code)
}

func TestExecuteRejectsConcurrentRun(t *testing.T) {
	b := newTestAgent(testAgentConfig(), &stubSurface{}, &scriptedModel{})
	b.mu.Lock()
	b.status = schemas.StatusRunning
	b.mu.Unlock()

	_, err := b.Execute(context.Background(), "second run", schemas.ExecutionContext{})

	var agentErr *schemas.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, schemas.ErrCodeInvalidStatus, agentErr.Code)
}

func TestStopIsIdempotent(t *testing.T) {
	surf := &stubSurface{}
	mod := &scriptedModel{}
	b := newTestAgent(testAgentConfig(), surf, mod)

	require.NoError(t, b.Stop())
	assert.Equal(t, schemas.StatusStopped, b.Status())

	require.NoError(t, b.Stop())
	assert.Equal(t, schemas.StatusStopped, b.Status())

	assert.Equal(t, 1, surf.closes, "surface closed exactly once")
	assert.Equal(t, 1, mod.cleanups, "model cleaned exactly once")
}

func TestExecuteAfterStop(t *testing.T) {
	b := newTestAgent(testAgentConfig(), &stubSurface{}, &scriptedModel{})
	require.NoError(t, b.Stop())

	_, err := b.Execute(context.Background(), "too late", schemas.ExecutionContext{})

	var agentErr *schemas.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, schemas.ErrCodeInvalidStatus, agentErr.Code)
}

func TestPauseResumeTransitions(t *testing.T) {
	b := newTestAgent(testAgentConfig(), &stubSurface{}, &scriptedModel{})

	assert.Error(t, b.Pause(), "cannot pause while idle")
	assert.Error(t, b.Resume(), "cannot resume while idle")

	b.mu.Lock()
	b.status = schemas.StatusRunning
	b.mu.Unlock()

	require.NoError(t, b.Pause())
	assert.Equal(t, schemas.StatusPaused, b.Status())
	assert.Error(t, b.Pause(), "cannot pause twice")

	require.NoError(t, b.Resume())
	assert.Equal(t, schemas.StatusRunning, b.Status())
}

func TestCheckpointBlocksWhilePaused(t *testing.T) {
	b := newTestAgent(testAgentConfig(), &stubSurface{}, &scriptedModel{})
	b.mu.Lock()
	b.status = schemas.StatusRunning
	b.mu.Unlock()
	require.NoError(t, b.Pause())

	released := make(chan error, 1)
	go func() { released <- b.checkpoint(context.Background()) }()

	select {
	case <-released:
		t.Fatal("checkpoint returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, b.Resume())
	select {
	case err := <-released:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("checkpoint never released after resume")
	}
}

func TestCheckpointReportsStop(t *testing.T) {
	b := newTestAgent(testAgentConfig(), &stubSurface{}, &scriptedModel{})
	require.NoError(t, b.Stop())
	assert.ErrorIs(t, b.checkpoint(context.Background()), errStopRequested)
}

// -- Loop semantics --

func TestLoopStopsAtMaxIterations(t *testing.T) {
	cfg := testAgentConfig()
	cfg.Settings.MaxIterations = 3

	mod := &scriptedModel{script: func(call int, _ schemas.ExecutionContext) (*schemas.ModelResponse, error) {
		return planOf(0.9, clickAt(10, 20)), nil
	}}
	surf := &stubSurface{}
	b := newTestAgent(cfg, surf, mod)

	results, err := b.Execute(context.Background(), "click forever", schemas.ExecutionContext{})
	require.NoError(t, err)

	assert.Equal(t, 3, mod.callCount(), "one analysis per iteration, never a fourth")
	assert.Len(t, surf.dispatched, 3)
	require.Len(t, results, 4, "three action results plus the marker")
	assert.Equal(t, 1, metaCount(results, schemas.MetaResultMaxIterations))
	assert.Equal(t, schemas.MetaResultMaxIterations, results[3].Marker, "marker comes last")
	assert.Empty(t, results[3].ActionID, "the cap marker references no emitted action")

	sess, ok := b.Sessions().Current()
	require.True(t, ok)
	assert.Equal(t, schemas.SessionCompleted, sess.Status)
	assert.Equal(t, schemas.StatusIdle, b.Status())
}

func TestFinishedActionEndsTheRun(t *testing.T) {
	finished := schemas.Action{ID: uuid.NewString(), Type: schemas.ActionFinished, Reasoning: "all done"}
	mod := &scriptedModel{script: func(call int, _ schemas.ExecutionContext) (*schemas.ModelResponse, error) {
		return planOf(0.95, finished), nil
	}}
	surf := &stubSurface{}
	b := newTestAgent(testAgentConfig(), surf, mod)

	results, err := b.Execute(context.Background(), "finish immediately", schemas.ExecutionContext{})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, schemas.MetaResultFinished, results[0].Marker)
	assert.Equal(t, finished.ID, results[0].ActionID, "the result references the emitted action")
	assert.True(t, results[0].Success)
	assert.Equal(t, "all done", results[0].Data)
	assert.Empty(t, surf.dispatched, "terminal actions are never dispatched")

	sess, ok := b.Sessions().Current()
	require.True(t, ok)
	assert.Equal(t, schemas.SessionCompleted, sess.Status)
}

func TestCallUserRequestsInput(t *testing.T) {
	mod := &scriptedModel{script: func(call int, _ schemas.ExecutionContext) (*schemas.ModelResponse, error) {
		return planOf(0.9, schemas.Action{
			ID: uuid.NewString(), Type: schemas.ActionCallUser, Reasoning: "need the 2FA code"}), nil
	}}
	b := newTestAgent(testAgentConfig(), &stubSurface{}, mod)

	ch, unsubscribe := b.Events().Subscribe(events.EventUserInputRequested)
	defer unsubscribe()

	results, err := b.Execute(context.Background(), "log me in", schemas.ExecutionContext{})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, schemas.MetaResultUserInput, results[0].Marker)
	assert.NotEmpty(t, results[0].ActionID)

	select {
	case ev := <-ch:
		assert.Equal(t, events.EventUserInputRequested, ev.Type)
		require.NotNil(t, ev.Action)
		assert.Equal(t, schemas.ActionCallUser, ev.Action.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no user-input-requested event")
	}
}

func TestEmptyPlanIsACleanStop(t *testing.T) {
	mod := &scriptedModel{script: func(call int, _ schemas.ExecutionContext) (*schemas.ModelResponse, error) {
		return planOf(0.8), nil
	}}
	b := newTestAgent(testAgentConfig(), &stubSurface{}, mod)

	results, err := b.Execute(context.Background(), "nothing to do", schemas.ExecutionContext{})
	require.NoError(t, err)
	assert.Empty(t, results)

	sess, ok := b.Sessions().Current()
	require.True(t, ok)
	assert.Equal(t, schemas.SessionCompleted, sess.Status)
	assert.Equal(t, schemas.StatusIdle, b.Status())
}

// A rejected action is skipped and recorded as failed, the remaining plan
// still runs, and the skipped action never enters the history the model
// sees next.
func TestInvalidActionIsSkippedNotFatal(t *testing.T) {
	bad := clickAt(1, 2)
	good := clickAt(3, 4)

	var historySeen []schemas.Action
	mod := &scriptedModel{
		invalidIDs: map[string]bool{bad.ID: true},
		script: func(call int, execCtx schemas.ExecutionContext) (*schemas.ModelResponse, error) {
			switch call {
			case 1:
				return planOf(0.9, bad, good), nil
			default:
				historySeen = append([]schemas.Action(nil), execCtx.PreviousActions...)
				return planOf(0.9, schemas.Action{ID: uuid.NewString(), Type: schemas.ActionFinished}), nil
			}
		},
	}
	surf := &stubSurface{}
	b := newTestAgent(testAgentConfig(), surf, mod)

	results, err := b.Execute(context.Background(), "two-step plan", schemas.ExecutionContext{})
	require.NoError(t, err)

	require.Len(t, results, 3, "failed validation, good action, finished marker")
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "validation failed")
	assert.True(t, results[1].Success)

	assert.Equal(t, []string{good.ID}, surf.dispatchedIDs(), "only the valid action reached the surface")
	require.Len(t, historySeen, 1, "skipped action stays out of the history")
	assert.Equal(t, good.ID, historySeen[0].ID)
}

func TestAnalyzeFailureAttachesPartialResults(t *testing.T) {
	boom := errors.New("provider on fire")
	mod := &scriptedModel{script: func(call int, _ schemas.ExecutionContext) (*schemas.ModelResponse, error) {
		if call == 1 {
			return planOf(0.9, clickAt(5, 5)), nil
		}
		return nil, boom
	}}
	b := newTestAgent(testAgentConfig(), &stubSurface{}, mod)

	results, err := b.Execute(context.Background(), "fail on round two", schemas.ExecutionContext{})

	var agentErr *schemas.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.ErrorIs(t, err, boom)
	require.Len(t, agentErr.PartialResults, 1)
	assert.True(t, agentErr.PartialResults[0].Success)
	assert.Len(t, results, 1, "partial results also returned directly")

	assert.Equal(t, schemas.StatusError, b.Status())
	sess, ok := b.Sessions().Current()
	require.True(t, ok)
	assert.Equal(t, schemas.SessionError, sess.Status)
}

func TestCaptureFailureAbortsTheRun(t *testing.T) {
	surf := &stubSurface{captureErr: errors.New("no display")}
	mod := &scriptedModel{script: func(call int, _ schemas.ExecutionContext) (*schemas.ModelResponse, error) {
		t.Error("analyze must not run without a screenshot")
		return nil, nil
	}}
	b := newTestAgent(testAgentConfig(), surf, mod)

	_, err := b.Execute(context.Background(), "look around", schemas.ExecutionContext{})
	require.Error(t, err)
	assert.Equal(t, schemas.StatusError, b.Status())
}

func TestStopDuringRunEndsWithoutError(t *testing.T) {
	surf := &stubSurface{}
	b := newTestAgent(testAgentConfig(), surf, nil)

	mod := &scriptedModel{script: func(call int, _ schemas.ExecutionContext) (*schemas.ModelResponse, error) {
		if call == 2 {
			// Stop lands between iterations; the next checkpoint sees it.
			require.NoError(t, b.Stop())
		}
		return planOf(0.9, clickAt(1, 1)), nil
	}}
	b.model = mod

	results, err := b.Execute(context.Background(), "stop me", schemas.ExecutionContext{})
	require.NoError(t, err, "a requested stop is not a failure")
	assert.NotEmpty(t, results)
	assert.Equal(t, schemas.StatusStopped, b.Status())

	sess, ok := b.Sessions().Current()
	require.True(t, ok)
	assert.Equal(t, schemas.SessionCancelled, sess.Status)
}

// Stop landing while perception is in flight must never panic the loop: the
// iteration in progress finishes against its own model snapshot and the next
// checkpoint ends the run cleanly.
func TestStopWhileCaptureInFlight(t *testing.T) {
	entered := make(chan struct{})
	gate := make(chan struct{})
	surf := &stubSurface{captureEntered: entered, captureGate: gate}
	mod := &scriptedModel{script: func(call int, _ schemas.ExecutionContext) (*schemas.ModelResponse, error) {
		return planOf(0.9, clickAt(1, 1)), nil
	}}
	b := newTestAgent(testAgentConfig(), surf, mod)

	type outcome struct {
		results []schemas.ActionResult
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := b.Execute(context.Background(), "stop mid-capture", schemas.ExecutionContext{})
		done <- outcome{res, err}
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("capture never started")
	}
	require.NoError(t, b.Stop())
	close(gate)

	select {
	case out := <-done:
		assert.NoError(t, out.err, "a requested stop is not a failure")
	case <-time.After(2 * time.Second):
		t.Fatal("execute never returned")
	}

	assert.Equal(t, schemas.StatusStopped, b.Status())
	sess, ok := b.Sessions().Current()
	require.True(t, ok)
	assert.Equal(t, schemas.SessionCancelled, sess.Status)
}

// Failures caused by Stop's own teardown (operators closing under the loop)
// must not drag the agent out of STOPPED into ERROR.
func TestPostStopFailureKeepsStatusStopped(t *testing.T) {
	entered := make(chan struct{})
	gate := make(chan struct{})
	surf := &stubSurface{
		captureEntered: entered,
		captureGate:    gate,
		captureErr:     errors.New("operators already closed"),
	}
	mod := &scriptedModel{script: func(call int, _ schemas.ExecutionContext) (*schemas.ModelResponse, error) {
		return planOf(0.9, clickAt(1, 1)), nil
	}}
	b := newTestAgent(testAgentConfig(), surf, mod)

	execErr := make(chan error, 1)
	go func() {
		_, err := b.Execute(context.Background(), "fail after stop", schemas.ExecutionContext{})
		execErr <- err
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("capture never started")
	}
	require.NoError(t, b.Stop())
	close(gate)

	select {
	case err := <-execErr:
		assert.NoError(t, err, "teardown fallout is not a run failure")
	case <-time.After(2 * time.Second):
		t.Fatal("execute never returned")
	}

	assert.Equal(t, schemas.StatusStopped, b.Status())
	sess, ok := b.Sessions().Current()
	require.True(t, ok)
	assert.Equal(t, schemas.SessionCancelled, sess.Status)
}

func TestContextCancellationMarksSessionCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mod := &scriptedModel{script: func(call int, _ schemas.ExecutionContext) (*schemas.ModelResponse, error) {
		cancel()
		return nil, ctx.Err()
	}}
	b := newTestAgent(testAgentConfig(), &stubSurface{}, mod)

	_, err := b.Execute(ctx, "cancel mid-analysis", schemas.ExecutionContext{})
	require.Error(t, err)

	sess, ok := b.Sessions().Current()
	require.True(t, ok)
	assert.Equal(t, schemas.SessionCancelled, sess.Status)
}

// -- Continuation policy --

func TestShouldContinue(t *testing.T) {
	cfg := testAgentConfig()
	cfg.Settings.SuccessRateWindow = 5
	cfg.Settings.MinSuccessRate = 0.35
	cfg.Settings.MinConfidence = 0.2
	cfg.Settings.FailureStreakThreshold = 4
	b := newTestAgent(cfg, &stubSurface{}, &scriptedModel{})

	mk := func(outcomes ...bool) []schemas.ActionResult {
		results := make([]schemas.ActionResult, 0, len(outcomes))
		for _, ok := range outcomes {
			results = append(results, schemas.ActionResult{ActionID: uuid.NewString(), Success: ok})
		}
		return results
	}

	t.Run("confidence below the floor stops", func(t *testing.T) {
		assert.False(t, b.shouldContinue(nil, &schemas.ModelResponse{Confidence: 0.1}))
	})

	t.Run("fewer results than the window continues", func(t *testing.T) {
		assert.True(t, b.shouldContinue(mk(false, false, false), &schemas.ModelResponse{Confidence: 0.9}))
	})

	t.Run("low trailing success rate stops", func(t *testing.T) {
		assert.False(t, b.shouldContinue(mk(true, false, false, false, true, false, false),
			&schemas.ModelResponse{Confidence: 0.9}))
	})

	t.Run("failure streak inside the window stops", func(t *testing.T) {
		// Rate floor of zero so only the streak guard can fire.
		streakCfg := cfg
		streakCfg.Settings.MinSuccessRate = 0
		sb := newTestAgent(streakCfg, &stubSurface{}, &scriptedModel{})

		results := mk(true, false, false, false, false)
		assert.False(t, sb.shouldContinue(results, &schemas.ModelResponse{Confidence: 0.9}))
	})

	t.Run("healthy window continues", func(t *testing.T) {
		assert.True(t, b.shouldContinue(mk(true, true, false, true, true),
			&schemas.ModelResponse{Confidence: 0.9}))
	})

	t.Run("meta markers are invisible to the window", func(t *testing.T) {
		results := mk(true, true, true, true)
		results = append(results, schemas.ActionResult{Marker: schemas.MetaResultMaxIterations, Success: true})
		assert.True(t, b.shouldContinue(results, &schemas.ModelResponse{Confidence: 0.9}),
			"the marker must not complete the window")
	})
}
