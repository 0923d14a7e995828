// File: internal/executor/executor_test.go
package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
	"github.com/goelayush89/robin-ai-sub000/internal/config"
	"github.com/goelayush89/robin-ai-sub000/internal/operator"
)

// stubOperator handles a fixed set of action types and records dispatches.
type stubOperator struct {
	opName     string
	types      []schemas.ActionType
	executed   []schemas.ActionType
	shot       *schemas.Screenshot
	captureErr error
	cleanupErr error
	cleanups   int
}

func (s *stubOperator) Initialize(ctx context.Context, cfg config.OperatorConfig) error { return nil }

func (s *stubOperator) Name() string { return s.opName }

func (s *stubOperator) Capabilities() []operator.Capability {
	caps := make([]operator.Capability, 0, len(s.types))
	for _, t := range s.types {
		caps = append(caps, operator.Capability{Type: t})
	}
	return caps
}

func (s *stubOperator) Supports(t schemas.ActionType) bool {
	return operator.SupportsType(s.Capabilities(), t)
}

func (s *stubOperator) Execute(ctx context.Context, action schemas.Action) *schemas.ActionResult {
	s.executed = append(s.executed, action.Type)
	return operator.OKResult(action, s.opName)
}

func (s *stubOperator) Capture(ctx context.Context) (*schemas.Screenshot, error) {
	if s.captureErr != nil {
		return nil, s.captureErr
	}
	return s.shot, nil
}

func (s *stubOperator) Cleanup() error {
	s.cleanups++
	return s.cleanupErr
}

func TestRoutingTable(t *testing.T) {
	first := &stubOperator{opName: "first", types: []schemas.ActionType{schemas.ActionClick, schemas.ActionScroll}}
	second := &stubOperator{opName: "second", types: []schemas.ActionType{schemas.ActionClick, schemas.ActionNavigate}}
	e := New(zap.NewNop(), first, second)

	t.Run("earlier operator wins a shared capability", func(t *testing.T) {
		op, ok := e.OperatorFor(schemas.ActionClick)
		require.True(t, ok)
		assert.Equal(t, "first", op.Name())
	})

	t.Run("unshared capabilities route to their owner", func(t *testing.T) {
		op, ok := e.OperatorFor(schemas.ActionNavigate)
		require.True(t, ok)
		assert.Equal(t, "second", op.Name())
	})

	t.Run("dispatch follows the table", func(t *testing.T) {
		res := e.Execute(context.Background(), schemas.Action{ID: "a1", Type: schemas.ActionClick})
		assert.True(t, res.Success)
		assert.Equal(t, "first", res.Data)
		assert.Empty(t, second.executed)
	})
}

// Every known action type must either be routed or fail inside the result.
// A silent success for an unroutable type would let the agent loop believe
// work happened when nothing did.
func TestEveryActionTypeIsRoutedOrRejected(t *testing.T) {
	e := New(zap.NewNop(), &stubOperator{opName: "clicker",
		types: []schemas.ActionType{schemas.ActionClick}})

	for _, at := range schemas.AllActionTypes {
		t.Run(string(at), func(t *testing.T) {
			res := e.Execute(context.Background(), schemas.Action{ID: "a-" + string(at), Type: at})
			require.NotNil(t, res)

			switch {
			case at.IsTerminal():
				assert.True(t, res.Success)
			case at == schemas.ActionClick:
				assert.True(t, res.Success)
			default:
				assert.False(t, res.Success)
				assert.Contains(t, res.Error, string(schemas.ErrCodeUnsupportedAction))
			}
		})
	}
}

func TestTerminalActionsAreNoOps(t *testing.T) {
	op := &stubOperator{opName: "only", types: []schemas.ActionType{schemas.ActionClick}}
	e := New(zap.NewNop(), op)

	res := e.Execute(context.Background(), schemas.Action{
		ID: "fin", Type: schemas.ActionFinished, Text: "task complete"})
	assert.True(t, res.Success)
	assert.Equal(t, "task complete", res.Data)
	assert.Empty(t, op.executed, "terminal actions never reach an operator")

	assert.True(t, e.Supports(schemas.ActionFinished))
	assert.True(t, e.Supports(schemas.ActionCallUser))
}

func TestExecuteStampsDuration(t *testing.T) {
	e := New(zap.NewNop(), &stubOperator{opName: "op", types: []schemas.ActionType{schemas.ActionClick}})

	res := e.Execute(context.Background(), schemas.Action{Type: schemas.ActionClick})
	assert.GreaterOrEqual(t, res.Duration, time.Duration(0))
}

func TestCaptureFallsBackInOrder(t *testing.T) {
	shot := &schemas.Screenshot{ID: "s1", Format: schemas.FormatPNG}

	t.Run("first failure falls through to the next operator", func(t *testing.T) {
		blind := &stubOperator{opName: "blind", captureErr: errors.New("cannot see")}
		sighted := &stubOperator{opName: "sighted", shot: shot}
		e := New(zap.NewNop(), blind, sighted)

		got, err := e.Capture(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "s1", got.ID)
	})

	t.Run("all failures surface the last error", func(t *testing.T) {
		lastErr := errors.New("second failure")
		e := New(zap.NewNop(),
			&stubOperator{opName: "a", captureErr: errors.New("first failure")},
			&stubOperator{opName: "b", captureErr: lastErr})

		_, err := e.Capture(context.Background())
		assert.ErrorIs(t, err, lastErr)
	})

	t.Run("no operators at all", func(t *testing.T) {
		e := New(zap.NewNop())
		_, err := e.Capture(context.Background())

		var opErr *schemas.OperatorError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, schemas.ErrCodeCaptureUnsupported, opErr.Code)
	})
}

func TestCleanupVisitsEveryOperator(t *testing.T) {
	failing := &stubOperator{opName: "failing", cleanupErr: errors.New("leaked handle")}
	healthy := &stubOperator{opName: "healthy"}
	e := New(zap.NewNop(), failing, healthy)

	err := e.Cleanup()
	assert.ErrorIs(t, err, failing.cleanupErr)
	assert.Equal(t, 1, failing.cleanups)
	assert.Equal(t, 1, healthy.cleanups, "cleanup continues past a failure")
}
