package myworkflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MarcGrol/funnelbackend/lib/myerrors"
	"github.com/MarcGrol/funnelbackend/lib/mytime"
)

func TestEngine(t *testing.T) {
	c := context.TODO()

	t.Run("Run completes and caches step results", func(t *testing.T) {
		engine := newTestEngine(t, c)

		countA, countB := 0, 0
		steps := []Step{
			{Name: "a", Do: func(c context.Context) (string, error) { countA++; return "out-a", nil }},
			{Name: "b", Do: func(c context.Context) (string, error) { countB++; return "out-b", nil }},
		}

		err := engine.Execute(c, "payment", "run-1", steps)
		assert.NoError(t, err)
		assert.Equal(t, 1, countA)
		assert.Equal(t, 1, countB)

		run, exists, _ := engine.runStore.Get(c, "run-1")
		assert.True(t, exists)
		assert.Equal(t, RunStatusCompleted, run.Status)
		result, done := run.CompletedStep("a")
		assert.True(t, done)
		assert.Equal(t, "out-a", result.Output)
	})

	t.Run("Completed run is not re-executed", func(t *testing.T) {
		engine := newTestEngine(t, c)

		count := 0
		steps := []Step{
			{Name: "a", Do: func(c context.Context) (string, error) { count++; return "", nil }},
		}

		assert.NoError(t, engine.Execute(c, "payment", "run-2", steps))
		assert.NoError(t, engine.Execute(c, "payment", "run-2", steps))
		assert.Equal(t, 1, count)
	})

	t.Run("Transient failure retries but completed steps run at most once", func(t *testing.T) {
		engine := newTestEngine(t, c)

		countA, countB := 0, 0
		steps := []Step{
			{Name: "a", Do: func(c context.Context) (string, error) { countA++; return "", nil }},
			{Name: "b", Do: func(c context.Context) (string, error) {
				countB++
				if countB < 3 {
					return "", myerrors.NewUnavailableError(fmt.Errorf("gateway timeout"))
				}
				return "", nil
			}},
		}

		err := engine.Execute(c, "payment", "run-3", steps)
		assert.NoError(t, err)
		assert.Equal(t, 1, countA)
		assert.Equal(t, 3, countB)
	})

	t.Run("Retries are bounded", func(t *testing.T) {
		engine := newTestEngine(t, c)

		count := 0
		steps := []Step{
			{Name: "a", Do: func(c context.Context) (string, error) {
				count++
				return "", myerrors.NewUnavailableError(fmt.Errorf("still down"))
			}},
		}

		err := engine.Execute(c, "payment", "run-4", steps)
		assert.Error(t, err)
		assert.Equal(t, 3, count)

		run, exists, _ := engine.runStore.Get(c, "run-4")
		assert.True(t, exists)
		assert.Equal(t, RunStatusFailed, run.Status)
		assert.Contains(t, run.LastError, "still down")
	})

	t.Run("Terminal failure does not retry", func(t *testing.T) {
		engine := newTestEngine(t, c)

		count := 0
		steps := []Step{
			{Name: "a", Do: func(c context.Context) (string, error) {
				count++
				return "", myerrors.NewNotFoundError(fmt.Errorf("session not found"))
			}},
		}

		err := engine.Execute(c, "payment", "run-5", steps)
		assert.Error(t, err)
		assert.Equal(t, 404, myerrors.GetHttpStatus(err))
		assert.Equal(t, 1, count)
	})

	t.Run("Failed run is not re-executed", func(t *testing.T) {
		engine := newTestEngine(t, c)

		count := 0
		steps := []Step{
			{Name: "a", Do: func(c context.Context) (string, error) {
				count++
				return "", myerrors.NewNotFoundError(fmt.Errorf("session not found"))
			}},
		}

		err := engine.Execute(c, "payment", "run-7", steps)
		assert.Error(t, err)

		err = engine.Execute(c, "payment", "run-7", steps)
		assert.Error(t, err)
		assert.Equal(t, 409, myerrors.GetHttpStatus(err))
		assert.Equal(t, 1, count)
	})

	t.Run("Retried step reads the cached output of an earlier step", func(t *testing.T) {
		engine := newTestEngine(t, c)

		attempts := 0
		var seenOutput string
		steps := []Step{
			{Name: "a", Do: func(c context.Context) (string, error) { return "out-a", nil }},
			{Name: "b", Do: func(c context.Context) (string, error) {
				attempts++
				if attempts == 1 {
					return "", myerrors.NewUnavailableError(fmt.Errorf("store timeout"))
				}
				seenOutput, _ = StepOutput(c, "a")
				return "", nil
			}},
		}

		err := engine.Execute(c, "payment", "run-8", steps)
		assert.NoError(t, err)
		assert.Equal(t, 2, attempts)
		assert.Equal(t, "out-a", seenOutput)
	})

	t.Run("Unknown workflow is rejected", func(t *testing.T) {
		engine := newTestEngine(t, c)

		err := engine.Execute(c, "does-not-exist", "run-6", []Step{})
		assert.Error(t, err)
	})
}

func newTestEngine(t *testing.T, c context.Context) *Engine {
	t.Helper()

	engine, cleanup, err := NewEngine(c, mytime.RealNower{}, Spec{
		Name:           "payment",
		MaxAttempts:    3,
		MaxConcurrency: 50,
	})
	assert.NoError(t, err)
	t.Cleanup(cleanup)

	return engine
}
