package hta

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest/internal/bridge"
)

// scriptedIntel replays canned responses in call order, recording the
// parameters of each delegation.
type scriptedIntel struct {
	t      *testing.T
	steps  []scriptStep
	params []bridge.Params
	calls  int
}

func newScriptedIntel(t *testing.T, steps []scriptStep) *scriptedIntel {
	return &scriptedIntel{t: t, steps: steps}
}

type scriptStep struct {
	data map[string]interface{}
	err  error
}

func (s *scriptedIntel) Delegate(p bridge.Params) *bridge.Envelope {
	s.params = append(s.params, p)
	return &bridge.Envelope{RequestID: fmt.Sprintf("req-%d", len(s.params))}
}

func (s *scriptedIntel) Await(_ context.Context, _ string, _ time.Duration) (map[string]interface{}, error) {
	require.Less(s.t, s.calls, len(s.steps), "unexpected extra delegation")
	step := s.steps[s.calls]
	s.calls++
	return step.data, step.err
}

type nopDispatch struct{}

func (nopDispatch) Dispatch(*bridge.Envelope) {}

func validBranchRaw() map[string]interface{} {
	return map[string]interface{}{
		"strategic_branches": []interface{}{
			map[string]interface{}{"name": "Portrait Lighting", "description": "light", "priority": float64(1)},
			map[string]interface{}{"name": "Composition Studies", "description": "frame", "priority": float64(2)},
			map[string]interface{}{"name": "Post-Processing Craft", "description": "edit", "priority": float64(3)},
		},
	}
}

func TestGenerateGoalContextMergesDelegatedAnalysis(t *testing.T) {
	intel := newScriptedIntel(t, []scriptStep{
		{data: map[string]interface{}{
			"goal_analysis": map[string]interface{}{
				"goal_complexity":    float64(7),
				"complexity_factors": []interface{}{"manual exposure", "studio lighting"},
			},
			"learning_approach": map[string]interface{}{"recommended_strategy": "project-first"},
			"domain_boundaries": []interface{}{"photography", "lighting"},
		}},
	})
	engine := NewEngine(intel, nopDispatch{}, time.Second)

	gc, err := engine.GenerateGoalContext(context.Background(), "master portrait photography", "")
	require.NoError(t, err)
	assert.Equal(t, 7, gc.Complexity.Score)
	assert.Equal(t, ComplexityComplex, gc.Complexity.Level)
	assert.Equal(t, []string{"manual exposure", "studio lighting"}, gc.Complexity.Factors)
	assert.Equal(t, "project-first", gc.Strategy)
	assert.Equal(t, []string{"photography", "lighting"}, gc.DomainBoundaries)
}

func TestGenerateGoalContextFailureIsFatal(t *testing.T) {
	intel := newScriptedIntel(t, []scriptStep{
		{err: fmt.Errorf("completer unavailable")},
	})
	engine := NewEngine(intel, nopDispatch{}, time.Second)

	_, err := engine.GenerateGoalContext(context.Background(), "master portrait photography", "")
	require.Error(t, err)
}

func TestGenerateStrategicBranchesSchemaPath(t *testing.T) {
	intel := newScriptedIntel(t, []scriptStep{{data: validBranchRaw()}})
	engine := NewEngine(intel, nopDispatch{}, time.Second)

	result := engine.GenerateStrategicBranches(context.Background(), "master portrait photography", "", "")
	assert.Equal(t, "schema", result.Method)
	require.Len(t, result.Branches, 3)
	assert.Equal(t, "Portrait Lighting", result.Branches[0].Name)
	assert.Equal(t, 1, intel.calls, "no retry on first success")
}

func TestGenerateStrategicBranchesRetryPath(t *testing.T) {
	generic := map[string]interface{}{
		"strategic_branches": []interface{}{
			map[string]interface{}{"name": "Foundation"},
			map[string]interface{}{"name": "Research"},
			map[string]interface{}{"name": "Implementation"},
		},
	}
	intel := newScriptedIntel(t, []scriptStep{{data: generic}, {data: validBranchRaw()}})
	engine := NewEngine(intel, nopDispatch{}, time.Second)

	result := engine.GenerateStrategicBranches(context.Background(), "master portrait photography", "", "")
	assert.Equal(t, "retry", result.Method)
	require.Len(t, result.Branches, 3)
	assert.Equal(t, 2, intel.calls)
}

func TestGenerateStrategicBranchesFallbackNeverFails(t *testing.T) {
	intel := newScriptedIntel(t, []scriptStep{
		{err: fmt.Errorf("timeout")},
		{err: fmt.Errorf("timeout")},
	})
	engine := NewEngine(intel, nopDispatch{}, time.Second)

	result := engine.GenerateStrategicBranches(context.Background(), "master portrait photography", "", "")
	assert.Equal(t, "fallback", result.Method)
	require.GreaterOrEqual(t, len(result.Branches), 3)
	assert.Equal(t, "goal_adaptive_fallback", result.Raw["generation"])

	// The fallback is deterministic for the same goal.
	intel2 := newScriptedIntel(t, []scriptStep{
		{err: fmt.Errorf("timeout")},
		{err: fmt.Errorf("timeout")},
	})
	result2 := NewEngine(intel2, nopDispatch{}, time.Second).
		GenerateStrategicBranches(context.Background(), "master portrait photography", "", "")
	assert.Equal(t, result.Branches, result2.Branches)
}

func TestGenerateLevelRejectsOutOfRange(t *testing.T) {
	engine := NewEngine(newScriptedIntel(t, nil), nopDispatch{}, time.Second)

	_, err := engine.GenerateLevel(context.Background(), 2, "goal", "scope", "")
	assert.Error(t, err)
	_, err = engine.GenerateLevel(context.Background(), 7, "goal", "scope", "")
	assert.Error(t, err)
}

func TestDelegationTemperatureDropsWithDepth(t *testing.T) {
	intel := newScriptedIntel(t, []scriptStep{
		{data: map[string]interface{}{"tasks": []interface{}{}}},
		{data: map[string]interface{}{"nano_actions": []interface{}{}}},
	})
	engine := NewEngine(intel, nopDispatch{}, time.Second)

	_, err := engine.GenerateLevel(context.Background(), 3, "goal", "scope", "")
	require.NoError(t, err)
	_, err = engine.GenerateLevel(context.Background(), 5, "goal", "scope", "")
	require.NoError(t, err)

	require.Len(t, intel.params, 2)
	assert.Greater(t, intel.params[0].Temperature, intel.params[1].Temperature)
}
