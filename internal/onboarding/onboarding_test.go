package onboarding

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest/internal/hta"
	"forest/internal/kvstore"
	"forest/internal/types"
)

type stubProjects struct {
	createFunc func(goal string) (string, error)
}

func (s *stubProjects) Create(goal string) (string, error) {
	if s.createFunc != nil {
		return s.createFunc(goal)
	}
	return "proj-1", nil
}

type stubAnalyzer struct {
	generateFunc func(ctx context.Context, goal, accumulated string) (*hta.GoalContext, error)
}

func (s *stubAnalyzer) GenerateGoalContext(ctx context.Context, goal, accumulated string) (*hta.GoalContext, error) {
	if s.generateFunc != nil {
		return s.generateFunc(ctx, goal, accumulated)
	}
	return &hta.GoalContext{
		Complexity: hta.Complexity{Score: 5, Level: hta.ComplexityModerate, RecommendedDepth: 4},
	}, nil
}

type stubBuilder struct {
	buildFunc func(ctx context.Context, project, path string, args hta.BuildArgs) (*hta.BuildResult, error)
	lastArgs  hta.BuildArgs
}

func (s *stubBuilder) Build(ctx context.Context, project, path string, args hta.BuildArgs) (*hta.BuildResult, error) {
	s.lastArgs = args
	if s.buildFunc != nil {
		return s.buildFunc(ctx, project, path, args)
	}
	tree := &hta.Tree{
		Goal:              args.Goal,
		StrategicBranches: []hta.Branch{{Name: "Fundamentals", Priority: 1}},
		FrontierNodes:     []hta.TaskNode{{ID: "fundamentals_01", Branch: "Fundamentals", Status: hta.TaskPending}},
	}
	return &hta.BuildResult{Tree: tree, Created: true}, nil
}

func newTestManager(t *testing.T) (*Manager, *stubBuilder) {
	t.Helper()
	kv, err := kvstore.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	builder := &stubBuilder{}
	return NewManager(kv, &stubProjects{}, &stubAnalyzer{}, builder), builder
}

func captureAndGather(t *testing.T, m *Manager) string {
	t.Helper()
	project, progress, err := m.CaptureGoal("master portrait photography")
	require.NoError(t, err)
	require.Equal(t, StageContextGathering, progress.Stage)

	progress, err = m.Continue(context.Background(), project, map[string]interface{}{
		"background":     "hobbyist with a mirrorless camera",
		"motivation":     "shoot a friend's wedding next year",
		"learning_style": "hands-on",
	})
	require.NoError(t, err)
	require.Equal(t, StageQuestionnaire, progress.Stage)
	return project
}

func answerAllQuestions(t *testing.T, m *Manager, project string) {
	t.Helper()
	progress, err := m.Continue(context.Background(), project, map[string]interface{}{"action": "start"})
	require.NoError(t, err)
	for progress.Stage == StageQuestionnaire {
		require.NotNil(t, progress.Question, "in-progress questionnaire must surface a question")
		progress, err = m.Continue(context.Background(), project, map[string]interface{}{
			"answer": "answer to " + progress.Question.ID,
		})
		require.NoError(t, err)
	}
	require.Equal(t, StageComplexityAnalysis, progress.Stage)
}

func TestCaptureGoalValidation(t *testing.T) {
	m, _ := newTestManager(t)
	_, _, err := m.CaptureGoal("   ")
	require.Error(t, err)
	assert.True(t, types.HasTag(err, types.TagValidation))
}

func TestFullJourney(t *testing.T) {
	m, builder := newTestManager(t)
	project := captureAndGather(t, m)
	answerAllQuestions(t, m, project)

	// Complexity analysis.
	progress, err := m.Continue(context.Background(), project, nil)
	require.NoError(t, err)
	assert.Equal(t, StageHTAGeneration, progress.Stage)

	// Tree generation.
	progress, err = m.Continue(context.Background(), project, nil)
	require.NoError(t, err)
	assert.Equal(t, StageStrategicFramework, progress.Stage)
	assert.Contains(t, progress.NextAction, "Fundamentals")

	// The snowball fed into the build carries goal, context and answers.
	assert.Contains(t, builder.lastArgs.Accumulated, "master portrait photography")
	assert.Contains(t, builder.lastArgs.Accumulated, "mirrorless")
	assert.Contains(t, builder.lastArgs.Accumulated, "answer to success")
	assert.Equal(t, "hands-on", builder.lastArgs.Hints.LearningStyle)

	progress, err = m.Complete(project, true)
	require.NoError(t, err)
	assert.Equal(t, StageCompleted, progress.Stage)

	st, err := m.Load(project)
	require.NoError(t, err)
	for _, stage := range []Stage{StageGoalCapture, StageContextGathering, StageQuestionnaire,
		StageComplexityAnalysis, StageHTAGeneration, StageStrategicFramework} {
		assert.Equal(t, GatePassed, st.gate(stage), "gate %s", stage)
	}
	require.NotNil(t, st.CompletedAt)
}

func TestContextGatheringAccumulates(t *testing.T) {
	m, _ := newTestManager(t)
	project, _, err := m.CaptureGoal("learn jazz piano")
	require.NoError(t, err)

	progress, err := m.Continue(context.Background(), project, map[string]interface{}{
		"background": "played classical as a kid",
	})
	require.NoError(t, err)
	assert.Equal(t, StageContextGathering, progress.Stage)
	assert.Equal(t, GateBlocked, progress.Gate)
	assert.NotEmpty(t, progress.Remediation)

	// Earlier fields persist; two more are enough.
	progress, err = m.Continue(context.Background(), project, map[string]interface{}{
		"motivation": "want to jam with friends",
		"timeline":   "a year",
	})
	require.NoError(t, err)
	assert.Equal(t, StageQuestionnaire, progress.Stage)
}

func TestQuestionnaireRequiresStart(t *testing.T) {
	m, _ := newTestManager(t)
	project := captureAndGather(t, m)

	progress, err := m.Continue(context.Background(), project, map[string]interface{}{"answer": "eager"})
	require.NoError(t, err)
	assert.Equal(t, GateBlocked, progress.Gate)
	assert.Contains(t, progress.Remediation, "action:start")
}

func TestComplexityFailureBlocksAndRetries(t *testing.T) {
	kv, err := kvstore.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	analyzer := &stubAnalyzer{
		generateFunc: func(context.Context, string, string) (*hta.GoalContext, error) {
			return nil, fmt.Errorf("completer offline")
		},
	}
	m := NewManager(kv, &stubProjects{}, analyzer, &stubBuilder{})
	project := captureAndGather(t, m)
	answerAllQuestions(t, m, project)

	progress, err := m.Continue(context.Background(), project, nil)
	require.NoError(t, err)
	assert.Equal(t, StageComplexityAnalysis, progress.Stage, "blocked gate does not advance")
	assert.Equal(t, GateBlocked, progress.Gate)

	// Recovery: the analyzer comes back and the same stage passes.
	analyzer.generateFunc = nil
	progress, err = m.Continue(context.Background(), project, nil)
	require.NoError(t, err)
	assert.Equal(t, StageHTAGeneration, progress.Stage)
}

func TestEmptyTreeBlocksGeneration(t *testing.T) {
	kv, err := kvstore.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	builder := &stubBuilder{
		buildFunc: func(_ context.Context, _, _ string, args hta.BuildArgs) (*hta.BuildResult, error) {
			return &hta.BuildResult{Tree: &hta.Tree{Goal: args.Goal}}, nil
		},
	}
	m := NewManager(kv, &stubProjects{}, &stubAnalyzer{}, builder)
	project := captureAndGather(t, m)
	answerAllQuestions(t, m, project)

	_, err = m.Continue(context.Background(), project, nil)
	require.NoError(t, err)

	progress, err := m.Continue(context.Background(), project, nil)
	require.NoError(t, err)
	assert.Equal(t, StageHTAGeneration, progress.Stage)
	assert.Equal(t, GateBlocked, progress.Gate)
}

func TestCompleteRequiresOpenGatesClosed(t *testing.T) {
	m, _ := newTestManager(t)
	project := captureAndGather(t, m)

	_, err := m.Complete(project, true)
	require.Error(t, err)
	assert.True(t, types.HasTag(err, types.TagGateBlocked))

	_, err = m.Complete(project, false)
	require.Error(t, err)
	assert.True(t, types.HasTag(err, types.TagValidation))
}

func TestContinueBeforeStart(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Continue(context.Background(), "ghost", nil)
	require.Error(t, err)
	assert.True(t, types.HasTag(err, types.TagGateBlocked))
}
