package tasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest/internal/hta"
)

func pipelineTree() *hta.Tree {
	t := &hta.Tree{
		Goal: "learn woodworking",
		StrategicBranches: []hta.Branch{
			{Name: "Joinery", Priority: 1},
			{Name: "Finishing", Priority: 2},
			{Name: "Sharpening", Priority: 3},
		},
	}
	for i, branch := range []string{"Joinery", "Finishing", "Sharpening"} {
		for j := 0; j < 4; j++ {
			t.FrontierNodes = append(t.FrontierNodes, hta.TaskNode{
				ID:         branchTaskID(branch, j),
				Branch:     branch,
				Difficulty: 2,
				Duration:   25,
				Priority:   (i+1)*100 + j*10,
				Status:     hta.TaskPending,
			})
		}
	}
	t.RecomputeDepth()
	return t
}

func branchTaskID(branch string, i int) string {
	return branch + "_" + string(rune('0'+i))
}

func TestNextPipelineCoversBranchesFirst(t *testing.T) {
	p := NewPresenter(NewSelector(nil, nil), nil, nil, 5)
	tree := pipelineTree()

	pipeline := p.NextPipeline(context.Background(), "proj", tree, Criteria{EnergyLevel: 2, TimeAvailable: 30})
	require.Len(t, pipeline, 5)

	branches := map[string]bool{}
	for _, task := range pipeline[:3] {
		branches[task.Branch] = true
	}
	assert.Len(t, branches, 3, "the first picks cover every branch before repeating one")

	seen := map[string]bool{}
	for _, task := range pipeline {
		assert.False(t, seen[task.ID], "no duplicates in the window")
		seen[task.ID] = true
		assert.NotEqual(t, hta.TaskCompleted, task.Status)
	}
}

func TestNextPipelineRespectsWindow(t *testing.T) {
	p := NewPresenter(NewSelector(nil, nil), nil, nil, 2)
	pipeline := p.NextPipeline(context.Background(), "proj", pipelineTree(), Criteria{EnergyLevel: 2, TimeAvailable: 30})
	assert.Len(t, pipeline, 2)
}

func TestNextPipelineEmptyFrontier(t *testing.T) {
	p := NewPresenter(NewSelector(nil, nil), nil, nil, 5)
	pipeline := p.NextPipeline(context.Background(), "proj", &hta.Tree{}, Criteria{EnergyLevel: 2, TimeAvailable: 30})
	assert.Nil(t, pipeline)
}

func TestNextPipelineDoesNotMutateStatus(t *testing.T) {
	p := NewPresenter(NewSelector(nil, nil), nil, nil, 5)
	tree := pipelineTree()
	p.NextPipeline(context.Background(), "proj", tree, Criteria{EnergyLevel: 2, TimeAvailable: 30})
	for _, task := range tree.FrontierNodes {
		assert.Equal(t, hta.TaskPending, task.Status)
	}
}

type stubEvolver struct {
	calls    int
	triggers map[string]interface{}
}

func (s *stubEvolver) EvolveForPipeline(_ context.Context, _, _ string, triggers map[string]interface{}) error {
	s.calls++
	s.triggers = triggers
	return nil
}

type stubLoader struct {
	tree *hta.Tree
}

func (s *stubLoader) Load(_, _ string) (*hta.Tree, error) { return s.tree, nil }

func TestEvolvePipelineRunsEvolverThenReloads(t *testing.T) {
	evolver := &stubEvolver{}
	loader := &stubLoader{tree: pipelineTree()}
	p := NewPresenter(NewSelector(nil, nil), evolver, loader, 5)

	pipeline, err := p.EvolvePipeline(context.Background(), "proj", hta.DefaultPath,
		Criteria{EnergyLevel: 2, TimeAvailable: 30}, map[string]interface{}{"reason": "stale"})
	require.NoError(t, err)
	assert.Equal(t, 1, evolver.calls)
	assert.Equal(t, "stale", evolver.triggers["reason"])
	assert.Len(t, pipeline, 5)
}
