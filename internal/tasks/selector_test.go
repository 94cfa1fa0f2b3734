package tasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest/internal/embedding"
	"forest/internal/hta"
	"forest/internal/vector"
)

func selectorTree() *hta.Tree {
	t := &hta.Tree{
		Goal: "master portrait photography",
		StrategicBranches: []hta.Branch{
			{Name: "Lighting", Priority: 1},
			{Name: "Composition", Priority: 2},
			{Name: "Editing", Priority: 5},
		},
		FrontierNodes: []hta.TaskNode{
			{ID: "lighting_01", Branch: "Lighting", Difficulty: 2, Duration: 25, Priority: 100, Status: hta.TaskPending},
			{ID: "lighting_02", Branch: "Lighting", Difficulty: 3, Duration: 30, Priority: 110, Status: hta.TaskPending,
				Prerequisites: []string{"lighting_01"}},
			{ID: "composition_01", Branch: "Composition", Difficulty: 2, Duration: 25, Priority: 200, Status: hta.TaskPending},
			{ID: "editing_01", Branch: "Editing", Difficulty: 4, Duration: 45, Priority: 500, Status: hta.TaskPending},
		},
	}
	t.RecomputeDepth()
	return t
}

func TestSelectPicksEligibleBestMatch(t *testing.T) {
	s := NewSelector(nil, nil)
	tree := selectorTree()

	task := s.Select(context.Background(), "proj", tree, Criteria{EnergyLevel: 2, TimeAvailable: 30})
	require.NotNil(t, task)
	assert.Equal(t, "lighting_01", task.ID,
		"lighting_02 is blocked by its prerequisite; lighting_01 wins on energy and priority")
}

func TestSelectExcludesBlockedAndCompleted(t *testing.T) {
	s := NewSelector(nil, nil)
	tree := selectorTree()
	tree.FrontierNodes[0].Status = hta.TaskCompleted

	ranked := s.Rank(context.Background(), "proj", tree, Criteria{EnergyLevel: 3, TimeAvailable: 60})
	for _, st := range ranked {
		assert.NotEqual(t, "lighting_01", st.Task.ID, "completed tasks never rank")
		assert.NotEqual(t, "lighting_02", st.Task.ID, "prerequisite not in completed_nodes")
	}
}

func TestCompletedPrerequisiteUnblocks(t *testing.T) {
	s := NewSelector(nil, nil)
	tree := selectorTree()
	done := tree.FrontierNodes[0]
	done.Status = hta.TaskCompleted
	tree.FrontierNodes = tree.FrontierNodes[1:]
	tree.CompletedNodes = append(tree.CompletedNodes, done)

	ranked := s.Rank(context.Background(), "proj", tree, Criteria{EnergyLevel: 3, TimeAvailable: 60})
	ids := make([]string, len(ranked))
	for i, st := range ranked {
		ids[i] = st.Task.ID
	}
	assert.Contains(t, ids, "lighting_02")
}

func TestFocusAreaAndInProgressBoost(t *testing.T) {
	s := NewSelector(nil, nil)
	tree := selectorTree()

	task := s.Select(context.Background(), "proj", tree, Criteria{
		EnergyLevel: 2, TimeAvailable: 30, FocusArea: "Composition",
	})
	require.NotNil(t, task)
	assert.Equal(t, "composition_01", task.ID, "focus_match outweighs the priority bucket edge")

	tree.FrontierNodes[3].Status = hta.TaskInProgress
	ranked := s.Rank(context.Background(), "proj", tree, Criteria{EnergyLevel: 4, TimeAvailable: 60})
	require.NotEmpty(t, ranked)
	assert.Equal(t, "editing_01", ranked[0].Task.ID,
		"in-progress work with a good energy match resumes first")
}

func TestSelectReturnsNilWhenNothingEligible(t *testing.T) {
	s := NewSelector(nil, nil)
	tree := &hta.Tree{
		StrategicBranches: []hta.Branch{{Name: "Only", Priority: 1}},
		FrontierNodes: []hta.TaskNode{
			{ID: "a", Branch: "Only", Status: hta.TaskCompleted},
		},
	}
	assert.Nil(t, s.Select(context.Background(), "proj", tree, Criteria{EnergyLevel: 3, TimeAvailable: 30}))
}

func TestSemanticBoostFromVectorIndex(t *testing.T) {
	idx := vector.NewMemoryIndex()
	embed := embedding.NewLocalEngine(64)
	s := NewSelector(idx, embed)
	tree := selectorTree()

	for _, task := range tree.FrontierNodes {
		text := map[string]string{
			"lighting_01":    "natural window light portraits",
			"lighting_02":    "studio strobe lighting setups",
			"composition_01": "rule of thirds framing",
			"editing_01":     "color grading skin tones",
		}[task.ID]
		vec, err := embed.Embed(context.Background(), text)
		require.NoError(t, err)
		require.NoError(t, idx.Upsert(vector.TaskID("proj", task.ID), vec, map[string]string{
			"kind": "task", "project": "proj", "task_id": task.ID,
		}))
	}

	plain := s.Rank(context.Background(), "proj", tree, Criteria{EnergyLevel: 2, TimeAvailable: 60})
	boosted := s.Rank(context.Background(), "proj", tree, Criteria{
		EnergyLevel: 2, TimeAvailable: 60, SemanticQuery: "color grading skin tones",
	})

	scoreOf := func(ranked []ScoredTask, id string) int {
		for _, st := range ranked {
			if st.Task.ID == id {
				return st.Score
			}
		}
		t.Fatalf("task %s not ranked", id)
		return 0
	}
	assert.Greater(t, scoreOf(boosted, "editing_01"), scoreOf(plain, "editing_01"),
		"an exact semantic match gains up to +5")
}

func TestEnergyMatchWeights(t *testing.T) {
	assert.Equal(t, 10, energyMatch(3, 3))
	assert.Equal(t, 8, energyMatch(4, 3))
	assert.Equal(t, 9, energyMatch(3.5, 3), "a half-step gap scores between the whole-step grades")
	assert.Equal(t, 9, energyMatch(2.5, 3), "a half step off is not a perfect match")
	assert.Equal(t, 2, energyMatch(5, 1))
	assert.Equal(t, energyMatch(1, 5), energyMatch(5, 1))
}

func TestPriorityBoostBuckets(t *testing.T) {
	assert.Equal(t, 2, priorityBoost(100))
	assert.Equal(t, 1, priorityBoost(250))
	assert.Equal(t, 0, priorityBoost(500))
}
