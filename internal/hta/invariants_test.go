package hta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest/internal/types"
)

func validTree() *Tree {
	t := &Tree{
		Goal: "goal",
		StrategicBranches: []Branch{
			{Name: "Alpha", Priority: 1},
			{Name: "Beta", Priority: 2},
		},
		FrontierNodes: []TaskNode{
			{ID: "alpha_01", Branch: "Alpha", Status: TaskPending},
			{ID: "alpha_02", Branch: "Alpha", Status: TaskPending, Prerequisites: []string{"alpha_01"}},
			{ID: "beta_01", Branch: "Beta", Status: TaskPending, Prerequisites: []string{"done_01"}},
		},
		CompletedNodes: []TaskNode{
			{ID: "done_01", Branch: "Beta", Status: TaskCompleted},
		},
	}
	t.RecomputeDepth()
	return t
}

func TestValidateTreeAccepts(t *testing.T) {
	require.NoError(t, ValidateTree(validTree()))
}

func TestValidateTreeRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Tree)
	}{
		{"unknown branch", func(tr *Tree) {
			tr.FrontierNodes[0].Branch = "Ghost"
		}},
		{"missing prerequisite", func(tr *Tree) {
			tr.FrontierNodes[1].Prerequisites = []string{"no_such_task"}
		}},
		{"id in both frontier and completed", func(tr *Tree) {
			tr.CompletedNodes = append(tr.CompletedNodes, TaskNode{ID: "alpha_01", Branch: "Alpha"})
		}},
		{"duplicate frontier id", func(tr *Tree) {
			tr.FrontierNodes = append(tr.FrontierNodes, tr.FrontierNodes[0])
		}},
		{"duplicate branch name", func(tr *Tree) {
			tr.StrategicBranches = append(tr.StrategicBranches, Branch{Name: "Alpha"})
		}},
		{"stale available_depth", func(tr *Tree) {
			tr.Level3TaskDecomposition = map[string]interface{}{"tasks": []interface{}{}}
		}},
		{"can_expand stuck false", func(tr *Tree) {
			tr.CanExpand = false
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := validTree()
			tc.mutate(tr)
			err := ValidateTree(tr)
			require.Error(t, err)
			assert.True(t, types.HasTag(err, types.TagConflict))
		})
	}
}

func TestEligibleFrontierCount(t *testing.T) {
	tr := validTree()
	// alpha_01 has no prereqs, alpha_02 waits on alpha_01, beta_01's
	// prereq is already completed.
	assert.Equal(t, 2, tr.EligibleFrontierCount())

	tr.FrontierNodes[0].Status = TaskCompleted
	assert.Equal(t, 1, tr.EligibleFrontierCount(), "completed frontier entries stop counting")
}
