package hta

import (
	"forest/internal/types"
)

// ValidateTree enforces the structural invariants before a tree may be
// persisted. Violations surface as Conflict errors.
//
//   - every frontier node's branch names an existing strategic branch
//   - every prerequisite id exists in frontier or completed nodes
//   - no task id appears in both frontier and completed nodes
//   - available_depth matches the highest materialized level
func ValidateTree(t *Tree) error {
	branchNames := make(map[string]bool, len(t.StrategicBranches))
	for _, b := range t.StrategicBranches {
		if b.Name == "" {
			return types.Conflict("strategic branch with empty name")
		}
		if branchNames[b.Name] {
			return types.Conflict("duplicate strategic branch name %q", b.Name)
		}
		branchNames[b.Name] = true
	}

	frontier := make(map[string]bool, len(t.FrontierNodes))
	for _, n := range t.FrontierNodes {
		if n.ID == "" {
			return types.Conflict("frontier node with empty id")
		}
		if frontier[n.ID] {
			return types.Conflict("duplicate frontier task id %q", n.ID)
		}
		frontier[n.ID] = true
		if !branchNames[n.Branch] {
			return types.Conflict("task %q references unknown branch %q", n.ID, n.Branch)
		}
	}

	completed := make(map[string]bool, len(t.CompletedNodes))
	for _, n := range t.CompletedNodes {
		if completed[n.ID] {
			return types.Conflict("duplicate completed task id %q", n.ID)
		}
		completed[n.ID] = true
		if frontier[n.ID] {
			return types.Conflict("task %q present in both frontier and completed nodes", n.ID)
		}
	}

	for _, n := range t.FrontierNodes {
		for _, pre := range n.Prerequisites {
			if !frontier[pre] && !completed[pre] {
				return types.Conflict("task %q prerequisite %q does not exist in this tree", n.ID, pre)
			}
		}
	}

	expectedDepth := 0
	for level := 1; level <= MaxDepth; level++ {
		if t.LevelOutput(level) != nil {
			expectedDepth = level
		}
	}
	if t.AvailableDepth != expectedDepth {
		return types.Conflict("available_depth %d does not match materialized levels (expected %d)", t.AvailableDepth, expectedDepth)
	}
	if t.AvailableDepth < MaxDepth && !t.CanExpand {
		return types.Conflict("can_expand must be true while available_depth %d < %d", t.AvailableDepth, MaxDepth)
	}

	return nil
}
