package hta

import (
	"context"
	"encoding/json"
	"fmt"

	"forest/internal/logging"
	"forest/internal/types"
)

// Expand generates the missing level slices up to targetDepth, scoped to
// one branch when given. Already-materialized levels are skipped, so the
// operation is idempotent; a failure at any level leaves the tree with
// every level completed so far and the caller may retry.
func (s *Store) Expand(ctx context.Context, project, path string, targetDepth int, branch string) (*Tree, error) {
	if targetDepth < 1 || targetDepth > MaxDepth {
		return nil, types.Validation("target_depth", "target depth must be between 1 and %d, got %d", MaxDepth, targetDepth)
	}

	l := s.treeLock(project, path)
	l.Lock()
	defer l.Unlock()

	tree, err := s.Load(project, path)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, types.Validation("path", "no tree exists for %s/%s; build one first", project, path)
	}
	if branch != "" && tree.FindBranch(branch) == nil {
		return nil, types.Validation("branch", "unknown branch %q", branch)
	}
	if tree.AvailableDepth >= targetDepth {
		return tree, nil
	}

	timer := logging.StartTimer(logging.CategoryHTA, "Store.Expand")
	defer timer.Stop()

	scope := branch
	if scope == "" {
		scope = "all strategic branches"
	}
	parentContext := levelContextString(tree)

	changed := false
	for level := tree.AvailableDepth + 1; level <= targetDepth; level++ {
		if tree.LevelOutput(level) != nil {
			continue
		}
		out, err := s.engine.GenerateLevel(ctx, level, tree.Goal, scope, parentContext)
		if err != nil {
			if changed {
				// Commit the levels that did succeed before surfacing.
				if saveErr := s.Save(project, path, tree); saveErr != nil {
					return nil, saveErr
				}
			}
			return nil, fmt.Errorf("expansion stopped at level %d: %w", level, err)
		}
		if err := tree.SetLevelOutput(level, out); err != nil {
			return nil, err
		}
		changed = true
		logging.HTA("expanded %s/%s to level %d (scope %s)", project, path, level, scope)
	}

	if !changed {
		return tree, nil
	}
	if err := s.Save(project, path, tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// levelContextString flattens the level-1 output into the prompt context
// for deeper generations.
func levelContextString(t *Tree) string {
	if t.Level1GoalContext == nil {
		return t.Context
	}
	data, err := json.Marshal(t.Level1GoalContext)
	if err != nil {
		return t.Context
	}
	return string(data)
}
