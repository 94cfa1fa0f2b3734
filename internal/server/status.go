package server

import (
	"forest/internal/evolution"
	"forest/internal/hta"
	"forest/internal/project"
)

// BranchProgress is the per-branch completion view in status payloads.
type BranchProgress struct {
	Branch    string  `json:"branch"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

func branchProgress(tree *hta.Tree) []BranchProgress {
	type counts struct{ completed, total int }
	byBranch := map[string]*counts{}
	order := make([]string, 0, len(tree.StrategicBranches))
	for _, b := range tree.StrategicBranches {
		byBranch[b.Name] = &counts{}
		order = append(order, b.Name)
	}
	tally := func(nodes []hta.TaskNode, done bool) {
		for _, n := range nodes {
			c, ok := byBranch[n.Branch]
			if !ok {
				// Completed work from a since-pruned branch.
				c = &counts{}
				byBranch[n.Branch] = c
				order = append(order, n.Branch)
			}
			c.total++
			if done {
				c.completed++
			}
		}
	}
	tally(tree.FrontierNodes, false)
	tally(tree.CompletedNodes, true)

	progress := make([]BranchProgress, 0, len(order))
	for _, name := range order {
		c := byBranch[name]
		p := BranchProgress{Branch: name, Completed: c.completed, Total: c.total}
		if c.total > 0 {
			p.Percent = 100 * float64(c.completed) / float64(c.total)
		}
		progress = append(progress, p)
	}
	return progress
}

// aggregateStatus is the current_status_forest payload: registry record,
// onboarding stage, tree summary and learning history in one view.
func (s *Server) aggregateStatus(rec *project.Record) (interface{}, error) {
	out := map[string]interface{}{
		"project_id":    rec.ID,
		"goal":          rec.Goal,
		"last_accessed": rec.LastAccessed,
	}

	if st, err := s.deps.Onboarding.Load(rec.ID); err != nil {
		return nil, err
	} else if st != nil {
		out["onboarding_stage"] = st.CurrentStage
	}

	tree, err := s.deps.Trees.Load(rec.ID, hta.DefaultPath)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		out["tree"] = nil
		return out, nil
	}
	out["tree"] = hta.ExistingTreeSummary(tree)
	out["branch_progress"] = branchProgress(tree)
	out["eligible_tasks"] = tree.EligibleFrontierCount()

	history, err := evolution.LoadHistory(s.deps.KV, rec.ID, hta.DefaultPath)
	if err != nil {
		return nil, err
	}
	out["learning_events"] = len(history.Events)
	breakthroughs := 0
	for _, ev := range history.Events {
		if ev.BreakthroughLevel >= 4 {
			breakthroughs++
		}
	}
	out["breakthroughs"] = breakthroughs
	return out, nil
}
