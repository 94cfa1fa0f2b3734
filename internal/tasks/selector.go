// Package tasks implements task selection and pipeline presentation over
// a tree's frontier. Selection is a pure scoring pass over eligible
// tasks, with an optional semantic boost from the vector index; the
// presenter widens a single selection into a branch-diverse window.
package tasks

import (
	"context"
	"math"
	"sort"

	"forest/internal/embedding"
	"forest/internal/hta"
	"forest/internal/logging"
	"forest/internal/vector"
)

// Criteria is what the user tells us about the current session.
type Criteria struct {
	EnergyLevel   int    `json:"energy_level"`   // 1..5
	TimeAvailable int    `json:"time_available"` // minutes
	FocusArea     string `json:"focus_area,omitempty"`
	SemanticQuery string `json:"semantic_query,omitempty"`
}

// ScoredTask pairs a frontier task with its selection score.
type ScoredTask struct {
	Task  hta.TaskNode `json:"task"`
	Score int          `json:"score"`
}

// Selector scores eligible frontier tasks. The vector index and
// embedding engine are optional; without them the semantic boost is
// silently skipped.
type Selector struct {
	index vector.Index
	embed embedding.Engine
}

// NewSelector wires the selector.
func NewSelector(index vector.Index, embed embedding.Engine) *Selector {
	return &Selector{index: index, embed: embed}
}

// Select returns the best eligible task, or nil when none qualifies.
func (s *Selector) Select(ctx context.Context, project string, tree *hta.Tree, c Criteria) *hta.TaskNode {
	ranked := s.Rank(ctx, project, tree, c)
	if len(ranked) == 0 {
		return nil
	}
	task := ranked[0].Task
	return &task
}

// Rank scores every eligible frontier task, best first.
func (s *Selector) Rank(ctx context.Context, project string, tree *hta.Tree, c Criteria) []ScoredTask {
	semantic := s.semanticScores(ctx, project, c.SemanticQuery)

	var ranked []ScoredTask
	for i := range tree.FrontierNodes {
		task := tree.FrontierNodes[i]
		if task.Status == hta.TaskCompleted {
			continue
		}
		if !tree.PrereqsSatisfied(&task) {
			continue
		}
		ranked = append(ranked, ScoredTask{
			Task:  task,
			Score: scoreTask(&task, c) + semantic[task.ID],
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		// More important first: lower priority value outranks.
		if ranked[i].Task.Priority != ranked[j].Task.Priority {
			return ranked[i].Task.Priority < ranked[j].Task.Priority
		}
		return ranked[i].Task.ID < ranked[j].Task.ID
	})
	return ranked
}

// scoreTask applies the integer scoring weights.
func scoreTask(task *hta.TaskNode, c Criteria) int {
	score := energyMatch(task.Difficulty, c.EnergyLevel)

	if c.TimeAvailable >= task.Duration {
		score += 3
	} else {
		score++
	}
	if c.FocusArea != "" && task.Branch == c.FocusArea {
		score += 3
	}
	score += priorityBoost(task.Priority)
	if task.Status == hta.TaskInProgress {
		score += 2
	}
	return score
}

// energyMatch rewards small gaps between task difficulty and session
// energy. The gap stays unrounded so half-step difficulties score
// between the whole-step grades.
func energyMatch(difficulty float64, energy int) int {
	gap := math.Abs(difficulty - float64(energy))
	m := (5 - gap) * 2
	if m < 0 {
		return 0
	}
	return int(math.Round(m))
}

// priorityBoost buckets the composite priority value. Lower values come
// from higher-ranked branches.
func priorityBoost(priority int) int {
	switch {
	case priority < 200:
		return 2
	case priority < 400:
		return 1
	default:
		return 0
	}
}

// semanticScores maps frontier task ids to their rounded similarity
// boost. An unhealthy vector path degrades to no boost.
func (s *Selector) semanticScores(ctx context.Context, project, query string) map[string]int {
	if query == "" || s.index == nil || s.embed == nil {
		return nil
	}
	if err := s.index.Ping(); err != nil {
		logging.Tasks("vector index unhealthy, skipping semantic boost: %v", err)
		return nil
	}
	vec, err := s.embed.Embed(ctx, query)
	if err != nil {
		logging.Tasks("semantic query embed failed: %v", err)
		return nil
	}
	matches, err := s.index.Query(vec, vector.QueryOpts{
		K:      25,
		Filter: map[string]string{"kind": "task", "project": project},
	})
	if err != nil {
		logging.Tasks("semantic query failed: %v", err)
		return nil
	}

	boosts := make(map[string]int, len(matches))
	for _, m := range matches {
		if id := m.Metadata["task_id"]; id != "" {
			boosts[id] = int(math.Round(m.Score * 5))
		}
	}
	return boosts
}
