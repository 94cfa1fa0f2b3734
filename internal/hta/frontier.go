package hta

import (
	"fmt"
	"math"
	"strings"
)

// Frontier materialization: after level 2 is accepted, each branch is
// populated with a progressive ramp of tasks. Every formula here is a
// pure integer/float pipeline so the properties are directly testable.

// ContextHints carries the slices of accumulated context that influence
// task sizing.
type ContextHints struct {
	Urgency       string // "high" shortens durations
	LearningStyle string // "hands-on" lengthens, "reading" shortens
}

var progressiveTitles = [...]string{
	"Introduction to",
	"Exploring",
	"Understanding",
	"Mastering",
	"Advanced",
}

// TaskCountForBranch is the number of tasks materialized per branch:
// clamp(floor(score*3), 15, 25).
func TaskCountForBranch(complexityScore int) int {
	n := complexityScore * 3
	if n < 15 {
		return 15
	}
	if n > 25 {
		return 25
	}
	return n
}

// TaskDifficulty starts at floor(score/2) and rises by 0.5 per position,
// clamped to [1, 5].
func TaskDifficulty(complexityScore, index int) float64 {
	d := math.Floor(float64(complexityScore)/2) + 0.5*float64(index)
	if d < 1 {
		return 1
	}
	if d > 5 {
		return 5
	}
	return d
}

// TaskDuration is 25 min scaled by complexity, progression and context
// multipliers, clamped to [10, 60] minutes.
func TaskDuration(complexityScore, index int, hints ContextHints) int {
	minutes := 25.0
	minutes *= 1 + float64(complexityScore-3)*0.2
	minutes *= 1 + float64(index)*0.3
	if hints.Urgency == "high" {
		minutes *= 0.8
	}
	switch hints.LearningStyle {
	case "hands-on":
		minutes *= 1.2
	case "reading":
		minutes *= 0.8
	}

	out := int(math.Round(minutes))
	if out < 10 {
		return 10
	}
	if out > 60 {
		return 60
	}
	return out
}

// TaskPriorityValue orders tasks across the whole frontier: branch
// priority dominates, position refines.
func TaskPriorityValue(branchPriority, index int) int {
	return branchPriority*100 + index*10
}

// ProgressiveTitle picks the ramp template for a position within a
// branch of n tasks.
func ProgressiveTitle(cleanedBranch string, index, total int) string {
	stage := 0
	if total > 0 {
		stage = index * len(progressiveTitles) / total
	}
	if stage >= len(progressiveTitles) {
		stage = len(progressiveTitles) - 1
	}
	return progressiveTitles[stage] + " " + cleanedBranch
}

// taskID builds the stable deterministic id for a materialized task.
func taskID(branchName string, index int) string {
	return fmt.Sprintf("%s_%02d", slug(branchName), index+1)
}

func slug(s string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

// ContinuationTasks extends a branch's ramp past the tasks the tree
// already holds. The first new task carries no prerequisites so it is
// immediately actionable; later ones chain as usual. Ids continue the
// branch's numbering, skipping any the tree already uses.
func ContinuationTasks(tree *Tree, branch Branch, n int, hints ContextHints) []TaskNode {
	used := make(map[string]bool, len(tree.FrontierNodes)+len(tree.CompletedNodes))
	index := 0
	for i := range tree.FrontierNodes {
		used[tree.FrontierNodes[i].ID] = true
		if tree.FrontierNodes[i].Branch == branch.Name {
			index++
		}
	}
	for i := range tree.CompletedNodes {
		used[tree.CompletedNodes[i].ID] = true
		if tree.CompletedNodes[i].Branch == branch.Name {
			index++
		}
	}

	cleaned := CleanBranchName(branch.Name, tree.Goal)
	total := TaskCountForBranch(tree.Complexity.Score)
	var out []TaskNode
	var prevID string
	for len(out) < n {
		id := taskID(branch.Name, index)
		if used[id] {
			index++
			continue
		}
		task := TaskNode{
			ID:              id,
			Title:           ProgressiveTitle(cleaned, index, total),
			Description:     fmt.Sprintf("Continuing %s, building toward: %s", branch.Name, tree.Goal),
			Branch:          branch.Name,
			Difficulty:      TaskDifficulty(tree.Complexity.Score, index),
			Duration:        TaskDuration(tree.Complexity.Score, index, hints),
			Priority:        TaskPriorityValue(branch.Priority, index),
			Status:          TaskPending,
			Generated:       true,
			LearningOutcome: fmt.Sprintf("Progress in %s", branch.Name),
			DomainFocus:     branch.DomainFocus,
		}
		if prevID != "" {
			task.Prerequisites = []string{prevID}
		}
		used[id] = true
		out = append(out, task)
		prevID = id
		index++
	}
	return out
}

// MaterializeFrontier emits the initial frontier for every branch.
// Prerequisites chain each task to its predecessor within the branch.
func MaterializeFrontier(goal string, complexity Complexity, branches []Branch, hints ContextHints) []TaskNode {
	var frontier []TaskNode
	for _, branch := range branches {
		cleaned := CleanBranchName(branch.Name, goal)
		total := TaskCountForBranch(complexity.Score)
		var prevID string
		for i := 0; i < total; i++ {
			id := taskID(branch.Name, i)
			task := TaskNode{
				ID:              id,
				Title:           ProgressiveTitle(cleaned, i, total),
				Description:     fmt.Sprintf("Step %d of %d in %s, building toward: %s", i+1, total, branch.Name, goal),
				Branch:          branch.Name,
				Difficulty:      TaskDifficulty(complexity.Score, i),
				Duration:        TaskDuration(complexity.Score, i, hints),
				Priority:        TaskPriorityValue(branch.Priority, i),
				Status:          TaskPending,
				Generated:       true,
				LearningOutcome: fmt.Sprintf("Progress in %s", branch.Name),
				DomainFocus:     branch.DomainFocus,
			}
			if prevID != "" {
				task.Prerequisites = []string{prevID}
			}
			frontier = append(frontier, task)
			prevID = id
		}
	}
	return frontier
}
