package evolution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"forest/internal/embedding"
	"forest/internal/hta"
	"forest/internal/kvstore"
	"forest/internal/logging"
	"forest/internal/types"
	"forest/internal/vector"
)

// Kind tags an applied evolution.
type Kind string

const (
	KindConvergenceRefinement Kind = "convergence_refinement"
	KindUncertaintyExpansion  Kind = "uncertainty_expansion"
	KindBranchPruning         Kind = "branch_pruning"
	KindDiscoveryEnhancement  Kind = "discovery_enhancement"
	KindGoalRewrite           Kind = "goal_rewrite"
	KindNone                  Kind = "none"
)

// DiscoveryBranch is the reserved branch uncertainty expansion fills.
const DiscoveryBranch = "Discovery"

// Evolution describes one applied strategy change.
type Evolution struct {
	Kind           Kind      `json:"kind"`
	Detail         string    `json:"detail"`
	PrunedBranches []string  `json:"pruned_branches,omitempty"`
	AddedBranch    string    `json:"added_branch,omitempty"`
	AddedTasks     []string  `json:"added_tasks,omitempty"`
	NewGoal        string    `json:"new_goal,omitempty"`
	AppliedAt      time.Time `json:"applied_at"`
}

// Completion carries the arguments of a task completion.
type Completion struct {
	BlockID          string
	Outcome          string
	Learned          string
	EnergyLevel      int
	DifficultyRating int
	Breakthrough     bool
}

// CompletionResult reports what a completion did to the tree.
type CompletionResult struct {
	Task              hta.TaskNode   `json:"task"`
	Event             LearningEvent  `json:"event"`
	BreakthroughLevel int            `json:"breakthrough_level"`
	Escalated         bool           `json:"escalated"`
	Evolution         *Evolution     `json:"evolution,omitempty"`
	NextEligible      int            `json:"next_eligible"`
}

// BranchSource generates branches for discovery enhancement.
type BranchSource interface {
	GenerateStrategicBranches(ctx context.Context, goal, accumulated, constraints string) *hta.BranchResult
}

// TreeRebuilder rebuilds a tree after a goal rewrite.
type TreeRebuilder interface {
	Build(ctx context.Context, project, path string, args hta.BuildArgs) (*hta.BuildResult, error)
}

// Evolver is safe for concurrent use; all tree mutations go through the
// store's per-tree lock.
type Evolver struct {
	kv       *kvstore.Store
	store    *hta.Store
	index    vector.Index
	embed    embedding.Engine
	branches BranchSource
	builder  TreeRebuilder
}

// NewEvolver wires the evolver. index/embed may be nil (no mirroring,
// no centroid checks); branches may be nil (discovery hints degrade to
// a deterministic branch).
func NewEvolver(kv *kvstore.Store, store *hta.Store, index vector.Index, embed embedding.Engine, branches BranchSource, builder TreeRebuilder) *Evolver {
	return &Evolver{kv: kv, store: store, index: index, embed: embed, branches: branches, builder: builder}
}

// CompleteTask retires a frontier task, appends the learning event,
// mirrors it, and applies any triggered evolution. Completions for the
// same project are serialized by the per-tree lock.
func (e *Evolver) CompleteTask(ctx context.Context, project, path string, c Completion) (*CompletionResult, error) {
	if c.BlockID == "" {
		return nil, types.Validation("block_id", "block_id is required")
	}
	if c.Outcome == "" {
		return nil, types.Validation("outcome", "outcome is required")
	}
	if c.EnergyLevel < 1 || c.EnergyLevel > 5 {
		return nil, types.Validation("energy_level", "energy_level must be 1..5, got %d", c.EnergyLevel)
	}

	level := BreakthroughLevel(c.Outcome, c.Learned, c.DifficultyRating, c.Breakthrough)
	result := &CompletionResult{BreakthroughLevel: level}

	_, err := e.store.Mutate(project, path, func(tree *hta.Tree) error {
		task := tree.FindFrontierTask(c.BlockID)
		if task == nil {
			if tree.IsCompleted(c.BlockID) {
				return types.Conflict("task %q is already completed", c.BlockID)
			}
			return types.Validation("block_id", "no frontier task with id %q", c.BlockID)
		}

		// Move the node from frontier to completed.
		completed := *task
		completed.Status = hta.TaskCompleted
		now := time.Now().UTC()
		completed.CompletedAt = &now

		kept := tree.FrontierNodes[:0]
		for _, n := range tree.FrontierNodes {
			if n.ID != c.BlockID {
				kept = append(kept, n)
			}
		}
		tree.FrontierNodes = kept
		tree.CompletedNodes = append(tree.CompletedNodes, completed)
		result.Task = completed

		if level >= 4 {
			result.Escalated = true
			e.escalate(tree, &completed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := LearningEvent{
		ID:                uuid.NewString(),
		TaskID:            result.Task.ID,
		Branch:            result.Task.Branch,
		KnowledgeDomain:   domainOf(&result.Task),
		Outcome:           c.Outcome,
		Learned:           c.Learned,
		EnergyLevel:       c.EnergyLevel,
		DifficultyRating:  c.DifficultyRating,
		Breakthrough:      c.Breakthrough,
		BreakthroughLevel: level,
		Timestamp:         time.Now().UTC(),
	}
	history, err := loadHistory(e.kv, project, path)
	if err != nil {
		return nil, err
	}
	history.Events = append(history.Events, event)
	if err := saveHistory(e.kv, project, path, history); err != nil {
		return nil, err
	}
	result.Event = event

	e.mirrorEvent(ctx, project, &event)
	e.store.MirrorTask(ctx, project, &result.Task)

	// Evolutions triggered by completion apply before the next
	// selection for this project.
	if evo, err := e.autoEvolve(ctx, project, path, history); err != nil {
		logging.Evolution("auto evolution failed after %s: %v", c.BlockID, err)
	} else if evo != nil && evo.Kind != KindNone {
		result.Evolution = evo
	}

	if tree, err := e.store.Load(project, path); err == nil && tree != nil {
		result.NextEligible = tree.EligibleFrontierCount()
	}
	logging.Evolution("completed %s (breakthrough level %d, escalated=%v)", c.BlockID, level, result.Escalated)
	return result, nil
}

func domainOf(task *hta.TaskNode) string {
	if task.DomainFocus != "" {
		return task.DomainFocus
	}
	return task.Branch
}

// escalate raises difficulties near a breakthrough and prepends an
// advanced task to its branch. Caller holds the tree lock.
func (e *Evolver) escalate(tree *hta.Tree, completed *hta.TaskNode) {
	for i := range tree.FrontierNodes {
		n := &tree.FrontierNodes[i]
		if n.Branch == completed.Branch && n.Status == hta.TaskPending {
			n.Difficulty++
			if n.Difficulty > 5 {
				n.Difficulty = 5
			}
		}
	}

	branchPriority := 1
	if b := tree.FindBranch(completed.Branch); b != nil {
		branchPriority = b.Priority
	}
	priority := branchPriority*100 - 10
	if priority < 0 {
		priority = 0
	}
	advanced := hta.TaskNode{
		ID:          fmt.Sprintf("advanced_%s", uuid.NewString()[:8]),
		Title:       fmt.Sprintf("Advanced %s challenge", completed.Branch),
		Description: fmt.Sprintf("Push past the breakthrough from %q with a harder variation.", completed.Title),
		Branch:      completed.Branch,
		Difficulty:  minFloat(completed.Difficulty+1, 5),
		Duration:    completed.Duration,
		Priority:    priority,
		Status:      hta.TaskPending,
		Generated:   true,
		DomainFocus: completed.DomainFocus,
	}
	tree.FrontierNodes = append([]hta.TaskNode{advanced}, tree.FrontierNodes...)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func (e *Evolver) mirrorEvent(ctx context.Context, project string, event *LearningEvent) {
	if e.index == nil || e.embed == nil {
		return
	}
	text := event.Outcome
	if event.Learned != "" {
		text += ". " + event.Learned
	}
	vec, err := e.embed.Embed(ctx, text)
	if err != nil {
		logging.Evolution("event embed failed: %v", err)
		return
	}
	meta := map[string]string{
		"kind":    "learning",
		"project": project,
		"branch":  event.Branch,
		"task_id": event.TaskID,
	}
	if err := e.index.Upsert(vector.LearningID(project, event.ID), vec, meta); err != nil {
		logging.Evolution("event upsert failed: %v", err)
	}
	if event.BreakthroughLevel >= 4 {
		bmeta := map[string]string{"kind": "breakthrough", "project": project, "branch": event.Branch}
		if err := e.index.Upsert(vector.BreakthroughID(project, event.ID), vec, bmeta); err != nil {
			logging.Evolution("breakthrough upsert failed: %v", err)
		}
	}
}
