// Package hta implements the six-level Hierarchical Task Analysis engine
// and the canonical tree document it produces.
//
// The engine generates each level through a schema-constrained
// intelligence delegation, with a retry ladder and a deterministic
// goal-adaptive fallback when the external completer produces unusable
// output. The store converts engine output into the canonical document,
// enforces the tree invariants on every save, and mirrors goals, branches
// and tasks into the vector index.
package hta

import (
	"fmt"
	"time"
)

// MaxDepth is the deepest level the engine can generate.
const MaxDepth = 6

// TaskStatus tracks a frontier node through its lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// BranchFocus categorizes a strategic branch's learning style.
type BranchFocus string

const (
	FocusTheory   BranchFocus = "theory"
	FocusHandsOn  BranchFocus = "hands-on"
	FocusProject  BranchFocus = "project"
	FocusBalanced BranchFocus = "balanced"
)

// ComplexityLevel buckets a goal's complexity score.
type ComplexityLevel string

const (
	ComplexitySimple   ComplexityLevel = "simple"
	ComplexityModerate ComplexityLevel = "moderate"
	ComplexityComplex  ComplexityLevel = "complex"
	ComplexityExpert   ComplexityLevel = "expert"
)

// Complexity is the goal complexity assessment produced at level 1.
type Complexity struct {
	Score            int             `json:"score"`             // 1..10
	Level            ComplexityLevel `json:"level"`
	RecommendedDepth int             `json:"recommended_depth"` // 2..6
	Factors          []string        `json:"factors,omitempty"`
}

// LevelForScore maps a score into its bucket.
func LevelForScore(score int) ComplexityLevel {
	switch {
	case score <= 3:
		return ComplexitySimple
	case score <= 5:
		return ComplexityModerate
	case score <= 7:
		return ComplexityComplex
	default:
		return ComplexityExpert
	}
}

// Branch is one strategic partition of the goal.
type Branch struct {
	Name                     string      `json:"name"`
	Description              string      `json:"description"`
	Priority                 int         `json:"priority"`
	DomainFocus              string      `json:"domain_focus,omitempty"`
	Rationale                string      `json:"rationale,omitempty"`
	ExpectedOutcomes         []string    `json:"expected_outcomes,omitempty"`
	ContextAdaptations       []string    `json:"context_adaptations,omitempty"`
	ExplorationOpportunities []string    `json:"exploration_opportunities,omitempty"`
	Focus                    BranchFocus `json:"focus,omitempty"`
}

// TaskNode is one frontier (or completed) task. IDs are unique within a
// tree and stable across evolutions.
type TaskNode struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Branch          string     `json:"branch"`
	Difficulty      float64    `json:"difficulty"` // 1..5, half steps
	Duration        int        `json:"duration"`   // minutes
	Priority        int        `json:"priority"`
	Prerequisites   []string   `json:"prerequisites,omitempty"`
	Status          TaskStatus `json:"status"`
	Generated       bool       `json:"generated"`
	LearningOutcome string     `json:"learning_outcome,omitempty"`
	DomainFocus     string     `json:"domain_focus,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// GenerationContext records how a tree was produced, for audit.
type GenerationContext struct {
	Method      string    `json:"method"` // "schema", "fallback", "recovery"
	GeneratedAt time.Time `json:"generated_at"`
	AttemptedAt time.Time `json:"attempted_at,omitempty"`
}

// ArchivedTree preserves a superseded tree after a goal rewrite.
type ArchivedTree struct {
	Goal       string     `json:"goal"`
	ArchivedAt time.Time  `json:"archived_at"`
	Reason     string     `json:"reason"`
	Branches   []Branch   `json:"strategic_branches,omitempty"`
	Frontier   []TaskNode `json:"frontier_nodes,omitempty"`
	Completed  []TaskNode `json:"completed_nodes,omitempty"`
}

// Tree is the canonical HTA document, one per (project, path).
type Tree struct {
	Goal        string    `json:"goal"`
	Context     string    `json:"context,omitempty"`
	Created     time.Time `json:"created"`
	LastUpdated time.Time `json:"last_updated"`

	Complexity Complexity `json:"complexity"`

	StrategicBranches []Branch   `json:"strategic_branches"`
	FrontierNodes     []TaskNode `json:"frontier_nodes"`
	CompletedNodes    []TaskNode `json:"completed_nodes,omitempty"`

	// Raw schema outputs per generated depth; nil until materialized.
	Level1GoalContext        map[string]interface{} `json:"level1_goal_context,omitempty"`
	Level2StrategicBranches  map[string]interface{} `json:"level2_strategic_branches,omitempty"`
	Level3TaskDecomposition  map[string]interface{} `json:"level3_task_decomposition,omitempty"`
	Level4MicroParticles     map[string]interface{} `json:"level4_micro_particles,omitempty"`
	Level5NanoActions        map[string]interface{} `json:"level5_nano_actions,omitempty"`
	Level6ContextPrimitives  map[string]interface{} `json:"level6_context_adaptive_primitives,omitempty"`

	AvailableDepth int  `json:"available_depth"`
	MaxDepth       int  `json:"max_depth"`
	CanExpand      bool `json:"can_expand"`

	DomainBoundaries []string `json:"domain_boundaries,omitempty"`

	GenerationContext GenerationContext `json:"generation_context"`

	ArchivedTrees []ArchivedTree `json:"archived_trees,omitempty"`
}

// levelSlot returns a pointer to the raw output slot for a level.
func (t *Tree) levelSlot(level int) *map[string]interface{} {
	switch level {
	case 1:
		return &t.Level1GoalContext
	case 2:
		return &t.Level2StrategicBranches
	case 3:
		return &t.Level3TaskDecomposition
	case 4:
		return &t.Level4MicroParticles
	case 5:
		return &t.Level5NanoActions
	case 6:
		return &t.Level6ContextPrimitives
	default:
		return nil
	}
}

// LevelOutput returns the raw output for a level, nil if absent.
func (t *Tree) LevelOutput(level int) map[string]interface{} {
	slot := t.levelSlot(level)
	if slot == nil {
		return nil
	}
	return *slot
}

// SetLevelOutput records a level's raw output and recomputes the depth
// bookkeeping.
func (t *Tree) SetLevelOutput(level int, out map[string]interface{}) error {
	slot := t.levelSlot(level)
	if slot == nil {
		return fmt.Errorf("invalid level %d", level)
	}
	*slot = out
	t.RecomputeDepth()
	return nil
}

// RecomputeDepth restores the depth bookkeeping: available_depth is the
// highest level with a non-nil raw output, and can_expand follows from it.
func (t *Tree) RecomputeDepth() {
	depth := 0
	for level := 1; level <= MaxDepth; level++ {
		if t.LevelOutput(level) != nil {
			depth = level
		}
	}
	t.AvailableDepth = depth
	t.MaxDepth = MaxDepth
	t.CanExpand = depth < MaxDepth
}

// FindBranch returns the branch with the given name, nil if absent.
func (t *Tree) FindBranch(name string) *Branch {
	for i := range t.StrategicBranches {
		if t.StrategicBranches[i].Name == name {
			return &t.StrategicBranches[i]
		}
	}
	return nil
}

// FindFrontierTask returns the frontier node with the given id.
func (t *Tree) FindFrontierTask(id string) *TaskNode {
	for i := range t.FrontierNodes {
		if t.FrontierNodes[i].ID == id {
			return &t.FrontierNodes[i]
		}
	}
	return nil
}

// IsCompleted reports whether a task id is in completed_nodes.
func (t *Tree) IsCompleted(id string) bool {
	for i := range t.CompletedNodes {
		if t.CompletedNodes[i].ID == id {
			return true
		}
	}
	return false
}

// PrereqsSatisfied reports whether all of a task's prerequisites are
// completed.
func (t *Tree) PrereqsSatisfied(task *TaskNode) bool {
	for _, pre := range task.Prerequisites {
		if !t.IsCompleted(pre) {
			return false
		}
	}
	return true
}

// EligibleFrontierCount counts frontier tasks that are not completed and
// whose prerequisites are satisfied. The expansion agent refills when
// this drops below its threshold.
func (t *Tree) EligibleFrontierCount() int {
	n := 0
	for i := range t.FrontierNodes {
		task := &t.FrontierNodes[i]
		if task.Status != TaskCompleted && t.PrereqsSatisfied(task) {
			n++
		}
	}
	return n
}
