package hta

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"forest/internal/embedding"
	"forest/internal/kvstore"
	"forest/internal/logging"
	"forest/internal/types"
	"forest/internal/vector"
)

const treeFile = "hta.json"

// DefaultPath is the tree path used when a project has exactly one
// learning path.
const DefaultPath = "paths/general"

// Store materializes engine output into the canonical tree document,
// persists it through the KV store and mirrors goal, branches and
// frontier tasks into the vector index.
type Store struct {
	kv     *kvstore.Store
	index  vector.Index
	embed  embedding.Engine
	engine *Engine

	// OnTreeUpdated, when set, fires after every committed save. The
	// expansion agent hooks this for immediate refill checks.
	OnTreeUpdated func(project, path string)

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore wires the store to its collaborators. index and embed may be
// nil-free but unavailable at runtime; mirroring degrades to logging.
func NewStore(kv *kvstore.Store, index vector.Index, embed embedding.Engine, engine *Engine) *Store {
	return &Store{
		kv:     kv,
		index:  index,
		embed:  embed,
		engine: engine,
		locks:  make(map[string]*sync.Mutex),
	}
}

// treeLock returns the per-(project, path) mutation lock. At most one
// mutating operation per tree proceeds at a time; readers never take it.
func (s *Store) treeLock(project, path string) *sync.Mutex {
	key := project + "\x00" + path
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Load reads the tree for a (project, path). Returns nil without error
// when no tree exists yet.
func (s *Store) Load(project, path string) (*Tree, error) {
	var tree Tree
	found, err := s.kv.Load(project, path, treeFile, &tree)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &tree, nil
}

// Save validates and persists a tree, then fires the update hook. The
// caller must hold the tree's mutation lock.
func (s *Store) Save(project, path string, tree *Tree) error {
	if err := ValidateTree(tree); err != nil {
		return err
	}
	tree.LastUpdated = time.Now().UTC()
	if err := s.kv.Save(project, path, treeFile, tree); err != nil {
		return err
	}
	if s.OnTreeUpdated != nil {
		s.OnTreeUpdated(project, path)
	}
	return nil
}

// SaveLocked acquires the tree's mutation lock around Save, for callers
// that mutate a loaded copy in one step.
func (s *Store) SaveLocked(project, path string, tree *Tree) error {
	l := s.treeLock(project, path)
	l.Lock()
	defer l.Unlock()
	return s.Save(project, path, tree)
}

// Mutate runs fn on the committed tree under the per-tree lock and
// saves the result. fn returning an error aborts without writing.
func (s *Store) Mutate(project, path string, fn func(*Tree) error) (*Tree, error) {
	l := s.treeLock(project, path)
	l.Lock()
	defer l.Unlock()

	tree, err := s.Load(project, path)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, types.Validation("path", "no tree exists for %s/%s", project, path)
	}
	if err := fn(tree); err != nil {
		return nil, err
	}
	if err := s.Save(project, path, tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// BuildArgs parameterizes a tree build.
type BuildArgs struct {
	Goal        string
	Accumulated string // context snowball from onboarding
	Constraints string
	Hints       ContextHints
}

// BuildResult reports a build outcome. Created is false when an existing
// tree with a live frontier short-circuited the build.
type BuildResult struct {
	Tree    *Tree
	Created bool
	Summary TreeSummary
}

// TreeSummary is the regeneration-free view of an existing tree.
type TreeSummary struct {
	Goal           string   `json:"goal"`
	Complexity     int      `json:"complexity"`
	BranchCount    int      `json:"branch_count"`
	BranchNames    []string `json:"branch_names"`
	FrontierCount  int      `json:"frontier_count"`
	CompletedCount int      `json:"completed_count"`
	AvailableDepth int      `json:"available_depth"`
	CanExpand      bool     `json:"can_expand"`
}

// ExistingTreeSummary summarizes a tree without touching the engine.
func ExistingTreeSummary(t *Tree) TreeSummary {
	names := make([]string, len(t.StrategicBranches))
	for i, b := range t.StrategicBranches {
		names[i] = b.Name
	}
	return TreeSummary{
		Goal:           t.Goal,
		Complexity:     t.Complexity.Score,
		BranchCount:    len(t.StrategicBranches),
		BranchNames:    names,
		FrontierCount:  len(t.FrontierNodes),
		CompletedCount: len(t.CompletedNodes),
		AvailableDepth: t.AvailableDepth,
		CanExpand:      t.CanExpand,
	}
}

// Build creates the tree for a (project, path) if one does not already
// exist with a live frontier. Idempotent: repeat calls return the
// existing tree unchanged.
func (s *Store) Build(ctx context.Context, project, path string, args BuildArgs) (*BuildResult, error) {
	if args.Goal == "" {
		return nil, types.Validation("goal", "goal is required to build a tree")
	}

	l := s.treeLock(project, path)
	l.Lock()
	defer l.Unlock()

	existing, err := s.Load(project, path)
	if err != nil {
		return nil, err
	}
	if existing != nil && len(existing.FrontierNodes) > 0 {
		logging.HTA("build skipped for %s/%s: tree exists with %d frontier tasks",
			project, path, len(existing.FrontierNodes))
		return &BuildResult{Tree: existing, Created: false, Summary: ExistingTreeSummary(existing)}, nil
	}

	timer := logging.StartTimer(logging.CategoryHTA, "Store.Build")
	defer timer.Stop()

	goalCtx, err := s.engine.GenerateGoalContext(ctx, args.Goal, args.Accumulated)
	if err != nil {
		return nil, fmt.Errorf("goal context generation failed: %w", err)
	}

	branchResult := s.engine.GenerateStrategicBranches(ctx, args.Goal, args.Accumulated, args.Constraints)

	now := time.Now().UTC()
	tree := &Tree{
		Goal:              args.Goal,
		Context:           args.Accumulated,
		Created:           now,
		Complexity:        goalCtx.Complexity,
		StrategicBranches: branchResult.Branches,
		DomainBoundaries:  goalCtx.DomainBoundaries,
		GenerationContext: GenerationContext{
			Method:      branchResult.Method,
			GeneratedAt: now,
		},
	}
	if existing != nil {
		// Empty-frontier tree being rebuilt: keep its history.
		tree.Created = existing.Created
		tree.CompletedNodes = existing.CompletedNodes
		tree.ArchivedTrees = existing.ArchivedTrees
	}
	_ = tree.SetLevelOutput(1, goalCtx.Raw)
	_ = tree.SetLevelOutput(2, branchResult.Raw)

	tree.FrontierNodes = MaterializeFrontier(args.Goal, tree.Complexity, tree.StrategicBranches, args.Hints)

	if err := s.Save(project, path, tree); err != nil {
		return nil, err
	}

	s.mirror(ctx, project, tree)

	logging.HTA("built tree for %s/%s: method=%s branches=%d frontier=%d",
		project, path, branchResult.Method, len(tree.StrategicBranches), len(tree.FrontierNodes))
	return &BuildResult{Tree: tree, Created: true, Summary: ExistingTreeSummary(tree)}, nil
}

// EnsureFrontier re-synthesizes a missing frontier from the stored
// branches. Returns true if it changed the tree; the caller saves.
func (s *Store) EnsureFrontier(tree *Tree, hints ContextHints) bool {
	if len(tree.FrontierNodes) > 0 || len(tree.StrategicBranches) == 0 {
		return false
	}
	tree.FrontierNodes = MaterializeFrontier(tree.Goal, tree.Complexity, tree.StrategicBranches, hints)
	tree.GenerationContext.Method = "recovery"
	tree.GenerationContext.GeneratedAt = time.Now().UTC()
	logging.HTA("frontier recovered from branches: %d tasks", len(tree.FrontierNodes))
	return true
}

// Refill tops the frontier back up when completions and prerequisite
// chains leave fewer than min actionable tasks. New tasks continue each
// branch's ramp, spread across branches in priority order; every refill
// task starts prerequisite-free so it counts as eligible at once. A
// frontier already at or above min is left untouched.
func (s *Store) Refill(ctx context.Context, project, path string, min int, hints ContextHints) (*Tree, error) {
	if min <= 0 {
		return nil, types.Validation("min", "refill threshold must be positive")
	}

	l := s.treeLock(project, path)
	l.Lock()
	defer l.Unlock()

	tree, err := s.Load(project, path)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, types.Validation("path", "no tree exists for %s/%s", project, path)
	}
	if len(tree.StrategicBranches) == 0 {
		return nil, types.Conflict("cannot refill a tree with no strategic branches")
	}

	eligible := tree.EligibleFrontierCount()
	if eligible >= min {
		return tree, nil
	}

	branches := append([]Branch(nil), tree.StrategicBranches...)
	sort.Slice(branches, func(i, j int) bool { return branches[i].Priority < branches[j].Priority })

	var added []TaskNode
	for i := 0; eligible+len(added) < min; i++ {
		run := ContinuationTasks(tree, branches[i%len(branches)], 1, hints)
		tree.FrontierNodes = append(tree.FrontierNodes, run...)
		added = append(added, run...)
	}

	if err := s.Save(project, path, tree); err != nil {
		return nil, err
	}
	for i := range added {
		s.MirrorTask(ctx, project, &added[i])
	}
	logging.HTA("refilled frontier for %s/%s: +%d tasks (%d eligible)",
		project, path, len(added), tree.EligibleFrontierCount())
	return tree, nil
}

// mirror pushes the goal, each branch and each frontier task into the
// vector index. Embeddings run concurrently; vector trouble never fails
// the build.
func (s *Store) mirror(ctx context.Context, project string, tree *Tree) {
	if s.index == nil || s.embed == nil {
		return
	}
	if err := s.index.Ping(); err != nil {
		logging.HTA("vector index unavailable, skipping mirror: %v", err)
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	g.Go(func() error {
		s.upsertText(ctx, vector.GoalID(project), tree.Goal, map[string]string{
			"kind":    "goal",
			"project": project,
		})
		return nil
	})
	for _, b := range tree.StrategicBranches {
		b := b
		g.Go(func() error {
			s.upsertText(ctx, vector.BranchID(project, b.Name), b.Name+". "+b.Description, map[string]string{
				"kind":    "branch",
				"project": project,
				"branch":  b.Name,
			})
			return nil
		})
	}
	for _, t := range tree.FrontierNodes {
		t := t
		g.Go(func() error {
			s.MirrorTask(ctx, project, &t)
			return nil
		})
	}
	_ = g.Wait()
}

// MirrorTask upserts one task's vector. Exported for the completion and
// evolution paths, which mutate single tasks.
func (s *Store) MirrorTask(ctx context.Context, project string, task *TaskNode) {
	if s.index == nil || s.embed == nil {
		return
	}
	s.upsertText(ctx, vector.TaskID(project, task.ID), task.Title+". "+task.Description, map[string]string{
		"kind":    "task",
		"project": project,
		"branch":  task.Branch,
		"task_id": task.ID,
		"status":  string(task.Status),
	})
}

func (s *Store) upsertText(ctx context.Context, id, text string, meta map[string]string) {
	vec, err := s.embed.Embed(ctx, text)
	if err != nil {
		logging.HTA("embed failed for %s: %v", id, err)
		return
	}
	if err := s.index.Upsert(id, vec, meta); err != nil {
		logging.HTA("vector upsert failed for %s: %v", id, err)
	}
}
