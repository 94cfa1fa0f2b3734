package evolution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"forest/internal/embedding"
	"forest/internal/hta"
	"forest/internal/logging"
	"forest/internal/types"
)

// recentWindow bounds how far back the automatic detectors look.
const recentWindow = 10

// pruneSimilarityFloor is the centroid similarity below which a
// low-priority branch is pruned during convergence refinement.
const pruneSimilarityFloor = 0.2

// EvolveStrategy applies an explicit hint:
//
//	"prune: <branch>"    remove an irrelevant branch
//	"explore: <topic>"   add a discovery branch for the topic
//	"new goal: <goal>"   archive the tree and rebuild for the new goal
//
// Free-text hints that signal a direction change ("switch to X",
// "focus on X instead of Y") also rewrite the goal. Anything else falls
// through to the automatic detectors over recent learning events.
func (e *Evolver) EvolveStrategy(ctx context.Context, project, path, hint string) (*Evolution, error) {
	trimmed := strings.TrimSpace(hint)
	lower := strings.ToLower(trimmed)

	switch {
	case strings.HasPrefix(lower, "prune:"):
		return e.pruneBranch(project, path, strings.TrimSpace(trimmed[len("prune:"):]))
	case strings.HasPrefix(lower, "explore:"):
		return e.enhanceDiscovery(ctx, project, path, strings.TrimSpace(trimmed[len("explore:"):]))
	case strings.HasPrefix(lower, "new goal:"):
		return e.rewriteGoal(ctx, project, path, strings.TrimSpace(trimmed[len("new goal:"):]))
	}

	if goal, ok := rewriteIntent(trimmed); ok {
		return e.rewriteGoal(ctx, project, path, goal)
	}

	history, err := loadHistory(e.kv, project, path)
	if err != nil {
		return nil, err
	}
	evo, err := e.autoEvolve(ctx, project, path, history)
	if err != nil {
		return nil, err
	}
	if evo == nil {
		evo = &Evolution{Kind: KindNone, Detail: "no evolution trigger detected", AppliedAt: time.Now().UTC()}
	}
	return evo, nil
}

// EvolveForPipeline is the presenter's entry point: run the automatic
// detectors with pipeline focus and swallow a no-trigger outcome.
func (e *Evolver) EvolveForPipeline(ctx context.Context, project, path string, triggers map[string]interface{}) error {
	hint, _ := triggers["hint"].(string)
	_, err := e.EvolveStrategy(ctx, project, path, hint)
	return err
}

// pruneBranch removes one branch and its unfinished tasks. Completed
// nodes keep their branch label for the history.
func (e *Evolver) pruneBranch(project, path, branchName string) (*Evolution, error) {
	if branchName == "" {
		return nil, types.Validation("hint", "prune hint needs a branch name")
	}

	evo := &Evolution{Kind: KindBranchPruning, AppliedAt: time.Now().UTC()}
	_, err := e.store.Mutate(project, path, func(tree *hta.Tree) error {
		if tree.FindBranch(branchName) == nil {
			return types.Validation("hint", "unknown branch %q", branchName)
		}
		if len(tree.StrategicBranches) <= 1 {
			return types.Conflict("cannot prune the last remaining branch")
		}
		removeBranch(tree, branchName)
		evo.PrunedBranches = []string{branchName}
		evo.Detail = fmt.Sprintf("pruned branch %q as irrelevant", branchName)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Evolution("pruned branch %q in %s/%s", branchName, project, path)
	return evo, nil
}

func removeBranch(tree *hta.Tree, branchName string) {
	branches := tree.StrategicBranches[:0]
	for _, b := range tree.StrategicBranches {
		if b.Name != branchName {
			branches = append(branches, b)
		}
	}
	tree.StrategicBranches = branches

	removed := map[string]bool{}
	frontier := tree.FrontierNodes[:0]
	for _, n := range tree.FrontierNodes {
		if n.Branch == branchName {
			removed[n.ID] = true
			continue
		}
		frontier = append(frontier, n)
	}
	tree.FrontierNodes = frontier

	// Drop dangling prerequisite references into the removed branch.
	for i := range tree.FrontierNodes {
		n := &tree.FrontierNodes[i]
		kept := n.Prerequisites[:0]
		for _, pre := range n.Prerequisites {
			if !removed[pre] {
				kept = append(kept, pre)
			}
		}
		n.Prerequisites = kept
	}
}

// enhanceDiscovery adds a branch for an explore topic. The branch comes
// from a fresh level-2 generation over a refined goal prompt when a
// branch source is wired, with a deterministic fallback otherwise.
func (e *Evolver) enhanceDiscovery(ctx context.Context, project, path, topic string) (*Evolution, error) {
	if topic == "" {
		return nil, types.Validation("hint", "explore hint needs a topic")
	}

	evo := &Evolution{Kind: KindDiscoveryEnhancement, AppliedAt: time.Now().UTC()}
	tree, err := e.store.Load(project, path)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, types.Validation("path", "no tree exists for %s/%s", project, path)
	}

	newBranch := e.discoveryBranch(ctx, tree, topic)
	_, err = e.store.Mutate(project, path, func(tree *hta.Tree) error {
		if tree.FindBranch(newBranch.Name) != nil {
			return types.Conflict("branch %q already exists", newBranch.Name)
		}
		newBranch.Priority = len(tree.StrategicBranches) + 1
		tree.StrategicBranches = append(tree.StrategicBranches, newBranch)

		added := discoveryTasks(newBranch, topic)
		tree.FrontierNodes = append(tree.FrontierNodes, added...)
		for _, task := range added {
			evo.AddedTasks = append(evo.AddedTasks, task.ID)
		}
		evo.AddedBranch = newBranch.Name
		evo.Detail = fmt.Sprintf("added branch %q for explore hint %q", newBranch.Name, topic)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Evolution("discovery enhancement: added %q with %d tasks", evo.AddedBranch, len(evo.AddedTasks))
	return evo, nil
}

// discoveryBranch asks the branch source for a topic-refined level 2 and
// takes the first branch the tree does not already have.
func (e *Evolver) discoveryBranch(ctx context.Context, tree *hta.Tree, topic string) hta.Branch {
	if e.branches != nil {
		refined := fmt.Sprintf("%s, focusing on %s", tree.Goal, topic)
		result := e.branches.GenerateStrategicBranches(ctx, refined, tree.Context, "")
		for _, b := range result.Branches {
			if tree.FindBranch(b.Name) == nil {
				b.Focus = hta.FocusBalanced
				return b
			}
		}
	}
	return hta.Branch{
		Name:        fmt.Sprintf("Exploring %s", titleWords(topic)),
		Description: fmt.Sprintf("Discovery work around %s", topic),
		Focus:       hta.FocusBalanced,
		Rationale:   "added from an explore hint",
	}
}

func discoveryTasks(branch hta.Branch, topic string) []hta.TaskNode {
	base := branch.Priority * 100
	var tasks []hta.TaskNode
	for i, title := range []string{
		fmt.Sprintf("Survey %s", topic),
		fmt.Sprintf("Try a small %s experiment", topic),
		fmt.Sprintf("Reflect on %s findings", topic),
	} {
		tasks = append(tasks, hta.TaskNode{
			ID:          fmt.Sprintf("discovery_%s_%d", uuid.NewString()[:8], i+1),
			Title:       title,
			Branch:      branch.Name,
			Difficulty:  2,
			Duration:    20,
			Priority:    base + i*10,
			Status:      hta.TaskPending,
			Generated:   true,
			DomainFocus: topic,
		})
	}
	return tasks
}

// rewriteIntent detects a direction change in a free-text hint and pulls
// out the replacement goal. "switch to X", "pivot to X" and
// "focus on X instead of Y" all rewrite the goal to X. A bare "focus on"
// with no contrast is treated as emphasis, not a new direction.
func rewriteIntent(hint string) (string, bool) {
	lower := strings.ToLower(hint)

	for _, marker := range []string{"switch to ", "pivot to ", "change my goal to ", "change the goal to "} {
		if i := strings.Index(lower, marker); i >= 0 {
			if goal := trimGoal(hint[i+len(marker):]); goal != "" {
				return goal, true
			}
		}
	}

	if at := strings.Index(lower, " instead"); at >= 0 {
		for _, marker := range []string{"focus on ", "work on ", "learn about ", "learn "} {
			if i := strings.Index(lower[:at], marker); i >= 0 {
				if goal := trimGoal(hint[i+len(marker) : at]); goal != "" {
					return goal, true
				}
			}
		}
	}
	return "", false
}

func trimGoal(s string) string {
	return strings.Trim(strings.TrimSpace(s), ".!")
}

// rewriteGoal archives the whole current tree and rebuilds for the new
// goal. The old frontier survives under archived_trees.
func (e *Evolver) rewriteGoal(ctx context.Context, project, path, newGoal string) (*Evolution, error) {
	if newGoal == "" {
		return nil, types.Validation("hint", "new goal hint needs the goal text")
	}
	if e.builder == nil {
		return nil, types.Conflict("goal rewrite requires a tree builder")
	}

	var oldGoal string
	_, err := e.store.Mutate(project, path, func(tree *hta.Tree) error {
		oldGoal = tree.Goal
		tree.ArchivedTrees = append(tree.ArchivedTrees, hta.ArchivedTree{
			Goal:       tree.Goal,
			ArchivedAt: time.Now().UTC(),
			Reason:     fmt.Sprintf("goal rewritten to %q", newGoal),
			Branches:   tree.StrategicBranches,
			Frontier:   tree.FrontierNodes,
			Completed:  tree.CompletedNodes,
		})
		tree.Goal = newGoal
		tree.StrategicBranches = nil
		tree.FrontierNodes = nil
		tree.CompletedNodes = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The emptied frontier lets Build regenerate; archives carry over.
	result, err := e.builder.Build(ctx, project, path, hta.BuildArgs{Goal: newGoal})
	if err != nil {
		return nil, err
	}

	logging.Evolution("goal rewritten from %q to %q (%d new frontier tasks)",
		oldGoal, newGoal, len(result.Tree.FrontierNodes))
	return &Evolution{
		Kind:      KindGoalRewrite,
		Detail:    fmt.Sprintf("archived tree for %q, rebuilt for %q", oldGoal, newGoal),
		NewGoal:   newGoal,
		AppliedAt: time.Now().UTC(),
	}, nil
}

// autoEvolve runs the completion-driven detectors. Returns nil when no
// trigger fires.
func (e *Evolver) autoEvolve(ctx context.Context, project, path string, history *History) (*Evolution, error) {
	recent := history.Recent(recentWindow)
	if len(recent) < 3 {
		return nil, nil
	}

	if confused(recent) || domainVariance(recent) {
		return e.expandUncertainty(project, path)
	}
	if domain, share := dominantDomain(recent); share >= 0.6 {
		return e.refineConvergence(ctx, project, path, recent, domain)
	}
	return nil, nil
}

// confused detects confusion feedback in recent events.
func confused(events []LearningEvent) bool {
	for _, ev := range events[max(0, len(events)-3):] {
		text := strings.ToLower(ev.Outcome + " " + ev.Learned)
		if strings.Contains(text, "confus") || strings.Contains(text, "lost") || strings.Contains(text, "stuck") {
			return true
		}
	}
	return false
}

// domainVariance is true when the last five events scatter over four or
// more knowledge domains.
func domainVariance(events []LearningEvent) bool {
	tail := events[max(0, len(events)-5):]
	domains := map[string]bool{}
	for _, ev := range tail {
		domains[ev.KnowledgeDomain] = true
	}
	return len(domains) >= 4
}

func dominantDomain(events []LearningEvent) (string, float64) {
	counts := map[string]int{}
	for _, ev := range events {
		counts[ev.KnowledgeDomain]++
	}
	best, n := "", 0
	for domain, c := range counts {
		if c > n {
			best, n = domain, c
		}
	}
	if len(events) == 0 {
		return "", 0
	}
	return best, float64(n) / float64(len(events))
}

// expandUncertainty injects discovery tasks and eases difficulty until
// the next convergence.
func (e *Evolver) expandUncertainty(project, path string) (*Evolution, error) {
	evo := &Evolution{Kind: KindUncertaintyExpansion, AppliedAt: time.Now().UTC()}
	_, err := e.store.Mutate(project, path, func(tree *hta.Tree) error {
		branch := tree.FindBranch(DiscoveryBranch)
		if branch == nil {
			tree.StrategicBranches = append(tree.StrategicBranches, hta.Branch{
				Name:        DiscoveryBranch,
				Description: "Low-pressure exploration to rebuild orientation",
				Priority:    len(tree.StrategicBranches) + 1,
				Focus:       hta.FocusBalanced,
			})
			branch = tree.FindBranch(DiscoveryBranch)
		}

		added := discoveryTasks(*branch, "the parts that feel unclear")
		tree.FrontierNodes = append(tree.FrontierNodes, added...)
		for _, task := range added {
			evo.AddedTasks = append(evo.AddedTasks, task.ID)
		}

		for i := range tree.FrontierNodes {
			n := &tree.FrontierNodes[i]
			if n.Status == hta.TaskPending && n.Difficulty > 1 {
				n.Difficulty--
			}
		}
		evo.AddedBranch = DiscoveryBranch
		evo.Detail = "recent events show confusion or scatter; eased difficulty and queued discovery work"
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Evolution("uncertainty expansion applied to %s/%s", project, path)
	return evo, nil
}

// refineConvergence prunes low-priority branches that drifted away from
// the dominant theme and bumps matching tasks up.
func (e *Evolver) refineConvergence(ctx context.Context, project, path string, recent []LearningEvent, domain string) (*Evolution, error) {
	centroid := e.eventCentroid(ctx, recent)

	evo := &Evolution{Kind: KindConvergenceRefinement, AppliedAt: time.Now().UTC()}
	_, err := e.store.Mutate(project, path, func(tree *hta.Tree) error {
		if centroid != nil {
			for _, b := range append([]hta.Branch(nil), tree.StrategicBranches...) {
				if b.Priority <= 2 || len(tree.StrategicBranches) <= 1 {
					continue
				}
				sim := e.branchCentroidSimilarity(ctx, b, centroid)
				if sim >= 0 && sim < pruneSimilarityFloor {
					removeBranch(tree, b.Name)
					evo.PrunedBranches = append(evo.PrunedBranches, b.Name)
				}
			}
		}

		// Matching tasks move up; renumbering is the evolver's privilege.
		for i := range tree.FrontierNodes {
			n := &tree.FrontierNodes[i]
			if domainOf(n) == domain && n.Priority >= 10 {
				n.Priority -= 10
			}
		}
		evo.Detail = fmt.Sprintf("recent work converges on %q; refocused priorities", domain)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Evolution("convergence refinement on %s/%s: pruned %d branches", project, path, len(evo.PrunedBranches))
	return evo, nil
}

// eventCentroid averages the embeddings of recent events. Nil when the
// embedding path is unavailable.
func (e *Evolver) eventCentroid(ctx context.Context, events []LearningEvent) []float32 {
	if e.embed == nil {
		return nil
	}
	var centroid []float32
	n := 0
	for _, ev := range events {
		vec, err := e.embed.Embed(ctx, ev.Outcome+". "+ev.Learned)
		if err != nil {
			continue
		}
		if centroid == nil {
			centroid = make([]float32, len(vec))
		}
		for i := range vec {
			centroid[i] += vec[i]
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range centroid {
		centroid[i] /= float32(n)
	}
	return centroid
}

// branchCentroidSimilarity compares a branch's text embedding to the
// event centroid; -1 when it cannot be computed.
func (e *Evolver) branchCentroidSimilarity(ctx context.Context, b hta.Branch, centroid []float32) float64 {
	vec, err := e.embed.Embed(ctx, b.Name+". "+b.Description)
	if err != nil {
		return -1
	}
	sim, err := embedding.CosineSimilarity(vec, centroid)
	if err != nil {
		return -1
	}
	return sim
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
