package tasks

import (
	"context"

	"forest/internal/hta"
	"forest/internal/logging"
)

// DefaultWindow is the pipeline size when none is configured.
const DefaultWindow = 5

// StrategyEvolver is the presenter's view of the strategy evolver; the
// concrete evolver is wired at construction.
type StrategyEvolver interface {
	EvolveForPipeline(ctx context.Context, project, path string, triggers map[string]interface{}) error
}

// TreeLoader reloads the committed tree after an evolution.
type TreeLoader interface {
	Load(project, path string) (*hta.Tree, error)
}

// Presenter widens a single selection into an ordered window of tasks,
// mixed across branches to avoid monotony. Presentation never mutates
// task status.
type Presenter struct {
	selector *Selector
	evolver  StrategyEvolver
	trees    TreeLoader
	window   int
}

// NewPresenter wires the presenter. evolver may be nil; EvolvePipeline
// then just regenerates the window.
func NewPresenter(selector *Selector, evolver StrategyEvolver, trees TreeLoader, window int) *Presenter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Presenter{selector: selector, evolver: evolver, trees: trees, window: window}
}

// NextPipeline produces up to window tasks: the top pick first, then
// picks that cover unrepresented branches, then best remaining overall.
func (p *Presenter) NextPipeline(ctx context.Context, project string, tree *hta.Tree, c Criteria) []hta.TaskNode {
	ranked := p.selector.Rank(ctx, project, tree, c)
	if len(ranked) == 0 {
		return nil
	}

	pipeline := []hta.TaskNode{ranked[0].Task}
	covered := map[string]bool{ranked[0].Task.Branch: true}
	used := map[string]bool{ranked[0].Task.ID: true}

	// Coverage pass: one task from each branch not yet represented, in
	// score order.
	for _, st := range ranked[1:] {
		if len(pipeline) >= p.window {
			break
		}
		if covered[st.Task.Branch] {
			continue
		}
		pipeline = append(pipeline, st.Task)
		covered[st.Task.Branch] = true
		used[st.Task.ID] = true
	}

	// Fill pass: next-highest scores regardless of branch.
	for _, st := range ranked[1:] {
		if len(pipeline) >= p.window {
			break
		}
		if used[st.Task.ID] {
			continue
		}
		pipeline = append(pipeline, st.Task)
		used[st.Task.ID] = true
	}

	logging.Tasks("pipeline for %s: %d tasks over %d branches", project, len(pipeline), len(covered))
	return pipeline
}

// EvolvePipeline runs the strategy evolver with pipeline focus, then
// regenerates the window from the freshly committed tree.
func (p *Presenter) EvolvePipeline(ctx context.Context, project, path string, c Criteria, triggers map[string]interface{}) ([]hta.TaskNode, error) {
	if p.evolver != nil {
		if err := p.evolver.EvolveForPipeline(ctx, project, path, triggers); err != nil {
			return nil, err
		}
	}
	tree, err := p.trees.Load(project, path)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, nil
	}
	return p.NextPipeline(ctx, project, tree, c), nil
}
