package supervisor

import (
	"context"

	"forest/internal/hta"
	"forest/internal/logging"
	"forest/internal/project"
)

// ExpansionJobName is the registered name of the frontier refill job.
const ExpansionJobName = "expansion"

// NewExpansionJob watches the active project's frontier and tops it back
// up when the eligible task count drops below min. A tree with branches
// gets continuation tasks appended; one stripped of branches entirely is
// rebuilt. With no active project or no tree it does nothing.
func NewExpansionJob(projects *project.Manager, store *hta.Store, min int) Func {
	return func(ctx context.Context) error {
		rec, err := projects.Active()
		if err != nil {
			return err
		}
		if rec == nil {
			return nil
		}

		tree, err := store.Load(rec.ID, hta.DefaultPath)
		if err != nil {
			return err
		}
		if tree == nil || tree.Goal == "" {
			return nil
		}

		eligible := tree.EligibleFrontierCount()
		if eligible >= min {
			return nil
		}

		if len(tree.StrategicBranches) == 0 {
			logging.Supervisor("frontier for %s down to %d eligible tasks with no branches, rebuilding", rec.ID, eligible)
			_, err = store.Build(ctx, rec.ID, hta.DefaultPath, hta.BuildArgs{
				Goal:        tree.Goal,
				Accumulated: tree.Context,
			})
			return err
		}

		logging.Supervisor("frontier for %s down to %d eligible tasks, refilling", rec.ID, eligible)
		_, err = store.Refill(ctx, rec.ID, hta.DefaultPath, min, hta.ContextHints{})
		return err
	}
}
