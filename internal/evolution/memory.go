package evolution

import (
	"fmt"
	"strings"
	"time"

	"forest/internal/logging"
)

const goalMetadataFile = "goal_metadata.json"

// GoalMetadata carries the replayed learning context for a project.
type GoalMetadata struct {
	AccumulatedContext string    `json:"accumulated_context"`
	EventCount         int       `json:"event_count"`
	BreakthroughCount  int       `json:"breakthrough_count"`
	LastSynced         time.Time `json:"last_synced"`
}

// SyncMemory replays the learning history into a fresh accumulated
// context and persists it as goal metadata. Subsequent generations see
// everything learned so far.
func (e *Evolver) SyncMemory(project, path string) (*GoalMetadata, error) {
	history, err := loadHistory(e.kv, project, path)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	breakthroughs := 0
	for _, ev := range history.Events {
		fmt.Fprintf(&b, "Completed %q (%s): %s\n", ev.TaskID, ev.Branch, ev.Outcome)
		if ev.Learned != "" {
			fmt.Fprintf(&b, "  Learned: %s\n", ev.Learned)
		}
		if ev.BreakthroughLevel >= 4 {
			breakthroughs++
			fmt.Fprintf(&b, "  Breakthrough (level %d)\n", ev.BreakthroughLevel)
		}
	}

	meta := &GoalMetadata{
		AccumulatedContext: b.String(),
		EventCount:         len(history.Events),
		BreakthroughCount:  breakthroughs,
		LastSynced:         time.Now().UTC(),
	}
	if err := e.kv.Save(project, "", goalMetadataFile, meta); err != nil {
		return nil, err
	}
	logging.Evolution("memory synced for %s: %d events, %d breakthroughs",
		project, meta.EventCount, meta.BreakthroughCount)
	return meta, nil
}
