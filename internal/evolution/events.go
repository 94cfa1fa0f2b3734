// Package evolution consumes completion events and reshapes the tree:
// breakthrough detection and escalation, convergence refinement,
// uncertainty expansion, branch pruning, discovery enhancement and goal
// rewrites. The evolver is the only component allowed to renumber
// priorities; it never changes existing task ids.
package evolution

import (
	"strings"
	"time"

	"forest/internal/kvstore"
)

const historyFile = "learning_history.json"

// LearningEvent is one completed task's record in the learning history.
type LearningEvent struct {
	ID                string    `json:"id"`
	TaskID            string    `json:"task_id"`
	Branch            string    `json:"branch"`
	KnowledgeDomain   string    `json:"knowledge_domain,omitempty"`
	Outcome           string    `json:"outcome"`
	Learned           string    `json:"learned,omitempty"`
	EnergyLevel       int       `json:"energy_level"`
	DifficultyRating  int       `json:"difficulty_rating,omitempty"`
	Breakthrough      bool      `json:"breakthrough,omitempty"`
	BreakthroughLevel int       `json:"breakthrough_level"`
	Timestamp         time.Time `json:"timestamp"`
}

// History is the persisted per-path event log, append-only.
type History struct {
	Events []LearningEvent `json:"events"`
}

// Recent returns the newest n events, newest last.
func (h *History) Recent(n int) []LearningEvent {
	if len(h.Events) <= n {
		return h.Events
	}
	return h.Events[len(h.Events)-n:]
}

// LoadHistory reads the event log for a (project, path). A missing file
// yields an empty history.
func LoadHistory(kv *kvstore.Store, project, path string) (*History, error) {
	return loadHistory(kv, project, path)
}

func loadHistory(kv *kvstore.Store, project, path string) (*History, error) {
	var h History
	if _, err := kv.Load(project, path, historyFile, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func saveHistory(kv *kvstore.Store, project, path string, h *History) error {
	return kv.Save(project, path, historyFile, h)
}

// BreakthroughLevel scores a completion on the 2..5 scale. Level 4 and
// above triggers escalation.
func BreakthroughLevel(outcome, learned string, difficultyRating int, flagged bool) int {
	level := 2
	if flagged {
		level += 2
	}
	if len(learned) > 100 {
		level++
	}
	if difficultyRating >= 4 {
		level++
	}
	lowerOutcome := strings.ToLower(outcome)
	if strings.Contains(lowerOutcome, "breakthrough") {
		level++
	}
	lowerLearned := strings.ToLower(learned)
	if strings.Contains(lowerLearned, "insight") || strings.Contains(lowerLearned, "understanding") {
		level++
	}
	if level > 5 {
		level = 5
	}
	return level
}
