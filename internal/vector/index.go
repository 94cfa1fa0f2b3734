// Package vector implements the vector index used to mirror goals,
// branches, tasks and learning events for similarity search.
//
// Two providers: "sqlitevec" persists vectors in SQLite and uses the
// sqlite-vec extension for distance when the build carries it (falling
// back to in-process cosine otherwise), and "memory" keeps everything in
// a map. Both uphold the same contract: scores are cosine similarity
// clamped to [0,1], results sorted by descending score with ties broken
// by id, and metadata returned exactly as last upserted.
package vector

import (
	"fmt"
	"path/filepath"
	"sort"

	"forest/internal/config"
)

// Match is one similarity search result.
type Match struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata"`
}

// QueryOpts controls a similarity query. Filter is a conjunction of exact
// metadata matches. Threshold excludes results with Score < Threshold.
type QueryOpts struct {
	K         int
	Threshold float64
	Filter    map[string]string
}

// Stats reports index size for diagnostics.
type Stats struct {
	Provider string `json:"provider"`
	Count    int    `json:"count"`
}

// Index is the vector store contract. Implementations are safe for
// concurrent use.
type Index interface {
	Upsert(id string, vec []float32, metadata map[string]string) error
	Query(vec []float32, opts QueryOpts) ([]Match, error)
	// List enumerates ids whose metadata matches the filter, without
	// similarity scoring. Used for per-project cleanup.
	List(filter map[string]string) ([]string, error)
	Delete(id string) error
	Ping() error
	Stats() (Stats, error)
	Close() error
}

// Open creates the configured index provider rooted in the data dir.
func Open(cfg *config.Config) (Index, error) {
	switch cfg.VectorProvider {
	case "", "sqlitevec":
		return OpenSQLiteVec(filepath.Join(cfg.DataDir, "vectors.db"))
	case "memory":
		return NewMemoryIndex(), nil
	default:
		return nil, fmt.Errorf("unsupported vector provider: %s (use 'sqlitevec' or 'memory')", cfg.VectorProvider)
	}
}

// matchesFilter applies the conjunction of exact metadata predicates.
func matchesFilter(meta map[string]string, filter map[string]string) bool {
	for k, want := range filter {
		if meta[k] != want {
			return false
		}
	}
	return true
}

// sortMatches orders by descending score, ties broken by id ascending.
func sortMatches(ms []Match) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Score != ms[j].Score {
			return ms[i].Score > ms[j].Score
		}
		return ms[i].ID < ms[j].ID
	})
}

// clampScore maps cosine similarity into the [0,1] contract.
func clampScore(cos float64) float64 {
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}
