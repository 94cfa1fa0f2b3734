package vector

import (
	"sort"
	"sync"

	"forest/internal/embedding"
)

// MemoryIndex is the in-process provider: a mutex-guarded map with
// brute-force scans. Used in tests and as a zero-dependency fallback.
type MemoryIndex struct {
	mu      sync.RWMutex
	vectors map[string][]float32
	meta    map[string]map[string]string
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		vectors: make(map[string][]float32),
		meta:    make(map[string]map[string]string),
	}
}

func (m *MemoryIndex) Upsert(id string, vec []float32, metadata map[string]string) error {
	vcopy := make([]float32, len(vec))
	copy(vcopy, vec)
	mcopy := make(map[string]string, len(metadata))
	for k, v := range metadata {
		mcopy[k] = v
	}

	m.mu.Lock()
	m.vectors[id] = vcopy
	m.meta[id] = mcopy
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Query(vec []float32, opts QueryOpts) ([]Match, error) {
	if opts.K <= 0 {
		opts.K = 10
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Match
	for id, v := range m.vectors {
		meta := m.meta[id]
		if !matchesFilter(meta, opts.Filter) {
			continue
		}
		cos, err := embedding.CosineSimilarity(vec, v)
		if err != nil {
			continue
		}
		score := clampScore(cos)
		if score < opts.Threshold {
			continue
		}
		mcopy := make(map[string]string, len(meta))
		for k, mv := range meta {
			mcopy[k] = mv
		}
		matches = append(matches, Match{ID: id, Score: score, Metadata: mcopy})
	}

	sortMatches(matches)
	if len(matches) > opts.K {
		matches = matches[:opts.K]
	}
	return matches, nil
}

func (m *MemoryIndex) List(filter map[string]string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, meta := range m.meta {
		if matchesFilter(meta, filter) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryIndex) Delete(id string) error {
	m.mu.Lock()
	delete(m.vectors, id)
	delete(m.meta, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Ping() error { return nil }

func (m *MemoryIndex) Stats() (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Provider: "memory", Count: len(m.vectors)}, nil
}

func (m *MemoryIndex) Close() error { return nil }
