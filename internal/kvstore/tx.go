package kvstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"forest/internal/types"
)

// Tx buffers writes so they become visible together on Commit and not at
// all on Rollback. Reads within a transaction see buffered writes first.
type Tx struct {
	store *Store

	mu     sync.Mutex
	writes map[string][]byte
	order  []string
	closed bool
}

// Begin starts a transaction.
func (s *Store) Begin() *Tx {
	return &Tx{store: s, writes: make(map[string][]byte)}
}

// Save stages a document write.
func (t *Tx) Save(project, path, file string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return types.Storage(err, "failed to marshal %s", file)
	}
	key := t.store.keyPath(project, path, file)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return types.Storage(nil, "transaction already closed")
	}
	if _, seen := t.writes[key]; !seen {
		t.order = append(t.order, key)
	}
	t.writes[key] = data
	return nil
}

// Load reads through the transaction: staged writes win over the store.
func (t *Tx) Load(project, path, file string, v interface{}) (bool, error) {
	key := t.store.keyPath(project, path, file)

	t.mu.Lock()
	data, staged := t.writes[key]
	t.mu.Unlock()

	if staged {
		if err := json.Unmarshal(data, v); err != nil {
			return false, types.Storage(err, "corrupt staged document %s", file)
		}
		return true, nil
	}
	return t.store.Load(project, path, file, v)
}

// Commit applies all staged writes under the store lock so readers never
// observe a partial transaction. A failed commit behaves as rollback:
// every write is staged into a temp file before the first rename, and a
// rename failure restores the keys already renamed to their prior
// contents, so no staged write stays visible.
func (t *Tx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return types.Storage(nil, "transaction already closed")
	}
	t.closed = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	// Temp files next to every target first. Any failure here aborts
	// with nothing applied.
	temps := make([]string, 0, len(t.order))
	discard := func() {
		for _, tmp := range temps {
			os.Remove(tmp)
		}
	}
	for _, key := range t.order {
		dir := filepath.Dir(key)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			discard()
			return types.Storage(err, "failed to create %s", dir)
		}
		if t.store.watcher != nil {
			_ = t.store.watcher.Add(dir)
		}
		tmp, err := os.CreateTemp(dir, ".tmp-*")
		if err != nil {
			discard()
			return types.Storage(err, "failed to create temp file in %s", dir)
		}
		temps = append(temps, tmp.Name())
		if _, err := tmp.Write(t.writes[key]); err != nil {
			tmp.Close()
			discard()
			return types.Storage(err, "failed to write %s", key)
		}
		if err := tmp.Close(); err != nil {
			discard()
			return types.Storage(err, "failed to close temp for %s", key)
		}
	}

	// Rename into place. On failure, restore what was already renamed.
	type applied struct {
		key     string
		prior   []byte
		existed bool
	}
	done := make([]applied, 0, len(t.order))
	for i, key := range t.order {
		prior, rerr := os.ReadFile(key)
		if err := os.Rename(temps[i], key); err != nil {
			for j := len(done) - 1; j >= 0; j-- {
				if done[j].existed {
					_ = os.WriteFile(done[j].key, done[j].prior, 0o644)
				} else {
					_ = os.Remove(done[j].key)
				}
			}
			for _, tmp := range temps[i:] {
				os.Remove(tmp)
			}
			return types.Storage(err, "failed to commit %s", key)
		}
		done = append(done, applied{key: key, prior: prior, existed: rerr == nil})
	}

	for _, key := range t.order {
		t.store.cache[key] = t.writes[key]
		t.store.writes.Add(1)
	}
	return nil
}

// Rollback discards staged writes.
func (t *Tx) Rollback() {
	t.mu.Lock()
	t.closed = true
	t.writes = nil
	t.order = nil
	t.mu.Unlock()
}
