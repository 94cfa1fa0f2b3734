// Package kvstore implements the namespaced JSON document store backing
// all forest persistence.
//
// Layout under the data root:
//
//	global/<file>                    project == ""
//	projects/<id>/<file>             path == ""
//	projects/<id>/<path>/<file>      otherwise
//
// Saves are atomic per key (write-temp + rename). Loads go through an
// in-process byte cache and unmarshal a fresh copy, so callers may mutate
// results freely. An fsnotify watcher invalidates cache entries when files
// change on disk behind the process.
package kvstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"forest/internal/logging"
	"forest/internal/types"
)

// Store is safe for concurrent use.
type Store struct {
	root string

	mu    sync.RWMutex
	cache map[string][]byte

	hits   atomic.Uint64
	misses atomic.Uint64
	writes atomic.Uint64

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// CacheStats reports cache effectiveness for the diagnostic tools.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Writes  uint64 `json:"writes"`
}

// New creates a store rooted at dir, creating the base layout.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("data root required")
	}
	for _, sub := range []string{"", "global", "projects"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, types.Storage(err, "failed to create data directory %s", sub)
		}
	}

	s := &Store{
		root:  dir,
		cache: make(map[string][]byte),
		done:  make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// The store works without the watcher; external edits just
		// require an explicit ClearCache.
		logging.Store("fsnotify unavailable, external cache invalidation disabled: %v", err)
	} else {
		s.watcher = watcher
		_ = watcher.Add(filepath.Join(dir, "global"))
		_ = watcher.Add(filepath.Join(dir, "projects"))
		s.wg.Add(1)
		go s.watchLoop()
	}

	logging.Store("KV store initialized at %s", dir)
	return s, nil
}

// Close stops the watcher.
func (s *Store) Close() error {
	close(s.done)
	var err error
	if s.watcher != nil {
		err = s.watcher.Close()
	}
	s.wg.Wait()
	return err
}

// keyPath maps a (project, path, file) key to its location on disk.
func (s *Store) keyPath(project, path, file string) string {
	switch {
	case project == "":
		return filepath.Join(s.root, "global", file)
	case path == "":
		return filepath.Join(s.root, "projects", project, file)
	default:
		return filepath.Join(s.root, "projects", project, path, file)
	}
}

// Load reads a document into v. The second return is false when the key
// does not exist.
func (s *Store) Load(project, path, file string, v interface{}) (bool, error) {
	key := s.keyPath(project, path, file)

	s.mu.RLock()
	data, cached := s.cache[key]
	s.mu.RUnlock()

	if cached {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
		var err error
		data, err = os.ReadFile(key)
		if err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, types.Storage(err, "failed to read %s", key)
		}
		s.mu.Lock()
		s.cache[key] = data
		s.mu.Unlock()
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, types.Storage(err, "corrupt document at %s", key)
	}
	return true, nil
}

// Save atomically writes a document. A failed save leaves the prior value
// intact on disk and in cache.
func (s *Store) Save(project, path, file string, v interface{}) error {
	key := s.keyPath(project, path, file)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return types.Storage(err, "failed to marshal %s", file)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLocked(key, data); err != nil {
		return err
	}
	s.writes.Add(1)
	return nil
}

// writeLocked performs the temp+rename dance and updates cache + watcher.
// Caller holds s.mu.
func (s *Store) writeLocked(key string, data []byte) error {
	dir := filepath.Dir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.Storage(err, "failed to create %s", dir)
	}
	if s.watcher != nil {
		_ = s.watcher.Add(dir)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return types.Storage(err, "failed to create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return types.Storage(err, "failed to write %s", key)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return types.Storage(err, "failed to close temp for %s", key)
	}
	if err := os.Rename(tmpName, key); err != nil {
		os.Remove(tmpName)
		return types.Storage(err, "failed to commit %s", key)
	}
	s.cache[key] = data
	return nil
}

// DeleteProject removes every document under one project. Keys are
// partitioned per project so this is a bounded operation.
func (s *Store) DeleteProject(project string) error {
	if project == "" {
		return types.Storage(nil, "project id required for delete")
	}
	dir := filepath.Join(s.root, "projects", project)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(dir); err != nil {
		return types.Storage(err, "failed to delete project %s", project)
	}
	prefix := dir + string(filepath.Separator)
	for key := range s.cache {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(s.cache, key)
		}
	}
	logging.Store("deleted project %s", project)
	return nil
}

// ClearCache drops every cached document.
func (s *Store) ClearCache() {
	s.mu.Lock()
	s.cache = make(map[string][]byte)
	s.mu.Unlock()
	logging.StoreDebug("cache cleared")
}

// Stats returns cache counters.
func (s *Store) Stats() CacheStats {
	s.mu.RLock()
	entries := len(s.cache)
	s.mu.RUnlock()
	return CacheStats{
		Entries: entries,
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Writes:  s.writes.Load(),
	}
}

// watchLoop invalidates cache entries for files modified outside Save.
func (s *Store) watchLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				s.mu.Lock()
				delete(s.cache, ev.Name)
				s.mu.Unlock()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logging.StoreDebug("watcher error: %v", err)
		}
	}
}
