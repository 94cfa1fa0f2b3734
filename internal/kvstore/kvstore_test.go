package kvstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest/internal/types"
)

type doc struct {
	Goal  string   `json:"goal"`
	Tags  []string `json:"tags,omitempty"`
	Count int      `json:"count,omitempty"`
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s := newStore(t)

	in := doc{Goal: "master portrait photography", Tags: []string{"creative"}}
	require.NoError(t, s.Save("p1", "general", "hta.json", in))

	var out doc
	found, err := s.Load("p1", "general", "hta.json", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, out)
}

func TestStore_LoadMissing(t *testing.T) {
	s := newStore(t)

	var out doc
	found, err := s.Load("nope", "", "config.json", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_LoadReturnsDeepCopy(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save("p1", "", "config.json", doc{Goal: "g", Tags: []string{"a"}}))

	var first doc
	_, err := s.Load("p1", "", "config.json", &first)
	require.NoError(t, err)
	first.Tags[0] = "mutated"

	var second doc
	_, err = s.Load("p1", "", "config.json", &second)
	require.NoError(t, err)
	assert.Equal(t, "a", second.Tags[0])
}

func TestStore_GlobalNamespace(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save("", "", "config.json", doc{Goal: "global"}))

	_, err := os.Stat(filepath.Join(s.root, "global", "config.json"))
	require.NoError(t, err)
}

func TestStore_DeleteProject(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save("p1", "general", "hta.json", doc{Goal: "g"}))
	require.NoError(t, s.Save("p2", "general", "hta.json", doc{Goal: "g2"}))

	require.NoError(t, s.DeleteProject("p1"))

	var out doc
	found, err := s.Load("p1", "general", "hta.json", &out)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = s.Load("p2", "general", "hta.json", &out)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestTx_CommitVisibleTogether(t *testing.T) {
	s := newStore(t)

	tx := s.Begin()
	require.NoError(t, tx.Save("p1", "general", "hta.json", doc{Goal: "tree"}))
	require.NoError(t, tx.Save("p1", "", "goal_metadata.json", doc{Goal: "meta"}))

	// Not visible before commit.
	var out doc
	found, err := s.Load("p1", "general", "hta.json", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, tx.Commit())

	found, err = s.Load("p1", "general", "hta.json", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "tree", out.Goal)

	found, err = s.Load("p1", "", "goal_metadata.json", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "meta", out.Goal)
}

func TestTx_RollbackDiscards(t *testing.T) {
	s := newStore(t)

	tx := s.Begin()
	require.NoError(t, tx.Save("p1", "", "config.json", doc{Goal: "staged"}))
	tx.Rollback()

	var out doc
	found, err := s.Load("p1", "", "config.json", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTx_ReadThroughSeesStagedWrites(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save("p1", "", "config.json", doc{Goal: "old"}))

	tx := s.Begin()
	require.NoError(t, tx.Save("p1", "", "config.json", doc{Goal: "new"}))

	var out doc
	found, err := tx.Load("p1", "", "config.json", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "new", out.Goal)
	tx.Rollback()
}

func TestTx_FailedCommitLeavesNothingVisible(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save("p1", "", "a.json", doc{Goal: "prior"}))

	// A regular file where the third write's directory belongs makes
	// that destination unusable, failing the commit partway through
	// staging.
	blocked := filepath.Join(s.root, "projects", "p1", "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("in the way"), 0o644))

	tx := s.Begin()
	require.NoError(t, tx.Save("p1", "", "a.json", doc{Goal: "staged"}))
	require.NoError(t, tx.Save("p1", "", "c.json", doc{Goal: "new"}))
	require.NoError(t, tx.Save("p1", "blocked", "b.json", doc{Goal: "unreachable"}))
	require.Error(t, tx.Commit())

	// The pre-existing key keeps its prior value and the new key never
	// appears.
	var out doc
	found, err := s.Load("p1", "", "a.json", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "prior", out.Goal)

	found, err = s.Load("p1", "", "c.json", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_FailedSaveKeepsPriorValue(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save("p1", "", "config.json", doc{Goal: "prior"}))

	// Channels cannot be marshalled.
	err := s.Save("p1", "", "config.json", map[string]interface{}{"bad": make(chan int)})
	require.Error(t, err)
	assert.Equal(t, types.TagStorage, types.TagOf(err))

	var out doc
	found, err := s.Load("p1", "", "config.json", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "prior", out.Goal)
}

func TestStore_ClearCacheAndStats(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save("p1", "", "config.json", doc{Goal: "g"}))

	var out doc
	_, err := s.Load("p1", "", "config.json", &out)
	require.NoError(t, err)

	stats := s.Stats()
	assert.Greater(t, stats.Entries, 0)

	s.ClearCache()
	assert.Equal(t, 0, s.Stats().Entries)

	// Reload from disk still works.
	found, err := s.Load("p1", "", "config.json", &out)
	require.NoError(t, err)
	assert.True(t, found)
}
