package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest/internal/kvstore"
	"forest/internal/types"
	"forest/internal/vector"
)

func newTestManager(t *testing.T) (*Manager, *kvstore.Store, vector.Index) {
	t.Helper()
	kv, err := kvstore.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	idx := vector.NewMemoryIndex()
	return NewManager(kv, idx), kv, idx
}

func TestCreateActivatesProject(t *testing.T) {
	m, _, _ := newTestManager(t)

	rec, err := m.Create("master portrait photography")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "master portrait photography", rec.Goal)

	active, err := m.Active()
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, rec.ID, active.ID)
}

func TestCreateRejectsEmptyGoal(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Create("   ")
	require.Error(t, err)
	assert.True(t, types.HasTag(err, types.TagValidation))
}

func TestSwitchBetweenProjects(t *testing.T) {
	m, _, _ := newTestManager(t)
	first, err := m.Create("learn jazz piano")
	require.NoError(t, err)
	second, err := m.Create("learn woodworking")
	require.NoError(t, err)

	active, err := m.RequireActive()
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID, "newest project becomes active")

	_, err = m.Switch(first.ID)
	require.NoError(t, err)
	active, err = m.RequireActive()
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	_, err = m.Switch("missing")
	require.Error(t, err)
	assert.True(t, types.HasTag(err, types.TagValidation))
}

func TestRequireActiveWithoutSelection(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.RequireActive()
	require.Error(t, err)
	assert.True(t, types.HasTag(err, types.TagNoActiveProject))
}

func TestDeleteRemovesDocumentsAndVectors(t *testing.T) {
	m, kv, idx := newTestManager(t)
	rec, err := m.Create("learn jazz piano")
	require.NoError(t, err)

	require.NoError(t, kv.Save(rec.ID, "", "config.json", map[string]string{"goal": rec.Goal}))
	require.NoError(t, idx.Upsert(vector.GoalID(rec.ID), []float32{1, 0}, map[string]string{"project": rec.ID}))
	require.NoError(t, idx.Upsert("other:goal", []float32{1, 0}, map[string]string{"project": "other"}))

	require.NoError(t, m.Delete(rec.ID))

	var out map[string]string
	found, err := kv.Load(rec.ID, "", "config.json", &out)
	require.NoError(t, err)
	assert.False(t, found)

	ids, err := idx.List(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"other:goal"}, ids, "only the deleted project's vectors are purged")

	active, err := m.Active()
	require.NoError(t, err)
	assert.Nil(t, active, "deleting the active project clears the selection")
}

func TestFactoryResetRequiresBothConfirmations(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Create("learn jazz piano")
	require.NoError(t, err)

	_, err = m.FactoryReset(false, "yes really delete everything")
	assert.True(t, types.HasTag(err, types.TagValidation))

	_, err = m.FactoryReset(true, "short")
	assert.True(t, types.HasTag(err, types.TagValidation))

	list, err := m.List()
	require.NoError(t, err)
	assert.Len(t, list, 1, "refused resets leave projects intact")
}

func TestFactoryResetDeletesEverything(t *testing.T) {
	m, _, idx := newTestManager(t)
	a, err := m.Create("learn jazz piano")
	require.NoError(t, err)
	b, err := m.Create("learn woodworking")
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(vector.GoalID(a.ID), []float32{1}, map[string]string{"project": a.ID}))
	require.NoError(t, idx.Upsert(vector.GoalID(b.ID), []float32{1}, map[string]string{"project": b.ID}))

	deleted, err := m.FactoryReset(true, "yes really delete everything")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	list, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	active, err := m.Active()
	require.NoError(t, err)
	assert.Nil(t, active)

	ids, err := idx.List(nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
