package client

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestPersister(t *testing.T) *SQLitePersister {
	t.Helper()
	p, err := OpenSQLitePersister(filepath.Join(t.TempDir(), "snapshot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestSQLitePersisterRoundtrip(t *testing.T) {
	p := openTestPersister(t)
	st := seedState()

	require.NoError(t, p.Save(DefaultStoreName, &st))

	loaded, ok, err := p.Load(DefaultStoreName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, st.CurrentProjectID, loaded.CurrentProjectID)
	require.Len(t, loaded.Projects, 1)
	assert.Equal(t, "Demo", loaded.Projects[0].Title)
}

func TestSQLitePersisterMissingSnapshot(t *testing.T) {
	p := openTestPersister(t)

	loaded, ok, err := p.Load("never-written")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, loaded)
}

func TestSQLitePersisterSaveOverwrites(t *testing.T) {
	p := openTestPersister(t)
	st := seedState()

	require.NoError(t, p.Save(DefaultStoreName, &st))
	st.SearchQuery = "docs"
	require.NoError(t, p.Save(DefaultStoreName, &st))

	loaded, ok, err := p.Load(DefaultStoreName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "docs", loaded.SearchQuery)
}

func TestSQLitePersisterDiscardsMismatchedVersion(t *testing.T) {
	p := openTestPersister(t)
	st := seedState()
	require.NoError(t, p.Save(DefaultStoreName, &st))

	err := p.db.Model(&storeSnapshot{}).
		Where("name = ?", DefaultStoreName).
		Update("schema_version", snapshotSchemaVersion+1).Error
	require.NoError(t, err)

	_, ok, err := p.Load(DefaultStoreName)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreSeedsFromPersistedSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")

	p, err := OpenSQLitePersister(path)
	require.NoError(t, err)
	first := New(NewRemote("http://localhost:0"), WithPersister(p))
	first.SetCurrentProject("p-persisted")
	require.NoError(t, p.Close())

	p2, err := OpenSQLitePersister(path)
	require.NoError(t, err)
	defer p2.Close()
	second := New(NewRemote("http://localhost:0"), WithPersister(p2))

	assert.Equal(t, "p-persisted", second.State().CurrentProjectID)
}

func TestStoreWithCustomName(t *testing.T) {
	p := openTestPersister(t)

	s := New(NewRemote("http://localhost:0"), WithPersister(p), WithStoreName("scratch"))
	s.SetSearchQuery("q")

	_, ok, err := p.Load(DefaultStoreName)
	require.NoError(t, err)
	assert.False(t, ok)

	loaded, ok, err := p.Load("scratch")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "q", loaded.SearchQuery)
}
