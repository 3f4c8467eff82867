package bolt

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stampcard/backend/repository"
)

func TestMarkerStoreRoundTrip(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "markers.db"), "markers")
	require.NoError(t, err)
	defer store.Close()

	value, err := store.Get(repository.MarkerAppVersion)
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, store.Set(repository.MarkerAppVersion, "1724900000000"))
	value, err = store.Get(repository.MarkerAppVersion)
	require.NoError(t, err)
	assert.Equal(t, "1724900000000", value)

	require.NoError(t, store.Delete(repository.MarkerAppVersion))
	value, err = store.Get(repository.MarkerAppVersion)
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestMarkerStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.db")

	store, err := Open(path, "markers")
	require.NoError(t, err)
	require.NoError(t, store.Set(repository.MarkerAppVersion, "v1"))
	require.NoError(t, store.Close())

	reopened, err := Open(path, "markers")
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(repository.MarkerAppVersion)
	require.NoError(t, err)
	assert.Equal(t, "v1", value)
}

func TestMarkerStoreClear(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "markers.db"), "markers")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set("a", "1"))
	require.NoError(t, store.Set("b", "2"))
	require.NoError(t, store.Clear())

	for _, key := range []string{"a", "b"} {
		value, err := store.Get(key)
		require.NoError(t, err)
		assert.Empty(t, value)
	}

	// The store stays usable after a clear.
	require.NoError(t, store.Set("c", "3"))
	value, err := store.Get("c")
	require.NoError(t, err)
	assert.Equal(t, "3", value)
}
