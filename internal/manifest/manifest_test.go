package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingIsBootstrapSignal(t *testing.T) {
	m, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()

	m := New()
	assert.True(t, m.IsBootstrap)
	m.BaselineHashes["main.js"] = "ce013625030ba8dba906f756967f9e9ca394464a"
	require.NoError(t, m.Save(root))

	loaded, err := Load(root)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, m.BaselineHashes, loaded.BaselineHashes)
	assert.False(t, loaded.UpdatedAt.IsZero())
}

func TestSaveExitsBootstrap(t *testing.T) {
	root := t.TempDir()

	// A fresh manifest starts in bootstrap; the first save records a
	// completed sync and must clear the flag, in memory and on disk.
	m := New()
	require.True(t, m.IsBootstrap)
	require.NoError(t, m.Save(root))
	assert.False(t, m.IsBootstrap)

	loaded, err := Load(root)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.False(t, loaded.IsBootstrap)
}

func TestSaveOverwritesAtomically(t *testing.T) {
	root := t.TempDir()

	m := New()
	m.BaselineHashes["a.js"] = "hash-a"
	require.NoError(t, m.Save(root))

	m.BaselineHashes["b.js"] = "hash-b"
	require.NoError(t, m.Save(root))

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Len(t, loaded.BaselineHashes, 2)
}

func TestBreadcrumb(t *testing.T) {
	root := t.TempDir()

	b, err := LoadBreadcrumb(root)
	require.NoError(t, err)
	assert.Nil(t, b)

	require.NoError(t, SaveBreadcrumb(root, "script-abc123"))

	b, err = LoadBreadcrumb(root)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "script-abc123", b.ResourceID)
	assert.False(t, b.CreatedAt.IsZero())
}
