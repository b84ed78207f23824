package snapshot

import (
	"bytes"
	"strings"
	"testing"

	"scriptsync/internal/fingerprint"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := New(db, Options{Root: t.TempDir(), CacheSize: 8}, nil)
	require.NoError(t, err)
	return store
}

func TestStore(t *testing.T) {
	store := setupStore(t)

	t.Run("RoundTrip", func(t *testing.T) {
		content := []byte("function onOpen() {}\n")
		hash, err := store.Store(content)
		require.NoError(t, err)
		assert.Equal(t, fingerprint.Hash(content), hash)

		got, err := store.Get(hash)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(content, got))
	})

	t.Run("Dedup", func(t *testing.T) {
		content := []byte("same bytes")
		h1, err := store.Store(content)
		require.NoError(t, err)
		h2, err := store.Store(content)
		require.NoError(t, err)
		assert.Equal(t, h1, h2)
	})

	t.Run("LargeBodyCompressed", func(t *testing.T) {
		// Highly repetitive content well above the compression floor.
		content := []byte(strings.Repeat("var row = sheet.appendRow(values);\n", 500))
		hash, err := store.Store(content)
		require.NoError(t, err)

		meta, err := store.getMeta(hash)
		require.NoError(t, err)
		assert.True(t, meta.Compressed)
		assert.Equal(t, int64(len(content)), meta.Size)

		got, err := store.Get(hash)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(content, got))
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.Get(fingerprint.HashString("never stored... almost surely"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("InvalidHash", func(t *testing.T) {
		_, err := store.Get("nope")
		assert.ErrorIs(t, err, ErrInvalidHash)
	})

	t.Run("Delete", func(t *testing.T) {
		hash, err := store.Store([]byte("to be removed"))
		require.NoError(t, err)

		require.NoError(t, store.Delete(hash))
		exists, err := store.Exists(hash)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Tags", func(t *testing.T) {
		opID := uuid.New().String()
		hash, err := store.Store([]byte("prior content"))
		require.NoError(t, err)

		paths := map[string]string{"main.js": hash, "new.js": ""}
		require.NoError(t, store.Tag(opID, paths))

		got, err := store.Tagged(opID)
		require.NoError(t, err)
		assert.Equal(t, paths, got)

		_, err = store.Tagged("unknown-op")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
