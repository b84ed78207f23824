package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	t.Run("GitCompatibility", func(t *testing.T) {
		// Known vectors from `git hash-object`.
		assert.Equal(t, "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391", Hash([]byte{}))
		assert.Equal(t, "ce013625030ba8dba906f756967f9e9ca394464a", Hash([]byte("hello\n")))
	})

	t.Run("Deterministic", func(t *testing.T) {
		content := []byte("function main() {\n  return 42;\n}\n")
		first := Hash(content)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, Hash(content))
		}
	})

	t.Run("NilEqualsEmpty", func(t *testing.T) {
		assert.Equal(t, Hash(nil), Hash([]byte{}))
	})

	t.Run("DistinctContent", func(t *testing.T) {
		corpus := [][]byte{
			[]byte(""),
			[]byte("a"),
			[]byte("b"),
			[]byte("ab"),
			[]byte("a\x00b"),
			[]byte("blob 1\x00a"), // content that mimics the prefix must not collide
		}
		seen := make(map[string][]byte)
		for _, c := range corpus {
			h := Hash(c)
			prev, dup := seen[h]
			require.False(t, dup, "hash collision between %q and %q", prev, c)
			seen[h] = c
		}
	})
}

func TestEqual(t *testing.T) {
	h := HashString("content")
	assert.True(t, Equal(h, h))
	assert.False(t, Equal(h, HashString("other")))
	// Case matters: hex digests are lowercase, anything else is a mismatch.
	assert.False(t, Equal("ABC", "abc"))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(HashString("x")))
	assert.False(t, Valid(""))
	assert.False(t, Valid("deadbeef"))
	assert.False(t, Valid("zz013625030ba8dba906f756967f9e9ca394464a"))
}

func TestFile(t *testing.T) {
	content := []byte("exports.run = () => {};\n")
	fp := File("lib/run.js", content)
	assert.Equal(t, "lib/run.js", fp.Path)
	assert.Equal(t, Hash(content), fp.ContentHash)
	assert.Equal(t, int64(len(content)), fp.Size)
	assert.False(t, fp.LastModified.IsZero())

	// Identical bytes hash identically regardless of path.
	other := File("different/name.js", content)
	assert.Equal(t, fp.ContentHash, other.ContentHash)
}
