package diffview

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnified(t *testing.T) {
	t.Run("CountsChanges", func(t *testing.T) {
		old := "one\ntwo\nthree\n"
		new := "one\n2\nthree\nfour\n"

		d, err := Unified("main.js", old, new)
		require.NoError(t, err)

		assert.Equal(t, "unified", d.Format)
		assert.Equal(t, 2, d.LinesAdded)
		assert.Equal(t, 1, d.LinesRemoved)
		assert.True(t, strings.Contains(d.Content, "a/main.js"))
		assert.True(t, strings.Contains(d.Content, "@@"))
	})

	t.Run("IdenticalContent", func(t *testing.T) {
		d, err := Unified("same.js", "body\n", "body\n")
		require.NoError(t, err)
		assert.Empty(t, d.Content)
		assert.Zero(t, d.LinesAdded)
		assert.Zero(t, d.LinesRemoved)
	})

	t.Run("AddedOnly", func(t *testing.T) {
		d, err := Unified("new.js", "", "hello\nworld\n")
		require.NoError(t, err)
		assert.Equal(t, 2, d.LinesAdded)
		assert.Zero(t, d.LinesRemoved)
	})
}
