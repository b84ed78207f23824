package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	t.Run("ExactSubstring", func(t *testing.T) {
		r, ok := Match("foo bar baz", "bar", 0.8)
		require.True(t, ok)
		assert.Equal(t, 4, r.Start)
		assert.Equal(t, 7, r.End)
		assert.Equal(t, 1.0, r.Score)
	})

	t.Run("ApproximateMultiline", func(t *testing.T) {
		content := "function load() {\n  const x = readAll();\n  return x;\n}\n"
		// One character off from the real block.
		needle := "  const y = readAll();\n  return x;"

		r, ok := Match(content, needle, 0.8)
		require.True(t, ok)
		assert.GreaterOrEqual(t, r.Score, 0.8)
		assert.Contains(t, content[r.Start:r.End], "readAll")
	})

	t.Run("BelowThreshold", func(t *testing.T) {
		r, ok := Match("completely unrelated text", "func main()", 0.8)
		assert.False(t, ok)
		assert.Less(t, r.Score, 0.8)
	})

	t.Run("EmptyNeedle", func(t *testing.T) {
		_, ok := Match("anything", "", 0.1)
		assert.False(t, ok)
	})
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("abc", "abc"))
	assert.Equal(t, 1.0, Ratio("", ""))
	assert.Equal(t, 0.0, Ratio("abc", ""))
	assert.InDelta(t, 0.8, Ratio("abcde", "abcdx"), 0.001)
}
