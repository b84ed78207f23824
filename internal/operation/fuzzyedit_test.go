package operation

import (
	"context"
	"strings"
	"testing"

	"scriptsync/internal/remote"
	"scriptsync/internal/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedFile(mem *remote.Memory, name, content string) {
	mem.Seed("proj", remote.FileRecord{Name: name, Kind: remote.KindCode, Content: content})
}

func TestFuzzyEditOrdering(t *testing.T) {
	ctx := context.Background()
	deps, mem := memDeps(t)
	seedFile(mem, "main.js", "foo bar baz")

	// Input order deliberately reversed relative to position.
	f := NewFuzzyEdit(deps, FuzzyEditSpec{
		Container: "proj",
		Name:      "main.js",
		Edits: []Edit{
			{Search: "baz", Replace: "BAZ"},
			{Search: "bar", Replace: "BAR"},
		},
	})

	cs, err := f.ComputeChanges(ctx)
	require.NoError(t, err)
	_, err = f.ApplyChanges(ctx, cs)
	require.NoError(t, err)

	rec, err := mem.Read(ctx, "proj", "main.js")
	require.NoError(t, err)
	assert.Equal(t, "foo BAR BAZ", rec.Content)
}

func TestFuzzyEditOverlap(t *testing.T) {
	ctx := context.Background()
	deps, mem := memDeps(t)
	seedFile(mem, "main.js", "foo bar baz")

	f := NewFuzzyEdit(deps, FuzzyEditSpec{
		Container: "proj",
		Name:      "main.js",
		Edits: []Edit{
			{Search: "bar baz", Replace: "x"},
			{Search: "baz", Replace: "y"},
		},
	})

	_, err := f.ComputeChanges(ctx)
	require.True(t, xerrors.IsMatch(err))
	assert.Zero(t, mem.Mutations(), "overlap must be rejected before any edit is applied")
}

func TestFuzzyEditValidation(t *testing.T) {
	ctx := context.Background()
	deps, mem := memDeps(t)
	seedFile(mem, "main.js", "content")

	t.Run("TooManyEdits", func(t *testing.T) {
		edits := make([]Edit, 21)
		for i := range edits {
			edits[i] = Edit{Search: "a", Replace: "b"}
		}
		f := NewFuzzyEdit(deps, FuzzyEditSpec{Container: "proj", Name: "main.js", Edits: edits})
		_, err := f.ComputeChanges(ctx)
		assert.True(t, xerrors.IsValidation(err))
	})

	t.Run("OversizedSearch", func(t *testing.T) {
		f := NewFuzzyEdit(deps, FuzzyEditSpec{
			Container: "proj",
			Name:      "main.js",
			Edits:     []Edit{{Search: strings.Repeat("s", 1001), Replace: "r"}},
		})
		_, err := f.ComputeChanges(ctx)
		assert.True(t, xerrors.IsValidation(err))
	})

	t.Run("NoEdits", func(t *testing.T) {
		f := NewFuzzyEdit(deps, FuzzyEditSpec{Container: "proj", Name: "main.js"})
		_, err := f.ComputeChanges(ctx)
		assert.True(t, xerrors.IsValidation(err))
	})
}

func TestFuzzyEditNoMatch(t *testing.T) {
	ctx := context.Background()
	deps, mem := memDeps(t)
	seedFile(mem, "main.js", "short content")

	f := NewFuzzyEdit(deps, FuzzyEditSpec{
		Container: "proj",
		Name:      "main.js",
		Edits:     []Edit{{Search: "entirely different text block", Replace: "x"}},
	})
	_, err := f.ComputeChanges(ctx)
	assert.True(t, xerrors.IsMatch(err))
}

func TestFuzzyEditApproximate(t *testing.T) {
	ctx := context.Background()
	deps, mem := memDeps(t)
	content := "function load() {\n  const x = readAll();\n  return x;\n}\n"
	seedFile(mem, "main.js", content)

	f := NewFuzzyEdit(deps, FuzzyEditSpec{
		Container: "proj",
		Name:      "main.js",
		// One identifier off from the real line.
		Edits: []Edit{{Search: "  const y = readAll();", Replace: "  const x = readAllRows();"}},
	})

	cs, err := f.ComputeChanges(ctx)
	require.NoError(t, err)
	_, err = f.ApplyChanges(ctx, cs)
	require.NoError(t, err)

	rec, err := mem.Read(ctx, "proj", "main.js")
	require.NoError(t, err)
	assert.Contains(t, rec.Content, "readAllRows()")
	assert.Contains(t, rec.Content, "return x;")
}

func TestFuzzyEditRollback(t *testing.T) {
	ctx := context.Background()
	deps, mem := memDeps(t)
	seedFile(mem, "main.js", "foo bar baz")

	f := NewFuzzyEdit(deps, FuzzyEditSpec{
		Container: "proj",
		Name:      "main.js",
		Edits:     []Edit{{Search: "bar", Replace: "BAR"}},
	})
	cs, err := f.ComputeChanges(ctx)
	require.NoError(t, err)
	_, err = f.ApplyChanges(ctx, cs)
	require.NoError(t, err)

	require.NoError(t, f.Rollback(ctx))
	rec, err := mem.Read(ctx, "proj", "main.js")
	require.NoError(t, err)
	assert.Equal(t, "foo bar baz", rec.Content)
}
