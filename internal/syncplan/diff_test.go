package syncplan

import (
	"testing"

	"scriptsync/internal/fingerprint"
	"scriptsync/internal/manifest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fd(path, content string, origin Origin) FileDescriptor {
	return FileDescriptor{
		Path:        path,
		Content:     content,
		Fingerprint: fingerprint.File(path, []byte(content)),
		Origin:      origin,
	}
}

func paths(fds []FileDescriptor) []string {
	out := make([]string, len(fds))
	for i, f := range fds {
		out[i] = f.Path
	}
	return out
}

func TestComputeDiffBootstrap(t *testing.T) {
	// First contact: remote has A, local is empty, no manifest at all.
	source := FileSet{"a.js": fd("a.js", "x", OriginRemote)}
	dest := FileSet{}

	plan := ComputeDiff(DirectionPull, source, dest, nil)

	assert.Equal(t, []string{"a.js"}, paths(plan.Add))
	assert.Empty(t, plan.Update)
	assert.Empty(t, plan.Delete)
	assert.True(t, plan.HasChanges)
	assert.Equal(t, 1, plan.TotalOperations)
}

func TestComputeDiffBootstrapNeverDeletes(t *testing.T) {
	// Local files the remote has never seen must survive first contact.
	source := FileSet{}
	dest := FileSet{
		"local-only.js": fd("local-only.js", "mine", OriginLocal),
	}

	plan := ComputeDiff(DirectionPull, source, dest, nil)
	assert.Empty(t, plan.Delete)
	assert.False(t, plan.HasChanges)
}

func TestComputeDiffIncrementalDelete(t *testing.T) {
	// A was reconciled before and has since been removed upstream.
	baseline := manifest.New()
	baseline.IsBootstrap = false
	baseline.BaselineHashes["a.js"] = fingerprint.HashString("x")

	source := FileSet{}
	dest := FileSet{"a.js": fd("a.js", "x", OriginLocal)}

	plan := ComputeDiff(DirectionPull, source, dest, baseline)
	assert.Equal(t, []string{"a.js"}, paths(plan.Delete))
}

func TestComputeDiffIncrementalDeleteAfterSavedBaseline(t *testing.T) {
	// Same scenario through the persisted manifest lifecycle: the baseline
	// written by a completed sync must enable deletes once reloaded.
	root := t.TempDir()
	m := manifest.New()
	m.BaselineHashes["a.js"] = fingerprint.HashString("x")
	require.NoError(t, m.Save(root))

	baseline, err := manifest.Load(root)
	require.NoError(t, err)
	require.NotNil(t, baseline)

	source := FileSet{}
	dest := FileSet{"a.js": fd("a.js", "x", OriginLocal)}

	plan := ComputeDiff(DirectionPull, source, dest, baseline)
	assert.Equal(t, []string{"a.js"}, paths(plan.Delete))
}

func TestComputeDiffDestOnlyOutsideBaselineSurvives(t *testing.T) {
	baseline := manifest.New()
	baseline.IsBootstrap = false
	baseline.BaselineHashes["known.js"] = fingerprint.HashString("k")

	source := FileSet{}
	dest := FileSet{
		"independent.js": fd("independent.js", "added by this side", OriginLocal),
	}

	plan := ComputeDiff(DirectionPull, source, dest, baseline)
	assert.Empty(t, plan.Delete, "files the baseline never saw are not ours to delete")
}

func TestComputeDiffUpdateAndUnchanged(t *testing.T) {
	baseline := manifest.New()
	baseline.IsBootstrap = false

	source := FileSet{
		"same.js":    fd("same.js", "identical", OriginRemote),
		"changed.js": fd("changed.js", "new version\n", OriginRemote),
	}
	dest := FileSet{
		"same.js":    fd("same.js", "identical", OriginLocal),
		"changed.js": fd("changed.js", "old version\n", OriginLocal),
	}

	plan := ComputeDiff(DirectionPull, source, dest, baseline)

	require.Equal(t, []string{"changed.js"}, paths(plan.Update))
	assert.Empty(t, plan.Add)
	assert.Empty(t, plan.Delete)
	assert.Equal(t, 1, plan.TotalOperations)

	// Updates carry a rendered diff for display.
	d := plan.Update[0].Display
	require.NotNil(t, d)
	assert.Equal(t, 1, d.LinesAdded)
	assert.Equal(t, 1, d.LinesRemoved)
	assert.Contains(t, d.Content, "+new version")
	assert.Contains(t, d.Content, "-old version")
}

func TestComputeDiffSortedOutput(t *testing.T) {
	source := FileSet{
		"z.js": fd("z.js", "z", OriginRemote),
		"a.js": fd("a.js", "a", OriginRemote),
		"m.js": fd("m.js", "m", OriginRemote),
	}

	plan := ComputeDiff(DirectionPull, source, FileSet{}, nil)
	assert.Equal(t, []string{"a.js", "m.js", "z.js"}, paths(plan.Add))
}

func TestComputeDiffEmptySides(t *testing.T) {
	plan := ComputeDiff(DirectionPush, FileSet{}, FileSet{}, nil)
	assert.False(t, plan.HasChanges)
	assert.Zero(t, plan.TotalOperations)
}
