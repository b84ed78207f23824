package syncplan

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"scriptsync/internal/manifest"
	"scriptsync/internal/remote"
	"scriptsync/internal/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planCode(t *testing.T, err error) xerrors.PlanCode {
	t.Helper()
	code, ok := xerrors.PlanCodeOf(err)
	require.True(t, ok, "expected a plan error, got %v", err)
	return code
}

func TestPlannerInvalidDirection(t *testing.T) {
	p := NewPlanner(remote.NewMemory(), nil, nil)
	_, err := p.Plan(context.Background(), t.TempDir(), Options{Direction: "sideways"})
	assert.True(t, xerrors.IsValidation(err))
}

func TestPlannerInvalidRoot(t *testing.T) {
	p := NewPlanner(remote.NewMemory(), nil, nil)
	_, err := p.Plan(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"), Options{Direction: DirectionPull})
	assert.Equal(t, xerrors.PlanLocalReadError, planCode(t, err))
}

func TestPlannerBreadcrumbMissing(t *testing.T) {
	p := NewPlanner(remote.NewMemory(), nil, nil)
	_, err := p.Plan(context.Background(), t.TempDir(), Options{Direction: DirectionPush})
	assert.Equal(t, xerrors.PlanBreadcrumbMissing, planCode(t, err))
}

func TestPlannerExplicitResourceIDSkipsBreadcrumb(t *testing.T) {
	mem := remote.NewMemory()
	p := NewPlanner(mem, nil, nil)

	plan, err := p.Plan(context.Background(), t.TempDir(), Options{
		ResourceID: "script-abc",
		Direction:  DirectionPush,
	})
	require.NoError(t, err)
	assert.False(t, plan.HasChanges)
}

func TestPlannerAPIError(t *testing.T) {
	mem := remote.NewMemory()
	mem.ListHook = func(string) error { return errors.New("503 backend unavailable") }

	root := t.TempDir()
	require.NoError(t, manifest.SaveBreadcrumb(root, "script-abc"))

	p := NewPlanner(mem, nil, nil)
	_, err := p.Plan(context.Background(), root, Options{Direction: DirectionPush})
	assert.Equal(t, xerrors.PlanAPIError, planCode(t, err))
}

func TestPlannerBootstrapPull(t *testing.T) {
	mem := remote.NewMemory()
	mem.Seed("script-abc", remote.FileRecord{Name: "main.js", Kind: remote.KindCode, Content: "remote body"})
	mem.Seed("script-abc", remote.FileRecord{Name: "view.html", Kind: remote.KindMarkup, Content: "<p></p>"})

	root := t.TempDir()
	require.NoError(t, manifest.SaveBreadcrumb(root, "script-abc"))
	writeFile(t, root, "local-only.js", "keep me")

	p := NewPlanner(mem, nil, nil)
	plan, err := p.Plan(context.Background(), root, Options{Direction: DirectionPull, Force: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"main.js", "view.html"}, paths(plan.Add))
	assert.Empty(t, plan.Delete, "bootstrap pull must not delete local files")
}

func TestPlannerIncrementalPullDeletes(t *testing.T) {
	mem := remote.NewMemory()

	root := t.TempDir()
	require.NoError(t, manifest.SaveBreadcrumb(root, "script-abc"))
	writeFile(t, root, "gone.js", "removed upstream")

	m := manifest.New()
	m.BaselineHashes["gone.js"] = "previously reconciled"
	require.NoError(t, m.Save(root))

	p := NewPlanner(mem, nil, nil)
	plan, err := p.Plan(context.Background(), root, Options{Direction: DirectionPull, Force: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"gone.js"}, paths(plan.Delete))
}

func TestPlannerPush(t *testing.T) {
	mem := remote.NewMemory()
	mem.Seed("script-abc", remote.FileRecord{Name: "main.js", Kind: remote.KindCode, Content: "old"})

	root := t.TempDir()
	require.NoError(t, manifest.SaveBreadcrumb(root, "script-abc"))
	writeFile(t, root, "main.js", "new")
	writeFile(t, root, "fresh.js", "added locally")

	p := NewPlanner(mem, nil, nil)
	plan, err := p.Plan(context.Background(), root, Options{Direction: DirectionPush})
	require.NoError(t, err)

	assert.Equal(t, []string{"fresh.js"}, paths(plan.Add))
	assert.Equal(t, []string{"main.js"}, paths(plan.Update))
}

func TestPlannerExcludePatterns(t *testing.T) {
	mem := remote.NewMemory()
	mem.Seed("script-abc", remote.FileRecord{Name: "main.js", Kind: remote.KindCode, Content: "x"})
	mem.Seed("script-abc", remote.FileRecord{Name: "skipped.js", Kind: remote.KindCode, Content: "y"})

	root := t.TempDir()
	require.NoError(t, manifest.SaveBreadcrumb(root, "script-abc"))

	p := NewPlanner(mem, nil, nil)
	plan, err := p.Plan(context.Background(), root, Options{
		Direction:       DirectionPull,
		Force:           true,
		ExcludePatterns: []string{"skipped.js"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"main.js"}, paths(plan.Add))
}
