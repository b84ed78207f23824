package operation

import (
	"context"
	"errors"
	"testing"

	"scriptsync/internal/remote"
	"scriptsync/internal/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMove(t *testing.T) {
	ctx := context.Background()

	t.Run("Rename", func(t *testing.T) {
		deps, mem := memDeps(t)
		mem.Seed("proj", remote.FileRecord{Name: "old.js", Kind: remote.KindCode, Content: "body"})

		m := NewMove(deps, MoveSpec{
			SourceContainer: "proj", SourceName: "old.js",
			DestContainer: "proj", DestName: "new.js",
		})
		cs, err := m.ComputeChanges(ctx)
		require.NoError(t, err)

		result, err := m.ApplyChanges(ctx, cs)
		require.NoError(t, err)
		assert.Equal(t, []string{"old.js", "new.js"}, result.AffectedPaths)

		_, err = mem.Read(ctx, "proj", "old.js")
		assert.ErrorIs(t, err, remote.ErrNotFound)
		rec, err := mem.Read(ctx, "proj", "new.js")
		require.NoError(t, err)
		assert.Equal(t, "body", rec.Content)
	})

	t.Run("CrossContainer", func(t *testing.T) {
		deps, mem := memDeps(t)
		mem.Seed("src-proj", remote.FileRecord{Name: "lib.js", Kind: remote.KindCode, Content: "shared"})

		m := NewMove(deps, MoveSpec{
			SourceContainer: "src-proj", SourceName: "lib.js",
			DestContainer: "dst-proj", DestName: "lib.js",
		})
		cs, err := m.ComputeChanges(ctx)
		require.NoError(t, err)

		// Same filename on both sides: the change set must keep both legs.
		require.Equal(t, 2, cs.Len())
		entry, ok := cs.Get("dst-proj", "lib.js")
		require.True(t, ok)
		assert.False(t, entry.Delete)
		assert.Equal(t, "shared", entry.Content)
		entry, ok = cs.Get("src-proj", "lib.js")
		require.True(t, ok)
		assert.True(t, entry.Delete)

		_, err = m.ApplyChanges(ctx, cs)
		require.NoError(t, err)

		rec, err := mem.Read(ctx, "dst-proj", "lib.js")
		require.NoError(t, err)
		assert.Equal(t, "shared", rec.Content)
		_, err = mem.Read(ctx, "src-proj", "lib.js")
		assert.ErrorIs(t, err, remote.ErrNotFound)
	})

	t.Run("SourceMissing", func(t *testing.T) {
		deps, _ := memDeps(t)
		m := NewMove(deps, MoveSpec{
			SourceContainer: "proj", SourceName: "ghost.js",
			DestContainer: "proj", DestName: "new.js",
		})
		_, err := m.ComputeChanges(ctx)
		assert.True(t, xerrors.IsNotFound(err))
	})

	t.Run("DestinationExists", func(t *testing.T) {
		deps, mem := memDeps(t)
		mem.Seed("proj", remote.FileRecord{Name: "a.js", Kind: remote.KindCode, Content: "a"})
		mem.Seed("proj", remote.FileRecord{Name: "b.js", Kind: remote.KindCode, Content: "b"})

		m := NewMove(deps, MoveSpec{
			SourceContainer: "proj", SourceName: "a.js",
			DestContainer: "proj", DestName: "b.js",
		})
		_, err := m.ComputeChanges(ctx)
		assert.True(t, xerrors.IsValidation(err))
	})

	t.Run("PartialFailureRollsBack", func(t *testing.T) {
		deps, mem := memDeps(t)
		mem.Seed("proj", remote.FileRecord{Name: "old.js", Kind: remote.KindCode, Content: "body"})

		m := NewMove(deps, MoveSpec{
			SourceContainer: "proj", SourceName: "old.js",
			DestContainer: "proj", DestName: "new.js",
		})
		cs, err := m.ComputeChanges(ctx)
		require.NoError(t, err)

		// Destination write succeeds, source delete fails.
		boom := errors.New("remote hiccup")
		mem.DeleteHook = func(_, name string) error {
			if name == "old.js" {
				return boom
			}
			return nil
		}

		_, err = m.ApplyChanges(ctx, cs)
		require.ErrorIs(t, err, boom)

		mem.DeleteHook = nil
		require.NoError(t, m.Rollback(ctx))

		// Source intact, destination leg undone.
		rec, err := mem.Read(ctx, "proj", "old.js")
		require.NoError(t, err)
		assert.Equal(t, "body", rec.Content)
		_, err = mem.Read(ctx, "proj", "new.js")
		assert.ErrorIs(t, err, remote.ErrNotFound)
	})
}
