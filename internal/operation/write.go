package operation

import (
	"context"
	"fmt"

	"scriptsync/internal/fingerprint"
	"scriptsync/internal/remote"
	"scriptsync/internal/xerrors"

	"go.uber.org/zap"
)

// WriteSpec describes a whole-file write. Content is the unwrapped form as
// prepared by the caller; wrapping happens during compute. ExpectedHash, when
// set, gates the apply phase against concurrent remote changes.
type WriteSpec struct {
	Container    string
	Name         string
	Kind         remote.FileKind
	Content      string
	ExpectedHash string
}

// Write creates or overwrites one remote file. It is the only variant whose
// compute phase never touches the remote: all remote I/O, including the
// conflict check, happens in apply.
type Write struct {
	base
	spec WriteSpec
}

func NewWrite(deps Deps, spec WriteSpec) *Write {
	return &Write{base: newBase(OpWrite, deps), spec: spec}
}

func (w *Write) ComputeChanges(_ context.Context) (*ChangeSet, error) {
	if err := w.require(StateCreated, StateComputed); err != nil {
		return nil, err
	}

	if w.spec.Name == "" {
		return nil, xerrors.Validation("filename is required", nil)
	}
	if !w.spec.Kind.Valid() {
		return nil, xerrors.Validation(fmt.Sprintf("unknown file kind %q", w.spec.Kind), w.spec.Kind)
	}

	content := w.spec.Content
	wrapper := w.deps.wrapper()
	if wrapper.ShouldWrap(w.spec.Kind, w.spec.Name) {
		content = wrapper.Wrap(content, moduleName(w.spec.Name), nil)
	}

	cs := NewChangeSet()
	cs.Put(w.spec.Container, w.spec.Name, content)

	w.state = StateComputed
	return cs, nil
}

func (w *Write) ApplyChanges(ctx context.Context, cs *ChangeSet) (*Result, error) {
	if err := w.require(StateComputed); err != nil {
		return nil, err
	}

	entry, ok := cs.Get(w.spec.Container, w.spec.Name)
	if !ok || entry.Delete {
		w.fail()
		return nil, xerrors.Validation(fmt.Sprintf("change set has no content for %s", w.spec.Name), nil)
	}

	// The read both arms rollback and feeds the conflict gate.
	if _, err := w.gate(ctx, w.spec.Container, w.spec.Name, w.spec.ExpectedHash); err != nil {
		w.fail()
		return nil, err
	}

	rec := remote.FileRecord{Name: w.spec.Name, Kind: w.spec.Kind, Content: entry.Content}
	if err := w.deps.Store.Write(ctx, w.spec.Container, rec); err != nil {
		w.fail()
		return nil, fmt.Errorf("writing %s: %w", w.spec.Name, err)
	}

	w.snapshotPriors()
	w.state = StateApplied
	w.deps.logger().Info("file written",
		zap.String("op_id", w.id),
		zap.String("container", w.spec.Container),
		zap.String("name", w.spec.Name))

	return &Result{
		ID:            w.id,
		Kind:          OpWrite,
		Success:       true,
		AffectedPaths: []string{w.spec.Name},
		ContentHash:   fingerprint.HashString(entry.Content),
	}, nil
}

func (w *Write) Rollback(ctx context.Context) error {
	if w.state == StateCreated || w.state == StateRolledBack {
		return nil
	}
	err := w.restore(ctx, w.spec.Container, w.spec.Name)
	w.state = StateRolledBack
	return err
}

func (w *Write) AffectedPaths() []string {
	return []string{w.spec.Name}
}

func (w *Write) Describe() string {
	return fmt.Sprintf("write %s in %s", w.spec.Name, w.spec.Container)
}
