package operation

import (
	"context"
	"fmt"

	"scriptsync/internal/fingerprint"
	"scriptsync/internal/xerrors"

	"go.uber.org/zap"
)

// DeleteSpec identifies the remote file to remove. With no ExpectedHash the
// gate falls back to the hash observed during compute, so a file changed
// between compute and apply still surfaces as a conflict instead of being
// destroyed.
type DeleteSpec struct {
	Container    string
	Name         string
	ExpectedHash string
}

type Delete struct {
	base
	spec DeleteSpec

	computedHash string
}

func NewDelete(deps Deps, spec DeleteSpec) *Delete {
	return &Delete{base: newBase(OpDelete, deps), spec: spec}
}

func (d *Delete) ComputeChanges(ctx context.Context) (*ChangeSet, error) {
	if err := d.require(StateCreated, StateComputed); err != nil {
		return nil, err
	}

	if d.spec.Name == "" {
		return nil, xerrors.Validation("filename is required", nil)
	}

	rec, err := d.capturePrior(ctx, d.spec.Container, d.spec.Name)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, xerrors.NotFound(d.spec.Name)
	}
	d.computedHash = fingerprint.HashString(rec.Content)

	cs := NewChangeSet()
	cs.MarkDelete(d.spec.Container, d.spec.Name)

	d.state = StateComputed
	return cs, nil
}

func (d *Delete) ApplyChanges(ctx context.Context, cs *ChangeSet) (*Result, error) {
	if err := d.require(StateComputed); err != nil {
		return nil, err
	}

	entry, ok := cs.Get(d.spec.Container, d.spec.Name)
	if !ok || !entry.Delete {
		d.fail()
		return nil, xerrors.Validation(fmt.Sprintf("change set has no delete for %s", d.spec.Name), nil)
	}

	expected := d.spec.ExpectedHash
	if expected == "" {
		expected = d.computedHash
	}
	if _, err := d.gate(ctx, d.spec.Container, d.spec.Name, expected); err != nil {
		d.fail()
		return nil, err
	}

	if err := d.deps.Store.Delete(ctx, d.spec.Container, d.spec.Name); err != nil {
		d.fail()
		return nil, fmt.Errorf("deleting %s: %w", d.spec.Name, err)
	}

	d.snapshotPriors()
	d.state = StateApplied
	d.deps.logger().Info("file deleted",
		zap.String("op_id", d.id),
		zap.String("container", d.spec.Container),
		zap.String("name", d.spec.Name))

	return &Result{
		ID:            d.id,
		Kind:          OpDelete,
		Success:       true,
		AffectedPaths: []string{d.spec.Name},
	}, nil
}

func (d *Delete) Rollback(ctx context.Context) error {
	if d.state == StateCreated || d.state == StateRolledBack {
		return nil
	}
	err := d.restore(ctx, d.spec.Container, d.spec.Name)
	d.state = StateRolledBack
	return err
}

func (d *Delete) AffectedPaths() []string {
	return []string{d.spec.Name}
}

func (d *Delete) Describe() string {
	return fmt.Sprintf("delete %s in %s", d.spec.Name, d.spec.Container)
}
