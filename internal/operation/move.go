package operation

import (
	"context"
	"errors"
	"fmt"

	"scriptsync/internal/fingerprint"
	"scriptsync/internal/remote"
	"scriptsync/internal/xerrors"

	"go.uber.org/zap"
)

// MoveSpec describes a rename or cross-container move. The store has no
// native rename, so a move is a create at the destination followed by a
// delete at the source; partial failure rolls back whichever leg succeeded.
type MoveSpec struct {
	SourceContainer string
	SourceName      string
	DestContainer   string
	DestName        string
	ExpectedHash    string
}

type Move struct {
	base
	spec MoveSpec

	computedHash string
	destWritten  bool
	srcDeleted   bool
}

func NewMove(deps Deps, spec MoveSpec) *Move {
	return &Move{base: newBase(OpMove, deps), spec: spec}
}

func (m *Move) ComputeChanges(ctx context.Context) (*ChangeSet, error) {
	if err := m.require(StateCreated, StateComputed); err != nil {
		return nil, err
	}

	if m.spec.SourceName == "" || m.spec.DestName == "" {
		return nil, xerrors.Validation("source and destination filenames are required", nil)
	}
	if m.spec.SourceContainer == m.spec.DestContainer && m.spec.SourceName == m.spec.DestName {
		return nil, xerrors.Validation("source and destination are the same file", m.spec.SourceName)
	}

	src, err := m.capturePrior(ctx, m.spec.SourceContainer, m.spec.SourceName)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, xerrors.NotFound(m.spec.SourceName)
	}
	m.computedHash = fingerprint.HashString(src.Content)

	dst, err := m.capturePrior(ctx, m.spec.DestContainer, m.spec.DestName)
	if err != nil {
		return nil, err
	}
	if dst != nil {
		return nil, xerrors.Validation(fmt.Sprintf("destination %s already exists", m.spec.DestName), nil)
	}

	cs := NewChangeSet()
	cs.Put(m.spec.DestContainer, m.spec.DestName, src.Content)
	cs.MarkDelete(m.spec.SourceContainer, m.spec.SourceName)

	m.state = StateComputed
	return cs, nil
}

func (m *Move) ApplyChanges(ctx context.Context, cs *ChangeSet) (*Result, error) {
	if err := m.require(StateComputed); err != nil {
		return nil, err
	}

	entry, ok := cs.Get(m.spec.DestContainer, m.spec.DestName)
	if !ok || entry.Delete {
		m.fail()
		return nil, xerrors.Validation(fmt.Sprintf("change set has no content for %s", m.spec.DestName), nil)
	}

	expected := m.spec.ExpectedHash
	if expected == "" {
		expected = m.computedHash
	}
	src, err := m.gate(ctx, m.spec.SourceContainer, m.spec.SourceName, expected)
	if err != nil {
		m.fail()
		return nil, err
	}
	if src == nil {
		m.fail()
		return nil, xerrors.NotFound(m.spec.SourceName)
	}

	// Destination leg first so a failure leaves the source untouched.
	dstRec := remote.FileRecord{Name: m.spec.DestName, Kind: src.Kind, Content: entry.Content}
	if err := m.deps.Store.Write(ctx, m.spec.DestContainer, dstRec); err != nil {
		m.fail()
		return nil, fmt.Errorf("writing destination %s: %w", m.spec.DestName, err)
	}
	m.destWritten = true

	if err := m.deps.Store.Delete(ctx, m.spec.SourceContainer, m.spec.SourceName); err != nil {
		m.fail()
		return nil, fmt.Errorf("deleting source %s: %w", m.spec.SourceName, err)
	}
	m.srcDeleted = true

	m.snapshotPriors()
	m.state = StateApplied
	m.deps.logger().Info("file moved",
		zap.String("op_id", m.id),
		zap.String("source", m.spec.SourceName),
		zap.String("destination", m.spec.DestName))

	return &Result{
		ID:            m.id,
		Kind:          OpMove,
		Success:       true,
		AffectedPaths: []string{m.spec.SourceName, m.spec.DestName},
		ContentHash:   fingerprint.HashString(entry.Content),
	}, nil
}

// Rollback undoes whichever legs completed: restores the source if its
// delete went through, removes the destination if its write went through.
func (m *Move) Rollback(ctx context.Context) error {
	if m.state == StateCreated || m.state == StateRolledBack {
		return nil
	}

	var errs []error
	if m.srcDeleted {
		if err := m.restore(ctx, m.spec.SourceContainer, m.spec.SourceName); err != nil {
			errs = append(errs, err)
		}
	}
	if m.destWritten {
		err := m.deps.Store.Delete(ctx, m.spec.DestContainer, m.spec.DestName)
		if err != nil && !errors.Is(err, remote.ErrNotFound) {
			errs = append(errs, fmt.Errorf("removing destination %s during rollback: %w", m.spec.DestName, err))
		}
	}
	m.state = StateRolledBack
	return errors.Join(errs...)
}

func (m *Move) AffectedPaths() []string {
	return []string{m.spec.SourceName, m.spec.DestName}
}

func (m *Move) Describe() string {
	return fmt.Sprintf("move %s to %s", m.spec.SourceName, m.spec.DestName)
}
