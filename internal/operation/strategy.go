// Package operation implements the two-phase mutation protocol against the
// remote store. Every mutating action follows the same contract: compute a
// change set with no side effects, apply it remotely behind an optimistic
// concurrency gate, and roll back on failure using content captured before
// the mutation.
package operation

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"scriptsync/internal/diffview"
	"scriptsync/internal/fingerprint"
	"scriptsync/internal/remote"
	"scriptsync/internal/snapshot"
	"scriptsync/internal/wrap"
	"scriptsync/internal/xerrors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State tracks an operation instance through its lifecycle. Applied and
// RolledBack are terminal; instances are never reused for a second cycle.
type State int

const (
	StateCreated State = iota
	StateComputed
	StateApplied
	StateFailed
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateComputed:
		return "computed"
	case StateApplied:
		return "applied"
	case StateFailed:
		return "failed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

type OpKind string

const (
	OpWrite     OpKind = "write"
	OpDelete    OpKind = "delete"
	OpMove      OpKind = "move"
	OpFuzzyEdit OpKind = "fuzzy-edit"
)

// Result is the immutable outcome of a successful apply phase. ContentHash
// is the hash of the resulting remote content, for the caller's next
// optimistic-concurrency check; empty after a delete.
type Result struct {
	ID            string   `json:"id"`
	Kind          OpKind   `json:"kind"`
	Success       bool     `json:"success"`
	AffectedPaths []string `json:"affected_paths"`
	ContentHash   string   `json:"content_hash,omitempty"`
}

// Strategy is the uniform contract for every mutating action. Callers invoke
// ComputeChanges, may validate or transform the change set, then
// ApplyChanges; on any failure after compute they invoke Rollback.
// Rollback's error is for logging only and must never replace the original
// failure.
type Strategy interface {
	ComputeChanges(ctx context.Context) (*ChangeSet, error)
	ApplyChanges(ctx context.Context, cs *ChangeSet) (*Result, error)
	Rollback(ctx context.Context) error
	AffectedPaths() []string
	Describe() string
}

// Deps carries the collaborators every strategy needs. Snapshots is optional;
// when present, apply phases record pre-mutation content under the operation
// id.
type Deps struct {
	Store         remote.Store
	Wrapper       wrap.Transformer
	Snapshots     *snapshot.Store
	Logger        *zap.Logger
	MaxEdits      int // fuzzy edit count ceiling, 0 = 20
	MaxSearchSize int // fuzzy search pattern ceiling in bytes, 0 = 1000
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d Deps) wrapper() wrap.Transformer {
	if d.Wrapper == nil {
		return wrap.Passthrough{}
	}
	return d.Wrapper
}

func (d Deps) maxEdits() int {
	if d.MaxEdits == 0 {
		return 20
	}
	return d.MaxEdits
}

func (d Deps) maxSearchSize() int {
	if d.MaxSearchSize == 0 {
		return 1000
	}
	return d.MaxSearchSize
}

// base holds the lifecycle plumbing shared by all strategy variants.
type base struct {
	id    string
	kind  OpKind
	deps  Deps
	state State

	// prior maps container/name to the record read before mutation; a nil
	// value means the file did not exist remotely. Rollback replays this map.
	prior map[string]*remote.FileRecord
}

func newBase(kind OpKind, deps Deps) base {
	return base{
		id:    uuid.New().String(),
		kind:  kind,
		deps:  deps,
		prior: make(map[string]*remote.FileRecord),
	}
}

func (b *base) require(allowed ...State) error {
	for _, s := range allowed {
		if b.state == s {
			return nil
		}
	}
	return fmt.Errorf("operation %s is %s, cannot proceed", b.id, b.state)
}

func (b *base) fail() {
	b.state = StateFailed
}

func priorKey(container, name string) string {
	return container + "/" + name
}

// capturePrior reads the current remote record for rollback, recording
// absence as a nil entry. Re-reads overwrite earlier captures only before
// the first apply.
func (b *base) capturePrior(ctx context.Context, container, name string) (*remote.FileRecord, error) {
	rec, err := b.deps.Store.Read(ctx, container, name)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			b.prior[priorKey(container, name)] = nil
			return nil, nil
		}
		return nil, fmt.Errorf("reading remote %s: %w", name, err)
	}
	b.prior[priorKey(container, name)] = &rec
	return &rec, nil
}

// gate is the optimistic-concurrency check. It re-reads the remote record
// and fails with a Conflict if its hash differs from expectedHash. An empty
// expectedHash skips the check. The fresh read also refreshes the rollback
// capture so a forced overwrite still restores the true prior content.
func (b *base) gate(ctx context.Context, container, name, expectedHash string) (*remote.FileRecord, error) {
	// The compute-phase capture, if any, holds the content the caller
	// believed was current; keep it before the fresh read replaces it.
	computed, hadCapture := b.prior[priorKey(container, name)]

	rec, err := b.capturePrior(ctx, container, name)
	if err != nil {
		return nil, err
	}

	if expectedHash == "" {
		return rec, nil
	}

	current := ""
	if rec != nil {
		current = fingerprint.HashString(rec.Content)
	}
	if fingerprint.Equal(expectedHash, current) {
		return rec, nil
	}

	details := xerrors.ConflictDetails{
		Path:         name,
		ExpectedHash: expectedHash,
		CurrentHash:  current,
	}
	if computed != nil && rec != nil && fingerprint.HashString(computed.Content) == expectedHash {
		if d, derr := diffview.Unified(name, computed.Content, rec.Content); derr == nil {
			details.Diff = d
		}
	}
	// A refused gate must leave rollback state untouched; the operation has
	// mutated nothing yet.
	if hadCapture {
		b.prior[priorKey(container, name)] = computed
	} else {
		delete(b.prior, priorKey(container, name))
	}
	return nil, xerrors.Conflict(details)
}

// snapshotPriors persists all captured pre-images under this operation's id.
// Best effort: a snapshot failure never fails the operation.
func (b *base) snapshotPriors() {
	if b.deps.Snapshots == nil {
		return
	}

	tags := make(map[string]string, len(b.prior))
	for key, rec := range b.prior {
		if rec == nil {
			tags[key] = ""
			continue
		}
		hash, err := b.deps.Snapshots.Store([]byte(rec.Content))
		if err != nil {
			b.deps.logger().Warn("snapshotting prior content failed",
				zap.String("op_id", b.id),
				zap.String("path", key),
				zap.Error(err))
			continue
		}
		tags[key] = hash
	}
	if err := b.deps.Snapshots.Tag(b.id, tags); err != nil {
		b.deps.logger().Warn("tagging operation snapshot failed",
			zap.String("op_id", b.id),
			zap.Error(err))
	}
}

// restore undoes the mutation for one captured path: deletes what never
// existed, rewrites what did.
func (b *base) restore(ctx context.Context, container, name string) error {
	p, ok := b.prior[priorKey(container, name)]
	if !ok {
		return nil
	}
	if p == nil {
		err := b.deps.Store.Delete(ctx, container, name)
		if err != nil && !errors.Is(err, remote.ErrNotFound) {
			return fmt.Errorf("deleting %s during rollback: %w", name, err)
		}
		return nil
	}
	if err := b.deps.Store.Write(ctx, container, *p); err != nil {
		return fmt.Errorf("restoring %s during rollback: %w", name, err)
	}
	return nil
}

func moduleName(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

// Execute drives a strategy through the full protocol: compute, optional
// external transform, apply, and rollback on failure. Rollback errors are
// logged and never replace the original failure.
func Execute(ctx context.Context, s Strategy, transform func(*ChangeSet) (*ChangeSet, error), logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cs, err := s.ComputeChanges(ctx)
	if err != nil {
		return nil, err
	}

	if transform != nil {
		cs, err = transform(cs)
		if err != nil {
			rollback(ctx, s, logger)
			return nil, err
		}
	}

	result, err := s.ApplyChanges(ctx, cs)
	if err != nil {
		rollback(ctx, s, logger)
		return nil, err
	}
	return result, nil
}

func rollback(ctx context.Context, s Strategy, logger *zap.Logger) {
	if err := s.Rollback(ctx); err != nil {
		logger.Warn("rollback failed, remote may be left mutated",
			zap.String("operation", s.Describe()),
			zap.Error(err))
	}
}
