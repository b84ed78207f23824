package operation

import (
	"context"
	"fmt"
	"sort"

	"scriptsync/internal/fingerprint"
	"scriptsync/internal/fuzzy"
	"scriptsync/internal/remote"
	"scriptsync/internal/xerrors"

	"go.uber.org/zap"
)

// DefaultThreshold is the similarity floor used when an edit does not set
// its own.
const DefaultThreshold = 0.8

// Edit is one search/replace pair. Threshold is on a 0..1 scale; zero means
// DefaultThreshold.
type Edit struct {
	Search    string
	Replace   string
	Threshold float64
}

// FuzzyEditSpec applies up to MaxEdits approximate edits to one remote file
// in a single logical change.
type FuzzyEditSpec struct {
	Container    string
	Name         string
	Edits        []Edit
	ExpectedHash string
}

type FuzzyEdit struct {
	base
	spec FuzzyEditSpec

	computedHash string
}

type resolvedEdit struct {
	index   int // position in spec.Edits, for error messages
	start   int
	end     int
	replace string
}

func NewFuzzyEdit(deps Deps, spec FuzzyEditSpec) *FuzzyEdit {
	return &FuzzyEdit{base: newBase(OpFuzzyEdit, deps), spec: spec}
}

func (f *FuzzyEdit) ComputeChanges(ctx context.Context) (*ChangeSet, error) {
	if err := f.require(StateCreated, StateComputed); err != nil {
		return nil, err
	}
	if err := f.validate(); err != nil {
		return nil, err
	}

	rec, err := f.capturePrior(ctx, f.spec.Container, f.spec.Name)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, xerrors.NotFound(f.spec.Name)
	}
	f.computedHash = fingerprint.HashString(rec.Content)

	inner, opts, wrapped, err := f.unwrap(rec)
	if err != nil {
		return nil, err
	}

	resolved, err := f.resolve(inner)
	if err != nil {
		return nil, err
	}

	// Descending offset order: earlier replacements never shift the
	// already-resolved offsets of later ones.
	sort.Slice(resolved, func(i, j int) bool { return resolved[i].start > resolved[j].start })
	edited := inner
	for _, r := range resolved {
		edited = edited[:r.start] + r.replace + edited[r.end:]
	}

	content := edited
	if wrapped {
		content = f.deps.wrapper().Wrap(edited, moduleName(f.spec.Name), opts)
	}

	cs := NewChangeSet()
	cs.Put(f.spec.Container, f.spec.Name, content)

	f.state = StateComputed
	return cs, nil
}

func (f *FuzzyEdit) validate() error {
	if f.spec.Name == "" {
		return xerrors.Validation("filename is required", nil)
	}
	if len(f.spec.Edits) == 0 {
		return xerrors.Validation("at least one edit is required", nil)
	}
	if max := f.deps.maxEdits(); len(f.spec.Edits) > max {
		return xerrors.Validation(fmt.Sprintf("too many edits: %d exceeds limit of %d", len(f.spec.Edits), max), len(f.spec.Edits))
	}
	for i, e := range f.spec.Edits {
		if e.Search == "" {
			return xerrors.Validation(fmt.Sprintf("edit %d has an empty search pattern", i+1), nil)
		}
		if max := f.deps.maxSearchSize(); len(e.Search) > max {
			return xerrors.Validation(fmt.Sprintf("edit %d search pattern is %d bytes, limit is %d", i+1, len(e.Search), max), nil)
		}
	}
	return nil
}

func (f *FuzzyEdit) unwrap(rec *remote.FileRecord) (inner string, opts map[string]string, wrapped bool, err error) {
	wrapper := f.deps.wrapper()
	if !wrapper.ShouldWrap(rec.Kind, rec.Name) {
		return rec.Content, nil, false, nil
	}
	inner, opts, err = wrapper.Unwrap(rec.Content)
	if err != nil {
		return "", nil, false, fmt.Errorf("unwrapping %s: %w", rec.Name, err)
	}
	return inner, opts, true, nil
}

// resolve locates every edit's region in the original content and rejects
// overlaps before anything is applied.
func (f *FuzzyEdit) resolve(content string) ([]resolvedEdit, error) {
	resolved := make([]resolvedEdit, 0, len(f.spec.Edits))
	for i, e := range f.spec.Edits {
		threshold := e.Threshold
		if threshold == 0 {
			threshold = DefaultThreshold
		}
		region, ok := fuzzy.Match(content, e.Search, threshold)
		if !ok {
			return nil, xerrors.Match(fmt.Sprintf(
				"edit %d: no region matched above threshold %.2f (best score %.2f)",
				i+1, threshold, region.Score))
		}
		resolved = append(resolved, resolvedEdit{index: i, start: region.Start, end: region.End, replace: e.Replace})
	}

	byStart := make([]resolvedEdit, len(resolved))
	copy(byStart, resolved)
	sort.Slice(byStart, func(i, j int) bool { return byStart[i].start < byStart[j].start })
	for i := 1; i < len(byStart); i++ {
		if byStart[i].start < byStart[i-1].end {
			return nil, xerrors.Match(fmt.Sprintf(
				"edits %d and %d match overlapping regions",
				byStart[i-1].index+1, byStart[i].index+1))
		}
	}
	return resolved, nil
}

func (f *FuzzyEdit) ApplyChanges(ctx context.Context, cs *ChangeSet) (*Result, error) {
	if err := f.require(StateComputed); err != nil {
		return nil, err
	}

	entry, ok := cs.Get(f.spec.Container, f.spec.Name)
	if !ok || entry.Delete {
		f.fail()
		return nil, xerrors.Validation(fmt.Sprintf("change set has no content for %s", f.spec.Name), nil)
	}

	expected := f.spec.ExpectedHash
	if expected == "" {
		expected = f.computedHash
	}
	rec, err := f.gate(ctx, f.spec.Container, f.spec.Name, expected)
	if err != nil {
		f.fail()
		return nil, err
	}
	if rec == nil {
		f.fail()
		return nil, xerrors.NotFound(f.spec.Name)
	}

	out := remote.FileRecord{Name: f.spec.Name, Kind: rec.Kind, Content: entry.Content}
	if err := f.deps.Store.Write(ctx, f.spec.Container, out); err != nil {
		f.fail()
		return nil, fmt.Errorf("writing %s: %w", f.spec.Name, err)
	}

	f.snapshotPriors()
	f.state = StateApplied
	f.deps.logger().Info("fuzzy edits applied",
		zap.String("op_id", f.id),
		zap.String("name", f.spec.Name),
		zap.Int("edits", len(f.spec.Edits)))

	return &Result{
		ID:            f.id,
		Kind:          OpFuzzyEdit,
		Success:       true,
		AffectedPaths: []string{f.spec.Name},
		ContentHash:   fingerprint.HashString(entry.Content),
	}, nil
}

func (f *FuzzyEdit) Rollback(ctx context.Context) error {
	if f.state == StateCreated || f.state == StateRolledBack {
		return nil
	}
	err := f.restore(ctx, f.spec.Container, f.spec.Name)
	f.state = StateRolledBack
	return err
}

func (f *FuzzyEdit) AffectedPaths() []string {
	return []string{f.spec.Name}
}

func (f *FuzzyEdit) Describe() string {
	return fmt.Sprintf("apply %d fuzzy edits to %s in %s", len(f.spec.Edits), f.spec.Name, f.spec.Container)
}
