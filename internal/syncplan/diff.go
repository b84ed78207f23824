// Package syncplan computes read-only reconciliation plans between a local
// working copy and a remote script project. Nothing in this package mutates
// either side; a plan is advisory output for an executor.
package syncplan

import (
	"sort"

	"scriptsync/internal/diffview"
	"scriptsync/internal/fingerprint"
	"scriptsync/internal/manifest"
)

// Direction selects which side is the source of truth for the plan.
type Direction string

const (
	DirectionPull Direction = "pull" // remote wins
	DirectionPush Direction = "push" // local wins
)

func (d Direction) Valid() bool {
	return d == DirectionPull || d == DirectionPush
}

// Origin marks which side a descriptor's content came from.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// FileDescriptor is one file as seen by the diff: content is the wire form
// (post-wrap) and the fingerprint is computed over it. Display, when set,
// is an unwrapped rendering of an update for human review.
type FileDescriptor struct {
	Path        string
	Content     string
	Fingerprint fingerprint.Fingerprint
	Origin      Origin
	Display     *diffview.Diff
}

// FileSet indexes descriptors by path.
type FileSet map[string]FileDescriptor

// Plan is the classified outcome of one diff computation. One-shot: never
// persisted, consumed by an executor outside this package.
type Plan struct {
	Direction       Direction
	Add             []FileDescriptor
	Update          []FileDescriptor
	Delete          []FileDescriptor
	HasChanges      bool
	TotalOperations int
}

// ComputeDiff classifies every path present on either side.
//
// Source-only paths become adds. Destination-only paths become deletes only
// when the baseline proves the source once had them; otherwise they are left
// alone, since the destination may own them independently. When no manifest
// exists at all this is the first contact with the project and nothing is
// ever deleted. Paths on both sides update when fingerprints differ.
func ComputeDiff(direction Direction, source, dest FileSet, baseline *manifest.Manifest) *Plan {
	plan := &Plan{Direction: direction}
	bootstrap := baseline == nil || baseline.IsBootstrap

	for path, src := range source {
		dst, onDest := dest[path]
		if !onDest {
			plan.Add = append(plan.Add, src)
			continue
		}
		if fingerprint.Equal(src.Fingerprint.ContentHash, dst.Fingerprint.ContentHash) {
			continue
		}
		upd := src
		if d, err := diffview.Unified(path, dst.Content, src.Content); err == nil {
			upd.Display = d
		}
		plan.Update = append(plan.Update, upd)
	}

	for path, dst := range dest {
		if _, onSource := source[path]; onSource {
			continue
		}
		if bootstrap {
			continue
		}
		if _, inBaseline := baseline.BaselineHashes[path]; !inBaseline {
			continue
		}
		plan.Delete = append(plan.Delete, dst)
	}

	sortByPath(plan.Add)
	sortByPath(plan.Update)
	sortByPath(plan.Delete)

	plan.TotalOperations = len(plan.Add) + len(plan.Update) + len(plan.Delete)
	plan.HasChanges = plan.TotalOperations > 0
	return plan
}

func sortByPath(fds []FileDescriptor) {
	sort.Slice(fds, func(i, j int) bool { return fds[i].Path < fds[j].Path })
}
