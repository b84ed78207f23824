// Package wrap declares the module wrap/unwrap collaborator. The consistency
// layer treats wrapping as an opaque, reversible content transform and always
// hashes the wrapped form, because that is what the remote store holds.
package wrap

import "scriptsync/internal/remote"

// Options carries wrapper metadata (module flags) extracted on unwrap and
// reapplied on wrap. A change in options alone still changes the wrapped
// bytes, so fingerprints pick it up as a content change.
type Options map[string]string

// Transformer brackets user code with module scaffolding before storage and
// strips it again for display.
type Transformer interface {
	ShouldWrap(kind remote.FileKind, name string) bool
	Wrap(content, moduleName string, opts Options) string
	Unwrap(content string) (inner string, opts Options, err error)
}

// Passthrough is the identity transform for stores that hold raw content.
type Passthrough struct{}

func (Passthrough) ShouldWrap(remote.FileKind, string) bool { return false }

func (Passthrough) Wrap(content, _ string, _ Options) string { return content }

func (Passthrough) Unwrap(content string) (string, Options, error) {
	return content, nil, nil
}
