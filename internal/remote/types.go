// Package remote defines the record model and client interface for the
// version-less script-project store. The store has no transactions, ETags or
// locks; every consistency guarantee is layered on top by the operation and
// lockfile packages.
package remote

import (
	"context"
	"errors"
	"path"
	"strings"
)

var ErrNotFound = errors.New("remote: file not found")

// FileKind is the closed set of file types the store understands.
type FileKind string

const (
	KindCode   FileKind = "code"   // server-side script source
	KindMarkup FileKind = "markup" // html templates
	KindData   FileKind = "data"   // json payloads, project metadata
)

// Valid reports whether the kind is one of the recognized values.
func (k FileKind) Valid() bool {
	switch k {
	case KindCode, KindMarkup, KindData:
		return true
	default:
		return false
	}
}

// Ext returns the local file extension used when materializing this kind.
func (k FileKind) Ext() string {
	switch k {
	case KindCode:
		return ".js"
	case KindMarkup:
		return ".html"
	case KindData:
		return ".json"
	default:
		return ""
	}
}

// KindForPath infers the file kind from a local path. The second return is
// false for extensions the store cannot hold.
func KindForPath(p string) (FileKind, bool) {
	switch strings.ToLower(path.Ext(p)) {
	case ".js", ".gs", ".ts":
		return KindCode, true
	case ".html":
		return KindMarkup, true
	case ".json":
		return KindData, true
	default:
		return "", false
	}
}

// FileRecord is one remote file. Content is the on-the-wire form: for code
// files that is the wrapped module text, which is also what gets hashed.
type FileRecord struct {
	Name    string   `json:"name"`
	Kind    FileKind `json:"kind"`
	Content string   `json:"content"`
}

// Store is the remote project API surface consumed by this layer.
type Store interface {
	List(ctx context.Context, containerID string) ([]FileRecord, error)
	Read(ctx context.Context, containerID, name string) (FileRecord, error)
	Write(ctx context.Context, containerID string, rec FileRecord) error
	Delete(ctx context.Context, containerID, name string) error
	ReplaceAll(ctx context.Context, containerID string, recs []FileRecord) error
}
