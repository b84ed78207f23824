// Package manifest persists the per-working-copy sync state: the baseline
// hashes recorded by the last successful sync, and the breadcrumb tying the
// working copy to its remote project. Both live under <root>/.scriptsync.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	stateDir       = ".scriptsync"
	manifestFile   = "manifest.json"
	breadcrumbFile = "project.json"
)

// Manifest records the reconciliation baseline. BaselineHashes maps each
// path the last sync touched to the content hash it agreed on; diffing uses
// it to tell an intentional removal from a file the other side never saw.
type Manifest struct {
	IsBootstrap    bool              `json:"is_bootstrap"`
	BaselineHashes map[string]string `json:"baseline_hashes"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Breadcrumb ties a local working copy to its remote project.
type Breadcrumb struct {
	ResourceID string    `json:"resource_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// New returns a manifest for a working copy that has never synced.
func New() *Manifest {
	return &Manifest{
		IsBootstrap:    true,
		BaselineHashes: make(map[string]string),
	}
}

// Load reads the manifest under root. A missing manifest is not an error:
// it returns (nil, nil), which callers treat as the bootstrap signal.
func Load(root string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, stateDir, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.BaselineHashes == nil {
		m.BaselineHashes = make(map[string]string)
	}
	return &m, nil
}

// Save writes the manifest atomically via a temp file and rename, stamping
// UpdatedAt. A manifest is only ever saved after a successful sync, so the
// working copy exits bootstrap here: the next diff may infer deletes from
// the recorded baseline.
func (m *Manifest) Save(root string) error {
	m.IsBootstrap = false
	m.UpdatedAt = time.Now().UTC()
	return writeJSON(filepath.Join(root, stateDir, manifestFile), m)
}

// LoadBreadcrumb reads the project breadcrumb under root. Missing file
// returns (nil, nil).
func LoadBreadcrumb(root string) (*Breadcrumb, error) {
	data, err := os.ReadFile(filepath.Join(root, stateDir, breadcrumbFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading breadcrumb: %w", err)
	}

	var b Breadcrumb
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing breadcrumb: %w", err)
	}
	return &b, nil
}

// SaveBreadcrumb registers the remote project this working copy syncs with.
func SaveBreadcrumb(root, resourceID string) error {
	b := Breadcrumb{ResourceID: resourceID, CreatedAt: time.Now().UTC()}
	return writeJSON(filepath.Join(root, stateDir, breadcrumbFile), &b)
}

func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
