// Package watch observes a working copy for drift from the last synced
// baseline. Changed files are re-fingerprinted on every filesystem event and
// compared against the manifest; divergence is logged and emitted for
// interactive consumers.
package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"scriptsync/internal/fingerprint"
	"scriptsync/internal/manifest"
	"scriptsync/internal/remote"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// EventKind classifies one observed drift event.
type EventKind string

const (
	DriftModified EventKind = "modified" // content differs from baseline
	DriftAdded    EventKind = "added"    // file not in baseline
	DriftRemoved  EventKind = "removed"  // baseline file gone locally
	DriftReverted EventKind = "reverted" // content matches baseline again
)

// Event is one drift observation.
type Event struct {
	Path         string
	Kind         EventKind
	Hash         string
	BaselineHash string
}

// Watcher follows filesystem events under a working copy root and compares
// eligible files against the sync baseline.
type Watcher struct {
	root    string
	watcher *fsnotify.Watcher
	events  chan Event
	done    chan struct{}
	logger  *zap.Logger

	ignoreDirs map[string]bool

	mu       sync.RWMutex
	baseline map[string]string
}

// New builds a watcher over root and starts its event loop. The baseline is
// read from the working copy's manifest; an absent manifest means every
// eligible file reports as added.
func New(root string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		root:    root,
		watcher: fsw,
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
		logger:  logger,
		ignoreDirs: map[string]bool{
			".git":         true,
			".scriptsync":  true,
			"node_modules": true,
			"vendor":       true,
			"dist":         true,
			"build":        true,
		},
		baseline: make(map[string]string),
	}

	if err := w.RefreshBaseline(); err != nil {
		fsw.Close()
		return nil, err
	}
	if err := w.addDirs(); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

// Events delivers drift observations. The channel closes when the watcher
// is closed.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// RefreshBaseline reloads the manifest, e.g. after a completed sync.
func (w *Watcher) RefreshBaseline() error {
	m, err := manifest.Load(w.root)
	if err != nil {
		return fmt.Errorf("loading baseline: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.baseline = make(map[string]string)
	if m != nil {
		for path, hash := range m.BaselineHashes {
			w.baseline[path] = hash
		}
	}
	return nil
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) addDirs() error {
	return filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && w.shouldIgnore(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer close(w.events)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if w.pathIgnored(rel) {
		return
	}

	// New directories join the watch set.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Error("watching new directory", zap.String("path", rel), zap.Error(err))
			}
			return
		}
	}

	if _, eligible := remote.KindForPath(rel); !eligible {
		return
	}

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.reportRemoval(rel)
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.reportContent(rel, event.Name)
	}
}

func (w *Watcher) reportRemoval(rel string) {
	w.mu.RLock()
	baselineHash, known := w.baseline[rel]
	w.mu.RUnlock()
	if !known {
		return
	}
	w.emit(Event{Path: rel, Kind: DriftRemoved, BaselineHash: baselineHash})
}

func (w *Watcher) reportContent(rel, abs string) {
	data, err := os.ReadFile(abs)
	if err != nil {
		// Editors often remove and recreate on save; the follow-up event
		// will catch the final content.
		return
	}
	hash := fingerprint.Hash(data)

	w.mu.RLock()
	baselineHash, known := w.baseline[rel]
	w.mu.RUnlock()

	switch {
	case !known:
		w.emit(Event{Path: rel, Kind: DriftAdded, Hash: hash})
	case fingerprint.Equal(hash, baselineHash):
		w.emit(Event{Path: rel, Kind: DriftReverted, Hash: hash, BaselineHash: baselineHash})
	default:
		w.emit(Event{Path: rel, Kind: DriftModified, Hash: hash, BaselineHash: baselineHash})
	}
}

func (w *Watcher) emit(ev Event) {
	w.logger.Info("drift detected",
		zap.String("path", ev.Path),
		zap.String("kind", string(ev.Kind)))

	select {
	case w.events <- ev:
	default:
		w.logger.Warn("event buffer full, dropping drift event", zap.String("path", ev.Path))
	}
}

func (w *Watcher) shouldIgnore(dirName string) bool {
	return strings.HasPrefix(dirName, ".") || w.ignoreDirs[dirName]
}

func (w *Watcher) pathIgnored(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if w.shouldIgnore(part) {
			return true
		}
	}
	return false
}
