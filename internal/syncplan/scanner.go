package syncplan

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"scriptsync/internal/fingerprint"
	"scriptsync/internal/remote"
	"scriptsync/internal/wrap"

	"go.uber.org/zap"
)

// Scanner walks a local working copy and produces the fingerprinted file
// set for diffing. Only extensions the remote store can hold are eligible;
// content is wrapped before hashing so local fingerprints line up with
// remote wire-form fingerprints.
type Scanner struct {
	root    string
	exclude *excluder
	wrapper wrap.Transformer
	logger  *zap.Logger
}

func NewScanner(root string, exclude *excluder, wrapper wrap.Transformer, logger *zap.Logger) *Scanner {
	if wrapper == nil {
		wrapper = wrap.Passthrough{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{root: root, exclude: exclude, wrapper: wrapper, logger: logger}
}

// Scan returns every eligible file under the root, keyed by its
// slash-separated relative path.
func (s *Scanner) Scan() (FileSet, error) {
	set := make(FileSet)

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if s.skipDir(d.Name(), rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if s.exclude != nil && s.exclude.Excluded(rel) {
			return nil
		}
		kind, ok := remote.KindForPath(rel)
		if !ok {
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}

		content := string(data)
		if s.wrapper.ShouldWrap(kind, rel) {
			content = s.wrapper.Wrap(content, moduleNameFor(rel), nil)
		}

		set[rel] = FileDescriptor{
			Path:        rel,
			Content:     content,
			Fingerprint: fingerprint.File(rel, []byte(content)),
			Origin:      OriginLocal,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("local scan complete",
		zap.String("root", s.root),
		zap.Int("files", len(set)))
	return set, nil
}

func (s *Scanner) skipDir(name, rel string) bool {
	if strings.HasPrefix(name, ".") || name == "node_modules" {
		return true
	}
	return s.exclude != nil && s.exclude.Excluded(rel)
}

func moduleNameFor(rel string) string {
	base := path.Base(rel)
	return strings.TrimSuffix(base, path.Ext(base))
}
