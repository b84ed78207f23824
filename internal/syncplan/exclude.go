package syncplan

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// system prefixes are never synced in either direction.
var systemPrefixes = []string{
	".git",
	".scriptsync",
	".syncignore",
	"node_modules",
}

const ignoreFileName = ".syncignore"

// excluder filters paths out of both sides of a diff. Patterns come from
// three places: hardcoded system prefixes, the working copy's ignore file,
// and the caller's exclude options.
type excluder struct {
	patterns []string
}

func newExcluder(userPatterns []string) *excluder {
	e := &excluder{}
	e.patterns = append(e.patterns, systemPrefixes...)
	e.patterns = append(e.patterns, userPatterns...)
	return e
}

// loadIgnoreFile merges patterns from <root>/.syncignore. A missing file is
// fine; a malformed pattern is skipped at match time by filepath.Match.
func (e *excluder) loadIgnoreFile(root string) error {
	f, err := os.Open(filepath.Join(root, ignoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e.patterns = append(e.patterns, line)
	}
	return scanner.Err()
}

// Excluded reports whether the slash-separated relative path matches any
// pattern. A pattern matches the whole path, any single path component, or
// as a directory prefix.
func (e *excluder) Excluded(relPath string) bool {
	for _, pat := range e.patterns {
		if matched, _ := filepath.Match(pat, relPath); matched {
			return true
		}
		for _, part := range strings.Split(relPath, "/") {
			if matched, _ := filepath.Match(pat, part); matched {
				return true
			}
		}
		if strings.HasPrefix(relPath, strings.TrimSuffix(pat, "/")+"/") {
			return true
		}
	}
	return false
}
