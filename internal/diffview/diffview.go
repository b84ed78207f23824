// Package diffview renders human-readable unified diffs for conflict reports
// and sync plans. It uses github.com/pmezard/go-difflib for the classic
// unified format.
package diffview

import (
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// Diff is a rendered textual diff plus line-change counts.
type Diff struct {
	Format       string `json:"format"`
	Content      string `json:"content"`
	LinesAdded   int    `json:"lines_added"`
	LinesRemoved int    `json:"lines_removed"`
}

// Unified builds a unified diff between two versions of a file. The "old"
// side is what the caller expected, the "new" side what was actually found.
func Unified(path, old, new string) (*Diff, error) {
	u := difflib.UnifiedDiff{
		A:        difflib.SplitLines(old),
		B:        difflib.SplitLines(new),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	}

	text, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return nil, err
	}

	d := &Diff{Format: "unified", Content: text}
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			d.LinesAdded++
		case strings.HasPrefix(line, "-"):
			d.LinesRemoved++
		}
	}
	return d, nil
}
