// Package fuzzy locates the best approximate match for a search block inside
// file content. Scores are on a 0..1 scale using the classic sequence-matcher
// ratio: 2*LCS / (len(a)+len(b)).
package fuzzy

import "strings"

// Region is a matched byte range in the haystack with its similarity score.
type Region struct {
	Start int
	End   int
	Score float64
}

// Match finds the region of haystack most similar to needle. The second
// return is true only when the best score reaches threshold. An exact
// substring match short-circuits at score 1.0.
//
// Approximate candidates are aligned on line boundaries: for every starting
// line the window spans the same number of lines as the needle, plus or
// minus one to tolerate inserted or removed lines.
func Match(haystack, needle string, threshold float64) (Region, bool) {
	if needle == "" {
		return Region{}, false
	}

	if idx := strings.Index(haystack, needle); idx >= 0 {
		return Region{Start: idx, End: idx + len(needle), Score: 1.0}, true
	}

	lines := lineSpans(haystack)
	needleLines := strings.Count(needle, "\n") + 1

	best := Region{Score: -1}
	for i := range lines {
		for _, span := range []int{needleLines - 1, needleLines, needleLines + 1} {
			if span < 1 || i+span > len(lines) {
				continue
			}
			start := lines[i].start
			end := lines[i+span-1].end
			score := Ratio(haystack[start:end], needle)
			if score > best.Score {
				best = Region{Start: start, End: end, Score: score}
			}
		}
	}

	if best.Score >= threshold {
		return best, true
	}
	if best.Score < 0 {
		best = Region{}
	}
	return best, false
}

// Ratio computes 2*LCS(a,b) / (len(a)+len(b)) over bytes.
func Ratio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	return 2.0 * float64(lcsLen(a, b)) / float64(len(a)+len(b))
}

type span struct {
	start int
	end   int // exclusive, without the trailing newline
}

func lineSpans(s string) []span {
	var spans []span
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			spans = append(spans, span{start: start, end: i})
			start = i + 1
		}
	}
	if start < len(s) {
		spans = append(spans, span{start: start, end: len(s)})
	}
	return spans
}

// lcsLen is the longest-common-subsequence length using two rolling rows.
func lcsLen(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
