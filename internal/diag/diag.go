// Package diag holds the recoverable problems a render collects along the way.
package diag

import "fmt"

type Kind string

const (
	MalformedMarkup   Kind = "malformed_markup"
	OrphanModifier    Kind = "orphan_modifier"
	ResolutionFailure Kind = "resolution_failure"
	UnmatchedOverlap  Kind = "unmatched_overlap"
	SynthesisFailure  Kind = "synthesis_failure"
	MoraMismatch      Kind = "mora_mismatch"
)

// Warning describes one recovered failure. Line is the transcript line index,
// or -1 when the warning is not tied to a line.
type Warning struct {
	Line   int    `json:"line"`
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail"`
}

func (w Warning) String() string {
	if w.Line < 0 {
		return fmt.Sprintf("%s: %s", w.Kind, w.Detail)
	}
	return fmt.Sprintf("line %d: %s: %s", w.Line, w.Kind, w.Detail)
}

// Count tallies warnings by kind.
func Count(warnings []Warning) map[Kind]int {
	counts := make(map[Kind]int)
	for _, w := range warnings {
		counts[w.Kind]++
	}
	return counts
}

// ForLine stamps line onto warnings produced without line context.
func ForLine(line int, warnings []Warning) []Warning {
	for i := range warnings {
		warnings[i].Line = line
	}
	return warnings
}
