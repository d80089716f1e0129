package schedule

import (
	"fmt"

	"github.com/loqalabs/loqa-prosody/internal/diag"
)

// Rendered is a segment after synthesis. Audio is nil for silences and for
// segments whose synthesis failed.
type Rendered struct {
	Segment
	Audio  []byte
	Failed bool
}

func (r Rendered) utterance() Utterance {
	return Utterance{Line: r.Line, Speaker: r.Speaker, Voice: r.Voice, Text: r.Text(), Audio: r.Audio}
}

type spanRef struct {
	line, pos int
}

// Schedule orders rendered lines into a timeline. lines must be in transcript
// order.
//
// The first pass pairs overlap spans: each unpaired span takes the first
// unpaired span of the next line. The second pass emits entries in order, the
// pair at the position of its first span. Spans left unpaired fall back to
// plain utterances. Failed segments are dropped; a pair with one failed side
// plays the other side alone.
func Schedule(lines [][]Rendered) ([]Entry, []diag.Warning) {
	partner := make(map[spanRef]spanRef)
	taken := make(map[spanRef]bool)
	for i := 0; i+1 < len(lines); i++ {
		for p, r := range lines[i] {
			ref := spanRef{i, p}
			if r.Kind != SegmentOverlap || taken[ref] {
				continue
			}
			for q, other := range lines[i+1] {
				cand := spanRef{i + 1, q}
				if other.Kind == SegmentOverlap && !taken[cand] {
					partner[ref] = cand
					taken[ref] = true
					taken[cand] = true
					break
				}
			}
		}
	}

	var (
		timeline []Entry
		warnings []diag.Warning
	)
	for i, line := range lines {
		for p, r := range line {
			ref := spanRef{i, p}
			switch r.Kind {
			case SegmentSilence:
				timeline = append(timeline, SilenceEntry(r.Pause))
			case SegmentSpeech:
				if !r.Failed {
					timeline = append(timeline, UtteranceEntry(r.utterance()))
				}
			case SegmentOverlap:
				if other, ok := partner[ref]; ok {
					if e, ok := pair(r, lines[other.line][other.pos]); ok {
						timeline = append(timeline, e)
					}
					continue
				}
				if taken[ref] {
					// emitted with its partner
					continue
				}
				warnings = append(warnings, diag.Warning{
					Line:   r.Line,
					Kind:   diag.UnmatchedOverlap,
					Detail: fmt.Sprintf("overlap %q has no partner on the next line", r.Text()),
				})
				if !r.Failed {
					timeline = append(timeline, UtteranceEntry(r.utterance()))
				}
			}
		}
	}
	return timeline, warnings
}

func pair(a, b Rendered) (Entry, bool) {
	switch {
	case !a.Failed && !b.Failed:
		return PairEntry(a.utterance(), b.utterance()), true
	case !a.Failed:
		return UtteranceEntry(a.utterance()), true
	case !b.Failed:
		return UtteranceEntry(b.utterance()), true
	}
	return Entry{}, false
}
