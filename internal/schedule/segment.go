// Package schedule cuts flattened lines into synthesis segments and orders
// synthesized segments into a playback timeline.
package schedule

import (
	"strings"

	"github.com/loqalabs/loqa-prosody/internal/prosody"
)

type SegmentKind int

const (
	SegmentSpeech SegmentKind = iota
	SegmentSilence
	SegmentOverlap
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentSpeech:
		return "speech"
	case SegmentSilence:
		return "silence"
	case SegmentOverlap:
		return "overlap"
	}
	return "unknown"
}

// Segment is one synthesis request of a line, or a pause between them.
// GlueBefore and GlueAfter ask for the engine's leading or trailing silence
// to be dropped.
type Segment struct {
	Line       int
	Speaker    string
	Voice      int
	Kind       SegmentKind
	Entries    []prosody.Entry
	Pause      float64
	GlueBefore bool
	GlueAfter  bool
}

// Text is the string sent to the engine: the raw text runs of the segment
// concatenated in order.
func (s Segment) Text() string {
	var b strings.Builder
	for _, e := range s.Entries {
		b.WriteString(e.Source)
	}
	return strings.TrimSpace(b.String())
}

// MoraCount counts the mora entries of the segment.
func (s Segment) MoraCount() int {
	n := 0
	for _, e := range s.Entries {
		if e.IsMora() {
			n++
		}
	}
	return n
}

// Split cuts one flattened line at its top-level pauses and overlap spans.
// Pauses inside an overlap span stay in the span and are not rendered as
// silence. Segments without morae are dropped.
func Split(line int, speaker string, voice int, entries []prosody.Entry) []Segment {
	var (
		out   []Segment
		buf   []prosody.Entry
		depth int
	)
	flush := func(kind SegmentKind) {
		seg := Segment{Line: line, Speaker: speaker, Voice: voice, Kind: kind, Entries: buf}
		buf = nil
		if seg.MoraCount() == 0 {
			return
		}
		seg.GlueBefore = seg.Entries[0].Marker == prosody.MarkGlue
		seg.GlueAfter = seg.Entries[len(seg.Entries)-1].Marker == prosody.MarkGlue
		out = append(out, seg)
	}

	for _, e := range entries {
		switch e.Marker {
		case prosody.MarkOverlapOpen:
			if depth == 0 {
				flush(SegmentSpeech)
			}
			depth++
		case prosody.MarkOverlapClose:
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				flush(SegmentOverlap)
			}
		case prosody.MarkPause:
			if depth > 0 {
				continue
			}
			flush(SegmentSpeech)
			out = append(out, Segment{Line: line, Speaker: speaker, Voice: voice, Kind: SegmentSilence, Pause: e.Pause})
		default:
			buf = append(buf, e)
		}
	}
	if depth > 0 {
		flush(SegmentOverlap)
	} else {
		flush(SegmentSpeech)
	}
	for i := 0; i+1 < len(out); i++ {
		join(&out[i], &out[i+1])
	}
	return out
}

// join makes glue between two adjacent segments apply to both sides.
// Silence is never glued.
func join(prev, next *Segment) {
	if prev.Kind == SegmentSilence || next.Kind == SegmentSilence {
		return
	}
	if prev.GlueAfter || next.GlueBefore {
		prev.GlueAfter = true
		next.GlueBefore = true
	}
}

// Latch carries glue across line boundaries, as Split does within a line: a line ending in glue, or a
// next line starting with it, joins the last segment of one line to the first
// of the next. lines is modified in place.
func Latch(lines [][]Segment) {
	for i := 0; i+1 < len(lines); i++ {
		if len(lines[i]) == 0 || len(lines[i+1]) == 0 {
			continue
		}
		join(&lines[i][len(lines[i])-1], &lines[i+1][0])
	}
}
