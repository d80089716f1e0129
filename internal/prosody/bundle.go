// Package prosody resolves markup effects onto morae and maps them to
// synthesis parameters.
package prosody

import (
	"strings"

	"github.com/loqalabs/loqa-prosody/internal/notation"
)

// Effect is a set of container effects stamped onto a mora.
type Effect uint8

const (
	Whisper Effect = 1 << iota
	Emphasis
	Fast
	Slow
	Overlap
)

var effectNames = []struct {
	effect Effect
	name   string
}{
	{Whisper, "whisper"},
	{Emphasis, "emphasis"},
	{Fast, "fast"},
	{Slow, "slow"},
	{Overlap, "overlap"},
}

func (e Effect) Has(flag Effect) bool { return e&flag == flag }

func (e Effect) String() string {
	var names []string
	for _, n := range effectNames {
		if e.Has(n.effect) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "+")
}

func (e Effect) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// EffectOf maps a container kind to its effect flag.
func EffectOf(kind notation.Kind) Effect {
	switch kind {
	case notation.KindWhisper:
		return Whisper
	case notation.KindEmphasis:
		return Emphasis
	case notation.KindFastSpeech:
		return Fast
	case notation.KindSlowSpeech:
		return Slow
	case notation.KindOverlap:
		return Overlap
	}
	return 0
}

// Bundle is everything resolved onto one mora.
type Bundle struct {
	Effects   Effect  `json:"effects,omitempty"`
	Elongate  float64 `json:"elongate,omitempty"`
	PitchUp   float64 `json:"pitch_up,omitempty"`
	PitchDown float64 `json:"pitch_down,omitempty"`
}

// Marker distinguishes standalone entries from morae.
type Marker int

const (
	MarkNone Marker = iota
	MarkPause
	MarkGlue
	MarkOverlapOpen
	MarkOverlapClose
)

func (m Marker) String() string {
	switch m {
	case MarkNone:
		return "mora"
	case MarkPause:
		return "pause"
	case MarkGlue:
		return "glue"
	case MarkOverlapOpen:
		return "overlap_open"
	case MarkOverlapClose:
		return "overlap_close"
	}
	return "unknown"
}

func (m Marker) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Entry is one element of a flattened line: a mora with its bundle, or a
// bundle-less marker. Source is set on the first mora of each text run and
// holds the run's raw text.
type Entry struct {
	Marker Marker  `json:"marker"`
	Mora   string  `json:"mora,omitempty"`
	Bundle Bundle  `json:"bundle"`
	Source string  `json:"source,omitempty"`
	Pause  float64 `json:"pause,omitempty"`
}

func (e Entry) IsMora() bool { return e.Marker == MarkNone }

// Morae returns only the mora entries of entries.
func Morae(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.IsMora() {
			out = append(out, e)
		}
	}
	return out
}
