package prosody

import (
	"fmt"

	"github.com/loqalabs/loqa-prosody/internal/diag"
	"github.com/loqalabs/loqa-prosody/internal/notation"
)

// accumulator is the state of one flattening level. last indexes the mora a
// following modifier binds to, or -1 when there is none.
type accumulator struct {
	entries  []Entry
	last     int
	warnings []diag.Warning
}

// Flatten resolves a token tree into entries, depth first and left to right.
// It is pure: the same tree always yields the same entries. Warnings carry
// Line -1.
func Flatten(tokens []notation.Token) ([]Entry, []diag.Warning) {
	acc := flatten(tokens, accumulator{last: -1})
	return acc.entries, acc.warnings
}

func flatten(tokens []notation.Token, acc accumulator) accumulator {
	for _, tok := range tokens {
		switch tok.Kind {
		case notation.KindText:
			for i, mora := range tok.Morae {
				e := Entry{Mora: mora}
				if i == 0 {
					e.Source = tok.Text
				}
				acc.entries = append(acc.entries, e)
			}
			if len(tok.Morae) > 0 {
				acc.last = len(acc.entries) - 1
			}
		case notation.KindElongate, notation.KindPitchUp, notation.KindPitchDown:
			if acc.last < 0 {
				acc.warnings = append(acc.warnings, diag.Warning{
					Line:   -1,
					Kind:   diag.OrphanModifier,
					Detail: fmt.Sprintf("%s(%g) has no preceding mora", tok.Kind, tok.Value),
				})
				continue
			}
			merge(&acc.entries[acc.last].Bundle, tok)
		case notation.KindPause:
			acc.entries = append(acc.entries, Entry{Marker: MarkPause, Pause: tok.Value})
			acc.last = -1
		case notation.KindGlue:
			acc.entries = append(acc.entries, Entry{Marker: MarkGlue})
			acc.last = -1
		case notation.KindWhisper, notation.KindEmphasis, notation.KindFastSpeech, notation.KindSlowSpeech, notation.KindOverlap:
			nested := flatten(tok.Children, accumulator{last: -1})
			acc.warnings = append(acc.warnings, nested.warnings...)
			effect := EffectOf(tok.Kind)
			if tok.Kind == notation.KindOverlap {
				acc.entries = append(acc.entries, Entry{Marker: MarkOverlapOpen})
			}
			for _, e := range nested.entries {
				if e.IsMora() {
					e.Bundle.Effects |= effect
				}
				acc.entries = append(acc.entries, e)
				if e.IsMora() {
					acc.last = len(acc.entries) - 1
				}
			}
			if nested.last < 0 && lastIsBarrier(nested.entries) {
				acc.last = -1
			}
			if tok.Kind == notation.KindOverlap {
				acc.entries = append(acc.entries, Entry{Marker: MarkOverlapClose})
			}
		}
	}
	return acc
}

// lastIsBarrier reports whether entries end in a pause or glue marker, which
// detaches whatever mora came before. Overlap boundaries are transparent.
func lastIsBarrier(entries []Entry) bool {
	for i := len(entries) - 1; i >= 0; i-- {
		switch entries[i].Marker {
		case MarkOverlapOpen, MarkOverlapClose:
			continue
		case MarkPause, MarkGlue:
			return true
		default:
			return false
		}
	}
	return false
}

// merge applies a modifier token to b. Repeating a modifier kind on the same
// mora replaces the earlier value.
func merge(b *Bundle, tok notation.Token) {
	switch tok.Kind {
	case notation.KindElongate:
		b.Elongate = tok.Value
	case notation.KindPitchUp:
		b.PitchUp = tok.Value
	case notation.KindPitchDown:
		b.PitchDown = tok.Value
	}
}
