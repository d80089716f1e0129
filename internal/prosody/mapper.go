package prosody

import (
	"math"

	"github.com/loqalabs/loqa-prosody/internal/voicevox"
)

// Tuning constants. They are fixed so renders stay comparable across
// implementations; do not make them configurable.
const (
	ElongateStep = 0.1

	FastVowel     = 0.45
	FastConsonant = 0.65
	SlowVowel     = 1.3
	SlowConsonant = 1.15

	WhisperVowel    = 0.65
	WhisperMinVowel = 0.05
	WhisperPitch    = 0.12

	EmphasisVowel     = 1.4
	EmphasisConsonant = 2.0
	EmphasisPitch     = 0.25

	PitchUpStep   = 0.11
	PitchDownStep = 0.1

	PhraseFinal    = 1.15
	PauseMoraScale = 1.25

	IntonationScale = 1.3
	SpeedScale      = 1.15
)

// Report summarizes one Apply call.
type Report struct {
	Units   int // mora entries supplied
	Morae   int // morae in the query
	Applied int // morae that received a bundle
}

// Mismatch reports whether units and query morae disagreed in count.
func (r Report) Mismatch() bool { return r.Units != r.Morae }

// Apply mutates q in place from entries. Mora entries are matched to the
// query's morae by position in phrase order; extra entries or morae on either
// side are left alone. Glue entries drop the pause mora of the phrase they
// follow. Other markers are ignored.
func Apply(entries []Entry, q *voicevox.AudioQuery) Report {
	var units []Bundle
	glueAfter := make(map[int]bool)
	for _, e := range entries {
		switch e.Marker {
		case MarkNone:
			units = append(units, e.Bundle)
		case MarkGlue:
			if len(units) > 0 {
				glueAfter[len(units)-1] = true
			}
		}
	}

	report := Report{Units: len(units), Morae: q.MoraCount()}
	index := 0
	for p := range q.AccentPhrases {
		phrase := &q.AccentPhrases[p]
		start := index
		for m := range phrase.Moras {
			if index >= len(units) {
				break
			}
			applyMora(&phrase.Moras[m], units[index], m == len(phrase.Moras)-1)
			report.Applied++
			index++
		}
		if phrase.PauseMora != nil {
			phrase.PauseMora.VowelLength *= PauseMoraScale
		}
		if index > start && glueAfter[index-1] {
			phrase.PauseMora = nil
		}
	}

	q.IntonationScale = IntonationScale
	q.SpeedScale = SpeedScale
	return report
}

func applyMora(m *voicevox.Mora, b Bundle, phraseFinal bool) {
	if b.Elongate > 0 {
		m.VowelLength += b.Elongate * ElongateStep
	}
	if b.Effects.Has(Fast) {
		m.VowelLength *= FastVowel
		scaleConsonant(m, FastConsonant)
	}
	if b.Effects.Has(Slow) {
		m.VowelLength *= SlowVowel
		scaleConsonant(m, SlowConsonant)
	}
	if b.Effects.Has(Whisper) {
		m.VowelLength = math.Max(WhisperMinVowel, m.VowelLength*WhisperVowel)
		m.Pitch -= WhisperPitch
	}
	if b.Effects.Has(Emphasis) {
		scaleConsonant(m, EmphasisConsonant)
		m.VowelLength *= EmphasisVowel
		m.Pitch += EmphasisPitch
	}
	if b.PitchUp > 0 {
		m.Pitch += b.PitchUp * PitchUpStep
	}
	if b.PitchDown > 0 {
		m.Pitch -= b.PitchDown * PitchDownStep
	}
	if phraseFinal {
		m.VowelLength *= PhraseFinal
	}
}

func scaleConsonant(m *voicevox.Mora, factor float64) {
	if m.ConsonantLength != nil {
		v := *m.ConsonantLength * factor
		m.ConsonantLength = &v
	}
}
