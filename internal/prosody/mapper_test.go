package prosody

import (
	"math"
	"testing"

	"github.com/loqalabs/loqa-prosody/internal/voicevox"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func ptr(v float64) *float64 { return &v }

func sampleQuery() *voicevox.AudioQuery {
	return &voicevox.AudioQuery{
		AccentPhrases: []voicevox.AccentPhrase{
			{
				Moras: []voicevox.Mora{
					{Text: "カ", ConsonantLength: ptr(0.05), VowelLength: 0.1, Pitch: 5.0},
					{Text: "ア", VowelLength: 0.1, Pitch: 5.0},
				},
				PauseMora: &voicevox.Mora{Text: "、", VowelLength: 0.2},
			},
			{
				Moras: []voicevox.Mora{{Text: "イ", VowelLength: 0.1, Pitch: 5.0}},
			},
		},
		SpeedScale:      1,
		IntonationScale: 1,
	}
}

func TestApplyFormulas(t *testing.T) {
	q := sampleQuery()
	entries := []Entry{
		{Mora: "カ", Bundle: Bundle{Elongate: 2, Effects: Fast}},
		{Mora: "ア", Bundle: Bundle{Effects: Emphasis | Whisper, PitchUp: 5}},
		{Mora: "イ", Bundle: Bundle{Effects: Fast | Slow, PitchDown: 2}},
	}
	report := Apply(entries, q)
	if report.Mismatch() || report.Applied != 3 {
		t.Fatalf("unexpected report %+v", report)
	}

	ka := q.AccentPhrases[0].Moras[0]
	if !near(ka.VowelLength, (0.1+2*ElongateStep)*FastVowel) {
		t.Fatalf("ka vowel %v", ka.VowelLength)
	}
	if !near(*ka.ConsonantLength, 0.05*FastConsonant) {
		t.Fatalf("ka consonant %v", *ka.ConsonantLength)
	}
	if !near(ka.Pitch, 5.0) {
		t.Fatalf("ka pitch %v", ka.Pitch)
	}

	a := q.AccentPhrases[0].Moras[1]
	if !near(a.VowelLength, 0.1*WhisperVowel*EmphasisVowel*PhraseFinal) {
		t.Fatalf("a vowel %v", a.VowelLength)
	}
	if !near(a.Pitch, 5.0-WhisperPitch+EmphasisPitch+5*PitchUpStep) {
		t.Fatalf("a pitch %v", a.Pitch)
	}
	if a.ConsonantLength != nil {
		t.Fatal("absent consonant must stay absent")
	}

	i := q.AccentPhrases[1].Moras[0]
	if !near(i.VowelLength, 0.1*FastVowel*SlowVowel*PhraseFinal) {
		t.Fatalf("i vowel %v", i.VowelLength)
	}
	if !near(i.Pitch, 5.0-2*PitchDownStep) {
		t.Fatalf("i pitch %v", i.Pitch)
	}

	if !near(q.AccentPhrases[0].PauseMora.VowelLength, 0.2*PauseMoraScale) {
		t.Fatalf("pause mora %v", q.AccentPhrases[0].PauseMora.VowelLength)
	}
	if q.IntonationScale != IntonationScale || q.SpeedScale != SpeedScale {
		t.Fatalf("query scales not set: %v %v", q.IntonationScale, q.SpeedScale)
	}
}

func TestApplyWhisperFloor(t *testing.T) {
	q := &voicevox.AudioQuery{AccentPhrases: []voicevox.AccentPhrase{{
		Moras: []voicevox.Mora{{Text: "ン", VowelLength: 0.04}, {Text: "ア", VowelLength: 0.1}},
	}}}
	Apply([]Entry{{Mora: "ン", Bundle: Bundle{Effects: Whisper}}}, q)
	if !near(q.AccentPhrases[0].Moras[0].VowelLength, WhisperMinVowel) {
		t.Fatalf("expected whisper floor, got %v", q.AccentPhrases[0].Moras[0].VowelLength)
	}
}

func TestApplyGlueDropsPauseMora(t *testing.T) {
	q := sampleQuery()
	entries := []Entry{{Mora: "カ"}, {Mora: "ア"}, {Marker: MarkGlue}, {Mora: "イ"}}
	Apply(entries, q)
	if q.AccentPhrases[0].PauseMora != nil {
		t.Fatal("expected glue to remove the pause mora")
	}
}

func TestApplyMismatchLeavesExtraMorae(t *testing.T) {
	q := sampleQuery()
	report := Apply([]Entry{{Mora: "カ", Bundle: Bundle{Elongate: 1}}}, q)
	if !report.Mismatch() || report.Applied != 1 || report.Morae != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
	if q.AccentPhrases[1].Moras[0].VowelLength != 0.1 {
		t.Fatal("unmatched mora must not be modified")
	}
}

func TestEffectString(t *testing.T) {
	if got := (Emphasis | Fast).String(); got != "emphasis+fast" {
		t.Fatalf("unexpected effect string %q", got)
	}
}
