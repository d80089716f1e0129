package voicevox

// Mora is one pronounceable unit of an accent phrase. Lengths are seconds;
// pitch is the engine's log-F0 scale, 0 for unvoiced morae.
type Mora struct {
	Text            string   `json:"text"`
	Consonant       *string  `json:"consonant,omitempty"`
	ConsonantLength *float64 `json:"consonant_length,omitempty"`
	Vowel           string   `json:"vowel"`
	VowelLength     float64  `json:"vowel_length"`
	Pitch           float64  `json:"pitch"`
}

// AccentPhrase groups morae sharing one accent nucleus. PauseMora is the
// silence the engine inserts after the phrase, if any.
type AccentPhrase struct {
	Moras           []Mora `json:"moras"`
	Accent          int    `json:"accent"`
	PauseMora       *Mora  `json:"pause_mora,omitempty"`
	IsInterrogative bool   `json:"is_interrogative"`
}

// AudioQuery is the mutable per-mora parameter structure the engine
// synthesizes from.
type AudioQuery struct {
	AccentPhrases      []AccentPhrase `json:"accent_phrases"`
	SpeedScale         float64        `json:"speedScale"`
	PitchScale         float64        `json:"pitchScale"`
	IntonationScale    float64        `json:"intonationScale"`
	VolumeScale        float64        `json:"volumeScale"`
	PrePhonemeLength   float64        `json:"prePhonemeLength"`
	PostPhonemeLength  float64        `json:"postPhonemeLength"`
	OutputSamplingRate int            `json:"outputSamplingRate"`
	OutputStereo       bool           `json:"outputStereo"`
	Kana               string         `json:"kana,omitempty"`
}

// MoraCount reports the number of morae across all phrases, pause morae excluded.
func (q *AudioQuery) MoraCount() int {
	n := 0
	for _, p := range q.AccentPhrases {
		n += len(p.Moras)
	}
	return n
}

// Texts flattens accent phrases into their mora texts in order.
func Texts(phrases []AccentPhrase) []string {
	var out []string
	for _, p := range phrases {
		for _, m := range p.Moras {
			out = append(out, m.Text)
		}
	}
	return out
}
