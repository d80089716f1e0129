package tts

import (
	"context"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/loqalabs/loqa-prosody/internal/pcm"
	"github.com/loqalabs/loqa-prosody/internal/phoneme"
	"github.com/loqalabs/loqa-prosody/internal/voicevox"
)

const (
	mockVowel     = 0.1
	mockConsonant = 0.05
	mockPitch     = 5.5
	mockPause     = 0.15
	mockEdge      = 0.1
)

type mockSynth struct {
	sampleRate int
}

// NewMockSynth builds one accent phrase per word and one mora per letter or
// digit, matching phoneme.NewMockBackend, and renders each voiced mora as a
// sine tone at its pitch.
func NewMockSynth(sampleRate int) Backend {
	return &mockSynth{sampleRate: sampleRate}
}

func (m *mockSynth) CreateQuery(ctx context.Context, text string, _ int) (*voicevox.AudioQuery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := &voicevox.AudioQuery{
		SpeedScale:         1,
		PitchScale:         0,
		IntonationScale:    1,
		VolumeScale:        1,
		PrePhonemeLength:   mockEdge,
		PostPhonemeLength:  mockEdge,
		OutputSamplingRate: m.sampleRate,
	}
	for _, word := range strings.Fields(text) {
		morae := phoneme.MockMorae(word)
		if len(morae) == 0 {
			continue
		}
		phrase := voicevox.AccentPhrase{Accent: 1}
		for _, mora := range morae {
			phrase.Moras = append(phrase.Moras, mockMora(mora))
		}
		if last, _ := utf8.DecodeLastRuneInString(word); unicode.IsPunct(last) {
			phrase.PauseMora = &voicevox.Mora{Text: "、", Vowel: "pau", VowelLength: mockPause}
		}
		q.AccentPhrases = append(q.AccentPhrases, phrase)
	}
	return q, nil
}

func mockMora(text string) voicevox.Mora {
	mora := voicevox.Mora{Text: text, Vowel: "a", VowelLength: mockVowel, Pitch: mockPitch}
	r, _ := utf8.DecodeRuneInString(text)
	if !strings.ContainsRune("aeiouAEIOU", r) {
		consonant := strings.ToLower(text)
		length := mockConsonant
		mora.Consonant = &consonant
		mora.ConsonantLength = &length
	}
	return mora
}

func (m *mockSynth) Synthesize(ctx context.Context, q *voicevox.AudioQuery, _ int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rate := q.OutputSamplingRate
	if rate <= 0 {
		rate = m.sampleRate
	}
	speed := q.SpeedScale
	if speed <= 0 {
		speed = 1
	}
	volume := q.VolumeScale
	if volume <= 0 {
		volume = 1
	}

	var (
		samples []int
		tooLong error
	)
	silence := func(seconds float64) {
		gap, err := pcm.Silence(rate, seconds)
		if err != nil {
			tooLong = err
			return
		}
		samples = append(samples, gap.Samples...)
	}
	tone := func(seconds, pitch float64) {
		n, err := pcm.SampleCount(rate, seconds)
		if err != nil {
			tooLong = err
			return
		}
		if pitch <= 0 {
			samples = append(samples, make([]int, n)...)
			return
		}
		freq := math.Exp(pitch)
		for i := 0; i < n; i++ {
			v := 0.2 * volume * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
			samples = append(samples, pcm.Clamp(int(v*32767)))
		}
	}

	silence(q.PrePhonemeLength)
	for _, phrase := range q.AccentPhrases {
		for _, mora := range phrase.Moras {
			if mora.ConsonantLength != nil {
				silence(*mora.ConsonantLength / speed)
			}
			tone(mora.VowelLength/speed, mora.Pitch)
		}
		if phrase.PauseMora != nil {
			silence(phrase.PauseMora.VowelLength / speed)
		}
	}
	silence(q.PostPhonemeLength)
	if tooLong != nil {
		return nil, tooLong
	}
	return pcm.Encode(pcm.Clip{SampleRate: rate, Samples: samples})
}
