package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/loqalabs/loqa-prosody/internal/diag"
	"github.com/loqalabs/loqa-prosody/internal/phoneme"
	"github.com/loqalabs/loqa-prosody/internal/prosody"
	"github.com/loqalabs/loqa-prosody/internal/schedule"
	"github.com/loqalabs/loqa-prosody/internal/tts"
	"github.com/loqalabs/loqa-prosody/internal/voices"
	"github.com/loqalabs/loqa-prosody/internal/voicevox"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type call struct {
	text  string
	voice int
	query voicevox.AudioQuery
}

// recordingSynth wraps the mock synthesizer, remembers every synthesized
// query and fails any text containing "bad".
type recordingSynth struct {
	inner tts.Backend
	mu    sync.Mutex
	texts map[*voicevox.AudioQuery]string
	calls []call
}

func newRecordingSynth() *recordingSynth {
	return &recordingSynth{inner: tts.NewMockSynth(8000), texts: make(map[*voicevox.AudioQuery]string)}
}

func (r *recordingSynth) CreateQuery(ctx context.Context, text string, voice int) (*voicevox.AudioQuery, error) {
	q, err := r.inner.CreateQuery(ctx, text, voice)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.texts[q] = text
	r.mu.Unlock()
	return q, nil
}

func (r *recordingSynth) Synthesize(ctx context.Context, q *voicevox.AudioQuery, voice int) ([]byte, error) {
	r.mu.Lock()
	text := r.texts[q]
	r.calls = append(r.calls, call{text: text, voice: voice, query: *q})
	r.mu.Unlock()
	if strings.Contains(text, "bad") {
		return nil, errors.New("engine rejected text")
	}
	return r.inner.Synthesize(ctx, q, voice)
}

func (r *recordingSynth) call(text string) (call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c.text == text {
			return c, true
		}
	}
	return call{}, false
}

type pickyResolver struct{}

func (pickyResolver) Resolve(ctx context.Context, text string, voice int) ([]string, error) {
	if strings.Contains(text, "zzz") {
		return nil, phoneme.ErrResolution
	}
	return phoneme.MockMorae(text), nil
}

func newPipeline(synth Synthesizer) *Pipeline {
	table := voices.New(1, map[string]int{"A": 3, "B": 8})
	return New(pickyResolver{}, synth, table, Options{Concurrency: 3}, newLogger())
}

func TestRenderPairsOverlapAcrossLines(t *testing.T) {
	synth := newRecordingSynth()
	transcript := "[[\n[A]:hello [world]\n[B]:[there] friend\n]]\n"
	result, err := newPipeline(synth).Render(context.Background(), transcript)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", result.Warnings)
	}
	kinds := []schedule.EntryKind{schedule.KindUtterance, schedule.KindOverlapPair, schedule.KindUtterance}
	if len(result.Timeline) != len(kinds) {
		t.Fatalf("expected %d entries, got %+v", len(kinds), result.Timeline)
	}
	for i, k := range kinds {
		if result.Timeline[i].Kind != k {
			t.Fatalf("entry %d: expected %s, got %s", i, k, result.Timeline[i].Kind)
		}
	}
	pair := result.Timeline[1].Speech
	if pair[0].Text != "world" || pair[0].Voice != 3 || pair[1].Text != "there" || pair[1].Voice != 8 {
		t.Fatalf("unexpected pair %+v", pair)
	}
	if result.Timeline[2].Speech[0].Text != "friend" {
		t.Fatalf("unexpected last entry %+v", result.Timeline[2])
	}
	if result.Morae() != len(phoneme.MockMorae("hello world there friend")) {
		t.Fatalf("mora count changed: %d", result.Morae())
	}
}

func TestRenderAppliesProsody(t *testing.T) {
	synth := newRecordingSynth()
	result, err := newPipeline(synth).Render(context.Background(), "[C]:_no::_ (0.5) ok")
	if err != nil {
		t.Fatal(err)
	}
	c, ok := synth.call("no")
	if !ok {
		t.Fatal("expected a synthesis call for the emphasized run")
	}
	if c.voice != 1 {
		t.Fatalf("unmapped speaker must use the default voice, got %d", c.voice)
	}
	o := c.query.AccentPhrases[0].Moras[1]
	want := (0.1 + 2*0.1) * 1.4 * 1.15
	if diff := o.VowelLength - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected elongated, emphasized, phrase-final vowel %v, got %v", want, o.VowelLength)
	}
	if c.query.SpeedScale != 1.15 || c.query.IntonationScale != 1.3 {
		t.Fatalf("query scales not applied: %+v", c.query)
	}
	if len(result.Timeline) != 3 || result.Timeline[1].Kind != schedule.KindSilence || result.Timeline[1].Silence != 0.5 {
		t.Fatalf("expected utterance, silence, utterance; got %+v", result.Timeline)
	}
}

func TestRenderLatchesGlue(t *testing.T) {
	synth := newRecordingSynth()
	if _, err := newPipeline(synth).Render(context.Background(), "[A]:yes=\n[B]:no"); err != nil {
		t.Fatal(err)
	}
	yes, ok := synth.call("yes")
	if !ok || yes.query.PostPhonemeLength != 0 || yes.query.PrePhonemeLength == 0 {
		t.Fatalf("expected only trailing silence removed, got %+v", yes.query)
	}
	no, ok := synth.call("no")
	if !ok || no.query.PrePhonemeLength != 0 {
		t.Fatalf("expected leading silence removed on the latched line, got %+v", no.query)
	}
}

func TestRenderRecoversFromFailures(t *testing.T) {
	synth := newRecordingSynth()
	transcript := "[A]:bad news\n[B]:zzz (.) fine\n[A]:::oops [alone]"
	result, err := newPipeline(synth).Render(context.Background(), transcript)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	counts := diag.Count(result.Warnings)
	if counts[diag.SynthesisFailure] != 1 {
		t.Fatalf("expected one synthesis failure, got %v", result.Warnings)
	}
	if counts[diag.ResolutionFailure] != 1 {
		t.Fatalf("expected one resolution failure, got %v", result.Warnings)
	}
	if counts[diag.OrphanModifier] != 1 {
		t.Fatalf("expected one orphan modifier, got %v", result.Warnings)
	}
	if counts[diag.UnmatchedOverlap] != 1 {
		t.Fatalf("expected one unmatched overlap, got %v", result.Warnings)
	}
	for i := 1; i < len(result.Warnings); i++ {
		if result.Warnings[i].Line < result.Warnings[i-1].Line {
			t.Fatalf("warnings out of line order: %v", result.Warnings)
		}
	}
	var texts []string
	for _, e := range result.Timeline {
		for _, u := range e.Speech {
			texts = append(texts, u.Text)
		}
	}
	if strings.Join(texts, "|") != "fine|oops|alone" {
		t.Fatalf("unexpected surviving utterances %v", texts)
	}
}

func TestRenderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newPipeline(newRecordingSynth()).Render(ctx, "[A]:hello"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPrepareWithoutSynthesis(t *testing.T) {
	synth := newRecordingSynth()
	lines, err := newPipeline(synth).Prepare(context.Background(), "[A]:a::\nnoise\n[B]:b")
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[1].Speaker != "B" || lines[1].Index != 1 {
		t.Fatalf("unexpected lines %+v", lines)
	}
	if len(lines[0].Entries) != 1 || lines[0].Entries[0].Bundle.Elongate != 2 {
		t.Fatalf("expected a single elongated unit, got %+v", lines[0].Entries)
	}
	if len(synth.calls) != 0 {
		t.Fatal("prepare must not synthesize")
	}
}

func TestRenderSkipsFailedRunInsideSegment(t *testing.T) {
	synth := newRecordingSynth()
	result, err := newPipeline(synth).Render(context.Background(), "[A]:ab,zzz,_cd_")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	counts := diag.Count(result.Warnings)
	if counts[diag.ResolutionFailure] != 1 || len(result.Warnings) != 1 {
		t.Fatalf("expected only the resolution failure, got %v", result.Warnings)
	}
	if len(result.Timeline) != 1 || result.Timeline[0].Speech[0].Text != "abcd" {
		t.Fatalf("unexpected timeline %+v", result.Timeline)
	}

	c, ok := synth.call("abcd")
	if !ok {
		t.Fatalf("engine never saw abcd, calls %+v", synth.calls)
	}
	if len(c.query.AccentPhrases) != 1 || len(c.query.AccentPhrases[0].Moras) != 4 {
		t.Fatalf("unexpected query %+v", c.query)
	}
	m := c.query.AccentPhrases[0].Moras
	base := m[0].Pitch
	if m[1].Pitch >= base {
		t.Fatalf("expected the pitch drop on b, got %v vs %v", m[1].Pitch, base)
	}
	for _, i := range []int{2, 3} {
		if m[i].Pitch != base+prosody.EmphasisPitch {
			t.Fatalf("mora %d: expected emphasis pitch %v, got %v", i, base+prosody.EmphasisPitch, m[i].Pitch)
		}
	}
	if m[2].VowelLength != m[0].VowelLength*prosody.EmphasisVowel {
		t.Fatalf("expected emphasis length on c, got %v", m[2].VowelLength)
	}
	if m[0].VowelLength*prosody.EmphasisVowel >= m[3].VowelLength {
		t.Fatalf("expected phrase-final emphasis on d to be longest, got %v", m[3].VowelLength)
	}
}
