package voicevox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fakeEngine(t *testing.T, failFirst int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/accent_phrases", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= failFirst {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Query().Get("speaker") != "3" {
			t.Errorf("unexpected speaker %q", r.URL.Query().Get("speaker"))
		}
		_ = json.NewEncoder(w).Encode([]AccentPhrase{
			{Moras: []Mora{{Text: "コ", VowelLength: 0.1, Pitch: 5.5}, {Text: "ン", VowelLength: 0.08, Pitch: 5.6}}, Accent: 1},
			{Moras: []Mora{{Text: "ニ", VowelLength: 0.1, Pitch: 5.7}}, Accent: 1},
		})
	})
	mux.HandleFunc("/audio_query", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(AudioQuery{
			AccentPhrases: []AccentPhrase{{Moras: []Mora{{Text: "ア", VowelLength: 0.12, Pitch: 5.2}}}},
			SpeedScale:    1, PitchScale: 0, IntonationScale: 1, VolumeScale: 1,
			PrePhonemeLength: 0.1, PostPhonemeLength: 0.1, OutputSamplingRate: 24000,
			Kana: r.URL.Query().Get("text"),
		})
	})
	mux.HandleFunc("/synthesis", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var q AudioQuery
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = io.WriteString(w, "RIFF"+q.Kana)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestAccentPhrases(t *testing.T) {
	srv, _ := fakeEngine(t, 0)
	c := NewClient(srv.URL, Options{Timeout: time.Second})
	phrases, err := c.AccentPhrases(context.Background(), "こんに", 3)
	if err != nil {
		t.Fatalf("accent phrases: %v", err)
	}
	texts := Texts(phrases)
	want := []string{"コ", "ン", "ニ"}
	if len(texts) != len(want) {
		t.Fatalf("expected %v, got %v", want, texts)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, texts)
		}
	}
}

func TestAudioQueryAndSynthesis(t *testing.T) {
	srv, _ := fakeEngine(t, 0)
	c := NewClient(srv.URL+"/", Options{Timeout: time.Second})
	q, err := c.AudioQuery(context.Background(), "あ", 3)
	if err != nil {
		t.Fatalf("audio query: %v", err)
	}
	if q.MoraCount() != 1 || q.Kana != "あ" {
		t.Fatalf("unexpected query: %+v", q)
	}
	wav, err := c.Synthesis(context.Background(), q, 3)
	if err != nil {
		t.Fatalf("synthesis: %v", err)
	}
	if string(wav) != "RIFFあ" {
		t.Fatalf("unexpected synthesis body %q", wav)
	}
}

func TestRetriesTransientStatus(t *testing.T) {
	srv, calls := fakeEngine(t, 1)
	c := NewClient(srv.URL, Options{Timeout: time.Second, MaxRetries: 2, RetryInterval: time.Millisecond})
	if _, err := c.AccentPhrases(context.Background(), "こんに", 3); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestStatusErrorWithoutRetries(t *testing.T) {
	srv, _ := fakeEngine(t, 5)
	c := NewClient(srv.URL, Options{Timeout: time.Second})
	_, err := c.AccentPhrases(context.Background(), "こんに", 3)
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("expected ErrStatus, got %v", err)
	}
}
