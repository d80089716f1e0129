package pcm

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestEncodeDecode(t *testing.T) {
	clip := Clip{SampleRate: 8000, Samples: []int{0, 1000, -1000, 32767, -32768, 5}}
	data, err := Encode(clip)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing wav header: %q", data[:12])
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SampleRate != 8000 || len(got.Samples) != len(clip.Samples) {
		t.Fatalf("unexpected clip %+v", got)
	}
	for i := range clip.Samples {
		if got.Samples[i] != clip.Samples[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, clip.Samples[i], got.Samples[i])
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not a wav file at all")); !errors.Is(err, ErrInvalidWAV) {
		t.Fatalf("expected ErrInvalidWAV, got %v", err)
	}
}

func TestSilenceDuration(t *testing.T) {
	s, err := Silence(24000, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Samples) != 12000 {
		t.Fatalf("expected 12000 samples, got %d", len(s.Samples))
	}
	if s.Duration() != 500*time.Millisecond {
		t.Fatalf("unexpected duration %s", s.Duration())
	}
	if s, err := Silence(24000, -1); err != nil || len(s.Samples) != 0 {
		t.Fatal("negative silence must be empty")
	}
}

func TestSilenceRejectsHugeDurations(t *testing.T) {
	for _, seconds := range []float64{1e15, MaxSeconds + 1, math.Inf(1)} {
		if _, err := Silence(24000, seconds); !errors.Is(err, ErrTooLong) {
			t.Fatalf("Silence(%g): expected ErrTooLong, got %v", seconds, err)
		}
	}
	if n, err := SampleCount(24000, math.NaN()); err != nil || n != 0 {
		t.Fatalf("NaN must be empty, got %d, %v", n, err)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(40000) != 32767 || Clamp(-40000) != -32768 || Clamp(12) != 12 {
		t.Fatal("clamp out of range")
	}
}

func TestWriteSeekerPatches(t *testing.T) {
	ws := &writeSeeker{}
	_, _ = ws.Write([]byte("abcdef"))
	if _, err := ws.Seek(2, 0); err != nil {
		t.Fatal(err)
	}
	_, _ = ws.Write([]byte("XY"))
	if string(ws.buf) != "abXYef" {
		t.Fatalf("unexpected buffer %q", ws.buf)
	}
}
