// Package pcm holds the mono 16-bit PCM clips the renderer passes around and
// converts them to and from WAV.
package pcm

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	BitDepth = 16
	// waveFormatPCM is the RIFF format tag for integer PCM.
	waveFormatPCM = 1
)

var ErrInvalidWAV = errors.New("pcm: invalid wav data")

// Clip is a mono sample buffer.
type Clip struct {
	SampleRate int
	Samples    []int
}

// Duration of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// MaxSeconds bounds any single clip built from a duration.
const MaxSeconds = 3600

// ErrTooLong is returned for durations beyond MaxSeconds.
var ErrTooLong = errors.New("pcm: duration too long")

// SampleCount converts seconds at sampleRate into a sample count. Zero,
// negative and NaN durations are empty.
func SampleCount(sampleRate int, seconds float64) (int, error) {
	if !(seconds > 0) || sampleRate <= 0 {
		return 0, nil
	}
	if seconds > MaxSeconds {
		return 0, fmt.Errorf("%w: %g s", ErrTooLong, seconds)
	}
	return int(seconds * float64(sampleRate)), nil
}

// Silence returns a zeroed clip of the given length in seconds.
func Silence(sampleRate int, seconds float64) (Clip, error) {
	n, err := SampleCount(sampleRate, seconds)
	if err != nil {
		return Clip{}, err
	}
	return Clip{SampleRate: sampleRate, Samples: make([]int, n)}, nil
}

// Decode parses a WAV file. Multi-channel input is downmixed by averaging.
func Decode(data []byte) (Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Clip{}, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	channels := buf.Format.NumChannels
	if channels <= 1 {
		return Clip{SampleRate: buf.Format.SampleRate, Samples: scaleDepth(buf.Data, buf.SourceBitDepth)}, nil
	}
	frames := len(buf.Data) / channels
	mono := make([]int, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += buf.Data[i*channels+c]
		}
		mono[i] = sum / channels
	}
	return Clip{SampleRate: buf.Format.SampleRate, Samples: scaleDepth(mono, buf.SourceBitDepth)}, nil
}

// scaleDepth brings samples of another bit depth to 16 bits.
func scaleDepth(samples []int, depth int) []int {
	switch {
	case depth == 0 || depth == BitDepth:
		return samples
	case depth == 8:
		// 8-bit WAV is unsigned.
		for i, s := range samples {
			samples[i] = (s - 128) << 8
		}
	case depth > BitDepth:
		shift := uint(depth - BitDepth)
		for i, s := range samples {
			samples[i] = s >> shift
		}
	}
	return samples
}

// Encode writes c as a mono 16-bit WAV file.
func Encode(c Clip) ([]byte, error) {
	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, c.SampleRate, BitDepth, 1, waveFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: c.SampleRate},
		Data:           c.Samples,
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	return ws.buf, nil
}

// Clamp limits s to the signed 16-bit range.
func Clamp(s int) int {
	switch {
	case s > 32767:
		return 32767
	case s < -32768:
		return -32768
	}
	return s
}

// writeSeeker is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes on Close.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(w.pos)
	case io.SeekEnd:
		base = int64(len(w.buf))
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("negative seek position")
	}
	w.pos = int(next)
	return next, nil
}
