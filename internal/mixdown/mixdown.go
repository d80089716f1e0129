// Package mixdown renders a timeline into a single mono clip.
package mixdown

import (
	"fmt"
	"os"
	"time"

	"github.com/loqalabs/loqa-prosody/internal/pcm"
	"github.com/loqalabs/loqa-prosody/internal/schedule"
)

// Render plays the timeline into one clip at sampleRate: utterances in
// sequence, silences as zeros, overlap pairs summed from a common start and
// lasting as long as the longer side.
func Render(timeline []schedule.Entry, sampleRate int) (pcm.Clip, error) {
	out := pcm.Clip{SampleRate: sampleRate}
	for i, entry := range timeline {
		switch entry.Kind {
		case schedule.KindSilence:
			gap, err := pcm.Silence(sampleRate, entry.Silence)
			if err != nil {
				return pcm.Clip{}, fmt.Errorf("timeline entry %d: %w", i, err)
			}
			out.Samples = append(out.Samples, gap.Samples...)
		case schedule.KindUtterance, schedule.KindOverlapPair:
			var mixed []int
			for _, u := range entry.Speech {
				clip, err := pcm.Decode(u.Audio)
				if err != nil {
					return pcm.Clip{}, fmt.Errorf("timeline entry %d (line %d): %w", i, u.Line, err)
				}
				mixed = mix(mixed, Resample(clip, sampleRate).Samples)
			}
			out.Samples = append(out.Samples, mixed...)
		}
	}
	return out, nil
}

// WriteFile renders the timeline and writes it as a WAV file.
func WriteFile(path string, timeline []schedule.Entry, sampleRate int) (time.Duration, error) {
	clip, err := Render(timeline, sampleRate)
	if err != nil {
		return 0, err
	}
	data, err := pcm.Encode(clip)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return clip.Duration(), nil
}

// Duration reports how long an entry plays.
func Duration(entry schedule.Entry) (time.Duration, error) {
	if entry.Kind == schedule.KindSilence {
		return time.Duration(entry.Silence * float64(time.Second)), nil
	}
	var longest time.Duration
	for _, u := range entry.Speech {
		clip, err := pcm.Decode(u.Audio)
		if err != nil {
			return 0, err
		}
		if d := clip.Duration(); d > longest {
			longest = d
		}
	}
	return longest, nil
}

func mix(a, b []int) []int {
	if len(b) > len(a) {
		a, b = b, a
	}
	out := make([]int, len(a))
	copy(out, a)
	for i, s := range b {
		out[i] = pcm.Clamp(out[i] + s)
	}
	return out
}

// Resample converts c to rate by linear interpolation.
func Resample(c pcm.Clip, rate int) pcm.Clip {
	if c.SampleRate == rate || c.SampleRate <= 0 || len(c.Samples) == 0 {
		return pcm.Clip{SampleRate: rate, Samples: c.Samples}
	}
	n := int(int64(len(c.Samples)) * int64(rate) / int64(c.SampleRate))
	out := make([]int, n)
	step := float64(c.SampleRate) / float64(rate)
	last := len(c.Samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = c.Samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = int(float64(c.Samples[j])*(1-frac) + float64(c.Samples[j+1])*frac)
	}
	return pcm.Clip{SampleRate: rate, Samples: out}
}
