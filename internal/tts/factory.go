package tts

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-prosody/internal/config"
	"github.com/loqalabs/loqa-prosody/internal/voicevox"
)

// FromConfig builds the synthesizer selected by cfg.Mode.
func FromConfig(cfg config.SynthesisConfig, logger *slog.Logger) (*Synthesizer, error) {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	var backend Backend
	switch cfg.Mode {
	case "mock", "":
		backend = NewMockSynth(cfg.SampleRate)
	case "voicevox":
		backend = NewVoicevoxBackend(voicevox.NewClient(cfg.Endpoint, voicevox.Options{
			Timeout:           timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			MaxRetries:        cfg.MaxRetries,
			Logger:            logger,
		}))
	case "exec":
		b, err := NewExecSynth(cfg.Command)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("unknown synthesis mode %q", cfg.Mode)
	}
	return NewSynthesizer(backend, timeout, cfg.SampleRate, logger), nil
}
