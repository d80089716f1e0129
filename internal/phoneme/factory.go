package phoneme

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-prosody/internal/config"
	"github.com/loqalabs/loqa-prosody/internal/voicevox"
)

// FromConfig builds the resolver selected by cfg.Mode.
func FromConfig(cfg config.PhonemizerConfig, logger *slog.Logger) (*Resolver, error) {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	var backend Backend
	switch cfg.Mode {
	case "mock", "":
		backend = NewMockBackend()
	case "voicevox":
		backend = NewVoicevoxBackend(voicevox.NewClient(cfg.Endpoint, voicevox.Options{
			Timeout:           timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			MaxRetries:        cfg.MaxRetries,
			Logger:            logger,
		}))
	case "exec":
		b, err := NewExecBackend(cfg.Command)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("unknown phonemizer mode %q", cfg.Mode)
	}
	return NewResolver(backend, timeout, logger), nil
}
