package tts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-prosody/internal/voicevox"
)

// Synthesizer applies a per-call timeout to a Backend and wraps its failures
// in ErrSynthesis.
type Synthesizer struct {
	backend    Backend
	timeout    time.Duration
	sampleRate int
	logger     *slog.Logger
}

// NewSynthesizer wraps backend. A non-zero sampleRate is forced onto every
// query so clips from different voices can be mixed without resampling.
func NewSynthesizer(backend Backend, timeout time.Duration, sampleRate int, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		backend:    backend,
		timeout:    timeout,
		sampleRate: sampleRate,
		logger:     logger.With(slog.String("component", "synthesizer")),
	}
}

func (s *Synthesizer) CreateQuery(ctx context.Context, text string, voice int) (*voicevox.AudioQuery, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	q, err := s.backend.CreateQuery(ctx, text, voice)
	if err != nil {
		s.logger.Warn("query creation failed", slog.Int("voice", voice), slogError(err))
		return nil, fmt.Errorf("%w: query %q: %v", ErrSynthesis, text, err)
	}
	if s.sampleRate > 0 {
		q.OutputSamplingRate = s.sampleRate
	}
	q.OutputStereo = false
	return q, nil
}

func (s *Synthesizer) Synthesize(ctx context.Context, q *voicevox.AudioQuery, voice int) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	start := time.Now()
	wav, err := s.backend.Synthesize(ctx, q, voice)
	if err != nil {
		s.logger.Warn("synthesis failed", slog.Int("voice", voice), slogError(err))
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	s.logger.Debug("synthesized segment",
		slog.Int("voice", voice),
		slog.Int("morae", q.MoraCount()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return wav, nil
}

func (s *Synthesizer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
