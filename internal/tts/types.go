package tts

import (
	"context"
	"errors"

	"github.com/loqalabs/loqa-prosody/internal/voicevox"
)

// ErrSynthesis is wrapped by every error a Synthesizer returns.
var ErrSynthesis = errors.New("synthesis failed")

// Backend is the contract for producing audio. CreateQuery returns the
// engine's default parameters for text; Synthesize renders a (possibly
// modified) query to WAV bytes.
type Backend interface {
	CreateQuery(ctx context.Context, text string, voice int) (*voicevox.AudioQuery, error)
	Synthesize(ctx context.Context, q *voicevox.AudioQuery, voice int) ([]byte, error)
}
