package tts

import (
	"context"

	"github.com/loqalabs/loqa-prosody/internal/voicevox"
)

type voicevoxBackend struct {
	client *voicevox.Client
}

// NewVoicevoxBackend synthesizes through a VOICEVOX engine.
func NewVoicevoxBackend(client *voicevox.Client) Backend {
	return &voicevoxBackend{client: client}
}

func (v *voicevoxBackend) CreateQuery(ctx context.Context, text string, voice int) (*voicevox.AudioQuery, error) {
	return v.client.AudioQuery(ctx, text, voice)
}

func (v *voicevoxBackend) Synthesize(ctx context.Context, q *voicevox.AudioQuery, voice int) ([]byte, error) {
	return v.client.Synthesis(ctx, q, voice)
}
