package phoneme

import (
	"context"

	"github.com/loqalabs/loqa-prosody/internal/voicevox"
)

type voicevoxBackend struct {
	client *voicevox.Client
}

// NewVoicevoxBackend resolves morae through the engine's accent phrase analysis.
func NewVoicevoxBackend(client *voicevox.Client) Backend {
	return &voicevoxBackend{client: client}
}

func (v *voicevoxBackend) Morae(ctx context.Context, text string, voice int) ([]string, error) {
	phrases, err := v.client.AccentPhrases(ctx, text, voice)
	if err != nil {
		return nil, err
	}
	return voicevox.Texts(phrases), nil
}
