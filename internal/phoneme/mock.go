package phoneme

import (
	"context"
	"unicode"
)

type mockBackend struct{}

// NewMockBackend treats every letter or digit as one mora and ignores the rest.
// It pairs with the mock synthesizer, which builds queries the same way.
func NewMockBackend() Backend { return mockBackend{} }

func (mockBackend) Morae(ctx context.Context, text string, _ int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return MockMorae(text), nil
}

// MockMorae splits text the way the mock backend does.
func MockMorae(text string) []string {
	var out []string
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, string(r))
		}
	}
	return out
}
