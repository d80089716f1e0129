package phoneme

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrResolution marks a failed text-to-mora lookup. Callers treat it as
// recoverable: the run resolves to no morae.
var ErrResolution = errors.New("phoneme resolution failed")

// Backend is a phonetic-analysis collaborator.
type Backend interface {
	Morae(ctx context.Context, text string, voice int) ([]string, error)
}

// Resolver adapts a Backend for the tokenizer: it bounds each call with a
// timeout, logs failures and wraps them in ErrResolution.
type Resolver struct {
	backend Backend
	timeout time.Duration
	logger  *slog.Logger
}

func NewResolver(backend Backend, timeout time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		backend: backend,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "phoneme-resolver")),
	}
}

// Resolve returns the ordered morae of text. On failure it returns an empty
// sequence together with an error wrapping ErrResolution.
func (r *Resolver) Resolve(ctx context.Context, text string, voice int) ([]string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	morae, err := r.backend.Morae(ctx, text, voice)
	if err != nil {
		r.logger.Warn("phoneme resolution failed", slog.String("text", text), slog.Int("voice", voice), slogError(err))
		return nil, fmt.Errorf("%w: %q: %v", ErrResolution, text, err)
	}
	return morae, nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
