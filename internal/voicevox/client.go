// Package voicevox is a small client for the VOICEVOX engine HTTP API.
package voicevox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

// ErrStatus is wrapped by errors for non-2xx engine responses.
var ErrStatus = errors.New("voicevox: unexpected status")

// Options tunes a Client.
type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
	RetryInterval     time.Duration
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Client talks to one VOICEVOX engine.
type Client struct {
	endpoint   string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryEvery time.Duration
	logger     *slog.Logger
}

func NewClient(endpoint string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		http:       httpClient,
		limiter:    limiter,
		maxRetries: opts.MaxRetries,
		retryEvery: opts.RetryInterval,
		logger:     logger.With(slog.String("component", "voicevox")),
	}
}

// AccentPhrases returns the engine's accent phrase analysis of text.
func (c *Client) AccentPhrases(ctx context.Context, text string, speaker int) ([]AccentPhrase, error) {
	var phrases []AccentPhrase
	err := c.post(ctx, "/accent_phrases", text, speaker, nil, "application/json", func(body io.Reader) error {
		return json.NewDecoder(body).Decode(&phrases)
	})
	if err != nil {
		return nil, err
	}
	return phrases, nil
}

// AudioQuery returns a synthesis query for text spoken by speaker.
func (c *Client) AudioQuery(ctx context.Context, text string, speaker int) (*AudioQuery, error) {
	var q AudioQuery
	err := c.post(ctx, "/audio_query", text, speaker, nil, "application/json", func(body io.Reader) error {
		return json.NewDecoder(body).Decode(&q)
	})
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// Synthesis renders q to WAV bytes.
func (c *Client) Synthesis(ctx context.Context, q *AudioQuery, speaker int) ([]byte, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode audio query: %w", err)
	}
	var wav []byte
	err = c.post(ctx, "/synthesis", "", speaker, payload, "audio/wav", func(body io.Reader) error {
		data, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		wav = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wav, nil
}

func (c *Client) post(ctx context.Context, path, text string, speaker int, payload []byte, accept string, decode func(io.Reader) error) error {
	params := url.Values{}
	if text != "" {
		params.Set("text", text)
	}
	params.Set("speaker", strconv.Itoa(speaker))
	target := c.endpoint + path + "?" + params.Encode()

	operation := func() (struct{}, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", accept)

		resp, err := c.http.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return struct{}{}, fmt.Errorf("%w: %s %s", ErrStatus, path, resp.Status)
		}
		if resp.StatusCode >= 300 {
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w: %s %s", ErrStatus, path, resp.Status))
		}
		if err := decode(resp.Body); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("decode %s response: %w", path, err))
		}
		return struct{}{}, nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying engine request", slog.String("path", path), slog.Duration("wait", wait), slog.String("error", err.Error()))
	}
	policy := backoff.NewExponentialBackOff()
	if c.retryEvery > 0 {
		policy.InitialInterval = c.retryEvery
	}
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.maxRetries)+1),
		backoff.WithNotify(notify),
	)
	return err
}
