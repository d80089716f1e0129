package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/loqalabs/loqa-prosody/internal/voicevox"
)

type execSynth struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	Op    string               `json:"op"` // query or synthesize
	Text  string               `json:"text,omitempty"`
	Voice int                  `json:"voice"`
	Query *voicevox.AudioQuery `json:"query,omitempty"`
}

type execResponse struct {
	Query     *voicevox.AudioQuery `json:"query,omitempty"`
	WAVBase64 string               `json:"wav_base64,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// NewExecSynth runs command once per call with a JSON request on stdin. The
// command answers {"query": ...} for op=query and {"wav_base64": ...} for
// op=synthesize. Calls are serialized.
func NewExecSynth(command string) (Backend, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args}, nil
}

func (e *execSynth) CreateQuery(ctx context.Context, text string, voice int) (*voicevox.AudioQuery, error) {
	resp, err := e.run(ctx, execRequest{Op: "query", Text: text, Voice: voice})
	if err != nil {
		return nil, err
	}
	if resp.Query == nil {
		return nil, errors.New("tts command returned no query")
	}
	return resp.Query, nil
}

func (e *execSynth) Synthesize(ctx context.Context, q *voicevox.AudioQuery, voice int) ([]byte, error) {
	resp, err := e.run(ctx, execRequest{Op: "synthesize", Voice: voice, Query: q})
	if err != nil {
		return nil, err
	}
	wav, err := base64.StdEncoding.DecodeString(resp.WAVBase64)
	if err != nil {
		return nil, fmt.Errorf("decode tts audio: %w", err)
	}
	if len(wav) == 0 {
		return nil, errors.New("tts command returned no audio")
	}
	return wav, nil
}

func (e *execSynth) run(ctx context.Context, req execRequest) (execResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		return execResponse{}, err
	}
	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(data)
	output, err := cmd.Output()
	if err != nil {
		return execResponse{}, fmt.Errorf("tts command failed: %w", err)
	}
	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return execResponse{}, fmt.Errorf("decode tts response: %w", err)
	}
	if resp.Error != "" {
		return execResponse{}, fmt.Errorf("tts: %s", resp.Error)
	}
	return resp, nil
}
