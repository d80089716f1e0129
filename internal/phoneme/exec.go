package phoneme

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

type execBackend struct {
	cmd []string
}

type execRequest struct {
	Text  string `json:"text"`
	Voice int    `json:"voice"`
}

type execResponse struct {
	Morae []string `json:"morae"`
	Error string   `json:"error,omitempty"`
}

// NewExecBackend runs command once per text run, writing a JSON request to
// stdin and reading {"morae": [...]} from stdout.
func NewExecBackend(command string) (Backend, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse phonemizer command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("phonemizer command empty")
	}
	return &execBackend{cmd: args}, nil
}

func (e *execBackend) Morae(ctx context.Context, text string, voice int) ([]string, error) {
	input, err := json.Marshal(execRequest{Text: text, Voice: voice})
	if err != nil {
		return nil, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("phonemizer command failed: %w", err)
	}

	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return nil, fmt.Errorf("decode phonemizer response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("phonemizer: %s", resp.Error)
	}
	return resp.Morae, nil
}
