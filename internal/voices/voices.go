// Package voices assigns synthesis voices to transcript speakers.
package voices

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/loqalabs/loqa-prosody/internal/config"
)

// Table maps speaker identifiers to voice ids. Unmapped speakers get Default.
type Table struct {
	Default  int            `yaml:"default"`
	Speakers map[string]int `yaml:"speakers"`
}

// New builds a table; speaker keys are matched after trimming spaces.
func New(def int, speakers map[string]int) *Table {
	t := &Table{Default: def, Speakers: make(map[string]int, len(speakers))}
	for k, v := range speakers {
		t.Speakers[strings.TrimSpace(k)] = v
	}
	return t
}

// Lookup returns the voice for speaker.
func (t *Table) Lookup(speaker string) int {
	if v, ok := t.Speakers[strings.TrimSpace(speaker)]; ok {
		return v
	}
	return t.Default
}

// LoadFile reads a YAML voice table.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read voice table: %w", err)
	}
	var raw Table
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse voice table: %w", err)
	}
	for speaker, voice := range raw.Speakers {
		if voice < 0 {
			return nil, fmt.Errorf("voice table: speaker %q has negative voice %d", speaker, voice)
		}
	}
	return New(raw.Default, raw.Speakers), nil
}

// FromConfig builds the table from cfg, merging the Table file (if any) over
// the inline speakers. The file's default wins when it sets one.
func FromConfig(cfg config.VoicesConfig) (*Table, error) {
	t := New(cfg.Default, cfg.Speakers)
	if cfg.Table == "" {
		return t, nil
	}
	file, err := LoadFile(cfg.Table)
	if err != nil {
		return nil, err
	}
	for k, v := range file.Speakers {
		t.Speakers[k] = v
	}
	if file.Default != 0 {
		t.Default = file.Default
	}
	return t, nil
}
