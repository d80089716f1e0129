package voices

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loqalabs/loqa-prosody/internal/config"
)

func TestLookupDefault(t *testing.T) {
	table := New(3, map[string]int{" A ": 8})
	if table.Lookup("A") != 8 {
		t.Fatal("expected mapped voice")
	}
	if table.Lookup("nobody") != 3 {
		t.Fatal("expected default voice for unmapped speaker")
	}
}

func TestFromConfigMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voices.yaml")
	content := "default: 2\nspeakers:\n  B: 14\n  A: 9\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := FromConfig(config.VoicesConfig{Default: 1, Speakers: map[string]int{"A": 4, "C": 5}, Table: path})
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	cases := map[string]int{"A": 9, "B": 14, "C": 5, "D": 2}
	for speaker, want := range cases {
		if got := table.Lookup(speaker); got != want {
			t.Fatalf("%s: expected %d, got %d", speaker, want, got)
		}
	}
}

func TestLoadFileRejectsNegativeVoice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voices.yaml")
	if err := os.WriteFile(path, []byte("speakers:\n  A: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for negative voice")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
