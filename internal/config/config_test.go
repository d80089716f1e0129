package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Phonemizer.Mode != "mock" || cfg.Synthesis.Mode != "mock" {
		t.Fatalf("expected mock backends by default, got %q/%q", cfg.Phonemizer.Mode, cfg.Synthesis.Mode)
	}
	if cfg.Voices.Default != 1 {
		t.Fatalf("expected default voice 1, got %d", cfg.Voices.Default)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prosody.yaml")
	data := []byte(`
runtime_name: studio
phonemizer:
  mode: voicevox
  endpoint: http://engine:50021
synthesis:
  mode: voicevox
  endpoint: http://engine:50021
voices:
  default: 3
  speakers:
    kyoko: 107
    aya: 8
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "studio" {
		t.Fatalf("expected runtime name override, got %q", cfg.RuntimeName)
	}
	if cfg.Voices.Speakers["kyoko"] != 107 || cfg.Voices.Default != 3 {
		t.Fatalf("unexpected voices: %+v", cfg.Voices)
	}
	if cfg.Synthesis.SampleRate != 24000 {
		t.Fatalf("expected default sample rate kept, got %d", cfg.Synthesis.SampleRate)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PROSODY_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("PROSODY_BUS_USERNAME", "alice")
	t.Setenv("PROSODY_BUS_PASSWORD", "secret")
	t.Setenv("PROSODY_BUS_TLS_INSECURE", "true")
	t.Setenv("PROSODY_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("PROSODY_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("PROSODY_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("PROSODY_EVENT_STORE_RETENTION_DAYS", "7")
	t.Setenv("PROSODY_EVENT_STORE_MAX_RENDERS", "123")
	t.Setenv("PROSODY_EVENT_STORE_VACUUM_ON_START", "true")
	t.Setenv("PROSODY_PHONEMIZER_MODE", "exec")
	t.Setenv("PROSODY_PHONEMIZER_COMMAND", "kana-helper --json")
	t.Setenv("PROSODY_SYNTHESIS_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("PROSODY_VOICES_DEFAULT", "107")
	t.Setenv("PROSODY_PIPELINE_CONCURRENCY", "8")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.EventStore.Path != "./tmp.db" {
		t.Fatalf("expected event store path override")
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store retention mode override")
	}
	if cfg.EventStore.RetentionDays != 7 {
		t.Fatalf("expected event store retention days override")
	}
	if cfg.EventStore.MaxRenders != 123 {
		t.Fatalf("expected event store max renders override")
	}
	if !cfg.EventStore.VacuumOnStart {
		t.Fatalf("expected event store vacuum flag override")
	}
	if cfg.Phonemizer.Mode != "exec" || cfg.Phonemizer.Command != "kana-helper --json" {
		t.Fatalf("expected phonemizer override, got %+v", cfg.Phonemizer)
	}
	if cfg.Synthesis.RequestsPerSecond != 2.5 {
		t.Fatalf("expected synthesis rate override, got %v", cfg.Synthesis.RequestsPerSecond)
	}
	if cfg.Voices.Default != 107 {
		t.Fatalf("expected default voice override")
	}
	if cfg.Pipeline.Concurrency != 8 {
		t.Fatalf("expected concurrency override")
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("PROSODY_SYNTHESIS_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for exec synthesis without command")
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	t.Setenv("PROSODY_PHONEMIZER_MODE", "festival")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for unknown phonemizer mode")
	}
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "prosody.yaml"))
	if err != nil {
		t.Fatalf("load prosody.yaml: %v", err)
	}
	if cfg.Bus.MaxPayload != 8<<20 || cfg.Synthesis.Mode != "voicevox" {
		t.Fatalf("unexpected config %+v", cfg.Bus)
	}
}

func TestValidateRejectsNegativePayload(t *testing.T) {
	t.Setenv("PROSODY_BUS_MAX_PAYLOAD_BYTES", "-1")
	if _, err := Load(""); err == nil {
		t.Fatal("expected negative max payload to be rejected")
	}
}
