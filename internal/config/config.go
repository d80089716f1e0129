package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Phonemizer  PhonemizerConfig `yaml:"phonemizer"`
	Synthesis   SynthesisConfig  `yaml:"synthesis"`
	Voices      VoicesConfig     `yaml:"voices"`
	Pipeline    PipelineConfig   `yaml:"pipeline"`
	Render      RenderConfig     `yaml:"render"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	MaxPayload     int      `yaml:"max_payload_bytes"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRenders    int    `yaml:"max_renders"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// PhonemizerConfig selects the backend that turns text runs into morae.
type PhonemizerConfig struct {
	Mode              string  `yaml:"mode"` // mock, voicevox, exec
	Endpoint          string  `yaml:"endpoint"`
	Command           string  `yaml:"command"`
	TimeoutMS         int     `yaml:"timeout_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxRetries        int     `yaml:"max_retries"`
}

type SynthesisConfig struct {
	Mode              string  `yaml:"mode"` // mock, voicevox, exec
	Endpoint          string  `yaml:"endpoint"`
	Command           string  `yaml:"command"`
	SampleRate        int     `yaml:"sample_rate"`
	TimeoutMS         int     `yaml:"timeout_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxRetries        int     `yaml:"max_retries"`
}

// VoicesConfig maps transcript speakers to synthesis voices. Table, when set,
// names a YAML voice table merged over Speakers.
type VoicesConfig struct {
	Default  int            `yaml:"default"`
	Speakers map[string]int `yaml:"speakers"`
	Table    string         `yaml:"table"`
}

type PipelineConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type RenderConfig struct {
	Enabled  bool `yaml:"enabled"`
	MaxBytes int  `yaml:"max_transcript_bytes"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-prosody",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			MaxPayload:     8 << 20,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/prosody-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxRenders:    10000,
		},
		Phonemizer: PhonemizerConfig{
			Mode:              "mock",
			Endpoint:          "http://127.0.0.1:50021",
			TimeoutMS:         5000,
			RequestsPerSecond: 20,
			MaxRetries:        3,
		},
		Synthesis: SynthesisConfig{
			Mode:              "mock",
			Endpoint:          "http://127.0.0.1:50021",
			SampleRate:        24000,
			TimeoutMS:         30000,
			RequestsPerSecond: 10,
			MaxRetries:        3,
		},
		Voices: VoicesConfig{
			Default:  1,
			Speakers: map[string]int{},
		},
		Pipeline: PipelineConfig{
			Concurrency: 4,
		},
		Render: RenderConfig{
			Enabled:  true,
			MaxBytes: 1 << 20,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "PROSODY_RUNTIME_NAME")
	overrideString(&cfg.Environment, "PROSODY_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "PROSODY_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PROSODY_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "PROSODY_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "PROSODY_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PROSODY_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "PROSODY_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "PROSODY_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "PROSODY_BUS_PORT")
	overrideInt(&cfg.Bus.MaxPayload, "PROSODY_BUS_MAX_PAYLOAD_BYTES")
	overrideStringSlice(&cfg.Bus.Servers, "PROSODY_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "PROSODY_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "PROSODY_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "PROSODY_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "PROSODY_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "PROSODY_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "PROSODY_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "PROSODY_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "PROSODY_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxRenders, "PROSODY_EVENT_STORE_MAX_RENDERS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "PROSODY_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Phonemizer.Mode, "PROSODY_PHONEMIZER_MODE")
	overrideString(&cfg.Phonemizer.Endpoint, "PROSODY_PHONEMIZER_ENDPOINT")
	overrideString(&cfg.Phonemizer.Command, "PROSODY_PHONEMIZER_COMMAND")
	overrideInt(&cfg.Phonemizer.TimeoutMS, "PROSODY_PHONEMIZER_TIMEOUT_MS")
	overrideFloat(&cfg.Phonemizer.RequestsPerSecond, "PROSODY_PHONEMIZER_REQUESTS_PER_SECOND")
	overrideInt(&cfg.Phonemizer.MaxRetries, "PROSODY_PHONEMIZER_MAX_RETRIES")
	overrideString(&cfg.Synthesis.Mode, "PROSODY_SYNTHESIS_MODE")
	overrideString(&cfg.Synthesis.Endpoint, "PROSODY_SYNTHESIS_ENDPOINT")
	overrideString(&cfg.Synthesis.Command, "PROSODY_SYNTHESIS_COMMAND")
	overrideInt(&cfg.Synthesis.SampleRate, "PROSODY_SYNTHESIS_SAMPLE_RATE")
	overrideInt(&cfg.Synthesis.TimeoutMS, "PROSODY_SYNTHESIS_TIMEOUT_MS")
	overrideFloat(&cfg.Synthesis.RequestsPerSecond, "PROSODY_SYNTHESIS_REQUESTS_PER_SECOND")
	overrideInt(&cfg.Synthesis.MaxRetries, "PROSODY_SYNTHESIS_MAX_RETRIES")
	overrideInt(&cfg.Voices.Default, "PROSODY_VOICES_DEFAULT")
	overrideString(&cfg.Voices.Table, "PROSODY_VOICES_TABLE")
	overrideInt(&cfg.Pipeline.Concurrency, "PROSODY_PIPELINE_CONCURRENCY")
	overrideBool(&cfg.Render.Enabled, "PROSODY_RENDER_ENABLED")
	overrideInt(&cfg.Render.MaxBytes, "PROSODY_RENDER_MAX_TRANSCRIPT_BYTES")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
		if cfg.Bus.MaxPayload < 0 {
			return errors.New("bus.max_payload_bytes must be >= 0")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Phonemizer.Mode {
	case "mock", "voicevox", "exec":
	default:
		return errors.New("phonemizer.mode must be one of mock|voicevox|exec")
	}
	if cfg.Phonemizer.Mode == "voicevox" && cfg.Phonemizer.Endpoint == "" {
		return errors.New("phonemizer.endpoint must be set when mode=voicevox")
	}
	if cfg.Phonemizer.Mode == "exec" && cfg.Phonemizer.Command == "" {
		return errors.New("phonemizer.command must be set when mode=exec")
	}
	if cfg.Phonemizer.TimeoutMS <= 0 {
		return errors.New("phonemizer.timeout_ms must be positive")
	}
	if cfg.Phonemizer.MaxRetries < 0 {
		return errors.New("phonemizer.max_retries must be >= 0")
	}
	switch cfg.Synthesis.Mode {
	case "mock", "voicevox", "exec":
	default:
		return errors.New("synthesis.mode must be one of mock|voicevox|exec")
	}
	if cfg.Synthesis.Mode == "voicevox" && cfg.Synthesis.Endpoint == "" {
		return errors.New("synthesis.endpoint must be set when mode=voicevox")
	}
	if cfg.Synthesis.Mode == "exec" && cfg.Synthesis.Command == "" {
		return errors.New("synthesis.command must be set when mode=exec")
	}
	if cfg.Synthesis.SampleRate <= 0 {
		return errors.New("synthesis.sample_rate must be positive")
	}
	if cfg.Synthesis.TimeoutMS <= 0 {
		return errors.New("synthesis.timeout_ms must be positive")
	}
	if cfg.Synthesis.MaxRetries < 0 {
		return errors.New("synthesis.max_retries must be >= 0")
	}
	if cfg.Voices.Default < 0 {
		return errors.New("voices.default must be >= 0")
	}
	if cfg.Pipeline.Concurrency <= 0 {
		return errors.New("pipeline.concurrency must be >= 1")
	}
	if cfg.Render.Enabled && cfg.Render.MaxBytes <= 0 {
		return errors.New("render.max_transcript_bytes must be positive when render is enabled")
	}
	return nil
}
