package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-prosody/internal/config"
	"github.com/loqalabs/loqa-prosody/internal/phoneme"
	"github.com/loqalabs/loqa-prosody/internal/pipeline"
	"github.com/loqalabs/loqa-prosody/internal/tts"
	"github.com/loqalabs/loqa-prosody/internal/voices"
)

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	configPath string
	verbose    bool
	quiet      bool

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "prosodyctl",
		Short:        "Render Jefferson-notation transcripts to speech",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "configuration file (defaults apply when empty)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose logging")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "suppress non-error output")

	root.AddCommand(
		newTokenizeCmd(a),
		newFlattenCmd(a),
		newRenderCmd(a),
		newSubmitCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

func (a *app) setup(stderr io.Writer) error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	if a.quiet {
		level = slog.LevelError
	}
	a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// pipeline builds a local pipeline from the configured backends.
func (a *app) pipeline() (*pipeline.Pipeline, *voices.Table, error) {
	resolver, err := phoneme.FromConfig(a.cfg.Phonemizer, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("phonemizer: %w", err)
	}
	synth, err := tts.FromConfig(a.cfg.Synthesis, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("synthesis: %w", err)
	}
	table, err := voices.FromConfig(a.cfg.Voices)
	if err != nil {
		return nil, nil, err
	}
	p := pipeline.New(resolver, synth, table, pipeline.Options{Concurrency: a.cfg.Pipeline.Concurrency}, a.logger)
	return p, table, nil
}

// readTranscript reads the named file, or stdin for "-".
func readTranscript(cmd *cobra.Command, name string) (string, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
