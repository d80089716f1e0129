package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-prosody/internal/diag"
	"github.com/loqalabs/loqa-prosody/internal/mixdown"
)

func newTokenizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tokenize <transcript|->",
		Short: "Print the token tree of every transcript line as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcript, err := readTranscript(cmd, args[0])
			if err != nil {
				return err
			}
			p, table, err := a.pipeline()
			if err != nil {
				return err
			}
			lines := p.Tokenizer().Parse(cmd.Context(), transcript, table.Lookup)
			return writeJSON(cmd.OutOrStdout(), lines)
		},
	}
}

func newFlattenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "flatten <transcript|->",
		Short: "Print the flattened prosody entries of every line as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcript, err := readTranscript(cmd, args[0])
			if err != nil {
				return err
			}
			p, _, err := a.pipeline()
			if err != nil {
				return err
			}
			lines, err := p.Prepare(cmd.Context(), transcript)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), lines)
		},
	}
}

func newRenderCmd(a *app) *cobra.Command {
	var (
		output   string
		timeline bool
	)
	cmd := &cobra.Command{
		Use:   "render <transcript|->",
		Short: "Render a transcript to a WAV file with the local pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcript, err := readTranscript(cmd, args[0])
			if err != nil {
				return err
			}
			p, _, err := a.pipeline()
			if err != nil {
				return err
			}
			result, err := p.Render(cmd.Context(), transcript)
			if err != nil {
				return err
			}
			length, err := mixdown.WriteFile(output, result.Timeline, a.cfg.Synthesis.SampleRate)
			if err != nil {
				return err
			}
			if timeline {
				if err := writeJSON(cmd.OutOrStdout(), result.Timeline); err != nil {
					return err
				}
			}
			a.report(cmd, output, len(result.Timeline), length.Seconds(), result.Warnings)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "out.wav", "output WAV path")
	cmd.Flags().BoolVar(&timeline, "timeline", false, "print the timeline as JSON")
	return cmd
}

func (a *app) report(cmd *cobra.Command, output string, entries int, seconds float64, warnings []diag.Warning) {
	for _, w := range warnings {
		a.logger.Warn(w.Detail, "kind", string(w.Kind), "line", w.Line)
	}
	if a.quiet {
		return
	}
	counts := diag.Count(warnings)
	parts := make([]string, 0, len(counts))
	for kind, n := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", kind, n))
	}
	sort.Strings(parts)
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s: %d entries, %.2fs, warnings [%s]\n",
		output, entries, seconds, strings.Join(parts, " "))
}
