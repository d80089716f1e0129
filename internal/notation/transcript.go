package notation

import (
	"context"
	"strings"

	"github.com/loqalabs/loqa-prosody/internal/diag"
)

// Line is one speaker turn of a transcript. Index counts accepted lines from
// zero; Number is the 1-based line number in the source text.
type Line struct {
	Index   int    `json:"index"`
	Number  int    `json:"number"`
	Speaker string `json:"speaker"`
	Markup  string `json:"markup"`
}

// ParsedLine is a Line with its token tree.
type ParsedLine struct {
	Line
	Voice    int            `json:"voice"`
	Tokens   []Token        `json:"tokens"`
	Warnings []diag.Warning `json:"warnings,omitempty"`
}

// SplitLines extracts "[speaker]:markup" lines. Anything else, including
// blank lines and bare "[[" / "]]" block brackets, is skipped.
func SplitLines(transcript string) []Line {
	var lines []Line
	for n, raw := range strings.Split(transcript, "\n") {
		speaker, markup, ok := splitSpeaker(strings.TrimSpace(raw))
		if !ok {
			continue
		}
		lines = append(lines, Line{
			Index:   len(lines),
			Number:  n + 1,
			Speaker: speaker,
			Markup:  markup,
		})
	}
	return lines
}

func splitSpeaker(raw string) (string, string, bool) {
	if !strings.HasPrefix(raw, "[") {
		return "", "", false
	}
	end := strings.Index(raw, "]:")
	if end < 0 {
		return "", "", false
	}
	speaker := strings.TrimSpace(raw[1:end])
	if speaker == "" {
		return "", "", false
	}
	return speaker, raw[end+2:], true
}

// Parse splits transcript into lines and tokenizes each in order, resolving
// text with the voice voiceOf assigns to the line's speaker.
func (t *Tokenizer) Parse(ctx context.Context, transcript string, voiceOf func(speaker string) int) []ParsedLine {
	lines := SplitLines(transcript)
	parsed := make([]ParsedLine, 0, len(lines))
	for _, line := range lines {
		parsed = append(parsed, t.ParseLine(ctx, line, voiceOf(line.Speaker)))
	}
	return parsed
}

// ParseLine tokenizes a single line.
func (t *Tokenizer) ParseLine(ctx context.Context, line Line, voice int) ParsedLine {
	tokens, warnings := t.Tokenize(ctx, line.Markup, voice)
	return ParsedLine{
		Line:     line,
		Voice:    voice,
		Tokens:   tokens,
		Warnings: diag.ForLine(line.Index, warnings),
	}
}
