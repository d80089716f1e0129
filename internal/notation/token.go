// Package notation tokenizes transcripts written in Jefferson-style
// conversation-analysis markup.
package notation

import (
	"fmt"
	"strings"
)

// Kind is the closed set of token variants.
type Kind int

const (
	KindText Kind = iota
	KindElongate
	KindPitchUp
	KindPitchDown
	KindPause
	KindGlue
	KindWhisper
	KindEmphasis
	KindFastSpeech
	KindSlowSpeech
	KindOverlap
)

var kindNames = [...]string{
	KindText:       "text",
	KindElongate:   "elongate",
	KindPitchUp:    "pitch_up",
	KindPitchDown:  "pitch_down",
	KindPause:      "pause",
	KindGlue:       "glue",
	KindWhisper:    "whisper",
	KindEmphasis:   "emphasis",
	KindFastSpeech: "fast",
	KindSlowSpeech: "slow",
	KindOverlap:    "overlap",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown token kind %q", b)
}

// IsModifier reports whether k binds to the preceding mora.
func (k Kind) IsModifier() bool {
	return k == KindElongate || k == KindPitchUp || k == KindPitchDown
}

// IsContainer reports whether k wraps nested tokens.
func (k Kind) IsContainer() bool {
	switch k {
	case KindWhisper, KindEmphasis, KindFastSpeech, KindSlowSpeech, KindOverlap:
		return true
	}
	return false
}

// Pitch intensities and pause durations (seconds) produced by the delimiters.
const (
	PitchLow  = 2
	PitchMid  = 5
	PitchHigh = 8

	CutoffPause = 0.1
	MicroPause  = 0.2
	// MaxPause caps explicit "(N)" pauses, in seconds.
	MaxPause = 60
)

// Token is one node of the markup tree. Which fields are meaningful depends
// on Kind: Text/Morae/Failed for text, Value for modifiers (intensity) and
// pauses (seconds), Children for containers.
type Token struct {
	Kind     Kind     `json:"kind"`
	Text     string   `json:"text,omitempty"`
	Morae    []string `json:"morae,omitempty"`
	Failed   bool     `json:"failed,omitempty"`
	Value    float64  `json:"value,omitempty"`
	Children []Token  `json:"children,omitempty"`
}

func Text(raw string, morae ...string) Token {
	return Token{Kind: KindText, Text: raw, Morae: morae}
}

func Modifier(kind Kind, intensity float64) Token {
	return Token{Kind: kind, Value: intensity}
}

func Pause(seconds float64) Token {
	return Token{Kind: KindPause, Value: seconds}
}

func Glue() Token {
	return Token{Kind: KindGlue}
}

func Container(kind Kind, children ...Token) Token {
	return Token{Kind: kind, Children: children}
}

// String renders a compact debug form, e.g. emphasis(text[a b] elongate(2)).
func (t Token) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t Token) write(b *strings.Builder) {
	switch {
	case t.Kind == KindText:
		fmt.Fprintf(b, "text[%s]", strings.Join(t.Morae, " "))
	case t.Kind == KindGlue:
		b.WriteString("glue")
	case t.Kind.IsContainer():
		b.WriteString(t.Kind.String())
		b.WriteByte('(')
		for i, c := range t.Children {
			if i > 0 {
				b.WriteByte(' ')
			}
			c.write(b)
		}
		b.WriteByte(')')
	default:
		fmt.Fprintf(b, "%s(%g)", t.Kind, t.Value)
	}
}
