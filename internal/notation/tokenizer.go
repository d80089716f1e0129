package notation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-prosody/internal/diag"
)

// Resolver turns a plain text run into ordered morae.
type Resolver interface {
	Resolve(ctx context.Context, text string, voice int) ([]string, error)
}

// Tokenizer scans markup and resolves its text runs. It holds no per-call
// state, so one Tokenizer may serve concurrent lines.
type Tokenizer struct {
	resolver Resolver
	logger   *slog.Logger
}

func NewTokenizer(resolver Resolver, logger *slog.Logger) *Tokenizer {
	return &Tokenizer{
		resolver: resolver,
		logger:   logger.With(slog.String("component", "tokenizer")),
	}
}

// spans maps an opening delimiter to its closing delimiter and container kind.
var spans = map[rune]struct {
	close rune
	kind  Kind
}{
	'°': {'°', KindWhisper},
	'_': {'_', KindEmphasis},
	'<': {'>', KindFastSpeech},
	'>': {'<', KindSlowSpeech},
	'[': {']', KindOverlap},
}

// Tokenize scans markup left to right. It never fails: unterminated spans run
// to the end of the markup and unresolvable text becomes an empty run, both
// reported as warnings with Line set to -1.
func (t *Tokenizer) Tokenize(ctx context.Context, markup string, voice int) ([]Token, []diag.Warning) {
	s := &scan{tokenizer: t, ctx: ctx, voice: voice}
	tokens := s.tokens([]rune(markup))
	return tokens, s.warnings
}

type scan struct {
	tokenizer *Tokenizer
	ctx       context.Context
	voice     int
	warnings  []diag.Warning
}

func (s *scan) warn(kind diag.Kind, format string, args ...any) {
	s.warnings = append(s.warnings, diag.Warning{Line: -1, Kind: kind, Detail: fmt.Sprintf(format, args...)})
}

func (s *scan) tokens(text []rune) []Token {
	var (
		tokens  []Token
		pending strings.Builder
	)
	flush := func() {
		if pending.Len() == 0 {
			return
		}
		raw := pending.String()
		pending.Reset()
		if tok, ok := s.text(raw); ok {
			tokens = append(tokens, tok)
		}
	}

	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch ch {
		case ':':
			flush()
			count := 0
			for i < len(text) && text[i] == ':' {
				count++
				i++
			}
			i--
			tokens = append(tokens, Modifier(KindElongate, float64(count)))
		case ',':
			flush()
			tokens = append(tokens, Modifier(KindPitchDown, PitchLow))
		case '?':
			flush()
			tokens = append(tokens, Modifier(KindPitchUp, PitchMid))
		case '↑':
			flush()
			tokens = append(tokens, Modifier(KindPitchUp, PitchHigh))
		case '↓':
			flush()
			tokens = append(tokens, Modifier(KindPitchDown, PitchHigh))
		case '-', '.':
			flush()
			tokens = append(tokens, Pause(CutoffPause))
		case '=':
			flush()
			tokens = append(tokens, Glue())
		case '(':
			flush()
			inner, next := s.until(text, i+1, ')', "(")
			if tok, ok := pauseLiteral(string(inner)); ok {
				if tok.Value > MaxPause {
					s.warn(diag.MalformedMarkup, "pause (%s) exceeds %gs, clamped", string(inner), float64(MaxPause))
					tok.Value = MaxPause
				}
				tokens = append(tokens, tok)
			} else {
				s.tokenizer.logger.Debug("ignoring parenthesized annotation", slog.String("content", string(inner)))
			}
			i = next
		default:
			span, ok := spans[ch]
			if !ok {
				pending.WriteRune(ch)
				continue
			}
			flush()
			inner, next := s.until(text, i+1, span.close, string(ch))
			if len(inner) > 0 {
				tokens = append(tokens, Container(span.kind, s.tokens(inner)...))
			}
			i = next
		}
	}
	flush()
	return tokens
}

// until returns the runes between start and the first closing rune, and the
// index of that closing rune. Without a terminator it consumes the rest.
func (s *scan) until(text []rune, start int, closing rune, open string) ([]rune, int) {
	for j := start; j < len(text); j++ {
		if text[j] == closing {
			return text[start:j], j
		}
	}
	s.warn(diag.MalformedMarkup, "unterminated %q span runs to end of line", open)
	if start > len(text) {
		start = len(text)
	}
	return text[start:], len(text)
}

func (s *scan) text(raw string) (Token, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Token{}, false
	}
	morae, err := s.tokenizer.resolver.Resolve(s.ctx, trimmed, s.voice)
	if err != nil {
		s.warn(diag.ResolutionFailure, "%v", err)
		return Token{Kind: KindText, Text: raw, Failed: true}, true
	}
	return Text(raw, morae...), true
}

// pauseLiteral parses the inside of a parenthesized pause: "." is a micro
// pause, a positive number is seconds. Anything else is an annotation.
func pauseLiteral(inner string) (Token, bool) {
	inner = strings.TrimSpace(inner)
	if inner == "." {
		return Pause(MicroPause), true
	}
	seconds, err := strconv.ParseFloat(inner, 64)
	if err != nil || seconds <= 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return Token{}, false
	}
	return Pause(seconds), true
}
