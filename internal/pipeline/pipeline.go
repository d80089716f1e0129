// Package pipeline runs a transcript through tokenizing, flattening, prosody
// mapping, synthesis and scheduling.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/loqa-prosody/internal/diag"
	"github.com/loqalabs/loqa-prosody/internal/notation"
	"github.com/loqalabs/loqa-prosody/internal/prosody"
	"github.com/loqalabs/loqa-prosody/internal/schedule"
	"github.com/loqalabs/loqa-prosody/internal/voicevox"
)

const instrumentation = "github.com/loqalabs/loqa-prosody/internal/pipeline"

// Synthesizer is the synthesis collaborator.
type Synthesizer interface {
	CreateQuery(ctx context.Context, text string, voice int) (*voicevox.AudioQuery, error)
	Synthesize(ctx context.Context, q *voicevox.AudioQuery, voice int) ([]byte, error)
}

// VoiceTable assigns voices to speakers.
type VoiceTable interface {
	Lookup(speaker string) int
}

type Options struct {
	// Concurrency bounds how many lines are parsed, and how many segments
	// synthesized, at once.
	Concurrency int
}

// Line is the intermediate state of one transcript line.
type Line struct {
	notation.ParsedLine
	Entries  []prosody.Entry    `json:"entries"`
	Segments []schedule.Segment `json:"-"`
}

// Result is a best-effort render: whatever could be synthesized, plus every
// recovered problem.
type Result struct {
	Lines    []Line           `json:"lines"`
	Timeline []schedule.Entry `json:"timeline"`
	Warnings []diag.Warning   `json:"warnings"`
}

// Morae counts the mora entries across all lines.
func (r Result) Morae() int {
	n := 0
	for _, l := range r.Lines {
		n += len(prosody.Morae(l.Entries))
	}
	return n
}

type Pipeline struct {
	tokenizer   *notation.Tokenizer
	synth       Synthesizer
	voices      VoiceTable
	concurrency int
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *metrics
}

func New(resolver notation.Resolver, synth Synthesizer, voices VoiceTable, opts Options, logger *slog.Logger) *Pipeline {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	logger = logger.With(slog.String("component", "pipeline"))
	return &Pipeline{
		tokenizer:   notation.NewTokenizer(resolver, logger),
		synth:       synth,
		voices:      voices,
		concurrency: concurrency,
		logger:      logger,
		tracer:      otel.Tracer(instrumentation),
		metrics:     newMetrics(otel.Meter(instrumentation), logger),
	}
}

// Tokenizer exposes the tokenizer the pipeline parses with.
func (p *Pipeline) Tokenizer() *notation.Tokenizer { return p.tokenizer }

// Render processes transcript. Per-run and per-segment failures become
// warnings; the only error is ctx's.
func (p *Pipeline) Render(ctx context.Context, transcript string) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.render")
	defer span.End()
	start := time.Now()

	lines, err := p.Prepare(ctx, transcript)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	rendered, synthWarnings := p.synthesize(ctx, lines)
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	timeline, scheduleWarnings := schedule.Schedule(rendered)

	var warnings []diag.Warning
	for _, l := range lines {
		warnings = append(warnings, l.Warnings...)
	}
	warnings = append(warnings, synthWarnings...)
	warnings = append(warnings, scheduleWarnings...)
	sort.SliceStable(warnings, func(i, j int) bool { return warnings[i].Line < warnings[j].Line })

	result := Result{Lines: lines, Timeline: timeline, Warnings: warnings}
	for _, w := range scheduleWarnings {
		p.logWarning(w)
	}
	p.metrics.recordWarnings(ctx, warnings)
	p.metrics.morae.Add(ctx, int64(result.Morae()))

	span.SetAttributes(
		attribute.Int("lines", len(lines)),
		attribute.Int("timeline.entries", len(timeline)),
		attribute.Int("warnings", len(warnings)),
	)
	p.logger.Info("render complete",
		slog.Int("lines", len(lines)),
		slog.Int("entries", len(timeline)),
		slog.Int("warnings", len(warnings)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// Prepare tokenizes, flattens and segments every line, concurrently across
// lines, and latches glue across line boundaries. No audio is produced.
func (p *Pipeline) Prepare(ctx context.Context, transcript string) ([]Line, error) {
	raw := notation.SplitLines(transcript)
	lines := make([]Line, len(raw))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, line := range raw {
		g.Go(func() error {
			lines[i] = p.prepareLine(ctx, line)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	segments := make([][]schedule.Segment, len(lines))
	for i := range lines {
		segments[i] = lines[i].Segments
	}
	schedule.Latch(segments)
	return lines, nil
}

func (p *Pipeline) prepareLine(ctx context.Context, line notation.Line) Line {
	ctx, span := p.tracer.Start(ctx, "pipeline.line", trace.WithAttributes(
		attribute.Int("line", line.Index),
		attribute.String("speaker", line.Speaker),
	))
	defer span.End()

	voice := p.voices.Lookup(line.Speaker)
	parsed := p.tokenizer.ParseLine(ctx, line, voice)
	entries, flattenWarnings := prosody.Flatten(parsed.Tokens)
	parsed.Warnings = append(parsed.Warnings, diag.ForLine(line.Index, flattenWarnings)...)
	for _, w := range parsed.Warnings {
		// the resolver logs its own failures
		if w.Kind != diag.ResolutionFailure {
			p.logWarning(w)
		}
	}
	segments := schedule.Split(line.Index, line.Speaker, voice, entries)
	span.SetAttributes(attribute.Int("segments", len(segments)))
	return Line{ParsedLine: parsed, Entries: entries, Segments: segments}
}

type segmentRef struct {
	line, pos int
}

func (p *Pipeline) synthesize(ctx context.Context, lines []Line) ([][]schedule.Rendered, []diag.Warning) {
	rendered := make([][]schedule.Rendered, len(lines))
	var work []segmentRef
	for i, l := range lines {
		rendered[i] = make([]schedule.Rendered, len(l.Segments))
		for j, seg := range l.Segments {
			rendered[i][j] = schedule.Rendered{Segment: seg}
			if seg.Kind != schedule.SegmentSilence {
				work = append(work, segmentRef{i, j})
			}
		}
	}

	warnings := make([][]diag.Warning, len(work))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for k, ref := range work {
		g.Go(func() error {
			r := &rendered[ref.line][ref.pos]
			r.Audio, warnings[k] = p.renderSegment(ctx, r.Segment)
			r.Failed = r.Audio == nil
			return nil
		})
	}
	_ = g.Wait()
	p.metrics.segments.Add(ctx, int64(len(work)))

	var out []diag.Warning
	for _, w := range warnings {
		out = append(out, w...)
	}
	return rendered, out
}

// renderSegment builds the engine query for seg, applies its bundles and
// synthesizes it. A nil result means the segment failed.
func (p *Pipeline) renderSegment(ctx context.Context, seg schedule.Segment) ([]byte, []diag.Warning) {
	ctx, span := p.tracer.Start(ctx, "pipeline.synthesize", trace.WithAttributes(
		attribute.Int("line", seg.Line),
		attribute.Int("voice", seg.Voice),
		attribute.String("kind", seg.Kind.String()),
	))
	defer span.End()

	var warnings []diag.Warning
	fail := func(err error) ([]byte, []diag.Warning) {
		span.SetStatus(codes.Error, err.Error())
		return nil, append(warnings, diag.Warning{Line: seg.Line, Kind: diag.SynthesisFailure, Detail: err.Error()})
	}

	text := seg.Text()
	q, err := p.synth.CreateQuery(ctx, text, seg.Voice)
	if err != nil {
		return fail(err)
	}
	report := prosody.Apply(seg.Entries, q)
	if report.Mismatch() {
		w := diag.Warning{
			Line:   seg.Line,
			Kind:   diag.MoraMismatch,
			Detail: fmt.Sprintf("%q: %d marked morae, engine returned %d", text, report.Units, report.Morae),
		}
		p.logWarning(w)
		warnings = append(warnings, w)
	}
	if seg.GlueBefore {
		q.PrePhonemeLength = 0
	}
	if seg.GlueAfter {
		q.PostPhonemeLength = 0
	}

	start := time.Now()
	audio, err := p.synth.Synthesize(ctx, q, seg.Voice)
	p.metrics.synthesisSeconds.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return fail(err)
	}
	return audio, warnings
}

func (p *Pipeline) logWarning(w diag.Warning) {
	level := slog.LevelWarn
	if w.Kind == diag.UnmatchedOverlap {
		level = slog.LevelInfo
	}
	p.logger.Log(context.Background(), level, "recovered render problem",
		slog.Int("line", w.Line),
		slog.String("kind", string(w.Kind)),
		slog.String("detail", w.Detail),
	)
}

type metrics struct {
	morae            metric.Int64Counter
	segments         metric.Int64Counter
	warnings         metric.Int64Counter
	synthesisSeconds metric.Float64Histogram
}

func newMetrics(meter metric.Meter, logger *slog.Logger) *metrics {
	report := func(name string, err error) {
		logger.Warn("failed to create metric", slog.String("metric", name), slogError(err))
	}
	m := &metrics{}
	var err error
	if m.morae, err = meter.Int64Counter("prosody.morae",
		metric.WithDescription("Morae resolved from transcripts")); err != nil {
		report("prosody.morae", err)
		m.morae = noop.Int64Counter{}
	}
	if m.segments, err = meter.Int64Counter("prosody.segments",
		metric.WithDescription("Segments sent to synthesis")); err != nil {
		report("prosody.segments", err)
		m.segments = noop.Int64Counter{}
	}
	if m.warnings, err = meter.Int64Counter("prosody.warnings",
		metric.WithDescription("Recovered render problems by kind")); err != nil {
		report("prosody.warnings", err)
		m.warnings = noop.Int64Counter{}
	}
	if m.synthesisSeconds, err = meter.Float64Histogram("prosody.synthesis.duration",
		metric.WithDescription("Synthesis call latency"),
		metric.WithUnit("s")); err != nil {
		report("prosody.synthesis.duration", err)
		m.synthesisSeconds = noop.Float64Histogram{}
	}
	return m
}

func (m *metrics) recordWarnings(ctx context.Context, warnings []diag.Warning) {
	for kind, n := range diag.Count(warnings) {
		m.warnings.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", string(kind))))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
