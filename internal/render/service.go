// Package render serves the pipeline over the bus.
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-prosody/internal/bus"
	"github.com/loqalabs/loqa-prosody/internal/config"
	"github.com/loqalabs/loqa-prosody/internal/diag"
	"github.com/loqalabs/loqa-prosody/internal/eventstore"
	"github.com/loqalabs/loqa-prosody/internal/pipeline"
	"github.com/loqalabs/loqa-prosody/internal/protocol"
	"github.com/loqalabs/loqa-prosody/internal/schedule"
)

const (
	queueGroup    = "prosody-render"
	renderTimeout = 2 * time.Minute
)

// Renderer runs one transcript.
type Renderer interface {
	Render(ctx context.Context, transcript string) (pipeline.Result, error)
}

// Recorder keeps render history.
type Recorder interface {
	AppendRender(ctx context.Context, renderID, requester string, lines int) error
	AppendEvent(ctx context.Context, evt eventstore.Event) error
	Prune(ctx context.Context) error
}

type Service struct {
	cfg      config.RenderConfig
	bus      *bus.Client
	renderer Renderer
	recorder Recorder
	sub      *nats.Subscription
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger
}

func NewService(parent context.Context, cfg config.RenderConfig, busClient *bus.Client, renderer Renderer, recorder Recorder, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:      cfg,
		bus:      busClient,
		renderer: renderer,
		recorder: recorder,
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.With(slog.String("component", "render-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().QueueSubscribe(protocol.SubjectRenderRequest, queueGroup, s.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe render requests: %w", err)
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.sub != nil }

// EntrySubject is where the entries of one render are published.
func EntrySubject(renderID string) string {
	return protocol.SubjectTimelineEntry + "." + renderID
}

// DoneSubject is where the final status of one render is published.
func DoneSubject(renderID string) string {
	return protocol.SubjectRenderDone + "." + renderID
}

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.RenderRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode render request", slogError(err))
		return
	}
	// The ID becomes a subject token, so only UUIDs are accepted.
	if req.RenderID != "" {
		if _, err := uuid.Parse(req.RenderID); err != nil {
			bad := req.RenderID
			req.RenderID = uuid.NewString()
			s.finish(msg, req, protocol.RenderStatus{Error: fmt.Sprintf("render_id %q is not a UUID", bad)})
			return
		}
	} else {
		req.RenderID = uuid.NewString()
	}
	if len(req.Transcript) > s.cfg.MaxBytes {
		s.finish(msg, req, protocol.RenderStatus{
			Error: fmt.Sprintf("transcript is %d bytes, limit is %d", len(req.Transcript), s.cfg.MaxBytes),
		})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, renderTimeout)
		defer cancel()

		logger := s.logger.With(slog.String("render_id", req.RenderID))
		if err := s.recorder.AppendRender(ctx, req.RenderID, req.Requester, 0); err != nil {
			logger.Warn("failed to record render", slogError(err))
		}
		s.record(ctx, logger, eventstore.Event{RenderID: req.RenderID, Line: -1, Type: eventstore.TypeRenderStarted})

		result, err := s.renderer.Render(ctx, req.Transcript)
		if err != nil {
			logger.Warn("render aborted", slogError(err))
			s.record(ctx, logger, eventstore.Event{RenderID: req.RenderID, Line: -1, Type: eventstore.TypeRenderFailed, Payload: []byte(err.Error())})
			s.finish(msg, req, protocol.RenderStatus{Error: err.Error()})
			return
		}

		if err := s.recorder.AppendRender(ctx, req.RenderID, req.Requester, len(result.Lines)); err != nil {
			logger.Warn("failed to record render", slogError(err))
		}
		for _, w := range result.Warnings {
			s.record(ctx, logger, eventstore.Event{RenderID: req.RenderID, Line: w.Line, Type: eventstore.TypeRenderWarning, Payload: []byte(w.String())})
		}
		for i, entry := range result.Timeline {
			if err := s.publishEntry(req.RenderID, i, entry); err != nil {
				logger.Warn("failed to publish timeline entry", slog.Int("sequence", i), slogError(err))
				s.record(ctx, logger, eventstore.Event{RenderID: req.RenderID, Line: -1, Type: eventstore.TypeRenderFailed, Payload: []byte(err.Error())})
				s.finish(msg, req, protocol.RenderStatus{Entries: i, Warnings: toWarnings(result.Warnings), Error: err.Error()})
				return
			}
		}

		status := protocol.RenderStatus{Entries: len(result.Timeline), Warnings: toWarnings(result.Warnings), Completed: true}
		if data, err := json.Marshal(status); err == nil {
			s.record(ctx, logger, eventstore.Event{RenderID: req.RenderID, Line: -1, Type: eventstore.TypeRenderCompleted, Payload: data})
		}
		if err := s.recorder.Prune(ctx); err != nil {
			logger.Warn("event store prune failed", slogError(err))
		}
		s.finish(msg, req, status)
	}()
}

func (s *Service) record(ctx context.Context, logger *slog.Logger, evt eventstore.Event) {
	if err := s.recorder.AppendEvent(ctx, evt); err != nil {
		logger.Warn("failed to record render event", slog.String("type", evt.Type), slogError(err))
	}
}

func (s *Service) publishEntry(renderID string, sequence int, entry schedule.Entry) error {
	packet := protocol.TimelineEntry{
		RenderID: renderID,
		Sequence: sequence,
		Kind:     entry.Kind.String(),
		Silence:  entry.Silence,
	}
	for _, u := range entry.Speech {
		packet.Speech = append(packet.Speech, protocol.Utterance{
			Line:    u.Line,
			Speaker: u.Speaker,
			Voice:   u.Voice,
			Text:    u.Text,
			WAV:     u.Audio,
		})
	}
	return s.bus.PublishJSON(EntrySubject(renderID), packet)
}

// finish publishes the final status, and answers the request directly when
// it was sent with a reply subject.
func (s *Service) finish(msg *nats.Msg, req protocol.RenderRequest, status protocol.RenderStatus) {
	status.RenderID = req.RenderID
	status.Timestamp = time.Now().UTC()
	if err := s.bus.PublishJSON(DoneSubject(req.RenderID), status); err != nil {
		s.logger.Warn("failed to publish render status", slogError(err))
	}
	if msg.Reply != "" {
		if err := s.bus.PublishJSON(msg.Reply, status); err != nil {
			s.logger.Warn("failed to answer render request", slogError(err))
		}
	}
}

func toWarnings(warnings []diag.Warning) []protocol.Warning {
	out := make([]protocol.Warning, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, protocol.Warning{Line: w.Line, Kind: string(w.Kind), Detail: w.Detail})
	}
	return out
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
