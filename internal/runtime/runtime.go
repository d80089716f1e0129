package runtime

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-prosody/internal/bus"
	"github.com/loqalabs/loqa-prosody/internal/config"
	"github.com/loqalabs/loqa-prosody/internal/eventstore"
	"github.com/loqalabs/loqa-prosody/internal/natsserver"
	"github.com/loqalabs/loqa-prosody/internal/phoneme"
	"github.com/loqalabs/loqa-prosody/internal/pipeline"
	"github.com/loqalabs/loqa-prosody/internal/render"
	"github.com/loqalabs/loqa-prosody/internal/tts"
	"github.com/loqalabs/loqa-prosody/internal/voices"
)

type Runtime struct {
	cfg           config.Config
	logger        *slog.Logger
	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error
	nats          *natsserver.EmbeddedServer
	bus           *bus.Client
	store         *eventstore.Store
	render        *render.Service
	ready         atomic.Bool
	wg            sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings up every component and blocks until ctx is done.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if err := r.startComponents(ctx); err != nil {
		r.stopComponents()
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("GET /renders/{id}", r.handleRender)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.serve(r.httpServer, "http")

	if metricsHandler != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.serve(r.metricsServer, "metrics")
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	for _, srv := range []*http.Server{r.httpServer, r.metricsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()
	r.stopComponents()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) startComponents(ctx context.Context) error {
	var err error
	r.nats, err = natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return err
	}
	busCfg := r.cfg.Bus
	if r.nats != nil {
		busCfg.Servers = []string{r.nats.ClientURL()}
	}
	r.bus, err = bus.Connect(ctx, r.cfg.RuntimeName, busCfg, r.logger)
	if err != nil {
		return err
	}

	r.store, err = eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}

	resolver, err := phoneme.FromConfig(r.cfg.Phonemizer, r.logger)
	if err != nil {
		return fmt.Errorf("phonemizer: %w", err)
	}
	synth, err := tts.FromConfig(r.cfg.Synthesis, r.logger)
	if err != nil {
		return fmt.Errorf("synthesis: %w", err)
	}
	table, err := voices.FromConfig(r.cfg.Voices)
	if err != nil {
		return err
	}
	p := pipeline.New(resolver, synth, table, pipeline.Options{Concurrency: r.cfg.Pipeline.Concurrency}, r.logger)

	r.render = render.NewService(ctx, r.cfg.Render, r.bus, p, r.store, r.logger)
	if err := r.render.Start(); err != nil {
		return err
	}
	r.logger.Info("render service ready",
		slog.String("phonemizer", r.cfg.Phonemizer.Mode),
		slog.String("synthesis", r.cfg.Synthesis.Mode),
	)
	return nil
}

// stopComponents tears down whatever startComponents got to, in reverse.
func (r *Runtime) stopComponents() {
	if r.render != nil {
		r.render.Close()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("event store close error", slog.String("error", err.Error()))
		}
	}
	r.bus.Close()
	r.nats.Shutdown()
}

func (r *Runtime) serve(srv *http.Server, name string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("server failed", slog.String("server", name), slog.String("error", err.Error()))
		}
	}()
}

func (r *Runtime) healthy() bool {
	return r.bus.Healthy() && (r.render == nil || r.render.Healthy())
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !r.healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unhealthy"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

type renderEvent struct {
	Line      int             `json:"line"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type renderHistory struct {
	RenderID  string        `json:"render_id"`
	Requester string        `json:"requester"`
	Lines     int           `json:"lines"`
	CreatedAt time.Time     `json:"created_at"`
	Events    []renderEvent `json:"events"`
}

// handleRender reports the recorded history of one render.
func (r *Runtime) handleRender(w http.ResponseWriter, req *http.Request) {
	if r.store == nil {
		http.Error(w, "event store unavailable", http.StatusServiceUnavailable)
		return
	}
	id := req.PathValue("id")
	render, err := r.store.GetRender(req.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		http.NotFound(w, req)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	events, err := r.store.ListRenderEvents(req.Context(), id, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := renderHistory{
		RenderID:  render.RenderID,
		Requester: render.Requester,
		Lines:     render.Lines,
		CreatedAt: render.CreatedAt,
		Events:    make([]renderEvent, 0, len(events)),
	}
	for _, e := range events {
		evt := renderEvent{Line: e.Line, Type: e.Type, CreatedAt: e.CreatedAt}
		// Completed events carry the JSON status, the rest plain text.
		if json.Valid(e.Payload) {
			evt.Payload = e.Payload
		} else {
			evt.Detail = string(e.Payload)
		}
		out.Events = append(out.Events, evt)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		r.logger.Warn("failed to write render history", slog.String("error", err.Error()))
	}
}
