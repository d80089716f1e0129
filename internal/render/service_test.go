package render

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/loqalabs/loqa-prosody/internal/bus"
	"github.com/loqalabs/loqa-prosody/internal/config"
	"github.com/loqalabs/loqa-prosody/internal/eventstore"
	"github.com/loqalabs/loqa-prosody/internal/natsserver"
	"github.com/loqalabs/loqa-prosody/internal/phoneme"
	"github.com/loqalabs/loqa-prosody/internal/pipeline"
	"github.com/loqalabs/loqa-prosody/internal/protocol"
	"github.com/loqalabs/loqa-prosody/internal/tts"
	"github.com/loqalabs/loqa-prosody/internal/voices"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startService(t *testing.T, cfg config.RenderConfig) (*bus.Client, *eventstore.Store) {
	t.Helper()
	logger := newLogger()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1, MaxPayload: 8 << 20}, logger)
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	client, err := bus.Connect(context.Background(), "render-test", config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	store, err := eventstore.Open(context.Background(), config.EventStoreConfig{
		Path:          filepath.Join(t.TempDir(), "events.db"),
		RetentionMode: "session",
	}, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	p := pipeline.New(
		phoneme.NewResolver(phoneme.NewMockBackend(), time.Second, logger),
		tts.NewSynthesizer(tts.NewMockSynth(8000), time.Second, 8000, logger),
		voices.New(1, map[string]int{"B": 2}),
		pipeline.Options{Concurrency: 2},
		logger,
	)
	svc := NewService(context.Background(), cfg, client, p, store, logger)
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Close)
	if !svc.Healthy() {
		t.Fatal("expected healthy service")
	}
	return client, store
}

func TestRenderOverBus(t *testing.T) {
	client, store := startService(t, config.RenderConfig{Enabled: true, MaxBytes: 1 << 16})

	renderID := uuid.NewString()
	entries, err := client.Conn().SubscribeSync(EntrySubject(renderID))
	if err != nil {
		t.Fatal(err)
	}
	req, _ := json.Marshal(protocol.RenderRequest{
		RenderID:   renderID,
		Requester:  "test",
		Transcript: "[A]:hello [there]\n[B]:[hi]\n[A]:::you",
	})
	reply, err := client.Conn().Request(protocol.SubjectRenderRequest, req, 10*time.Second)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var status protocol.RenderStatus
	if err := json.Unmarshal(reply.Data, &status); err != nil {
		t.Fatal(err)
	}
	if !status.Completed || status.RenderID != renderID || status.Entries != 3 {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(status.Warnings) != 1 || status.Warnings[0].Kind != "orphan_modifier" {
		t.Fatalf("expected the orphan modifier warning, got %+v", status.Warnings)
	}

	var kinds []string
	for i := 0; i < status.Entries; i++ {
		msg, err := entries.NextMsg(2 * time.Second)
		if err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
		var entry protocol.TimelineEntry
		if err := json.Unmarshal(msg.Data, &entry); err != nil {
			t.Fatal(err)
		}
		if entry.Sequence != i {
			t.Fatalf("entries out of order: got %d at %d", entry.Sequence, i)
		}
		kinds = append(kinds, entry.Kind)
	}
	if kinds[1] != "overlap_pair" {
		t.Fatalf("expected an overlap pair second, got %v", kinds)
	}

	events, err := store.ListRenderEvents(context.Background(), renderID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("expected started, warning and completed events, got %+v", events)
	}
	if events[0].Type != eventstore.TypeRenderStarted || events[2].Type != eventstore.TypeRenderCompleted {
		t.Fatalf("unexpected event order %+v", events)
	}
}

func TestRejectsOversizedTranscript(t *testing.T) {
	client, _ := startService(t, config.RenderConfig{Enabled: true, MaxBytes: 8})
	req, _ := json.Marshal(protocol.RenderRequest{Transcript: "[A]:far too long"})
	reply, err := client.Conn().Request(protocol.SubjectRenderRequest, req, 5*time.Second)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var status protocol.RenderStatus
	if err := json.Unmarshal(reply.Data, &status); err != nil {
		t.Fatal(err)
	}
	if status.Completed || status.Error == "" || status.RenderID == "" {
		t.Fatalf("expected a rejection with an assigned id, got %+v", status)
	}
}

func TestRejectsNonUUIDRenderID(t *testing.T) {
	client, _ := startService(t, config.RenderConfig{Enabled: true, MaxBytes: 1 << 16})
	for _, id := range []string{"a.b", "render.*", "x >", "render-1"} {
		req, _ := json.Marshal(protocol.RenderRequest{RenderID: id, Transcript: "[A]:hi"})
		reply, err := client.Conn().Request(protocol.SubjectRenderRequest, req, 5*time.Second)
		if err != nil {
			t.Fatalf("%q: request: %v", id, err)
		}
		var status protocol.RenderStatus
		if err := json.Unmarshal(reply.Data, &status); err != nil {
			t.Fatal(err)
		}
		if status.Completed || status.Error == "" {
			t.Fatalf("%q: expected rejection, got %+v", id, status)
		}
		if _, err := uuid.Parse(status.RenderID); err != nil {
			t.Fatalf("%q: expected a fresh UUID, got %q", id, status.RenderID)
		}
	}
}
