package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-prosody/internal/bus"
	"github.com/loqalabs/loqa-prosody/internal/diag"
	"github.com/loqalabs/loqa-prosody/internal/mixdown"
	"github.com/loqalabs/loqa-prosody/internal/protocol"
	"github.com/loqalabs/loqa-prosody/internal/render"
	"github.com/loqalabs/loqa-prosody/internal/schedule"
)

func newSubmitCmd(a *app) *cobra.Command {
	var (
		output  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit <transcript|->",
		Short: "Render a transcript on a running prosodyd and mix the streamed timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcript, err := readTranscript(cmd, args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client, err := bus.Connect(ctx, "prosodyctl", a.cfg.Bus, a.logger)
			if err != nil {
				return err
			}
			defer client.Close()

			timeline, status, err := submit(ctx, client.Conn(), protocol.RenderRequest{
				RenderID:   uuid.NewString(),
				Requester:  "prosodyctl",
				Transcript: transcript,
			})
			if err != nil {
				return err
			}
			length, err := mixdown.WriteFile(output, timeline, a.cfg.Synthesis.SampleRate)
			if err != nil {
				return err
			}
			warnings := make([]diag.Warning, 0, len(status.Warnings))
			for _, w := range status.Warnings {
				warnings = append(warnings, diag.Warning{Line: w.Line, Kind: diag.Kind(w.Kind), Detail: w.Detail})
			}
			a.report(cmd, output, len(timeline), length.Seconds(), warnings)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "out.wav", "output WAV path")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "how long to wait for the render")
	return cmd
}

// submit publishes req and collects its timeline. Both subscriptions are in
// place before the request goes out so no entry is missed.
func submit(ctx context.Context, conn *nats.Conn, req protocol.RenderRequest) ([]schedule.Entry, protocol.RenderStatus, error) {
	entrySub, err := conn.SubscribeSync(render.EntrySubject(req.RenderID))
	if err != nil {
		return nil, protocol.RenderStatus{}, err
	}
	defer func() { _ = entrySub.Unsubscribe() }()

	doneSub, err := conn.SubscribeSync(render.DoneSubject(req.RenderID))
	if err != nil {
		return nil, protocol.RenderStatus{}, err
	}
	defer func() { _ = doneSub.Unsubscribe() }()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, protocol.RenderStatus{}, err
	}
	if err := conn.Publish(protocol.SubjectRenderRequest, data); err != nil {
		return nil, protocol.RenderStatus{}, fmt.Errorf("publish render request: %w", err)
	}

	msg, err := doneSub.NextMsgWithContext(ctx)
	if err != nil {
		return nil, protocol.RenderStatus{}, fmt.Errorf("wait for render %s: %w", req.RenderID, err)
	}
	var status protocol.RenderStatus
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		return nil, status, fmt.Errorf("decode render status: %w", err)
	}
	if !status.Completed {
		return nil, status, errors.New(status.Error)
	}

	// Entries were published before the status, so they are already queued
	// on their own subscription.
	packets := make([]protocol.TimelineEntry, 0, status.Entries)
	for len(packets) < status.Entries {
		m, err := entrySub.NextMsgWithContext(ctx)
		if err != nil {
			return nil, status, fmt.Errorf("render %s: received %d of %d entries: %w", req.RenderID, len(packets), status.Entries, err)
		}
		var packet protocol.TimelineEntry
		if err := json.Unmarshal(m.Data, &packet); err != nil {
			return nil, status, fmt.Errorf("decode timeline entry: %w", err)
		}
		packets = append(packets, packet)
	}

	sort.Slice(packets, func(i, j int) bool { return packets[i].Sequence < packets[j].Sequence })
	timeline := make([]schedule.Entry, 0, len(packets))
	for _, p := range packets {
		entry, err := toEntry(p)
		if err != nil {
			return nil, status, err
		}
		timeline = append(timeline, entry)
	}
	return timeline, status, nil
}

func toEntry(p protocol.TimelineEntry) (schedule.Entry, error) {
	var kind schedule.EntryKind
	if err := kind.UnmarshalText([]byte(p.Kind)); err != nil {
		return schedule.Entry{}, err
	}
	entry := schedule.Entry{Kind: kind, Silence: p.Silence}
	for _, u := range p.Speech {
		entry.Speech = append(entry.Speech, schedule.Utterance{
			Line:    u.Line,
			Speaker: u.Speaker,
			Voice:   u.Voice,
			Text:    u.Text,
			Audio:   u.WAV,
		})
	}
	return entry, nil
}
