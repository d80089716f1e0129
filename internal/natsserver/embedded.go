// Package natsserver runs the broker in-process when the bus is embedded.
package natsserver

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/loqalabs/loqa-prosody/internal/config"
)

const readyTimeout = 5 * time.Second

// EmbeddedServer is an in-process NATS broker bound to loopback.
type EmbeddedServer struct {
	ns  *server.Server
	log *slog.Logger
}

// Start returns nil without error when the bus is not embedded. A port of -1
// picks a free one, see ClientURL. Timeline entries carry whole WAV files, so
// MaxPayload usually needs to be raised above the broker default.
func Start(cfg config.BusConfig, log *slog.Logger) (*EmbeddedServer, error) {
	if !cfg.Embedded {
		return nil, nil
	}

	opts := &server.Options{
		ServerName: "prosodyd",
		Host:       "127.0.0.1",
		Port:       cfg.Port,
		NoSigs:     true,
		NoLog:      true,
	}
	if cfg.MaxPayload > 0 {
		opts.MaxPayload = int32(cfg.MaxPayload)
		// Pending must hold at least one full message.
		if int64(cfg.MaxPayload)*4 > server.MAX_PENDING_SIZE {
			opts.MaxPending = int64(cfg.MaxPayload) * 4
		}
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, errors.New("embedded NATS server did not become ready")
	}

	log = log.With(slog.String("component", "natsserver"))
	log.Info("embedded NATS server started",
		slog.String("url", ns.ClientURL()),
		slog.Int("max_payload", int(opts.MaxPayload)))

	return &EmbeddedServer{ns: ns, log: log}, nil
}

func (e *EmbeddedServer) ClientURL() string {
	return e.ns.ClientURL()
}

func (e *EmbeddedServer) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	e.log.Info("shutting down embedded NATS server")
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
