package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loqalabs/loqa-prosody/internal/config"
)

// Event types recorded for a render.
const (
	TypeRenderStarted   = "render.started"
	TypeRenderWarning   = "render.warning"
	TypeRenderCompleted = "render.completed"
	TypeRenderFailed    = "render.failed"
)

// Event is one recorded step of a render. Line is the transcript line the
// event concerns, or -1.
type Event struct {
	ID        int64
	RenderID  string
	Line      int
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Render is the summary row of one render request.
type Render struct {
	RenderID  string
	Requester string
	Lines     int
	CreatedAt time.Time
}

// Store wraps a SQLite-backed render history.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the event store according to config.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "eventstore"))
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

// Timestamps are stored as unix nanoseconds.
func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS renders (
    render_id TEXT PRIMARY KEY,
    requester TEXT,
    lines INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS render_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    render_id TEXT NOT NULL,
    line INTEGER NOT NULL DEFAULT -1,
    event_type TEXT NOT NULL,
    payload BLOB,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(render_id) REFERENCES renders(render_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_render_events_render ON render_events(render_id, id);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) disabled() bool {
	return s.cfg.RetentionMode == "ephemeral" || s.db == nil
}

// AppendRender ensures a render row exists and updates its line count.
func (s *Store) AppendRender(ctx context.Context, renderID, requester string, lines int) error {
	if s.disabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO renders(render_id, requester, lines, created_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(render_id) DO UPDATE SET requester=excluded.requester, lines=excluded.lines`,
		renderID, requester, lines, s.clock().UTC().UnixNano())
	return err
}

// AppendEvent writes an event into the store.
func (s *Store) AppendEvent(ctx context.Context, evt Event) error {
	if s.disabled() {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO render_events(render_id, line, event_type, payload, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		evt.RenderID, evt.Line, evt.Type, evt.Payload, evt.CreatedAt.UnixNano())
	return err
}

// GetRender returns the render row, or sql.ErrNoRows.
func (s *Store) GetRender(ctx context.Context, renderID string) (Render, error) {
	if s.disabled() {
		return Render{}, sql.ErrNoRows
	}
	var (
		r       Render
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT render_id, requester, lines, created_at FROM renders WHERE render_id = ?`, renderID).
		Scan(&r.RenderID, &r.Requester, &r.Lines, &created)
	if err != nil {
		return Render{}, err
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	return r, nil
}

// ListRenderEvents retrieves up to limit events for a render in insertion
// order. A limit <= 0 returns all of them.
func (s *Store) ListRenderEvents(ctx context.Context, renderID string, limit int) ([]Event, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, render_id, line, event_type, payload, created_at
		 FROM render_events WHERE render_id = ? ORDER BY id ASC LIMIT ?`, renderID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			created int64
		)
		if err := rows.Scan(&e.ID, &e.RenderID, &e.Line, &e.Type, &e.Payload, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies configured retention (called on startup and after renders).
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.disabled() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UTC().UnixNano()
		if _, err = tx.ExecContext(ctx, `DELETE FROM render_events WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM renders WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxRenders > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM renders WHERE render_id IN (
			SELECT render_id FROM renders ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRenders)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
