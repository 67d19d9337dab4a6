// Package history persists finished and in-flight runs so they can be listed,
// replayed and searched after the process exits.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned by Run for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID        string
	Goal      string
	Phase     engine.Phase // Empty while the run is in flight
	Loops     int
	Error     string
	StartedAt time.Time
	EndedAt   time.Time // Zero while the run is in flight
}

// EventRecord is one delivered progress event.
type EventRecord struct {
	RunID     string
	Seq       int
	Event     engine.Event
	CreatedAt time.Time
}

// Store is the SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the database at path and initializes the schema.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't support multiple writers well.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		goal       TEXT NOT NULL,
		phase      TEXT NOT NULL DEFAULT '',
		loops      INTEGER NOT NULL DEFAULT 0,
		error      TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		ended_at   INTEGER
	);

	CREATE TABLE IF NOT EXISTS events (
		run_id     TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		kind       TEXT NOT NULL,
		info       TEXT NOT NULL DEFAULT '',
		value      TEXT NOT NULL,
		loop       INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// StartRun inserts the row for a new run.
func (s *Store) StartRun(ctx context.Context, id, goal string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, goal, started_at) VALUES (?, ?, ?)`,
		id, goal, startedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// AppendEvent stores one event under the next sequence number.
func (s *Store) AppendEvent(ctx context.Context, runID string, seq int, ev engine.Event, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (run_id, seq, kind, info, value, loop, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, seq, string(ev.Kind), ev.Info, ev.Value, ev.Loop, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// FinishRun records the terminal phase.
func (s *Store) FinishRun(ctx context.Context, id string, phase engine.Phase, loops int, runErr string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET phase = ?, loops = ?, error = ?, ended_at = ? WHERE id = ?`,
		string(phase), loops, runErr, endedAt.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 means 50.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, goal, phase, loops, error, started_at, ended_at FROM runs ORDER BY started_at DESC, id LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run returns one run.
func (s *Store) Run(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, goal, phase, loops, error, started_at, ended_at FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// FindRun resolves a full id or a unique id prefix.
func (s *Store) FindRun(ctx context.Context, prefix string) (RunRecord, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return RunRecord{}, ErrRunNotFound
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM runs WHERE id LIKE ? || '%' LIMIT 2`, prefix)
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to query runs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return RunRecord{}, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return RunRecord{}, err
	}
	switch len(ids) {
	case 0:
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	case 1:
		return s.Run(ctx, ids[0])
	default:
		return RunRecord{}, fmt.Errorf("run id prefix %q is ambiguous", prefix)
	}
}

// Events returns a run's events in delivery order.
func (s *Store) Events(ctx context.Context, runID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, kind, info, value, loop, created_at FROM events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var (
			rec     EventRecord
			kind    string
			created int64
		)
		if err := rows.Scan(&rec.Seq, &kind, &rec.Event.Info, &rec.Event.Value, &rec.Event.Loop, &created); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		rec.RunID = runID
		rec.Event.Kind = engine.EventKind(kind)
		rec.CreatedAt = time.UnixMilli(created)
		events = append(events, rec)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var (
		r       RunRecord
		phase   string
		started int64
		ended   sql.NullInt64
	)
	if err := sc.Scan(&r.ID, &r.Goal, &phase, &r.Loops, &r.Error, &started, &ended); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan run: %w", err)
	}
	r.Phase = engine.Phase(phase)
	r.StartedAt = time.UnixMilli(started)
	if ended.Valid {
		r.EndedAt = time.UnixMilli(ended.Int64)
	}
	return r, nil
}
