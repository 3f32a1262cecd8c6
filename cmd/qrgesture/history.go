package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // CGO-free SQLite
)

// DispatchRecord is one row of dispatch history.
type DispatchRecord struct {
	ID        uuid.UUID  `json:"id"`
	Kind      ActionKind `json:"kind"`
	Label     string     `json:"label"`
	Detail    string     `json:"detail"`
	OK        bool       `json:"ok"`
	Message   string     `json:"message"`
	StartedAt time.Time  `json:"started_at"`
	At        time.Time  `json:"at"`
}

// HistoryRecorder persists dispatch outcomes.
type HistoryRecorder interface {
	Record(ctx context.Context, r DispatchRecord) error
}

// HistoryStore is the SQLite-backed dispatch history.
type HistoryStore struct {
	db *sql.DB
}

// OpenHistoryStore opens (creating if needed) the history database at path.
func OpenHistoryStore(path string) (*HistoryStore, error) {
	path = ExpandPath(path)
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	// WAL + busy timeout to avoid "database is locked" when `history` runs
	// next to the daemon.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := createHistoryTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &HistoryStore{db: db}, nil
}

func createHistoryTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS dispatches(
	  id         TEXT    PRIMARY KEY,
	  kind       TEXT    NOT NULL,
	  label      TEXT    NOT NULL,
	  detail     TEXT    NOT NULL DEFAULT '',
	  ok         INTEGER NOT NULL CHECK (ok IN (0,1)),
	  message    TEXT    NOT NULL,
	  started_at INTEGER NOT NULL,
	  at         INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dispatches_at   ON dispatches(at);
	CREATE INDEX IF NOT EXISTS idx_dispatches_kind ON dispatches(kind);
	`)
	if err != nil {
		return fmt.Errorf("create history tables: %w", err)
	}
	return nil
}

func (h *HistoryStore) Close() error {
	return h.db.Close()
}

func validateRecord(r DispatchRecord) error {
	if r.ID == uuid.Nil {
		return errors.New("record id is empty")
	}
	if _, ok := actionRegistry[r.Kind]; !ok {
		return fmt.Errorf("unknown action kind %q", r.Kind)
	}
	if r.At.IsZero() {
		return errors.New("record timestamp is zero")
	}
	return nil
}

// Record inserts r.
func (h *HistoryStore) Record(ctx context.Context, r DispatchRecord) error {
	if err := validateRecord(r); err != nil {
		return fmt.Errorf("invalid dispatch record: %w", err)
	}
	started := r.StartedAt
	if started.IsZero() {
		started = r.At
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO dispatches(id, kind, label, detail, ok, message, started_at, at) VALUES(?,?,?,?,?,?,?,?)`,
		r.ID.String(), string(r.Kind), r.Label, r.Detail, boolToInt(r.OK), r.Message,
		started.UnixMilli(), r.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert dispatch %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (h *HistoryStore) Recent(ctx context.Context, limit int) ([]DispatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, kind, label, detail, ok, message, started_at, at FROM dispatches ORDER BY at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []DispatchRecord
	for rows.Next() {
		var (
			id, kind        string
			ok              int
			startedMS, atMS int64
			r               DispatchRecord
		)
		if err := rows.Scan(&id, &kind, &r.Label, &r.Detail, &ok, &r.Message, &startedMS, &atMS); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		r.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse history id %q: %w", id, err)
		}
		r.Kind = ActionKind(kind)
		r.OK = ok == 1
		r.StartedAt = time.UnixMilli(startedMS).UTC()
		r.At = time.UnixMilli(atMS).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// KindCount is the number of dispatches (and failures) per action kind.
type KindCount struct {
	Kind     ActionKind `json:"kind"`
	Total    int        `json:"total"`
	Failures int        `json:"failures"`
}

// CountsByKind aggregates history per action kind.
func (h *HistoryStore) CountsByKind(ctx context.Context) ([]KindCount, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT kind, COUNT(*), SUM(CASE WHEN ok = 0 THEN 1 ELSE 0 END) FROM dispatches GROUP BY kind ORDER BY kind`,
	)
	if err != nil {
		return nil, fmt.Errorf("query history counts: %w", err)
	}
	defer rows.Close()

	var out []KindCount
	for rows.Next() {
		var (
			kind string
			c    KindCount
		)
		if err := rows.Scan(&kind, &c.Total, &c.Failures); err != nil {
			return nil, fmt.Errorf("scan history counts: %w", err)
		}
		c.Kind = ActionKind(kind)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history counts: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
