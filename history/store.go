// Package history persists a record of tool invocations in a local SQLite
// database, backing the okit history command group.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/okit-dev/okit/tool"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS invocations (
	id TEXT PRIMARY KEY,
	tool TEXT NOT NULL,
	args TEXT NOT NULL,
	started_at TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invocations_started_at ON invocations(started_at);`

const defaultDBName = "okit.db"

// Statuses recorded per invocation.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Record is one tool invocation.
type Record struct {
	ID        string
	Tool      string
	Args      []string
	StartedAt time.Time
	Duration  time.Duration
	Status    string
}

// Store persists invocation records.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the default database path (~/.okit/okit.db).
func DefaultPath() (string, error) {
	home, err := tool.HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, defaultDBName), nil
}

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history: store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open store: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: set WAL mode: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Append stores a record, assigning an ID when absent.
func (s *Store) Append(ctx context.Context, rec Record) error {
	if s == nil || s.db == nil {
		return errors.New("history: store is closed")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusOK
	}
	// Arguments are stored as a JSON array so values containing spaces
	// round-trip intact.
	argsJSON, err := json.Marshal(rec.Args)
	if err != nil {
		return fmt.Errorf("history: encode args: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO invocations (id, tool, args, started_at, duration_ms, status)
VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Tool,
		string(argsJSON),
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.Duration.Milliseconds(),
		rec.Status,
	)
	if err != nil {
		return fmt.Errorf("history: append record: %w", err)
	}
	return nil
}

// List returns the most recent records, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history: store is closed")
	}
	query := `
SELECT id, tool, args, started_at, duration_ms, status
FROM invocations
ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list records: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var (
			rec        Record
			argsJSON   string
			startedAt  string
			durationMS int64
		)
		if err := rows.Scan(&rec.ID, &rec.Tool, &argsJSON, &startedAt, &durationMS, &rec.Status); err != nil {
			return nil, fmt.Errorf("history: scan record: %w", err)
		}
		if argsJSON != "" {
			if err := json.Unmarshal([]byte(argsJSON), &rec.Args); err != nil {
				return nil, fmt.Errorf("history: decode args: %w", err)
			}
		}
		rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("history: parse started_at: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Clear removes all records.
func (s *Store) Clear(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("history: store is closed")
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM invocations"); err != nil {
		return fmt.Errorf("history: clear records: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
