package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/leozhang/finsight/internal/observability"
	"github.com/leozhang/finsight/internal/tracing"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Run statuses recorded in the store.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// DefaultListLimit caps listings when the caller passes no limit.
const DefaultListLimit = 20

// Run is the metadata of one dispatch.
type Run struct {
	ID         string        `json:"id"`
	SessionKey string        `json:"session_key,omitempty"`
	Tool       string        `json:"tool"`
	Symbols    []string      `json:"symbols,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
}

// Store persists run metadata in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens the run history database, creating it if needed. An empty
// path defaults to ~/.finsight/history.db.
func Open(dbPath string) (*Store, error) {
	observability.EnsureRegistered()

	if dbPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(homeDir, ".finsight", "history.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("Run history store opened")

	return s, nil
}

// initSchema creates database tables
func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			session_key TEXT NOT NULL DEFAULT '',
			tool TEXT NOT NULL,
			symbols TEXT NOT NULL DEFAULT '[]',
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			succeeded INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
		CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_key);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordRun inserts one run record and returns it with any missing
// fields filled: a fresh ID, the current time and a status derived
// from the error text.
func (s *Store) RecordRun(ctx context.Context, run Run) (Run, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"finsight.history",
		"history.record_run",
		attribute.String("tool", run.Tool),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if run.Tool == "" {
		err := fmt.Errorf("tool cannot be empty")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Run{}, err
	}

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		if run.Error == "" {
			run.Status = StatusOK
		} else {
			run.Status = StatusFailed
		}
	}
	if run.Symbols == nil {
		run.Symbols = []string{}
	}

	symbols, err := json.Marshal(run.Symbols)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Run{}, fmt.Errorf("failed to marshal symbols: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, session_key, tool, symbols, started_at, duration_ms, succeeded, failed, status, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SessionKey, run.Tool, string(symbols),
		run.StartedAt.UnixMilli(), run.Duration.Milliseconds(),
		run.Succeeded, run.Failed, run.Status, run.Error,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}

	logger.Debug().
		Str("run_id", run.ID).
		Str("tool", run.Tool).
		Str("status", run.Status).
		Msg("Run recorded")

	return run, nil
}

// ListRuns returns the most recent runs, newest first. A non-positive
// limit uses DefaultListLimit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	return s.listRuns(ctx, "", limit)
}

// ListSessionRuns returns the most recent runs for one session key,
// newest first.
func (s *Store) ListSessionRuns(ctx context.Context, sessionKey string, limit int) ([]Run, error) {
	return s.listRuns(ctx, sessionKey, limit)
}

func (s *Store) listRuns(ctx context.Context, sessionKey string, limit int) ([]Run, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"finsight.history",
		"history.list_runs",
		attribute.String("session_key", sessionKey),
	)
	defer span.End()

	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, session_key, tool, symbols, started_at, duration_ms, succeeded, failed, status, error
		FROM runs
	`
	args := []interface{}{}
	if sessionKey != "" {
		query += " WHERE session_key = ?"
		args = append(args, sessionKey)
	}
	query += " ORDER BY started_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run        Run
			symbols    string
			startedAt  int64
			durationMS int64
		)
		if err := rows.Scan(
			&run.ID, &run.SessionKey, &run.Tool, &symbols,
			&startedAt, &durationMS, &run.Succeeded, &run.Failed,
			&run.Status, &run.Error,
		); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		if err := json.Unmarshal([]byte(symbols), &run.Symbols); err != nil {
			log.Warn().
				Str("run_id", run.ID).
				Err(err).
				Msg("Failed to parse symbols column, skipping field")
		}
		run.StartedAt = time.UnixMilli(startedAt)
		run.Duration = time.Duration(durationMS) * time.Millisecond

		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}

	return runs, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	log.Info().Msg("Run history store closed")

	return nil
}
