package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/leapstack-labs/multibuild/internal/pipeline"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore stores build history in SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a store. A nil logger discards log output.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens the database at path, creating its directory if needed.
func (s *SQLiteStore) Open(path string) error {
	dsn := ":memory:?_pragma=foreign_keys(1)"
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create history directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	s.logger.Debug("opened history store", "path", path)
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Open opens and migrates the store at path.
func Open(path string, logger *slog.Logger) (*SQLiteStore, error) {
	s := NewSQLiteStore(logger)
	if err := s.Open(path); err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// --- Run operations ---

// CreateRun inserts a running run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, runID string, targets []string, started time.Time) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, targets, status, started_at) VALUES (?, ?, ?, ?)`,
		runID, strings.Join(targets, ","), RunStatusRunning, formatTime(started),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished.
func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, failed bool, message string, finished time.Time) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	status := RunStatusSucceeded
	if failed {
		status = RunStatusFailed
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, formatTime(finished), nullString(message), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, targets, status, started_at, completed_at, error FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, targets, status, started_at, completed_at, error FROM runs
		 ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteOldRuns keeps the newest keep runs and deletes the rest along with
// their target builds.
func (s *SQLiteStore) DeleteOldRuns(ctx context.Context, keep int) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, id LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}
	return res.RowsAffected()
}

// --- Target build operations ---

// RecordOutcome stores the outcome of one target.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, runID string, o pipeline.Outcome) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tb := TargetBuild{
		ID:        uuid.NewString(),
		RunID:     runID,
		Target:    o.TargetID,
		Status:    string(o.Status),
		StartedAt: o.Started,
		Duration:  o.Duration,
		Warnings:  len(o.Diagnostics),
	}
	if o.Primary != nil {
		tb.CodePath = o.Primary.CodePath
		tb.CodeBytes = o.Primary.CodeBytes
	}
	if o.Minified != nil {
		tb.MinifiedPath = o.Minified.CodePath
		tb.MinifiedBytes = o.Minified.CodeBytes
	}
	if o.Err != nil {
		tb.Error = o.Err.Error()
	}
	if o.MinifyErr != nil {
		tb.MinifyError = o.MinifyErr.Error()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO target_builds (id, run_id, target, status, started_at, duration_ms,
			code_path, code_bytes, minified_path, minified_bytes, warnings, error, minify_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tb.ID, tb.RunID, tb.Target, tb.Status, formatTime(tb.StartedAt), tb.Duration.Milliseconds(),
		nullString(tb.CodePath), tb.CodeBytes, nullString(tb.MinifiedPath), tb.MinifiedBytes,
		tb.Warnings, nullString(tb.Error), nullString(tb.MinifyError),
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome of %s: %w", o.TargetID, err)
	}
	return nil
}

// TargetBuilds returns the target builds of a run ordered by target id.
func (s *SQLiteStore) TargetBuilds(ctx context.Context, runID string) ([]*TargetBuild, error) {
	return s.queryBuilds(ctx,
		`SELECT id, run_id, target, status, started_at, duration_ms, code_path, code_bytes,
			minified_path, minified_bytes, warnings, error, minify_error
		 FROM target_builds WHERE run_id = ? ORDER BY target`, runID)
}

// TargetHistory returns the most recent builds of one target, newest first.
func (s *SQLiteStore) TargetHistory(ctx context.Context, target string, limit int) ([]*TargetBuild, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryBuilds(ctx,
		`SELECT id, run_id, target, status, started_at, duration_ms, code_path, code_bytes,
			minified_path, minified_bytes, warnings, error, minify_error
		 FROM target_builds WHERE target = ? ORDER BY started_at DESC LIMIT ?`, target, limit)
}

func (s *SQLiteStore) queryBuilds(ctx context.Context, query string, args ...any) ([]*TargetBuild, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query target builds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var builds []*TargetBuild
	for rows.Next() {
		var (
			tb                                      TargetBuild
			started                                 string
			durationMS                              int64
			codePath, minPath, errMsg, minifyErrMsg sql.NullString
		)
		if err := rows.Scan(&tb.ID, &tb.RunID, &tb.Target, &tb.Status, &started, &durationMS,
			&codePath, &tb.CodeBytes, &minPath, &tb.MinifiedBytes, &tb.Warnings, &errMsg, &minifyErrMsg); err != nil {
			return nil, fmt.Errorf("failed to scan target build: %w", err)
		}
		if tb.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		tb.Duration = time.Duration(durationMS) * time.Millisecond
		tb.CodePath = codePath.String
		tb.MinifiedPath = minPath.String
		tb.Error = errMsg.String
		tb.MinifyError = minifyErrMsg.String
		builds = append(builds, &tb)
	}
	return builds, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run               Run
		targets, started  string
		completed, errMsg sql.NullString
	)
	if err := row.Scan(&run.ID, &targets, &run.Status, &started, &completed, &errMsg); err != nil {
		return nil, err
	}
	if targets != "" {
		run.Targets = strings.Split(targets, ",")
	}
	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if completed.Valid {
		t, err := parseTime(completed.String)
		if err != nil {
			return nil, err
		}
		run.CompletedAt = &t
	}
	run.Error = errMsg.String
	return &run, nil
}

// Timestamps are stored as UTC RFC 3339 text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
