// SPDX-License-Identifier: MIT

package buildmeta

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/forgeci/buildmetad/internal/metrics"
	"github.com/forgeci/buildmetad/internal/timeout"
	"github.com/forgeci/buildmetad/internal/types"
	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)
)

// Store provides SQLite persistence for build metadata.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore initializes a new SQLite store and runs migrations.
// WAL mode and busy_timeout are set for a read-heavy workload.
func NewStore(dbPath string) (*Store, error) {
	// busy_timeout avoids "database locked" errors
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{db: db, now: time.Now}

	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs database schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS build_metadata (
		build_id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		runner_id TEXT NOT NULL DEFAULT '',
		timeout_seconds INTEGER,
		timeout_source TEXT NOT NULL DEFAULT 'unknown' CHECK(timeout_source IN ('project', 'runner', 'job', 'unknown')),
		job_timeout_seconds INTEGER,
		status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'running', 'completed', 'failed', 'cancelled')),
		interruptible INTEGER NOT NULL DEFAULT 0,
		debug_trace_enabled INTEGER NOT NULL DEFAULT 0,
		cancel_gracefully INTEGER NOT NULL DEFAULT 0,
		exit_code INTEGER,
		config_options BLOB,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_build_metadata_project ON build_metadata(project_id);
	CREATE INDEX IF NOT EXISTS idx_build_metadata_status ON build_metadata(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// validate rejects records that should never reach the database.
func validate(m *Metadata) error {
	if m.BuildID == "" {
		return fmt.Errorf("%w: empty build id", ErrInvalidMetadata)
	}
	if m.ProjectID == "" {
		return fmt.Errorf("%w: empty project id", ErrInvalidMetadata)
	}
	if m.JobTimeout < 0 {
		return fmt.Errorf("%w: negative job timeout", ErrInvalidMetadata)
	}
	if m.Status != "" && !m.Status.IsValid() {
		return fmt.Errorf("%w: status %q", ErrInvalidMetadata, m.Status)
	}
	if len(m.ConfigOptions) > MaxConfigOptionsBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(m.ConfigOptions), MaxConfigOptionsBytes)
	}
	return nil
}

// UpsertMetadata inserts or updates the metadata row for a build.
// The resolved timeout columns are deliberately not touched on update;
// only ApplyResolution writes those.
func (s *Store) UpsertMetadata(ctx context.Context, m *Metadata) error {
	start := s.now()
	defer func() { metrics.ObserveStoreOp("upsert", time.Since(start)) }()

	if err := validate(m); err != nil {
		return err
	}
	if m.Status == "" {
		m.Status = types.BuildStatusPending
	}

	now := s.now().UTC()
	query := `
	INSERT INTO build_metadata (
		build_id, project_id, runner_id, job_timeout_seconds, status,
		interruptible, debug_trace_enabled, cancel_gracefully, config_options,
		created_at, updated_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(build_id) DO UPDATE SET
		project_id = excluded.project_id,
		runner_id = excluded.runner_id,
		job_timeout_seconds = excluded.job_timeout_seconds,
		interruptible = excluded.interruptible,
		debug_trace_enabled = excluded.debug_trace_enabled,
		cancel_gracefully = excluded.cancel_gracefully,
		config_options = excluded.config_options,
		updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		m.BuildID, m.ProjectID, m.RunnerID, nullableSeconds(m.JobTimeout), m.Status.String(),
		boolToInt(m.Interruptible), boolToInt(m.DebugTraceEnabled), boolToInt(m.CancelGracefully), m.ConfigOptions,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	return err
}

// GetMetadata retrieves the metadata row for a build.
func (s *Store) GetMetadata(ctx context.Context, buildID string) (*Metadata, error) {
	start := s.now()
	defer func() { metrics.ObserveStoreOp("get", time.Since(start)) }()

	query := `
	SELECT build_id, project_id, runner_id, timeout_seconds, timeout_source,
	       job_timeout_seconds, status, interruptible, debug_trace_enabled,
	       cancel_gracefully, exit_code, config_options, created_at, updated_at
	FROM build_metadata
	WHERE build_id = ?
	`
	row := s.db.QueryRowContext(ctx, query, buildID)
	m, err := scanMetadata(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, buildID)
	}
	return m, err
}

// ListByProject retrieves all metadata rows for a project, newest first.
func (s *Store) ListByProject(ctx context.Context, projectID string) ([]*Metadata, error) {
	start := s.now()
	defer func() { metrics.ObserveStoreOp("list", time.Since(start)) }()

	query := `
	SELECT build_id, project_id, runner_id, timeout_seconds, timeout_source,
	       job_timeout_seconds, status, interruptible, debug_trace_enabled,
	       cancel_gracefully, exit_code, config_options, created_at, updated_at
	FROM build_metadata
	WHERE project_id = ?
	ORDER BY created_at DESC, build_id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Metadata
	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ApplyResolution persists the outcome of a timeout resolution onto the
// build's row. It must only be called with an actual resolution; the
// no-candidates case leaves the row untouched by never reaching here.
func (s *Store) ApplyResolution(ctx context.Context, buildID string, res timeout.Resolution) error {
	start := s.now()
	defer func() { metrics.ObserveStoreOp("apply_resolution", time.Since(start)) }()

	if !res.Source.IsResolved() || res.Value <= 0 {
		return fmt.Errorf("%w: resolution %v/%s", ErrInvalidMetadata, res.Value, res.Source)
	}

	now := s.now().UTC()
	query := `
	UPDATE build_metadata
	SET timeout_seconds = ?, timeout_source = ?, updated_at = ?
	WHERE build_id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		int64(res.Value/time.Second), res.Source.String(), now.Format(time.RFC3339), buildID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, buildID)
	}
	return nil
}

// SetStatus transitions the build to a new status, enforcing the
// transition rules of types.BuildStatus. The write is predicated on
// the status the rules were checked against, so a concurrent
// transition cannot be overwritten: the loser's update matches zero
// rows and fails the same way an invalid transition does.
func (s *Store) SetStatus(ctx context.Context, buildID string, target types.BuildStatus) error {
	start := s.now()
	defer func() { metrics.ObserveStoreOp("set_status", time.Since(start)) }()

	if !target.IsValid() {
		return fmt.Errorf("%w: status %q", ErrInvalidMetadata, target)
	}

	current, err := s.GetMetadata(ctx, buildID)
	if err != nil {
		return err
	}
	if !current.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, target)
	}

	now := s.now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE build_metadata SET status = ?, updated_at = ? WHERE build_id = ? AND status = ?`,
		target.String(), now.Format(time.RFC3339), buildID, current.Status.String())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: status changed concurrently, %s -> %s rejected",
			ErrInvalidTransition, current.Status, target)
	}
	return nil
}

// SetExitCode records the exit code of a finished build.
func (s *Store) SetExitCode(ctx context.Context, buildID string, code int) error {
	start := s.now()
	defer func() { metrics.ObserveStoreOp("set_exit_code", time.Since(start)) }()

	now := s.now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE build_metadata SET exit_code = ?, updated_at = ? WHERE build_id = ?`,
		code, now.Format(time.RFC3339), buildID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, buildID)
	}
	return nil
}

// Stats returns the number of stored builds per status, for the status
// snapshot and diagnostics.
func (s *Store) Stats(ctx context.Context) (map[types.BuildStatus]int, error) {
	start := s.now()
	defer func() { metrics.ObserveStoreOp("stats", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM build_metadata GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	stats := make(map[types.BuildStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[types.BuildStatus(status)] = count
	}
	return stats, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row scanner) (*Metadata, error) {
	var (
		m             Metadata
		timeoutSecs   sql.NullInt64
		jobSecs       sql.NullInt64
		source        string
		status        string
		interruptible int
		debugTrace    int
		cancelGrace   int
		exitCode      sql.NullInt64
		createdAt     string
		updatedAt     string
	)
	if err := row.Scan(
		&m.BuildID, &m.ProjectID, &m.RunnerID, &timeoutSecs, &source,
		&jobSecs, &status, &interruptible, &debugTrace,
		&cancelGrace, &exitCode, &m.ConfigOptions, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	if timeoutSecs.Valid {
		m.Timeout = time.Duration(timeoutSecs.Int64) * time.Second
	}
	if jobSecs.Valid {
		m.JobTimeout = time.Duration(jobSecs.Int64) * time.Second
	}
	m.TimeoutSource = types.TimeoutSource(source)
	m.Status = types.BuildStatus(status)
	m.Interruptible = interruptible != 0
	m.DebugTraceEnabled = debugTrace != 0
	m.CancelGracefully = cancelGrace != 0
	if exitCode.Valid {
		code := int(exitCode.Int64)
		m.ExitCode = &code
	}

	var err error
	if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if m.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &m, nil
}

func nullableSeconds(d time.Duration) any {
	if d <= 0 {
		return nil
	}
	return int64(d / time.Second)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
