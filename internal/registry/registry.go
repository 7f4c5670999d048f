// Package registry is the durable store of app specifications and run
// history: the apps table (unique by name), the runs table (start/stop
// history, exit codes, restart counters) and the metrics table (a
// ring-buffer of CPU/memory samples per app). It is backed by a single
// SQLite file, opened with owner-only permissions, matching the teacher's
// internal/store/sqlite convention but unified into one coherent schema
// that persists every AppSpec field (clustering, health, hooks, tags,
// limits, env-inherit) rather than only the id/pid/status triple the
// teacher's schema carried.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/oxidepm/oxidepm/internal/apperr"
	"github.com/oxidepm/oxidepm/internal/appspec"
)

// Registry wraps a SQLite-backed apps/runs/metrics store.
type Registry struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path, creates the
// parent directory if missing, and ensures the schema exists. path may be
// ":memory:" for tests.
func Open(ctx context.Context, path string) (*Registry, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, apperr.New(apperr.DbError, "empty registry path")
	}
	if p != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			return nil, apperr.Wrap(apperr.DbError, "create registry dir", err)
		}
	}
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, apperr.Wrap(apperr.DbError, "open registry", err)
	}
	if p == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=3000;"); err != nil {
		_ = db.Close()
		return nil, apperr.Wrap(apperr.DbError, "set busy_timeout", err)
	}
	r := &Registry{db: db}
	if err := r.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if p != ":memory:" {
		_ = os.Chmod(p, 0o600)
	}
	return r, nil
}

func (r *Registry) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS apps(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			spec_json TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			app_id INTEGER NOT NULL,
			pid INTEGER,
			status TEXT NOT NULL,
			started_at TIMESTAMP,
			stopped_at TIMESTAMP,
			exit_code INTEGER,
			restarts INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_app_id ON runs(app_id);`,
		`CREATE TABLE IF NOT EXISTS metrics(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			app_id INTEGER NOT NULL,
			cpu_percent REAL NOT NULL,
			memory_bytes INTEGER NOT NULL,
			sampled_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_app_id ON metrics(app_id);`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return apperr.Wrap(apperr.DbError, "create schema", err)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (r *Registry) Close() error { return r.db.Close() }

// InsertApp inserts spec as a new row, assigning spec.ID. Returns
// AppAlreadyExists if the name is taken.
func (r *Registry) InsertApp(ctx context.Context, spec *appspec.AppSpec) error {
	if !appspec.ValidateName(spec.Name) {
		return apperr.New(apperr.ConfigError, "invalid app name: "+spec.Name)
	}
	now := time.Now().UTC()
	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = now
	}
	b, err := json.Marshal(spec)
	if err != nil {
		return apperr.Wrap(apperr.DbError, "marshal spec", err)
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO apps(name, spec_json, created_at, updated_at) VALUES(?, ?, ?, ?);`,
		spec.Name, string(b), now, now)
	if err != nil {
		if isUniqueErr(err) {
			return apperr.New(apperr.AppAlreadyExists, "app already exists: "+spec.Name)
		}
		return apperr.Wrap(apperr.DbError, "insert app", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return apperr.Wrap(apperr.DbError, "last insert id", err)
	}
	spec.ID = id
	return nil
}

// UpdateApp rewrites the stored spec JSON for an existing app id.
func (r *Registry) UpdateApp(ctx context.Context, spec *appspec.AppSpec) error {
	b, err := json.Marshal(spec)
	if err != nil {
		return apperr.Wrap(apperr.DbError, "marshal spec", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE apps SET spec_json=?, updated_at=? WHERE id=?;`,
		string(b), time.Now().UTC(), spec.ID)
	if err != nil {
		return apperr.Wrap(apperr.DbError, "update app", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.AppNotFound, "no such app id")
	}
	return nil
}

// GetByID returns the spec stored under id.
func (r *Registry) GetByID(ctx context.Context, id int64) (*appspec.AppSpec, error) {
	row := r.db.QueryRowContext(ctx, `SELECT spec_json FROM apps WHERE id=?;`, id)
	return scanSpec(row)
}

// GetByName returns the spec stored under name.
func (r *Registry) GetByName(ctx context.Context, name string) (*appspec.AppSpec, error) {
	row := r.db.QueryRowContext(ctx, `SELECT spec_json FROM apps WHERE name=?;`, name)
	return scanSpec(row)
}

// ExistsByName reports whether an app named name is already registered.
func (r *Registry) ExistsByName(ctx context.Context, name string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM apps WHERE name=?;`, name).Scan(&n)
	if err != nil {
		return false, apperr.Wrap(apperr.DbError, "exists by name", err)
	}
	return n > 0, nil
}

// GetAll returns every app spec in the registry.
func (r *Registry) GetAll(ctx context.Context) ([]*appspec.AppSpec, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT spec_json FROM apps ORDER BY id;`)
	if err != nil {
		return nil, apperr.Wrap(apperr.DbError, "get all apps", err)
	}
	defer func() { _ = rows.Close() }()
	var out []*appspec.AppSpec
	for rows.Next() {
		var js string
		if err := rows.Scan(&js); err != nil {
			return nil, apperr.Wrap(apperr.DbError, "scan app row", err)
		}
		var s appspec.AppSpec
		if err := json.Unmarshal([]byte(js), &s); err != nil {
			return nil, apperr.Wrap(apperr.DbError, "unmarshal app row", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// DeleteApp removes the app row and any run/metric history for it.
func (r *Registry) DeleteApp(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM apps WHERE id=?;`, id); err != nil {
		return apperr.Wrap(apperr.DbError, "delete app", err)
	}
	_, _ = r.db.ExecContext(ctx, `DELETE FROM runs WHERE app_id=?;`, id)
	_, _ = r.db.ExecContext(ctx, `DELETE FROM metrics WHERE app_id=?;`, id)
	return nil
}

func scanSpec(row *sql.Row) (*appspec.AppSpec, error) {
	var js string
	if err := row.Scan(&js); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.AppNotFound, "app not found")
		}
		return nil, apperr.Wrap(apperr.DbError, "scan app", err)
	}
	var s appspec.AppSpec
	if err := json.Unmarshal([]byte(js), &s); err != nil {
		return nil, apperr.Wrap(apperr.DbError, "unmarshal app", err)
	}
	return &s, nil
}

func isUniqueErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}

// --- runs ---

// RunRecord is one row of run history.
type RunRecord struct {
	ID        int64
	AppID     int64
	PID       *int
	Status    appspec.Status
	StartedAt *time.Time
	StoppedAt *time.Time
	ExitCode  *int
	Restarts  int
}

// InsertRun records the start of a new run for appID.
func (r *Registry) InsertRun(ctx context.Context, appID int64, pid int) (int64, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO runs(app_id, pid, status, started_at, restarts) VALUES(?, ?, ?, ?, 0);`,
		appID, pid, appspec.StatusRunning, now)
	if err != nil {
		return 0, apperr.Wrap(apperr.DbError, "insert run", err)
	}
	return res.LastInsertId()
}

// UpdateRunStatus updates the status column of a run in place.
func (r *Registry) UpdateRunStatus(ctx context.Context, runID int64, status appspec.Status) error {
	_, err := r.db.ExecContext(ctx, `UPDATE runs SET status=? WHERE id=?;`, status, runID)
	if err != nil {
		return apperr.Wrap(apperr.DbError, "update run status", err)
	}
	return nil
}

// UpdateRunStop records the end of a run: final status and exit code.
func (r *Registry) UpdateRunStop(ctx context.Context, runID int64, status appspec.Status, exitCode *int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status=?, stopped_at=?, exit_code=? WHERE id=?;`,
		status, time.Now().UTC(), exitCode, runID)
	if err != nil {
		return apperr.Wrap(apperr.DbError, "update run stop", err)
	}
	return nil
}

// IncrementRestarts bumps the restart counter for a run.
func (r *Registry) IncrementRestarts(ctx context.Context, runID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE runs SET restarts = restarts + 1 WHERE id=?;`, runID)
	if err != nil {
		return apperr.Wrap(apperr.DbError, "increment restarts", err)
	}
	return nil
}

// --- metrics ---

// MetricSample is one CPU/memory observation.
type MetricSample struct {
	CPUPercent  float64
	MemoryBytes uint64
	SampledAt   time.Time
}

// InsertMetric appends a sample for appID.
func (r *Registry) InsertMetric(ctx context.Context, appID int64, s MetricSample) error {
	if s.SampledAt.IsZero() {
		s.SampledAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO metrics(app_id, cpu_percent, memory_bytes, sampled_at) VALUES(?, ?, ?, ?);`,
		appID, s.CPUPercent, s.MemoryBytes, s.SampledAt)
	if err != nil {
		return apperr.Wrap(apperr.DbError, "insert metric", err)
	}
	return nil
}

// TailMetrics returns the most recent n samples for appID, oldest first.
func (r *Registry) TailMetrics(ctx context.Context, appID int64, n int) ([]MetricSample, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT cpu_percent, memory_bytes, sampled_at FROM metrics WHERE app_id=? ORDER BY id DESC LIMIT ?;`,
		appID, n)
	if err != nil {
		return nil, apperr.Wrap(apperr.DbError, "tail metrics", err)
	}
	defer func() { _ = rows.Close() }()
	var out []MetricSample
	for rows.Next() {
		var s MetricSample
		if err := rows.Scan(&s.CPUPercent, &s.MemoryBytes, &s.SampledAt); err != nil {
			return nil, apperr.Wrap(apperr.DbError, "scan metric", err)
		}
		out = append(out, s)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// CleanupMetrics retains only the most recent keepPerApp samples for every
// app, deleting older rows.
func (r *Registry) CleanupMetrics(ctx context.Context, keepPerApp int) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM metrics WHERE id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY app_id ORDER BY id DESC) rn
				FROM metrics
			) WHERE rn <= ?
		);`, keepPerApp)
	if err != nil {
		return apperr.Wrap(apperr.DbError, "cleanup metrics", err)
	}
	return nil
}
