package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/perplext/bountyscope/internal/storage/migrations"
	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/models"
	"github.com/perplext/bountyscope/pkg/utils"
)

// ArchiveFile is the SQLite database name inside the data directory
const ArchiveFile = "bountyscope.db"

// Run statuses
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	// RunPartial marks a run where at least one pipeline failed
	RunPartial = "partial"
	RunFailed  = "failed"
)

// Run is one invocation of the fetch command
type Run struct {
	ID         string       `db:"id"`
	StartedAt  time.Time    `db:"started_at"`
	FinishedAt sql.NullTime `db:"finished_at"`
	Status     string       `db:"status"`
	Platforms  string       `db:"platforms"`
}

// RunSummary is a run with its aggregated pipeline counts
type RunSummary struct {
	Run
	Pipelines int `db:"pipelines"`
	Failed    int `db:"failed"`
	Programs  int `db:"programs"`
}

// Duration returns how long the run took, or 0 while it is running
func (r Run) Duration() time.Duration {
	if !r.FinishedAt.Valid {
		return 0
	}
	return r.FinishedAt.Time.Sub(r.StartedAt)
}

// PipelineRecord is the archived outcome of one platform pipeline
type PipelineRecord struct {
	RunID      string `db:"run_id"`
	Platform   string `db:"platform"`
	State      string `db:"state"`
	RawCount   int    `db:"raw_count"`
	Programs   int    `db:"programs"`
	Dropped    int    `db:"dropped"`
	Degraded   bool   `db:"degraded"`
	Error      string `db:"error"`
	DurationMS int64  `db:"duration_ms"`
}

// Archive keeps the history of fetch runs in SQLite
type Archive struct {
	db     *sqlx.DB
	path   string
	logger *utils.Logger
}

// OpenArchive opens (creating if needed) the archive in dataDir and
// applies pending migrations.
func OpenArchive(ctx context.Context, dataDir string, logger *utils.Logger) (*Archive, error) {
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	// Restricted perms, contains database
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, bserrors.InternalError("failed to create data directory", err).
			WithContext("dataDir", dataDir)
	}

	dbPath := filepath.Join(dataDir, ArchiveFile)
	db, err := sqlx.ConnectContext(ctx, "sqlite", dbPath)
	if err != nil {
		return nil, bserrors.InternalError("failed to connect to database", err).
			WithContext("dbPath", dbPath)
	}

	if err := ConfigureSQLite(db); err != nil {
		db.Close()
		return nil, bserrors.InternalError("failed to configure database", err)
	}

	if err := migrations.NewMigrator(db, logger).Migrate(ctx); err != nil {
		db.Close()
		return nil, bserrors.InternalError("failed to initialize database", err)
	}

	return &Archive{db: db, path: dbPath, logger: logger}, nil
}

// ConfigureSQLite applies performance and safety PRAGMAs to a SQLite connection.
func ConfigureSQLite(db *sqlx.DB) error {
	// SQLite only supports one writer, serialise all access through a single connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("failed to set %s: %w", p, err)
		}
	}
	return nil
}

// Path returns the database file path
func (a *Archive) Path() string {
	return a.path
}

// BeginRun records the start of a run over the given platforms
func (a *Archive) BeginRun(ctx context.Context, platforms []string) (Run, error) {
	run := Run{
		ID:        uuid.New().String(),
		StartedAt: utils.CurrentTime(),
		Status:    RunRunning,
		Platforms: strings.Join(platforms, ","),
	}

	_, err := a.db.NamedExecContext(ctx, `
		INSERT INTO runs (id, started_at, status, platforms)
		VALUES (:id, :started_at, :status, :platforms)`, run)
	if err != nil {
		return Run{}, bserrors.InternalError("failed to create run", err)
	}

	a.logger.Debug("Started run %s", run.ID)
	return run, nil
}

// RecordPipeline stores one pipeline's outcome and the programs it
// emitted. Re-recording a platform for the same run replaces it.
func (a *Archive) RecordPipeline(ctx context.Context, rec PipelineRecord, programs []models.CanonicalProgram) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return bserrors.InternalError("failed to begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.NamedExecContext(ctx, `
		INSERT OR REPLACE INTO pipeline_results
			(run_id, platform, state, raw_count, programs, dropped, degraded, error, duration_ms)
		VALUES
			(:run_id, :platform, :state, :raw_count, :programs, :dropped, :degraded, :error, :duration_ms)`, rec)
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return bserrors.NotFoundError("run", rec.RunID)
		}
		return bserrors.InternalError("failed to record pipeline result", err).
			WithContext("platform", rec.Platform)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM programs WHERE run_id = ? AND platform = ?`, rec.RunID, rec.Platform); err != nil {
		return bserrors.InternalError("failed to clear programs", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR REPLACE INTO programs (run_id, platform, handle, bounty, active, in_scope, out_of_scope)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return bserrors.InternalError("failed to prepare statement", err)
	}
	defer stmt.Close()

	for _, p := range programs {
		_, err := stmt.ExecContext(ctx, rec.RunID, rec.Platform, p.Handle, p.Bounty, p.Active,
			len(p.Assets.InScope), len(p.Assets.OutOfScope))
		if err != nil {
			return bserrors.InternalError("failed to insert program", err).
				WithContext("handle", p.Handle)
		}
	}

	if err := tx.Commit(); err != nil {
		return bserrors.InternalError("failed to commit pipeline result", err)
	}
	return nil
}

// FinishRun stamps the run's end time and final status
func (a *Archive) FinishRun(ctx context.Context, runID, status string) error {
	res, err := a.db.ExecContext(ctx, `UPDATE runs SET finished_at = ?, status = ? WHERE id = ?`,
		utils.CurrentTime(), status, runID)
	if err != nil {
		return bserrors.InternalError("failed to finish run", err).WithContext("runID", runID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return bserrors.NotFoundError("run", runID)
	}
	return nil
}

// GetRun returns a single run
func (a *Archive) GetRun(ctx context.Context, runID string) (Run, error) {
	var run Run
	err := a.db.GetContext(ctx, &run, `
		SELECT id, started_at, finished_at, status, platforms FROM runs WHERE id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, bserrors.NotFoundError("run", runID)
	}
	if err != nil {
		return Run{}, bserrors.InternalError("failed to get run", err).WithContext("runID", runID)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first
func (a *Archive) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	runs := []RunSummary{}
	err := a.db.SelectContext(ctx, &runs, `
		SELECT
			r.id, r.started_at, r.finished_at, r.status, r.platforms,
			COUNT(p.platform) AS pipelines,
			COALESCE(SUM(CASE WHEN p.state = 'failed' THEN 1 ELSE 0 END), 0) AS failed,
			COALESCE(SUM(p.programs), 0) AS programs
		FROM runs r
		LEFT JOIN pipeline_results p ON p.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, bserrors.InternalError("failed to list runs", err)
	}
	return runs, nil
}

// Pipelines returns the archived pipeline results of a run, by platform
func (a *Archive) Pipelines(ctx context.Context, runID string) ([]PipelineRecord, error) {
	records := []PipelineRecord{}
	err := a.db.SelectContext(ctx, &records, `
		SELECT run_id, platform, state, raw_count, programs, dropped, degraded, error, duration_ms
		FROM pipeline_results
		WHERE run_id = ?
		ORDER BY platform`, runID)
	if err != nil {
		return nil, bserrors.InternalError("failed to list pipeline results", err).WithContext("runID", runID)
	}
	return records, nil
}

// ProgramHandles returns the handles a run emitted for one platform
func (a *Archive) ProgramHandles(ctx context.Context, runID, platform string) ([]string, error) {
	handles := []string{}
	err := a.db.SelectContext(ctx, &handles, `
		SELECT handle FROM programs WHERE run_id = ? AND platform = ? ORDER BY handle`, runID, platform)
	if err != nil {
		return nil, bserrors.InternalError("failed to list programs", err)
	}
	return handles, nil
}

// SchemaStep is one embedded migration and whether the archive has it
type SchemaStep struct {
	Version     int
	Name        string
	Description string
	Applied     bool
	AppliedAt   time.Time
}

// Schema reports every embedded migration in version order
func (a *Archive) Schema(ctx context.Context) ([]SchemaStep, error) {
	migrator := migrations.NewMigrator(a.db, a.logger)

	files, err := migrator.Load()
	if err != nil {
		return nil, err
	}
	applied, err := migrator.Applied(ctx)
	if err != nil {
		return nil, err
	}

	appliedAt := make(map[int]time.Time, len(applied))
	for _, m := range applied {
		appliedAt[m.Version] = m.AppliedAt
	}

	steps := make([]SchemaStep, 0, len(files))
	for _, f := range files {
		at, ok := appliedAt[f.Version]
		steps = append(steps, SchemaStep{
			Version:     f.Version,
			Name:        f.Name,
			Description: f.Description,
			Applied:     ok,
			AppliedAt:   at,
		})
	}
	return steps, nil
}

// Rollback reverts the last steps migrations. The next OpenArchive
// applies them again on empty tables.
func (a *Archive) Rollback(ctx context.Context, steps int) error {
	return migrations.NewMigrator(a.db, a.logger).Rollback(ctx, steps)
}

// Close closes the database connection
func (a *Archive) Close() error {
	return a.db.Close()
}

// isForeignKeyConstraintError checks if an error is a foreign key constraint violation
func isForeignKeyConstraintError(err error) bool {
	// SQLite returns "FOREIGN KEY constraint failed" in error message
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
