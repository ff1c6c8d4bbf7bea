// Package migrations applies the archive's embedded SQL schema files.
//
// Files are named NNN_name.sql and split into sections by
// "-- +migrate Up" and "-- +migrate Down" markers. A "-- Description:"
// line documents the step.
package migrations

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/utils"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Migration is an applied schema step as recorded in schema_migrations
type Migration struct {
	ID            string
	Version       int
	Name          string
	Description   string
	Checksum      string
	AppliedAt     time.Time
	ExecutionTime time.Duration
}

// File is a migration loaded from the embedded sql directory
type File struct {
	Version     int
	Name        string
	Description string
	UpSQL       string
	DownSQL     string
	Checksum    string
}

// Migrator applies and rolls back embedded migrations
type Migrator struct {
	db     *sqlx.DB
	files  fs.FS
	logger *utils.Logger
}

// NewMigrator creates a migrator over the embedded schema files
func NewMigrator(db *sqlx.DB, logger *utils.Logger) *Migrator {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Migrator{db: db, files: migrationFiles, logger: logger}
}

// Initialize creates the schema_migrations table if needed
func (m *Migrator) Initialize(ctx context.Context) error {
	const query = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		id TEXT PRIMARY KEY,
		version INTEGER NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		checksum TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL,
		execution_time_ms INTEGER NOT NULL
	)`

	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return bserrors.InternalError("failed to create migrations table", err)
	}
	return nil
}

// Applied returns the recorded migrations in version order
func (m *Migrator) Applied(ctx context.Context) ([]Migration, error) {
	rows, err := m.db.QueryxContext(ctx, `
		SELECT id, version, name, description, checksum, applied_at, execution_time_ms
		FROM schema_migrations
		ORDER BY version ASC`)
	if err != nil {
		return nil, bserrors.InternalError("failed to query migrations", err)
	}
	defer rows.Close()

	var applied []Migration
	for rows.Next() {
		var mig Migration
		var execMs int64
		if err := rows.Scan(&mig.ID, &mig.Version, &mig.Name, &mig.Description, &mig.Checksum, &mig.AppliedAt, &execMs); err != nil {
			return nil, bserrors.InternalError("failed to scan migration", err)
		}
		mig.ExecutionTime = time.Duration(execMs) * time.Millisecond
		applied = append(applied, mig)
	}
	if err := rows.Err(); err != nil {
		return nil, bserrors.InternalError("failed to iterate migrations", err)
	}
	return applied, nil
}

// LatestVersion returns the highest applied version, or 0
func (m *Migrator) LatestVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	if err := m.db.GetContext(ctx, &version, `SELECT MAX(version) FROM schema_migrations`); err != nil {
		return 0, bserrors.InternalError("failed to get latest version", err)
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

// Load reads every embedded migration, sorted by version
func (m *Migrator) Load() ([]File, error) {
	entries, err := fs.ReadDir(m.files, "sql")
	if err != nil {
		return nil, bserrors.InternalError("failed to read migrations directory", err)
	}

	var files []File
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		f, err := m.parseFile(entry.Name())
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

func (m *Migrator) parseFile(filename string) (File, error) {
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) != 2 {
		return File{}, bserrors.ValidationError("invalid migration filename %s (expected NNN_name.sql)", filename)
	}

	var version int
	if _, err := fmt.Sscanf(parts[0], "%03d", &version); err != nil || version <= 0 {
		return File{}, bserrors.ValidationError("invalid migration version in filename %s", filename)
	}

	content, err := fs.ReadFile(m.files, "sql/"+filename)
	if err != nil {
		return File{}, bserrors.InternalError("failed to read migration file", err).
			WithContext("filename", filename)
	}

	up, down, description := parseContent(string(content))
	if up == "" {
		return File{}, bserrors.ValidationError("migration %s has no Up section", filename)
	}

	return File{
		Version:     version,
		Name:        strings.TrimSuffix(parts[1], ".sql"),
		Description: description,
		UpSQL:       up,
		DownSQL:     down,
		Checksum:    checksum(up),
	}, nil
}

func parseContent(content string) (up, down, description string) {
	var section string
	var upLines, downLines []string

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "-- +migrate Up"):
			section = "up"
			continue
		case strings.HasPrefix(trimmed, "-- +migrate Down"):
			section = "down"
			continue
		case strings.HasPrefix(trimmed, "-- Description:"):
			description = strings.TrimSpace(strings.TrimPrefix(trimmed, "-- Description:"))
			continue
		}

		switch section {
		case "up":
			upLines = append(upLines, line)
		case "down":
			downLines = append(downLines, line)
		}
	}

	return strings.TrimSpace(strings.Join(upLines, "\n")),
		strings.TrimSpace(strings.Join(downLines, "\n")),
		description
}

// Migrate applies pending migrations and verifies the checksums of
// those already applied.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.Initialize(ctx); err != nil {
		return err
	}

	current, err := m.LatestVersion(ctx)
	if err != nil {
		return err
	}

	files, err := m.Load()
	if err != nil {
		return err
	}

	for _, f := range files {
		if f.Version <= current {
			if err := m.verifyChecksum(ctx, f); err != nil {
				return err
			}
			continue
		}

		if err := m.apply(ctx, f); err != nil {
			return bserrors.InternalError(fmt.Sprintf("failed to run migration %03d_%s", f.Version, f.Name), err)
		}
		m.logger.Debug("Applied migration %03d: %s", f.Version, f.Name)
	}

	return nil
}

// Rollback reverts the last steps migrations
func (m *Migrator) Rollback(ctx context.Context, steps int) error {
	if steps <= 0 {
		return bserrors.ValidationError("rollback steps must be greater than 0")
	}

	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return bserrors.ValidationError("no migrations to roll back")
	}

	files, err := m.Load()
	if err != nil {
		return err
	}
	byVersion := make(map[int]File, len(files))
	for _, f := range files {
		byVersion[f.Version] = f
	}

	steps = min(steps, len(applied))
	for i := len(applied) - 1; i >= len(applied)-steps; i-- {
		f, ok := byVersion[applied[i].Version]
		if !ok {
			return bserrors.InternalError(fmt.Sprintf("migration file not found for version %d", applied[i].Version), nil)
		}
		if err := m.revert(ctx, f); err != nil {
			return bserrors.InternalError(fmt.Sprintf("failed to roll back migration %03d_%s", f.Version, f.Name), err)
		}
		m.logger.Debug("Rolled back migration %03d: %s", f.Version, f.Name)
	}

	return nil
}

func (m *Migrator) apply(ctx context.Context, f File) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return bserrors.InternalError("failed to begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	start := time.Now()
	if _, err := tx.ExecContext(ctx, f.UpSQL); err != nil {
		return bserrors.InternalError("failed to execute migration", err).WithContext("version", f.Version)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (id, version, name, description, checksum, applied_at, execution_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fmt.Sprintf("%03d_%s", f.Version, f.Name), f.Version, f.Name, f.Description, f.Checksum,
		utils.CurrentTime(), time.Since(start).Milliseconds(),
	)
	if err != nil {
		return bserrors.InternalError("failed to record migration", err)
	}

	return tx.Commit()
}

func (m *Migrator) revert(ctx context.Context, f File) error {
	if f.DownSQL == "" {
		return bserrors.ValidationError("migration %03d has no rollback SQL", f.Version)
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return bserrors.InternalError("failed to begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, f.DownSQL); err != nil {
		return bserrors.InternalError("failed to execute rollback", err).WithContext("version", f.Version)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?`, f.Version); err != nil {
		return bserrors.InternalError("failed to remove migration record", err)
	}

	return tx.Commit()
}

func (m *Migrator) verifyChecksum(ctx context.Context, f File) error {
	var recorded string
	err := m.db.GetContext(ctx, &recorded, `SELECT checksum FROM schema_migrations WHERE version = ?`, f.Version)
	if err != nil {
		return bserrors.InternalError("failed to get migration checksum", err).WithContext("version", f.Version)
	}

	if recorded != f.Checksum {
		return bserrors.ValidationError(
			"migration %03d checksum mismatch: file was modified after being applied", f.Version,
		).WithContext("expected", recorded).WithContext("actual", f.Checksum)
	}
	return nil
}

func checksum(content string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
}
