package migrations

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Connect("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sqlx.DB, name string) bool {
	t.Helper()
	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name))
	return count == 1
}

func TestInitializeIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	migrator := NewMigrator(db, nil)

	require.NoError(t, migrator.Initialize(ctx))
	require.NoError(t, migrator.Initialize(ctx))
	assert.True(t, tableExists(t, db, "schema_migrations"))

	version, err := migrator.LatestVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}

func TestLoadEmbedded(t *testing.T) {
	migrator := NewMigrator(setupTestDB(t), nil)

	files, err := migrator.Load()
	require.NoError(t, err)
	require.Len(t, files, 2)

	for i, f := range files {
		assert.Equal(t, i+1, f.Version)
		assert.NotEmpty(t, f.Name)
		assert.NotEmpty(t, f.Description)
		assert.NotEmpty(t, f.UpSQL)
		assert.NotEmpty(t, f.DownSQL)
		assert.Len(t, f.Checksum, 64)
	}
	assert.Equal(t, "create_runs", files[0].Name)
}

func TestMigrate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	migrator := NewMigrator(db, nil)

	require.NoError(t, migrator.Migrate(ctx))
	for _, table := range []string{"runs", "pipeline_results", "programs"} {
		assert.True(t, tableExists(t, db, table), table)
	}

	applied, err := migrator.Applied(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "001_create_runs", applied[0].ID)
	assert.WithinDuration(t, time.Now(), applied[0].AppliedAt, time.Minute)

	// Second run only verifies checksums
	require.NoError(t, migrator.Migrate(ctx))
	again, err := migrator.Applied(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 2)
}

func TestMigrateDetectsModifiedFile(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	migrator := NewMigrator(db, nil)
	require.NoError(t, migrator.Migrate(ctx))

	_, err := db.Exec(`UPDATE schema_migrations SET checksum = 'tampered' WHERE version = 1`)
	require.NoError(t, err)

	err = migrator.Migrate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestRollback(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	migrator := NewMigrator(db, nil)
	require.NoError(t, migrator.Migrate(ctx))

	require.NoError(t, migrator.Rollback(ctx, 1))
	assert.False(t, tableExists(t, db, "programs"))
	assert.True(t, tableExists(t, db, "runs"))

	version, err := migrator.LatestVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	// More steps than applied rolls back what is there
	require.NoError(t, migrator.Rollback(ctx, 10))
	assert.False(t, tableExists(t, db, "runs"))

	assert.Error(t, migrator.Rollback(ctx, 1))
	assert.Error(t, migrator.Rollback(ctx, 0))
}

func TestParseContent(t *testing.T) {
	up, down, description := parseContent(`-- Description: add things
-- +migrate Up
CREATE TABLE things (id TEXT);

-- +migrate Down
DROP TABLE things;
`)

	assert.Equal(t, "add things", description)
	assert.Equal(t, "CREATE TABLE things (id TEXT);", up)
	assert.Equal(t, "DROP TABLE things;", down)
}
