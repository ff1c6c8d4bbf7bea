package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/models"
)

func setupArchive(t *testing.T) *Archive {
	t.Helper()
	archive, err := OpenArchive(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })
	return archive
}

func TestOpenArchiveTwice(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := OpenArchive(ctx, dir, nil)
	require.NoError(t, err)
	run, err := first.BeginRun(ctx, []string{"hackerone"})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := OpenArchive(ctx, dir, nil)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "hackerone", got.Platforms)
}

func TestRunLifecycle(t *testing.T) {
	archive := setupArchive(t)
	ctx := context.Background()

	run, err := archive.BeginRun(ctx, []string{"bugcrowd", "hackerone"})
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)
	assert.Equal(t, RunRunning, run.Status)

	require.NoError(t, archive.RecordPipeline(ctx, PipelineRecord{
		RunID: run.ID, Platform: "hackerone", State: "done", RawCount: 3, Programs: 2, Dropped: 1, DurationMS: 1200,
	}, []models.CanonicalProgram{program("acme", "acme.com"), program("globex")}))

	require.NoError(t, archive.RecordPipeline(ctx, PipelineRecord{
		RunID: run.ID, Platform: "bugcrowd", State: "failed", Degraded: true, Error: "schema: missing engagements",
	}, nil))

	require.NoError(t, archive.FinishRun(ctx, run.ID, RunPartial))

	got, err := archive.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunPartial, got.Status)
	assert.True(t, got.FinishedAt.Valid)
	assert.GreaterOrEqual(t, got.Duration(), time.Duration(0))

	pipelines, err := archive.Pipelines(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, pipelines, 2)
	assert.Equal(t, "bugcrowd", pipelines[0].Platform)
	assert.True(t, pipelines[0].Degraded)
	assert.Equal(t, "schema: missing engagements", pipelines[0].Error)
	assert.Equal(t, 2, pipelines[1].Programs)
	assert.Equal(t, int64(1200), pipelines[1].DurationMS)

	handles, err := archive.ProgramHandles(ctx, run.ID, "hackerone")
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, handles)
}

func TestRecordPipelineReplaces(t *testing.T) {
	archive := setupArchive(t)
	ctx := context.Background()

	run, err := archive.BeginRun(ctx, []string{"yeswehack"})
	require.NoError(t, err)

	rec := PipelineRecord{RunID: run.ID, Platform: "yeswehack", State: "done", Programs: 2}
	require.NoError(t, archive.RecordPipeline(ctx, rec, []models.CanonicalProgram{program("a"), program("b")}))

	rec.Programs = 1
	require.NoError(t, archive.RecordPipeline(ctx, rec, []models.CanonicalProgram{program("c")}))

	handles, err := archive.ProgramHandles(ctx, run.ID, "yeswehack")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, handles)
}

func TestRecordPipelineUnknownRun(t *testing.T) {
	archive := setupArchive(t)

	err := archive.RecordPipeline(context.Background(), PipelineRecord{RunID: "missing", Platform: "intigriti", State: "done"}, nil)
	require.Error(t, err)
	assert.True(t, bserrors.Is(err, bserrors.ErrorTypeNotFound))

	err = archive.FinishRun(context.Background(), "missing", RunCompleted)
	assert.True(t, bserrors.Is(err, bserrors.ErrorTypeNotFound))

	_, err = archive.GetRun(context.Background(), "missing")
	assert.True(t, bserrors.Is(err, bserrors.ErrorTypeNotFound))
}

func TestListRuns(t *testing.T) {
	archive := setupArchive(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := archive.BeginRun(ctx, []string{"hackerone"})
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}
	require.NoError(t, archive.RecordPipeline(ctx, PipelineRecord{RunID: ids[2], Platform: "hackerone", State: "failed"}, nil))
	require.NoError(t, archive.RecordPipeline(ctx, PipelineRecord{RunID: ids[2], Platform: "intigriti", State: "done", Programs: 4}, nil))

	runs, err := archive.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, 2, runs[0].Pipelines)
	assert.Equal(t, 1, runs[0].Failed)
	assert.Equal(t, 4, runs[0].Programs)
	assert.Equal(t, ids[1], runs[1].ID)
	assert.Equal(t, 0, runs[1].Pipelines)

	all, err := archive.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSchemaAndRollback(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	archive, err := OpenArchive(ctx, dir, nil)
	require.NoError(t, err)

	steps, err := archive.Schema(ctx)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	for _, s := range steps {
		assert.True(t, s.Applied, s.Name)
		assert.False(t, s.AppliedAt.IsZero())
	}

	run, err := archive.BeginRun(ctx, []string{"yeswehack"})
	require.NoError(t, err)

	require.NoError(t, archive.Rollback(ctx, 2))
	steps, err = archive.Schema(ctx)
	require.NoError(t, err)
	assert.False(t, steps[0].Applied)
	assert.False(t, steps[1].Applied)
	require.NoError(t, archive.Close())

	// Reopening re-applies the schema on empty tables
	archive, err = OpenArchive(ctx, dir, nil)
	require.NoError(t, err)
	defer archive.Close()

	_, err = archive.GetRun(ctx, run.ID)
	assert.True(t, bserrors.Is(err, bserrors.ErrorTypeNotFound))
}
