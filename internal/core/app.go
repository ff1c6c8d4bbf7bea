package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/perplext/bountyscope/internal/pipeline"
	"github.com/perplext/bountyscope/internal/platform"
	"github.com/perplext/bountyscope/internal/storage"
	"github.com/perplext/bountyscope/pkg/config"
	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/metrics"
	"github.com/perplext/bountyscope/pkg/ratelimit"
	"github.com/perplext/bountyscope/pkg/utils"
	"github.com/perplext/bountyscope/pkg/validation"
)

// App represents the main application
type App struct {
	config    *config.Config
	logger    *utils.Logger
	transport http.RoundTripper
}

// FetchOptions are the per-invocation settings of a fetch
type FetchOptions struct {
	// Platforms to fetch; empty selects every known platform
	Platforms []string
	// OutputDir overrides config.OutputDir
	OutputDir string
	// MetricsFile overrides config.Metrics.Textfile
	MetricsFile string
	// NoArchive skips the run archive even when it is enabled
	NoArchive bool
	// MaxPages bounds every list iteration; 0 keeps the default
	MaxPages int
	// NoScopeLists skips the domain and wildcard lists
	NoScopeLists bool
}

// FetchResult is what a fetch produced
type FetchResult struct {
	Report *pipeline.Report
	// RunID is empty when the archive was not used
	RunID     string
	OutputDir string
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config) *App {
	loggerConfig := utils.LoggerConfig{
		Level:        utils.ParseLogLevel(cfg.Logging.Level),
		Format:       utils.LogFormat(cfg.Logging.Format),
		EnableColors: cfg.Logging.EnableColors,
		EnableFile:   cfg.Logging.EnableFile,
		LogDir:       cfg.LogDir,
		MaxFileSize:  cfg.Logging.MaxFileSize,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAge:       cfg.Logging.MaxAge,
		Compress:     cfg.Logging.Compress,
	}

	return &App{
		config: cfg,
		logger: utils.NewLoggerWithConfig(loggerConfig),
	}
}

// Logger returns the application logger
func (a *App) Logger() *utils.Logger {
	return a.logger
}

// GetConfig returns the application configuration
func (a *App) GetConfig() *config.Config {
	return a.config
}

// Close releases the log file
func (a *App) Close() {
	a.logger.Close()
}

// Fetch runs one pipeline per selected platform and waits for all of
// them. Configuration problems are returned as errors before anything is
// fetched; pipeline failures are reported in the result.
func (a *App) Fetch(ctx context.Context, opts FetchOptions) (*FetchResult, error) {
	names, err := a.selectPlatforms(opts.Platforms)
	if err != nil {
		return nil, err
	}
	if err := a.config.RequireCredentials(names); err != nil {
		return nil, err
	}

	outputDir := a.config.OutputDir
	if opts.OutputDir != "" {
		outputDir = opts.OutputDir
	}
	if err := validation.DirPath(outputDir, "output"); err != nil {
		return nil, bserrors.Wrap(err, bserrors.ErrorTypeValidation, "invalid output directory")
	}

	reporter := metrics.NewReporter(a.logger)
	factory := ratelimit.NewHTTPClientFactory(a.retryConfig(), a.config.HTTP.Timeout, a.logger, reporter).
		WithTransport(a.transport)

	sources := make([]platform.Source, 0, len(names))
	for _, name := range names {
		pc, _ := a.config.Platform(name)
		src, err := platform.Construct(name, pc.Credentials(), platform.Overrides{
			BaseURL:      pc.APIUrl,
			RequestDelay: pc.RequestDelay,
			RPS:          pc.RPS,
		})
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	store, err := storage.NewFileStore(outputDir)
	if err != nil {
		return nil, WrapCommandError(err, "fetch", map[string]interface{}{"output": outputDir})
	}

	runners := make([]pipeline.Runner, 0, len(sources))
	for _, src := range sources {
		runners = append(runners, pipeline.New(src, factory.CreateClient(src.Config), store, reporter, a.logger, pipeline.Options{
			MaxPages:   opts.MaxPages,
			ScopeLists: !opts.NoScopeLists,
		}))
	}

	result := &FetchResult{OutputDir: store.Dir()}

	var archive *storage.Archive
	if a.config.Archive.Enabled && !opts.NoArchive {
		archive, result.RunID = a.beginRun(ctx, names)
		if archive != nil {
			defer archive.Close()
		}
	}

	result.Report = pipeline.NewOrchestrator(reporter, a.logger).Run(ctx, runners)

	if archive != nil {
		// Record even when the run was interrupted
		a.recordRun(context.WithoutCancel(ctx), archive, result.RunID, result.Report)
	}

	metricsFile := a.config.Metrics.Textfile
	if opts.MetricsFile != "" {
		metricsFile = opts.MetricsFile
	}
	if metricsFile != "" {
		if err := reporter.WriteTextfile(metricsFile); err != nil {
			a.logger.Warn("Failed to write metrics textfile %s: %v", metricsFile, err)
		} else {
			a.logger.Debug("Wrote metrics to %s", metricsFile)
		}
	}

	return result, nil
}

// Runs returns the most recent archived runs, newest first
func (a *App) Runs(ctx context.Context, limit int) ([]storage.RunSummary, error) {
	archive, err := storage.OpenArchive(ctx, a.config.DataDir, a.logger)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	return archive.ListRuns(ctx, limit)
}

// Pipelines returns an archived run and its pipeline outcomes
func (a *App) Pipelines(ctx context.Context, runID string) (storage.Run, []storage.PipelineRecord, error) {
	archive, err := storage.OpenArchive(ctx, a.config.DataDir, a.logger)
	if err != nil {
		return storage.Run{}, nil, err
	}
	defer archive.Close()

	run, err := archive.GetRun(ctx, runID)
	if err != nil {
		return storage.Run{}, nil, err
	}
	records, err := archive.Pipelines(ctx, runID)
	if err != nil {
		return storage.Run{}, nil, err
	}
	return run, records, nil
}

// Programs returns the handles an archived run emitted for one platform
func (a *App) Programs(ctx context.Context, runID, platformName string) ([]string, error) {
	archive, err := storage.OpenArchive(ctx, a.config.DataDir, a.logger)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	if _, err := archive.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return archive.ProgramHandles(ctx, runID, validation.NormalizePlatform(platformName))
}

// ArchiveSchema reports the archive's migrations
func (a *App) ArchiveSchema(ctx context.Context) ([]storage.SchemaStep, error) {
	archive, err := storage.OpenArchive(ctx, a.config.DataDir, a.logger)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	return archive.Schema(ctx)
}

// RollbackArchive reverts the last steps archive migrations
func (a *App) RollbackArchive(ctx context.Context, steps int) error {
	archive, err := storage.OpenArchive(ctx, a.config.DataDir, a.logger)
	if err != nil {
		return err
	}
	defer archive.Close()

	a.logger.Warn("Rolling back %d archive migration(s) in %s", steps, archive.Path())
	return archive.Rollback(ctx, steps)
}

func (a *App) selectPlatforms(selected []string) ([]string, error) {
	known := platform.Names()
	names, err := validation.Platforms(selected, known)
	if err != nil {
		return nil, bserrors.Wrap(err, bserrors.ErrorTypeValidation, "invalid platform selection")
	}
	if len(names) == 0 {
		return known, nil
	}
	return names, nil
}

func (a *App) retryConfig() ratelimit.RetryConfig {
	retry := ratelimit.DefaultRetryConfig()
	if a.config.HTTP.MaxAttempts > 0 {
		retry.MaxAttempts = a.config.HTTP.MaxAttempts
	}
	if a.config.HTTP.InitialDelay > 0 {
		retry.InitialDelay = a.config.HTTP.InitialDelay
	}
	if a.config.HTTP.MaxDelay > 0 {
		retry.MaxDelay = a.config.HTTP.MaxDelay
	}
	return retry
}

// beginRun opens the archive and starts a run. The archive is history
// only, so a failure is logged and the fetch goes on without it.
func (a *App) beginRun(ctx context.Context, names []string) (*storage.Archive, string) {
	archive, err := storage.OpenArchive(ctx, a.config.DataDir, a.logger)
	if err != nil {
		a.logger.Warn("Run archive unavailable, continuing without it: %v", err)
		return nil, ""
	}

	run, err := archive.BeginRun(ctx, names)
	if err != nil {
		a.logger.Warn("Failed to start archived run, continuing without it: %v", err)
		archive.Close()
		return nil, ""
	}
	return archive, run.ID
}

func (a *App) recordRun(ctx context.Context, archive *storage.Archive, runID string, report *pipeline.Report) {
	for _, res := range report.Results {
		if err := archive.RecordPipeline(ctx, pipelineRecord(runID, res), res.Programs); err != nil {
			a.logger.Warn("Failed to archive %s pipeline: %v", res.Platform, err)
		}
	}

	if err := archive.FinishRun(ctx, runID, runStatus(report)); err != nil {
		a.logger.Warn("Failed to finish archived run %s: %v", runID, err)
	}
}

func pipelineRecord(runID string, res pipeline.Result) storage.PipelineRecord {
	rec := storage.PipelineRecord{
		RunID:      runID,
		Platform:   res.Platform,
		State:      string(res.State),
		RawCount:   res.RawCount,
		Programs:   len(res.Programs),
		Dropped:    res.Dropped,
		Degraded:   res.Degraded,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec
}

func runStatus(report *pipeline.Report) string {
	failed := len(report.Failed())
	switch {
	case failed == 0:
		return storage.RunCompleted
	case failed == len(report.Results):
		return storage.RunFailed
	default:
		return storage.RunPartial
	}
}

// Describe returns a one-line summary of a report for logs
func Describe(report *pipeline.Report) string {
	return fmt.Sprintf("%d platforms, %d done, %d failed, %d programs in %s",
		len(report.Results), len(report.Done()), len(report.Failed()), report.Programs(),
		utils.FormatDuration(report.Duration.Round(time.Millisecond)))
}
