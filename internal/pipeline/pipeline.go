// Package pipeline runs one platform end to end (list, enrich, normalize,
// persist) and runs every selected platform side by side.
package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/perplext/bountyscope/internal/pagination"
	"github.com/perplext/bountyscope/internal/platform"
	"github.com/perplext/bountyscope/internal/scope"
	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/metrics"
	"github.com/perplext/bountyscope/pkg/models"
	"github.com/perplext/bountyscope/pkg/ratelimit"
	"github.com/perplext/bountyscope/pkg/utils"
)

// State is a pipeline's position in its lifecycle
type State string

const (
	StatePending     State = "pending"
	StateFetching    State = "fetching"
	StateEnriching   State = "enriching"
	StateNormalizing State = "normalizing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Persister stores the artifacts of a pipeline
type Persister interface {
	SaveRaw(platform string, records []models.ProgramRecord) error
	SaveBrief(platform string, programs []models.CanonicalProgram) error
	LoadBrief(platform string) ([]models.CanonicalProgram, error)
}

// ScopeListWriter is implemented by persisters that also write hostname lists
type ScopeListWriter interface {
	SaveScopeLists(platform string, lists scope.Lists) error
}

// Options tune a pipeline
type Options struct {
	// MaxPages bounds each list iteration; 0 means pagination.DefaultMaxPages
	MaxPages int
	// ScopeLists writes domain and wildcard lists when the persister supports it
	ScopeLists bool
}

// Result is the outcome of one pipeline run
type Result struct {
	Platform string
	State    State
	Programs []models.CanonicalProgram
	// RawCount is the number of records the list endpoints returned
	RawCount int
	// Skipped records failed the eligibility filter before enrichment
	Skipped int
	// Dropped records failed enrichment
	Dropped int
	// Degraded is set when pages or detail fetches were given up on
	Degraded bool
	Err      error
	Duration time.Duration
}

// Pipeline processes a single platform. It owns its fetcher and
// accumulates nothing shared with other pipelines.
type Pipeline struct {
	source  platform.Source
	fetcher ratelimit.Fetcher
	store   Persister
	sink    metrics.Sink
	logger  *utils.Logger
	opts    Options
}

// New creates a pipeline for source
func New(source platform.Source, fetcher ratelimit.Fetcher, store Persister, sink metrics.Sink, logger *utils.Logger, opts Options) *Pipeline {
	if sink == nil {
		sink = metrics.Nop{}
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Pipeline{
		source:  source,
		fetcher: fetcher,
		store:   store,
		sink:    sink,
		logger:  logger.Named(source.Name()),
		opts:    opts,
	}
}

// Name returns the platform name
func (p *Pipeline) Name() string {
	return p.source.Name()
}

// Run executes list, enrich, normalize and persist. Failures end up in
// the returned Result, never in a panic or a shared error.
func (p *Pipeline) Run(ctx context.Context) Result {
	start := time.Now()
	res := Result{Platform: p.Name(), State: StatePending}

	err := p.run(ctx, &res)
	res.Duration = time.Since(start)

	if err != nil {
		res.Err = err
		p.transition(&res, StateFailed)
		p.logger.Error("Pipeline failed after %s: %v", utils.FormatDuration(res.Duration), err)
		return res
	}

	p.transition(&res, StateDone)
	p.logger.InfoWithFields("pipeline finished", map[string]interface{}{
		"programs": len(res.Programs),
		"raw":      res.RawCount,
		"skipped":  res.Skipped,
		"dropped":  res.Dropped,
		"degraded": res.Degraded,
		"duration": utils.FormatDuration(res.Duration),
	})
	return res
}

func (p *Pipeline) run(ctx context.Context, res *Result) error {
	p.transition(res, StateFetching)
	records, err := p.list(ctx, res)
	if err != nil {
		return err
	}
	res.RawCount = len(records)

	eligible := records[:0:0]
	for _, r := range records {
		if p.source.Normalizer.Eligible(r) {
			eligible = append(eligible, r)
		}
	}
	res.Skipped = len(records) - len(eligible)
	p.logger.Info("Listed %d records, %d eligible", len(records), len(eligible))

	p.transition(res, StateEnriching)
	enriched, err := EnrichAll(ctx, p.source, p.fetcher, eligible, func(d Drop) {
		res.Dropped++
		if d.Reason == ReasonDegraded {
			res.Degraded = true
		}
		p.sink.RecordDropped(p.Name(), d.Handle, d.Reason, d.Err)
	})
	if err != nil {
		return err
	}

	if err := p.store.SaveRaw(p.Name(), enriched); err != nil {
		return err
	}

	p.transition(res, StateNormalizing)
	programs := platform.NormalizeAll(p.source.Normalizer, enriched)

	if merger, ok := p.source.Normalizer.(platform.Merger); ok {
		previous, err := p.store.LoadBrief(p.Name())
		if err != nil {
			return bserrors.Wrap(err, bserrors.ErrorTypeInternal, "failed to load previous snapshot")
		}
		merged := merger.Merge(previous, programs)
		p.logger.Debug("Merged %d fresh programs with %d from the previous snapshot into %d", len(programs), len(previous), len(merged))
		programs = merged
	}

	if err := p.store.SaveBrief(p.Name(), programs); err != nil {
		return err
	}

	if w, ok := p.store.(ScopeListWriter); ok && p.opts.ScopeLists {
		if err := w.SaveScopeLists(p.Name(), scope.Build(programs)); err != nil {
			return err
		}
	}

	res.Programs = programs
	p.sink.ProgramsEmitted(p.Name(), len(programs))
	return nil
}

// list drains every list endpoint and flattens the pages into records,
// tagging each with its endpoint's tags.
func (p *Pipeline) list(ctx context.Context, res *Result) ([]models.ProgramRecord, error) {
	cfg := p.source.Config
	var records []models.ProgramRecord

	for _, ep := range cfg.ListEndpoints {
		params := url.Values{}
		for k, v := range ep.Params {
			params.Set(k, v)
		}

		pager := pagination.New(p.fetcher, p.source.Pagination, cfg.URL(ep.Path), params)
		if p.opts.MaxPages > 0 {
			pager.WithMaxPages(p.opts.MaxPages)
		}

		for {
			page, ok := pager.Next(ctx)
			if !ok {
				break
			}
			batch, ok := page.Records(cfg.ListField)
			if !ok {
				return nil, bserrors.SchemaError(cfg.ListField, cfg.Name).
					WithContext("endpoint", ep.Path).
					WithContext("page", pager.Pages())
			}
			for _, r := range batch {
				for k, v := range ep.Tags {
					r[k] = v
				}
			}
			records = append(records, batch...)
		}

		if err := pager.Err(); err != nil {
			return nil, bserrors.Wrap(err, bserrors.ErrorTypeExternal, fmt.Sprintf("listing %s failed", ep.Path))
		}
		if pager.Degraded() || pager.Truncated() {
			res.Degraded = true
			p.logger.WarnWithFields("list iteration incomplete", map[string]interface{}{
				"endpoint":  ep.Path,
				"pages":     pager.Pages(),
				"degraded":  pager.Degraded(),
				"truncated": pager.Truncated(),
			})
		}
	}

	return records, nil
}

func (p *Pipeline) transition(res *Result, state State) {
	res.State = state
	p.sink.PipelineState(p.Name(), string(state))
}
