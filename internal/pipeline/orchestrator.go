package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/metrics"
	"github.com/perplext/bountyscope/pkg/utils"
)

// Runner is a unit of work the orchestrator can run. *Pipeline is the
// production implementation.
type Runner interface {
	Name() string
	Run(ctx context.Context) Result
}

// Report collects the result of every pipeline of a run, in the order
// the pipelines were given.
type Report struct {
	Results  []Result
	Started  time.Time
	Duration time.Duration
}

// Done returns the results that completed
func (r *Report) Done() []Result {
	return r.filter(StateDone)
}

// Failed returns the results that failed
func (r *Report) Failed() []Result {
	return r.filter(StateFailed)
}

// Programs returns the total number of canonical programs emitted
func (r *Report) Programs() int {
	total := 0
	for _, res := range r.Results {
		total += len(res.Programs)
	}
	return total
}

// Err summarizes failed pipelines, or returns nil when all completed
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	err := bserrors.New(bserrors.ErrorTypeExternal,
		fmt.Sprintf("%d of %d platforms failed", len(failed), len(r.Results)))
	for _, f := range failed {
		err.WithContext(f.Platform, errText(f.Err))
	}
	return err
}

func (r *Report) filter(state State) []Result {
	var out []Result
	for _, res := range r.Results {
		if res.State == state {
			out = append(out, res)
		}
	}
	return out
}

// Orchestrator starts every pipeline at once and waits for all of them.
// A failing or panicking pipeline never cancels its siblings.
type Orchestrator struct {
	sink   metrics.Sink
	logger *utils.Logger
}

// NewOrchestrator creates an orchestrator reporting to sink
func NewOrchestrator(sink metrics.Sink, logger *utils.Logger) *Orchestrator {
	if sink == nil {
		sink = metrics.Nop{}
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Orchestrator{sink: sink, logger: logger.Named("orchestrator")}
}

// Run executes the pipelines concurrently and returns once every one of
// them has finished.
func (o *Orchestrator) Run(ctx context.Context, runners []Runner) *Report {
	report := &Report{
		Results: make([]Result, len(runners)),
		Started: utils.CurrentTime(),
	}

	for i, r := range runners {
		report.Results[i] = Result{Platform: r.Name(), State: StatePending}
		o.sink.PipelineState(r.Name(), string(StatePending))
	}

	o.logger.Info("Starting %d pipelines", len(runners))

	// A plain group: no shared context, so one failure cannot cancel the rest.
	// Tasks always return nil; failures live in each Result, so Wait only joins.
	var g errgroup.Group
	for i, r := range runners {
		g.Go(func() error {
			report.Results[i] = o.runOne(ctx, r)
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	report.Duration = time.Since(report.Started)
	o.logger.Info("Finished %d pipelines in %s: %d done, %d failed",
		len(runners), utils.FormatDuration(report.Duration), len(report.Done()), len(report.Failed()))
	return report
}

func (o *Orchestrator) runOne(ctx context.Context, r Runner) (res Result) {
	start := time.Now()
	defer func() {
		if v := recover(); v != nil {
			o.logger.ErrorWithFields("pipeline panicked", map[string]interface{}{
				"platform": r.Name(),
				"panic":    fmt.Sprint(v),
				"stack":    string(debug.Stack()),
			})
			res = Result{
				Platform: r.Name(),
				State:    StateFailed,
				Err:      bserrors.InternalError(fmt.Sprintf("pipeline panicked: %v", v), nil),
				Duration: time.Since(start),
			}
			o.sink.PipelineState(r.Name(), string(StateFailed))
		}
	}()

	return r.Run(ctx)
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
