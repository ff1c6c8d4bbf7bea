// Package metrics defines the observability sink the fetch engine reports
// to, and a Reporter that backs it with the run logger and Prometheus.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/perplext/bountyscope/pkg/utils"
)

// Sink receives the events of a run. Implementations must be safe for
// concurrent use since every pipeline reports to the same sink.
type Sink interface {
	// RetryAttempt is called once per failed attempt, including the last
	RetryAttempt(platform, endpoint string, attempt int, err error)
	// RetryExhausted is called when the client gives up and degrades
	RetryExhausted(platform, endpoint string, attempts int, err error)
	// RecordDropped is called when a record is excluded during enrichment
	RecordDropped(platform, handle, reason string, err error)
	// PipelineState is called on every pipeline state transition
	PipelineState(platform, state string)
	// ProgramsEmitted is called with the number of canonical programs written
	ProgramsEmitted(platform string, count int)
}

// Nop discards every event
type Nop struct{}

func (Nop) RetryAttempt(string, string, int, error) {}
func (Nop) RetryExhausted(string, string, int, error) {}
func (Nop) RecordDropped(string, string, string, error) {}
func (Nop) PipelineState(string, string) {}
func (Nop) ProgramsEmitted(string, int) {}

// Reporter logs every event and keeps Prometheus series for it
type Reporter struct {
	logger   *utils.Logger
	registry *prometheus.Registry

	retries        *prometheus.CounterVec
	retryExhausted *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	state          *prometheus.GaugeVec
	programs       *prometheus.GaugeVec

	mu        sync.Mutex
	lastState map[string]string
}

// NewReporter creates a Reporter with its own registry
func NewReporter(logger *utils.Logger) *Reporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Reporter{
		logger:   logger.Named("metrics"),
		registry: reg,
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bountyscope_retries_total",
			Help: "Failed request attempts by platform",
		}, []string{"platform"}),
		retryExhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bountyscope_retry_exhausted_total",
			Help: "Requests that exhausted every attempt and degraded to an empty page",
		}, []string{"platform"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bountyscope_records_dropped_total",
			Help: "Program records excluded during enrichment by reason",
		}, []string{"platform", "reason"}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bountyscope_pipeline_state",
			Help: "Current pipeline state (1 for the active state)",
		}, []string{"platform", "state"}),
		programs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bountyscope_programs_total",
			Help: "Canonical programs written by the last run",
		}, []string{"platform"}),
		lastState: make(map[string]string),
	}
}

// Registry exposes the underlying registry
func (r *Reporter) Registry() *prometheus.Registry {
	return r.registry
}

// RetryAttempt implements Sink
func (r *Reporter) RetryAttempt(platform, endpoint string, attempt int, err error) {
	r.retries.WithLabelValues(platform).Inc()
	r.logger.WarnWithFields("request attempt failed", map[string]interface{}{
		"platform": platform,
		"endpoint": endpoint,
		"attempt":  attempt,
		"error":    errString(err),
	})
}

// RetryExhausted implements Sink
func (r *Reporter) RetryExhausted(platform, endpoint string, attempts int, err error) {
	r.retryExhausted.WithLabelValues(platform).Inc()
	r.logger.ErrorWithFields("giving up on request, continuing with an empty page", map[string]interface{}{
		"platform": platform,
		"endpoint": endpoint,
		"attempts": attempts,
		"error":    errString(err),
	})
}

// RecordDropped implements Sink
func (r *Reporter) RecordDropped(platform, handle, reason string, err error) {
	r.dropped.WithLabelValues(platform, reason).Inc()
	fields := map[string]interface{}{
		"platform": platform,
		"handle":   handle,
		"reason":   reason,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	// Schema mismatches point at an upstream change and deserve attention
	if reason == "schema" {
		r.logger.ErrorWithFields("record dropped", fields)
		return
	}
	r.logger.DebugWithFields("record dropped", fields)
}

// PipelineState implements Sink
func (r *Reporter) PipelineState(platform, state string) {
	r.mu.Lock()
	if prev, ok := r.lastState[platform]; ok {
		r.state.WithLabelValues(platform, prev).Set(0)
	}
	r.lastState[platform] = state
	r.mu.Unlock()

	r.state.WithLabelValues(platform, state).Set(1)
	r.logger.DebugWithFields("pipeline state", map[string]interface{}{
		"platform": platform,
		"state":    state,
	})
}

// ProgramsEmitted implements Sink
func (r *Reporter) ProgramsEmitted(platform string, count int) {
	r.programs.WithLabelValues(platform).Set(float64(count))
}

// WriteTextfile writes every series in the node-exporter textfile format
func (r *Reporter) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
