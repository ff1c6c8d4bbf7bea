// Package testutil holds helpers shared by package tests.
package testutil

import (
	"sync"

	"github.com/perplext/bountyscope/pkg/metrics"
)

// Event is one call recorded by RecordingSink
type Event struct {
	Kind     string
	Platform string
	Endpoint string
	Handle   string
	Reason   string
	State    string
	Attempt  int
	Count    int
	Err      error
}

// Event kinds
const (
	KindRetryAttempt    = "retry_attempt"
	KindRetryExhausted  = "retry_exhausted"
	KindRecordDropped   = "record_dropped"
	KindPipelineState   = "pipeline_state"
	KindProgramsEmitted = "programs_emitted"
)

// RecordingSink is a metrics.Sink that keeps every event in order
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

var _ metrics.Sink = (*RecordingSink)(nil)

// NewRecordingSink returns an empty sink
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *RecordingSink) RetryAttempt(platform, endpoint string, attempt int, err error) {
	s.record(Event{Kind: KindRetryAttempt, Platform: platform, Endpoint: endpoint, Attempt: attempt, Err: err})
}

func (s *RecordingSink) RetryExhausted(platform, endpoint string, attempts int, err error) {
	s.record(Event{Kind: KindRetryExhausted, Platform: platform, Endpoint: endpoint, Attempt: attempts, Err: err})
}

func (s *RecordingSink) RecordDropped(platform, handle, reason string, err error) {
	s.record(Event{Kind: KindRecordDropped, Platform: platform, Handle: handle, Reason: reason, Err: err})
}

func (s *RecordingSink) PipelineState(platform, state string) {
	s.record(Event{Kind: KindPipelineState, Platform: platform, State: state})
}

func (s *RecordingSink) ProgramsEmitted(platform string, count int) {
	s.record(Event{Kind: KindProgramsEmitted, Platform: platform, Count: count})
}

// Events returns a copy of the recorded events
func (s *RecordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Of returns the recorded events of one kind
func (s *RecordingSink) Of(kind string) []Event {
	var out []Event
	for _, e := range s.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// States returns the state transitions reported for a platform
func (s *RecordingSink) States(platform string) []string {
	var out []string
	for _, e := range s.Of(KindPipelineState) {
		if e.Platform == platform {
			out = append(out, e.State)
		}
	}
	return out
}
