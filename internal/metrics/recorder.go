// Package metrics records build observability data.
//
// Components receive a Recorder through their configuration. NoopRecorder is
// the default so callers never need nil checks; PrometheusRecorder is wired
// in by the CLI when a metrics file or the dev server is enabled.
package metrics

import "time"

// Outcome labels for per-target results.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Recorder defines observability hooks for target builds.
type Recorder interface {
	ObserveTargetDuration(target string, d time.Duration)
	IncTargetOutcome(target string, outcome Outcome)
	IncMinifyFailure(target string)
	ObserveRunDuration(d time.Duration)
	SetInFlight(n int)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveTargetDuration(string, time.Duration) {}
func (NoopRecorder) IncTargetOutcome(string, Outcome)            {}
func (NoopRecorder) IncMinifyFailure(string)                     {}
func (NoopRecorder) ObserveRunDuration(time.Duration)            {}
func (NoopRecorder) SetInFlight(int)                             {}
