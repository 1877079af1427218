package orchestrator

import (
	"errors"
	"time"

	"github.com/leapstack-labs/multibuild/internal/bundler"
	"github.com/leapstack-labs/multibuild/internal/pipeline"
)

// Report is the aggregated result of one orchestrated run.
type Report struct {
	RunID       string
	Targets     []string
	Aggregation Aggregation
	Started     time.Time
	Duration    time.Duration
	// Partial is set when a fail-fast run returned before every job settled.
	Partial bool

	// indexed like Targets; nil until the job settles
	outcomes []*pipeline.Outcome
}

// Outcomes returns settled outcomes in request order.
func (r *Report) Outcomes() []pipeline.Outcome {
	out := make([]pipeline.Outcome, 0, len(r.outcomes))
	for _, o := range r.outcomes {
		if o != nil {
			out = append(out, *o)
		}
	}
	return out
}

// Outcome returns the settled outcome of id.
func (r *Report) Outcome(id string) (pipeline.Outcome, bool) {
	for i, t := range r.Targets {
		if t == id && r.outcomes[i] != nil {
			return *r.outcomes[i], true
		}
	}
	return pipeline.Outcome{}, false
}

// Failed returns the outcomes whose fatal path failed.
func (r *Report) Failed() []pipeline.Outcome {
	var out []pipeline.Outcome
	for _, o := range r.Outcomes() {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

// MinifyFailures returns successful outcomes whose minified artifact is missing.
func (r *Report) MinifyFailures() []pipeline.Outcome {
	var out []pipeline.Outcome
	for _, o := range r.Outcomes() {
		if !o.Failed() && o.MinifyErr != nil {
			out = append(out, o)
		}
	}
	return out
}

// Err joins the fatal errors of every settled outcome.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Failed() {
		errs = append(errs, o.Err)
	}
	return errors.Join(errs...)
}

// Succeeded reports whether every requested target settled without a fatal error.
func (r *Report) Succeeded() bool {
	return !r.Partial && len(r.Failed()) == 0 && len(r.Outcomes()) == len(r.Targets)
}

// Summary is the serializable view of a Report.
type Summary struct {
	RunID      string          `json:"run_id" yaml:"run_id"`
	Started    time.Time       `json:"started" yaml:"started"`
	DurationMS int64           `json:"duration_ms" yaml:"duration_ms"`
	Partial    bool            `json:"partial,omitempty" yaml:"partial,omitempty"`
	Succeeded  bool            `json:"succeeded" yaml:"succeeded"`
	Targets    []TargetSummary `json:"targets" yaml:"targets"`
}

// TargetSummary is the serializable view of one Outcome.
type TargetSummary struct {
	ID          string              `json:"id" yaml:"id"`
	Status      string              `json:"status" yaml:"status"`
	DurationMS  int64               `json:"duration_ms" yaml:"duration_ms"`
	Error       string              `json:"error,omitempty" yaml:"error,omitempty"`
	MinifyError string              `json:"minify_error,omitempty" yaml:"minify_error,omitempty"`
	Artifacts   []*bundler.Artifact `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	Warnings    []string            `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Summary converts r for JSON or YAML output. Targets that never settled
// are listed with status "pending".
func (r *Report) Summary() Summary {
	s := Summary{
		RunID:      r.RunID,
		Started:    r.Started,
		DurationMS: r.Duration.Milliseconds(),
		Partial:    r.Partial,
		Succeeded:  r.Succeeded(),
		Targets:    make([]TargetSummary, 0, len(r.Targets)),
	}
	for i, id := range r.Targets {
		o := r.outcomes[i]
		if o == nil {
			s.Targets = append(s.Targets, TargetSummary{ID: id, Status: "pending"})
			continue
		}
		ts := TargetSummary{
			ID:         id,
			Status:     string(o.Status),
			DurationMS: o.Duration.Milliseconds(),
			Artifacts:  o.Artifacts(),
		}
		if o.Err != nil {
			ts.Error = o.Err.Error()
		}
		if o.MinifyErr != nil {
			ts.MinifyError = o.MinifyErr.Error()
		}
		for _, d := range o.Diagnostics {
			ts.Warnings = append(ts.Warnings, d.String())
		}
		s.Targets = append(s.Targets, ts)
	}
	return s
}
