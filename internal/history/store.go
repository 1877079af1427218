// Package history records orchestrated builds in a SQLite database so past
// runs can be listed from the CLI.
package history

import "time"

// RunStatus is the lifecycle state of a run record.
type RunStatus string

// Run states.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one orchestrated build.
type Run struct {
	ID          string     `json:"id" yaml:"id"`
	Targets     []string   `json:"targets" yaml:"targets"`
	Status      RunStatus  `json:"status" yaml:"status"`
	StartedAt   time.Time  `json:"started_at" yaml:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// Duration is the wall-clock time of a completed run, zero while running.
func (r Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// TargetBuild is the stored outcome of one target within a run.
type TargetBuild struct {
	ID            string        `json:"id" yaml:"id"`
	RunID         string        `json:"run_id" yaml:"run_id"`
	Target        string        `json:"target" yaml:"target"`
	Status        string        `json:"status" yaml:"status"`
	StartedAt     time.Time     `json:"started_at" yaml:"started_at"`
	Duration      time.Duration `json:"duration" yaml:"duration"`
	CodePath      string        `json:"code_path,omitempty" yaml:"code_path,omitempty"`
	CodeBytes     int64         `json:"code_bytes" yaml:"code_bytes"`
	MinifiedPath  string        `json:"minified_path,omitempty" yaml:"minified_path,omitempty"`
	MinifiedBytes int64         `json:"minified_bytes,omitempty" yaml:"minified_bytes,omitempty"`
	Warnings      int           `json:"warnings" yaml:"warnings"`
	Error         string        `json:"error,omitempty" yaml:"error,omitempty"`
	MinifyError   string        `json:"minify_error,omitempty" yaml:"minify_error,omitempty"`
}
