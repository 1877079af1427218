package pipeline

import (
	"time"

	"github.com/leapstack-labs/multibuild/internal/bundler"
	"github.com/leapstack-labs/multibuild/internal/resolve"
)

// Status is the final state of one target build.
type Status string

// Target build states.
const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Outcome is the result of one target build job. A failed minification
// leaves the status at success and is reported through MinifyErr.
type Outcome struct {
	TargetID    string
	Status      Status
	Primary     *bundler.Artifact
	Minified    *bundler.Artifact
	Diagnostics []resolve.Diagnostic
	Err         error
	MinifyErr   error
	Started     time.Time
	Duration    time.Duration
}

// Failed reports whether the fatal bundling path failed.
func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}

// Artifacts returns every artifact the job wrote.
func (o Outcome) Artifacts() []*bundler.Artifact {
	var arts []*bundler.Artifact
	if o.Primary != nil {
		arts = append(arts, o.Primary)
	}
	if o.Minified != nil {
		arts = append(arts, o.Minified)
	}
	return arts
}

// Inputs returns the source files consumed by the primary bundle.
func (o Outcome) Inputs() []string {
	if o.Primary == nil {
		return nil
	}
	return o.Primary.Inputs
}
