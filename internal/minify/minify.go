// Package minify wraps the standalone code minifier used by the fallback
// minification strategy.
package minify

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/multibuild/internal/target"
)

// Options controls one minifier invocation.
type Options struct {
	// PreserveTopLevelNames keeps top-level bindings unmangled. Global
	// browser builds need it so the exported identifier survives.
	PreserveTopLevelNames bool
	// StripComments removes all comments, legal notices included.
	StripComments bool
	// SourceMapFilenameHint is recorded as the source file in the emitted map.
	SourceMapFilenameHint string
	// Format is the module format of the input. The output keeps it, so
	// the minified file has the same exports. Top-level names are only
	// renamed when the format scopes them (commonjs, amd, esmodule).
	Format target.Format
	// Target is the compatibility identifier of the input. The minifier
	// never emits syntax newer than it. Empty means no restriction.
	Target string
}

// Result is minified code and its sourcemap.
type Result struct {
	Code []byte
	Map  []byte
}

// Minifier minifies already-bundled code.
type Minifier interface {
	Minify(ctx context.Context, code string, opts Options) (*Result, error)
}

// MinifyError reports a failed minification. It is never fatal to a build.
type MinifyError struct {
	TargetID string
	Err      error
}

func (e *MinifyError) Error() string {
	if e.TargetID == "" {
		return fmt.Sprintf("minify failed: %v", e.Err)
	}
	return fmt.Sprintf("target %s: minify failed: %v", e.TargetID, e.Err)
}

func (e *MinifyError) Unwrap() error {
	return e.Err
}
