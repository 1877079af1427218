// Package bundler drives the module bundler that turns a resolved input and
// output configuration into a code file plus its sourcemap.
package bundler

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/leapstack-labs/multibuild/internal/fsutil"
	"github.com/leapstack-labs/multibuild/internal/resolve"
)

// Bundler resolves a module graph into one in-memory bundle.
type Bundler interface {
	Bundle(ctx context.Context, in resolve.InputConfig, out resolve.OutputConfig) (*Bundle, error)
}

// Op names the step of the bundling pipeline that failed.
type Op string

// Bundling steps.
const (
	OpConfigure Op = "configure"
	OpResolve   Op = "resolve"
	OpWrite     Op = "write"
)

// BundleError is a fatal bundling failure for one target.
type BundleError struct {
	TargetID string
	Op       Op
	Err      error
}

func (e *BundleError) Error() string {
	return fmt.Sprintf("target %s: bundle %s failed: %v", e.TargetID, e.Op, e.Err)
}

func (e *BundleError) Unwrap() error {
	return e.Err
}

// File is one emitted file, addressed relative to the project root.
type File struct {
	Path     string
	Contents []byte
}

// Bundle is the in-memory result of a bundler run. Write performs the
// filesystem side effect.
type Bundle struct {
	TargetID    string
	Root        string
	Code        File
	Map         *File
	Inputs      []string
	Diagnostics []resolve.Diagnostic
}

// Artifact describes files written to disk.
type Artifact struct {
	TargetID  string   `json:"target" yaml:"target"`
	CodePath  string   `json:"code_path" yaml:"code_path"`
	MapPath   string   `json:"map_path,omitempty" yaml:"map_path,omitempty"`
	CodeBytes int64    `json:"code_bytes" yaml:"code_bytes"`
	MapBytes  int64    `json:"map_bytes,omitempty" yaml:"map_bytes,omitempty"`
	Inputs    []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
}

// Write stores the code file and its sourcemap. Both are durable when Write returns.
func (b *Bundle) Write() (*Artifact, error) {
	art := &Artifact{
		TargetID: b.TargetID,
		CodePath: b.abs(b.Code.Path),
		Inputs:   b.Inputs,
	}

	if err := fsutil.WriteFileDurable(art.CodePath, b.Code.Contents, 0o644); err != nil {
		return nil, &BundleError{TargetID: b.TargetID, Op: OpWrite, Err: err}
	}
	art.CodeBytes = int64(len(b.Code.Contents))

	if b.Map != nil {
		art.MapPath = b.abs(b.Map.Path)
		if err := fsutil.WriteFileDurable(art.MapPath, b.Map.Contents, 0o644); err != nil {
			return nil, &BundleError{TargetID: b.TargetID, Op: OpWrite, Err: err}
		}
		art.MapBytes = int64(len(b.Map.Contents))
	}
	return art, nil
}

func (b *Bundle) abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(b.Root, filepath.FromSlash(rel))
}
