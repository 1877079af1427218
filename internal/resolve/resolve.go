// Package resolve turns target descriptors into bundler input and output
// configuration. Everything here is pure: no filesystem access, no logging.
package resolve

import (
	"fmt"
	"path"
	"strings"

	"github.com/leapstack-labs/multibuild/internal/target"
)

// StageKind identifies a processing stage of the bundler.
type StageKind string

// Processing stages, applied in order.
const (
	StageResolve   StageKind = "resolve"
	StageTranspile StageKind = "transpile"
	StageMinify    StageKind = "minify"
)

// Platform selects module resolution conventions.
type Platform string

// Resolution platforms.
const (
	PlatformBrowser Platform = "browser"
	PlatformNode    Platform = "node"
)

// Stage is one entry of the processing chain.
type Stage struct {
	Kind StageKind

	// Resolve stage: platform conventions for package resolution.
	// CommonJS dependencies are always converted.
	Platform Platform

	// Transpile stage.
	Target          string
	Loose           bool
	PreserveModules bool

	// Minify stage.
	PreserveTopLevelNames bool
}

// Layout describes where sources live and where artifacts go.
type Layout struct {
	// OutDir is the artifact root, relative to the project root.
	OutDir string
	// Entry is the canonical library entry point.
	Entry string
}

// DefaultLayout returns the conventional build/ + src/index.js layout.
func DefaultLayout() Layout {
	return Layout{OutDir: "build", Entry: target.DefaultEntry}
}

// InputConfig is the bundler input derived from a descriptor.
type InputConfig struct {
	TargetID string
	Entry    string
	Filter   DiagnosticFilter
	Stages   []Stage
}

// Stage returns the first stage of the given kind.
func (c InputConfig) Stage(kind StageKind) (Stage, bool) {
	for _, s := range c.Stages {
		if s.Kind == kind {
			return s, true
		}
	}
	return Stage{}, false
}

// WithStage returns a copy of c with s appended to the processing chain.
func (c InputConfig) WithStage(s Stage) InputConfig {
	stages := make([]Stage, 0, len(c.Stages)+1)
	stages = append(stages, c.Stages...)
	c.Stages = append(stages, s)
	return c
}

// OutputConfig is the bundler output derived from a descriptor.
type OutputConfig struct {
	TargetID   string
	Dir        string
	Filename   string
	Format     target.Format
	GlobalName string
	Sourcemap  bool
}

// Path returns the slash-separated artifact path relative to the project root.
func (c OutputConfig) Path() string {
	return path.Join(c.Dir, c.Filename)
}

// WithFilename returns a copy of c writing to filename.
func (c OutputConfig) WithFilename(filename string) OutputConfig {
	c.Filename = filename
	return c
}

// Resolve validates d and derives the bundler configuration for target id.
// Validation failures are returned as *target.ConfigurationError before any
// configuration is produced.
func Resolve(id string, d target.Descriptor, layout Layout) (InputConfig, OutputConfig, error) {
	if strings.TrimSpace(id) == "" {
		return InputConfig{}, OutputConfig{}, &target.ConfigurationError{Field: "id", Reason: "target id is required"}
	}
	if err := d.Validate(id); err != nil {
		return InputConfig{}, OutputConfig{}, err
	}
	if layout.OutDir == "" || layout.Entry == "" {
		def := DefaultLayout()
		if layout.OutDir == "" {
			layout.OutDir = def.OutDir
		}
		if layout.Entry == "" {
			layout.Entry = def.Entry
		}
	}

	return resolveInput(id, d, layout), resolveOutput(id, d, layout), nil
}

func resolveInput(id string, d target.Descriptor, layout Layout) InputConfig {
	entry := d.Src
	if entry == "" {
		entry = layout.Entry
	}

	stages := []Stage{{Kind: StageResolve, Platform: platformFor(d)}}
	if d.Compiles() {
		stages = append(stages, Stage{
			Kind:            StageTranspile,
			Target:          d.Target,
			Loose:           true,
			PreserveModules: false,
		})
	}

	return InputConfig{
		TargetID: id,
		Entry:    entry,
		Filter:   SuppressCircular,
		Stages:   stages,
	}
}

func resolveOutput(id string, d target.Descriptor, layout Layout) OutputConfig {
	out := OutputConfig{
		TargetID:  id,
		Dir:       path.Join(layout.OutDir, id),
		Filename:  d.OutputFilename(),
		Format:    d.Format,
		Sourcemap: true,
	}
	if d.Name != "" {
		out.GlobalName = d.Name
	}
	return out
}

// platformFor picks node resolution when the compatibility target names node.
func platformFor(d target.Descriptor) Platform {
	if !d.Compiles() {
		return PlatformBrowser
	}
	for _, q := range strings.Split(d.Target, ",") {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(q)), "node") {
			return PlatformNode
		}
	}
	return PlatformBrowser
}

// String renders the stage chain for logs.
func (c InputConfig) String() string {
	names := make([]string, 0, len(c.Stages))
	for _, s := range c.Stages {
		names = append(names, string(s.Kind))
	}
	return fmt.Sprintf("%s [%s]", c.Entry, strings.Join(names, " -> "))
}
