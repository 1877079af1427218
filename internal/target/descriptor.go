// Package target defines build target descriptors and the catalogue of
// named targets the orchestrator knows how to build.
package target

import (
	"fmt"
	"strings"
)

// Format is the module format of an emitted artifact.
type Format string

// Supported artifact formats.
const (
	FormatCommonJS Format = "commonjs"
	FormatESModule Format = "esmodule"
	FormatAMD      Format = "amd"
	FormatIIFE     Format = "iife"
)

// Default values applied when a descriptor leaves a field empty.
const (
	DefaultFilename = "index.js"
	MinFilename     = "index.min.js"
)

// ParseFormat converts a user-supplied format name into a Format.
// The short names used by most bundlers (cjs, es, esm) are accepted too.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "commonjs", "cjs":
		return FormatCommonJS, nil
	case "esmodule", "esm", "es":
		return FormatESModule, nil
	case "amd":
		return FormatAMD, nil
	case "iife":
		return FormatIIFE, nil
	default:
		return "", fmt.Errorf("unknown format %q", s)
	}
}

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	switch f {
	case FormatCommonJS, FormatESModule, FormatAMD, FormatIIFE:
		return true
	}
	return false
}

// NeedsName reports whether artifacts of this format must be given a name.
func (f Format) NeedsName() bool {
	return f == FormatAMD || f == FormatIIFE
}

// Descriptor describes one desired build output.
type Descriptor struct {
	// Format is the module format of the artifact.
	Format Format `json:"format" yaml:"format" koanf:"format"`
	// Compile controls source-syntax transpilation. Nil means true.
	Compile *bool `json:"compile,omitempty" yaml:"compile,omitempty" koanf:"compile"`
	// Minify requests a minified sibling artifact.
	Minify bool `json:"minify,omitempty" yaml:"minify,omitempty" koanf:"minify"`
	// Global marks artifacts consumed as a standalone browser global.
	Global bool `json:"global,omitempty" yaml:"global,omitempty" koanf:"global"`
	// Name is the export or global identifier.
	Name string `json:"name,omitempty" yaml:"name,omitempty" koanf:"name"`
	// Src overrides the canonical library entry point.
	Src string `json:"src,omitempty" yaml:"src,omitempty" koanf:"src"`
	// Filename overrides the output filename (default index.js).
	Filename string `json:"filename,omitempty" yaml:"filename,omitempty" koanf:"filename"`
	// Target is the runtime or browser compatibility identifier.
	Target string `json:"target,omitempty" yaml:"target,omitempty" koanf:"target"`
}

// Compiles reports whether transpilation runs for this descriptor.
func (d Descriptor) Compiles() bool {
	return d.Compile == nil || *d.Compile
}

// OutputFilename returns the filename of the primary artifact.
func (d Descriptor) OutputFilename() string {
	if d.Filename == "" {
		return DefaultFilename
	}
	return d.Filename
}

// Validate checks the descriptor invariants. The returned error is a
// *ConfigurationError carrying id.
func (d Descriptor) Validate(id string) error {
	if !d.Format.Valid() {
		return &ConfigurationError{TargetID: id, Field: "format", Reason: fmt.Sprintf("unsupported format %q", d.Format)}
	}
	if strings.TrimSpace(d.Name) == "" {
		if d.Global {
			return &ConfigurationError{TargetID: id, Field: "name", Reason: "global targets require a name"}
		}
		if d.Format.NeedsName() {
			return &ConfigurationError{TargetID: id, Field: "name", Reason: fmt.Sprintf("%s targets require a name", d.Format)}
		}
	}
	if strings.ContainsAny(d.OutputFilename(), `/\`) {
		return &ConfigurationError{TargetID: id, Field: "filename", Reason: "filename must not contain path separators"}
	}
	if d.OutputFilename() == MinFilename && d.Minify {
		return &ConfigurationError{TargetID: id, Field: "filename", Reason: "filename collides with the minified artifact"}
	}
	return nil
}

// Bool returns a pointer to b. It is used to set Descriptor.Compile.
func Bool(b bool) *bool {
	return &b
}

// ConfigurationError reports a descriptor that violates an invariant.
type ConfigurationError struct {
	TargetID string
	Field    string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.TargetID == "" {
		return fmt.Sprintf("invalid target configuration: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("target %s: invalid configuration: %s: %s", e.TargetID, e.Field, e.Reason)
}
