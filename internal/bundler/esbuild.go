package bundler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/leapstack-labs/multibuild/internal/compat"
	"github.com/leapstack-labs/multibuild/internal/logfields"
	"github.com/leapstack-labs/multibuild/internal/resolve"
	"github.com/leapstack-labs/multibuild/internal/target"
)

// ESBuild bundles with the in-process esbuild API.
type ESBuild struct {
	root   string
	logger *slog.Logger
}

// NewESBuild creates a bundler rooted at the project directory root.
// A nil logger discards diagnostics.
func NewESBuild(root string, logger *slog.Logger) (*ESBuild, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ESBuild{root: abs, logger: logger}, nil
}

// Root returns the absolute project root.
func (e *ESBuild) Root() string {
	return e.root
}

// Bundle runs esbuild for one target. Warnings that pass the input filter
// are logged; errors become a *BundleError.
func (e *ESBuild) Bundle(ctx context.Context, in resolve.InputConfig, out resolve.OutputConfig) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, &BundleError{TargetID: out.TargetID, Op: OpResolve, Err: err}
	}

	opts, err := e.buildOptions(in, out)
	if err != nil {
		return nil, &BundleError{TargetID: out.TargetID, Op: OpConfigure, Err: err}
	}

	e.logger.Debug("running bundler", logfields.Target(out.TargetID), slog.String("input", in.String()), logfields.Path(out.Path()))
	result := api.Build(opts)

	if len(result.Errors) > 0 {
		return nil, &BundleError{TargetID: out.TargetID, Op: OpResolve, Err: messagesError(result.Errors)}
	}

	meta, err := parseMetafile(result.Metafile)
	if err != nil {
		return nil, &BundleError{TargetID: out.TargetID, Op: OpResolve, Err: err}
	}

	diags := append(messageDiagnostics(result.Warnings), meta.cycleDiagnostics()...)
	reported := in.Filter.Apply(diags)
	for _, d := range reported {
		e.logger.Warn(d.String(), logfields.Target(out.TargetID), logfields.Code(d.Code))
	}

	b := &Bundle{
		TargetID:    out.TargetID,
		Root:        e.root,
		Inputs:      meta.inputs(),
		Diagnostics: reported,
	}
	if err := e.collectOutputs(b, result.OutputFiles, out); err != nil {
		return nil, &BundleError{TargetID: out.TargetID, Op: OpResolve, Err: err}
	}
	return b, nil
}

func (e *ESBuild) buildOptions(in resolve.InputConfig, out resolve.OutputConfig) (api.BuildOptions, error) {
	opts := api.BuildOptions{
		AbsWorkingDir: e.root,
		EntryPoints:   []string{in.Entry},
		Outfile:       filepath.Join(e.root, filepath.FromSlash(out.Path())),
		Bundle:        true,
		Write:         false,
		Metafile:      true,
		LogLevel:      api.LogLevelSilent,
		Platform:      api.PlatformBrowser,
		Target:        api.ESNext,
	}

	if out.Sourcemap {
		opts.Sourcemap = api.SourceMapLinked
	}

	switch out.Format {
	case target.FormatCommonJS:
		opts.Format = api.FormatCommonJS
	case target.FormatESModule:
		opts.Format = api.FormatESModule
	case target.FormatIIFE:
		opts.Format = api.FormatIIFE
		opts.GlobalName = out.GlobalName
	case target.FormatAMD:
		// esbuild has no AMD output; wrap the IIFE in a define() factory
		// returning the named export.
		opts.Format = api.FormatIIFE
		opts.GlobalName = out.GlobalName
		opts.Banner = map[string]string{"js": "define(function () {"}
		opts.Footer = map[string]string{"js": "return " + out.GlobalName + ";\n});"}
	default:
		return opts, fmt.Errorf("unsupported format %q", out.Format)
	}

	for _, stage := range in.Stages {
		switch stage.Kind {
		case resolve.StageResolve:
			if stage.Platform == resolve.PlatformNode {
				opts.Platform = api.PlatformNode
			}
		case resolve.StageTranspile:
			settings, err := compat.Parse(stage.Target)
			if err != nil {
				return opts, err
			}
			opts.Target = settings.Target
			opts.Engines = settings.Engines
		case resolve.StageMinify:
			opts.MinifyWhitespace = true
			opts.MinifyIdentifiers = true
			opts.MinifySyntax = true
			opts.LegalComments = api.LegalCommentsNone
		default:
			return opts, fmt.Errorf("unknown processing stage %q", stage.Kind)
		}
	}
	return opts, nil
}

func (e *ESBuild) collectOutputs(b *Bundle, files []api.OutputFile, out resolve.OutputConfig) error {
	codePath := filepath.Join(e.root, filepath.FromSlash(out.Path()))
	mapPath := codePath + ".map"

	for _, f := range files {
		switch filepath.Clean(f.Path) {
		case codePath:
			b.Code = File{Path: out.Path(), Contents: f.Contents}
		case mapPath:
			b.Map = &File{Path: out.Path() + ".map", Contents: f.Contents}
		default:
			return fmt.Errorf("unexpected output file %s", f.Path)
		}
	}

	if b.Code.Contents == nil {
		return errors.New("bundler produced no code output")
	}
	if out.Sourcemap && b.Map == nil {
		return errors.New("bundler produced no sourcemap")
	}
	return nil
}

func messageDiagnostics(msgs []api.Message) []resolve.Diagnostic {
	diags := make([]resolve.Diagnostic, 0, len(msgs))
	for _, m := range msgs {
		d := resolve.Diagnostic{Code: m.ID, Message: m.Text}
		if d.Code == "" {
			d.Code = "bundler-warning"
		}
		if m.Location != nil {
			d.File = m.Location.File
			d.Line = m.Location.Line
		}
		diags = append(diags, d)
	}
	return diags
}

func messagesError(msgs []api.Message) error {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		if m.Location != nil {
			fmt.Fprintf(&b, "%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text)
		} else {
			b.WriteString(m.Text)
		}
	}
	return errors.New(b.String())
}
