package minify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/leapstack-labs/multibuild/internal/compat"
	"github.com/leapstack-labs/multibuild/internal/target"
)

// ESBuild minifies with the esbuild transform API.
type ESBuild struct{}

// NewESBuild returns an esbuild-backed minifier.
func NewESBuild() *ESBuild {
	return &ESBuild{}
}

// Minify mangles, compresses and strips whitespace from code.
//
// Without a module format esbuild treats top-level bindings as globals and
// leaves them alone; giving it the input's own module format lets it rename
// them without changing what the file exports.
func (ESBuild) Minify(ctx context.Context, code string, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	settings := compat.Passthrough()
	if opts.Target != "" {
		var err error
		if settings, err = compat.Parse(opts.Target); err != nil {
			return nil, err
		}
	}

	topts := api.TransformOptions{
		Loader:            api.LoaderJS,
		Sourcefile:        opts.SourceMapFilenameHint,
		Sourcemap:         api.SourceMapExternal,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		Target:            settings.Target,
		Engines:           settings.Engines,
		LogLevel:          api.LogLevelSilent,
	}
	if !opts.PreserveTopLevelNames {
		format, err := moduleFormat(opts.Format)
		if err != nil {
			return nil, err
		}
		topts.Format = format
	}
	if opts.StripComments {
		topts.LegalComments = api.LegalCommentsNone
	} else {
		topts.LegalComments = api.LegalCommentsInline
	}

	result := api.Transform(code, topts)
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, m := range result.Errors {
			if m.Location != nil {
				msgs = append(msgs, fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column, m.Text))
			} else {
				msgs = append(msgs, m.Text)
			}
		}
		return nil, errors.New(strings.Join(msgs, "\n"))
	}

	return &Result{Code: result.Code, Map: result.Map}, nil
}

// moduleFormat maps the input format to the esbuild format that scopes its
// top-level bindings. AMD output is a CommonJS-style script around define().
func moduleFormat(f target.Format) (api.Format, error) {
	switch f {
	case target.FormatCommonJS, target.FormatAMD:
		return api.FormatCommonJS, nil
	case target.FormatESModule:
		return api.FormatESModule, nil
	case target.FormatIIFE, "":
		return api.FormatDefault, nil
	default:
		return api.FormatDefault, fmt.Errorf("unsupported module format %q", f)
	}
}
