// Package pipeline runs the build job of a single target: resolve the
// descriptor, bundle and write the primary artifact, then optionally produce
// the minified sibling.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/multibuild/internal/bundler"
	"github.com/leapstack-labs/multibuild/internal/fsutil"
	"github.com/leapstack-labs/multibuild/internal/logfields"
	"github.com/leapstack-labs/multibuild/internal/metrics"
	"github.com/leapstack-labs/multibuild/internal/minify"
	"github.com/leapstack-labs/multibuild/internal/resolve"
	"github.com/leapstack-labs/multibuild/internal/target"
)

// Config holds job dependencies.
type Config struct {
	// Bundler produces the primary artifact (required).
	Bundler bundler.Bundler
	// Minifier is used by the fallback strategy.
	Minifier minify.Minifier
	// Strategy selects the minification path. Empty means fallback.
	Strategy Strategy
	// Layout locates sources and outputs.
	Layout resolve.Layout
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
	// Recorder receives per-target metrics (optional).
	Recorder metrics.Recorder
}

// Job builds one target at a time. It holds no per-target state, so one
// Job may run any number of targets concurrently.
type Job struct {
	bundler  bundler.Bundler
	minifier minify.Minifier
	strategy Strategy
	layout   resolve.Layout
	logger   *slog.Logger
	recorder metrics.Recorder
}

// NewJob validates cfg and returns a Job.
func NewJob(cfg Config) (*Job, error) {
	if cfg.Bundler == nil {
		return nil, errors.New("pipeline: bundler is required")
	}
	strategy, err := ParseStrategy(string(cfg.Strategy))
	if err != nil {
		return nil, err
	}
	if strategy == StrategyFallback && cfg.Minifier == nil {
		return nil, errors.New("pipeline: fallback strategy requires a minifier")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	layout := cfg.Layout
	if layout == (resolve.Layout{}) {
		layout = resolve.DefaultLayout()
	}

	return &Job{
		bundler:  cfg.Bundler,
		minifier: cfg.Minifier,
		strategy: strategy,
		layout:   layout,
		logger:   logger,
		recorder: recorder,
	}, nil
}

// Strategy returns the minification strategy in effect.
func (j *Job) Strategy() Strategy {
	return j.strategy
}

// Run builds target id from d. Configuration and bundling errors fail the
// outcome; minification errors are logged and attached as MinifyErr.
func (j *Job) Run(ctx context.Context, id string, d target.Descriptor) Outcome {
	o := Outcome{TargetID: id, Started: time.Now()}
	logger := j.logger.With(logfields.Target(id))
	logger.Info("building target")

	j.run(ctx, logger, id, d, &o)

	o.Duration = time.Since(o.Started)
	j.recorder.ObserveTargetDuration(id, o.Duration)
	if o.Err != nil {
		o.Status = StatusFailed
		j.recorder.IncTargetOutcome(id, metrics.OutcomeFailed)
		logger.Error("target failed", logfields.Error(o.Err), logfields.Duration(o.Duration))
		return o
	}

	o.Status = StatusSuccess
	j.recorder.IncTargetOutcome(id, metrics.OutcomeSuccess)
	if o.MinifyErr != nil {
		j.recorder.IncMinifyFailure(id)
	}
	logger.Info("built target", logfields.Duration(o.Duration))
	return o
}

func (j *Job) run(ctx context.Context, logger *slog.Logger, id string, d target.Descriptor, o *Outcome) {
	in, out, err := resolve.Resolve(id, d, j.layout)
	if err != nil {
		o.Err = err
		return
	}

	if d.Minify && j.strategy == StrategyIntegrated {
		j.runIntegrated(ctx, logger, id, d, in, out, o)
		return
	}

	// Phase 1: the primary artifact is durably written before Write returns.
	primary, diags, err := j.bundle(ctx, in, out)
	o.Diagnostics = diags
	if err != nil {
		o.Err = err
		return
	}
	o.Primary = primary
	logger.Debug("wrote primary artifact", logfields.Path(primary.CodePath), logfields.Bytes(primary.CodeBytes))

	if !d.Minify {
		return
	}

	// Phase 2 consumes the phase 1 artifact.
	minified, err := j.minifyArtifact(ctx, id, d, primary)
	if err != nil {
		o.MinifyErr = err
		logger.Error("minify failed", logfields.Strategy(string(j.strategy)), logfields.Error(err))
		return
	}
	o.Minified = minified
}

// runIntegrated bundles the primary and minified artifacts side by side;
// both derive from source, so neither waits on the other.
func (j *Job) runIntegrated(ctx context.Context, logger *slog.Logger, id string, d target.Descriptor, in resolve.InputConfig, out resolve.OutputConfig, o *Outcome) {
	minIn := in.WithStage(resolve.Stage{Kind: resolve.StageMinify, PreserveTopLevelNames: d.Global})
	// Diagnostics are already reported by the primary run.
	minIn.Filter = func(resolve.Diagnostic) bool { return false }
	minOut := out.WithFilename(target.MinFilename)

	var g errgroup.Group
	g.Go(func() error {
		primary, diags, err := j.bundle(ctx, in, out)
		o.Primary = primary
		o.Diagnostics = diags
		return err
	})
	g.Go(func() error {
		minified, _, err := j.bundle(ctx, minIn, minOut)
		if err != nil {
			o.MinifyErr = &minify.MinifyError{TargetID: id, Err: err}
			return nil
		}
		o.Minified = minified
		return nil
	})

	if err := g.Wait(); err != nil {
		o.Err = err
		return
	}
	if o.MinifyErr != nil {
		logger.Error("minify failed", logfields.Strategy(string(j.strategy)), logfields.Error(o.MinifyErr))
	}
}

func (j *Job) bundle(ctx context.Context, in resolve.InputConfig, out resolve.OutputConfig) (*bundler.Artifact, []resolve.Diagnostic, error) {
	b, err := j.bundler.Bundle(ctx, in, out)
	if err != nil {
		return nil, nil, asBundleError(out.TargetID, err)
	}
	art, err := b.Write()
	if err != nil {
		return nil, b.Diagnostics, asBundleError(out.TargetID, err)
	}
	return art, b.Diagnostics, nil
}

// minifyArtifact reads the primary code back and writes index.min.js and its
// map next to it.
func (j *Job) minifyArtifact(ctx context.Context, id string, d target.Descriptor, primary *bundler.Artifact) (*bundler.Artifact, error) {
	fail := func(err error) (*bundler.Artifact, error) {
		return nil, &minify.MinifyError{TargetID: id, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	code, err := os.ReadFile(primary.CodePath)
	if err != nil {
		return fail(fmt.Errorf("failed to read primary artifact: %w", err))
	}

	res, err := j.minifier.Minify(ctx, string(code), minify.Options{
		PreserveTopLevelNames: d.Global,
		Format:                d.Format,
		StripComments:         true,
		SourceMapFilenameHint: filepath.Base(primary.CodePath),
		Target:                minifyTarget(d),
	})
	if err != nil {
		return fail(err)
	}

	dir := filepath.Dir(primary.CodePath)
	codePath := filepath.Join(dir, target.MinFilename)
	mapPath := codePath + ".map"

	contents := make([]byte, 0, len(res.Code)+64)
	contents = append(contents, res.Code...)
	contents = append(contents, "//# sourceMappingURL="+filepath.Base(mapPath)+"\n"...)

	if err := fsutil.WriteFileDurable(codePath, contents, 0o644); err != nil {
		return fail(err)
	}
	if err := fsutil.WriteFileDurable(mapPath, res.Map, 0o644); err != nil {
		return fail(err)
	}

	return &bundler.Artifact{
		TargetID:  id,
		CodePath:  codePath,
		MapPath:   mapPath,
		CodeBytes: int64(len(contents)),
		MapBytes:  int64(len(res.Map)),
		Inputs:    primary.Inputs,
	}, nil
}

// minifyTarget keeps the minifier from raising the syntax level of compiled
// output. Untranspiled output has no ceiling.
func minifyTarget(d target.Descriptor) string {
	if !d.Compiles() {
		return ""
	}
	if d.Target == "" {
		return "es2015"
	}
	return d.Target
}

func asBundleError(id string, err error) error {
	var be *bundler.BundleError
	if errors.As(err, &be) {
		return err
	}
	return &bundler.BundleError{TargetID: id, Op: bundler.OpResolve, Err: err}
}
